// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package statestore

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// GoRedisClient is the production-ready Client implementation, backed by
// github.com/redis/go-redis/v9. It wraps a single pooled *redis.Client, the
// same "one shared, thread-safe client per process" shape the teacher's
// GoRedisEvaler used for the rate limiter's persister.
type GoRedisClient struct{ c *redis.Client }

// NewGoRedisClient dials (lazily — go-redis connects on first use) a Redis
// instance at addr with the given database index and optional credentials.
func NewGoRedisClient(addr, username, password string, db int) *GoRedisClient {
	return &GoRedisClient{c: redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})}
}

// Close releases the underlying connection pool.
func (g *GoRedisClient) Close() error { return g.c.Close() }

// Ping checks connectivity.
func (g *GoRedisClient) Ping(ctx context.Context) error { return g.c.Ping(ctx).Err() }

func (g *GoRedisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := g.c.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (g *GoRedisClient) MGet(ctx context.Context, keys []string) ([]*string, error) {
	raw, err := g.c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*string, len(raw))
	for i, v := range raw {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("statestore: unexpected MGET value type %T for key %s", v, keys[i])
		}
		out[i] = &s
	}
	return out, nil
}

func (g *GoRedisClient) SetNX(ctx context.Context, key, value string) error {
	return g.c.SetNX(ctx, key, value, 0).Err()
}

func (g *GoRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return g.c.Incr(ctx, key).Result()
}

func (g *GoRedisClient) Pipeline(ctx context.Context, fn func(Pipeliner)) error {
	pipe := g.c.Pipeline()
	fn(&goRedisPipeliner{pipe: pipe})
	_, err := pipe.Exec(ctx)
	// A pipeline of independent SETNX/INCR ops reports redis.Nil-style
	// "didn't change anything" conditions as normal (nil-error) results, not
	// errors; Exec only errors on transport/protocol failures.
	return err
}

type goRedisPipeliner struct{ pipe redis.Pipeliner }

func (p *goRedisPipeliner) SetNX(key, value string) { p.pipe.SetNX(context.Background(), key, value, 0) }
func (p *goRedisPipeliner) Incr(key string)          { p.pipe.Incr(context.Background(), key) }
