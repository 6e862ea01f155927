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
	"log"
)

// LoggingClient is a dependency-free stand-in for Client that logs what it
// would have done. It lets the service start up and be poked without a
// live Redis instance, the same role the teacher's LoggingRedisEvaler
// played for the rate limiter demo.
type LoggingClient struct {
	values map[string]string
}

// NewLoggingClient returns a LoggingClient with an empty in-process map, so
// that, unlike the teacher's pure-logger, repeated reads within one process
// are still self-consistent enough for manual smoke testing.
func NewLoggingClient() *LoggingClient {
	return &LoggingClient{values: make(map[string]string)}
}

func (l *LoggingClient) Get(ctx context.Context, key string) (string, error) {
	if v, ok := l.values[key]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

func (l *LoggingClient) MGet(ctx context.Context, keys []string) ([]*string, error) {
	out := make([]*string, len(keys))
	for i, k := range keys {
		if v, ok := l.values[k]; ok {
			vv := v
			out[i] = &vv
		}
	}
	return out, nil
}

func (l *LoggingClient) SetNX(ctx context.Context, key, value string) error {
	if _, ok := l.values[key]; ok {
		return nil
	}
	l.values[key] = value
	log.Printf("[statestore-demo] SETNX %s=%s", key, value)
	return nil
}

func (l *LoggingClient) Incr(ctx context.Context, key string) (int64, error) {
	n := int64(1)
	fmt.Sscanf(l.values[key], "%d", &n)
	if _, ok := l.values[key]; ok {
		n++
	}
	l.values[key] = fmt.Sprintf("%d", n)
	log.Printf("[statestore-demo] INCR %s -> %d", key, n)
	return n, nil
}

func (l *LoggingClient) Pipeline(ctx context.Context, fn func(Pipeliner)) error {
	fn(&loggingPipeliner{client: l})
	return nil
}

type loggingPipeliner struct{ client *LoggingClient }

func (p *loggingPipeliner) SetNX(key, value string) { _ = p.client.SetNX(context.Background(), key, value) }
func (p *loggingPipeliner) Incr(key string)          { _, _ = p.client.Incr(context.Background(), key) }

// BuildClient constructs a Client based on a string selector, mirroring the
// teacher's persistence.BuildPersister switch:
//   - "redis": a real github.com/redis/go-redis/v9 client at addr
//   - "": a dependency-free logging client, for local smoke tests
func BuildClient(adapter, addr, username, password string, db int) (Client, error) {
	switch adapter {
	case "", "logging":
		return NewLoggingClient(), nil
	case "redis":
		if addr == "" {
			return nil, fmt.Errorf("statestore: redis adapter requires an address")
		}
		return NewGoRedisClient(addr, username, password, db), nil
	default:
		return nil, fmt.Errorf("statestore: unknown adapter %q", adapter)
	}
}
