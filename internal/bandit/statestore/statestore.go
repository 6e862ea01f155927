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

// Package statestore implements the key-namespaced view over the shared KV
// store described in §4.1 and §6 of the design: a flat string key layout
// under "experiment:<id>:...", atomic counter increment, a single batched
// multi-get for posterior reads, and pipelined seeding and reward writes.
package statestore

import (
	"context"
	"fmt"
	"strconv"
)

// Client abstracts the minimal surface needed from a Redis-compatible store.
// Implementations may wrap github.com/redis/go-redis/v9 or any equivalent
// pipelining client; this mirrors the teacher's RedisEvaler abstraction so
// the adapter can be exercised against a fake in unit tests.
type Client interface {
	// Get returns the string value for key, or ErrNotFound if absent.
	Get(ctx context.Context, key string) (string, error)
	// MGet returns one value per key, with nil entries for absent keys.
	MGet(ctx context.Context, keys []string) ([]*string, error)
	// SetNX sets key to value only if it does not already exist.
	SetNX(ctx context.Context, key, value string) error
	// Incr atomically increments key by 1 and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Pipeline runs fn against a batched pipeline and flushes it atomically
	// from the caller's perspective with respect to round trips (not
	// necessarily cross-key atomicity — see §4.1).
	Pipeline(ctx context.Context, fn func(Pipeliner)) error
}

// Pipeliner queues operations to be flushed together in one round trip.
type Pipeliner interface {
	SetNX(key, value string)
	Incr(key string)
}

// ErrNotFound is returned by Client.Get when the key is absent. Adapter
// returns it from GetNArms for an unknown experiment; missing alpha/beta
// counters are instead folded into the prior-floor default per invariant I5.
var ErrNotFound = fmt.Errorf("statestore: key not found")

// Adapter is the State Store Adapter described in §4.1.
type Adapter struct {
	client Client
}

// New returns an Adapter backed by client.
func New(client Client) *Adapter {
	return &Adapter{client: client}
}

// Key layout helpers (unexported; collaborators read posteriors through
// Adapter rather than addressing these keys themselves).
func nArmsKey(experimentID string) string { return fmt.Sprintf("experiment:%s:n_arms", experimentID) }
func totalDrawsKey(experimentID string) string {
	return fmt.Sprintf("experiment:%s:total_draws", experimentID)
}
func alphaKey(experimentID string, arm int) string {
	return fmt.Sprintf("experiment:%s:arm:%d:alpha", experimentID, arm)
}
func betaKey(experimentID string, arm int) string {
	return fmt.Sprintf("experiment:%s:arm:%d:beta", experimentID, arm)
}

// Seed writes n_arms, total_draws=0, and the prior counters (1,1) for every
// arm as a single non-transactional pipeline. Partial visibility under a
// race is acceptable per I5: a reader that observes some but not all of
// the seeded keys still sees a valid state, because missing counters
// default to 1 and a missing n_arms is surfaced as NotFound by GetNArms.
//
// Counters are seeded with SetNX so a retried or racing create cannot
// clobber counters that have already accumulated rewards.
func (a *Adapter) Seed(ctx context.Context, experimentID string, nArms int) error {
	return a.client.Pipeline(ctx, func(p Pipeliner) {
		p.SetNX(nArmsKey(experimentID), strconv.Itoa(nArms))
		p.SetNX(totalDrawsKey(experimentID), "0")
		for k := 0; k < nArms; k++ {
			p.SetNX(alphaKey(experimentID, k), "1")
			p.SetNX(betaKey(experimentID, k), "1")
		}
	})
}

// GetNArms performs a single GET for the experiment's arm count.
func (a *Adapter) GetNArms(ctx context.Context, experimentID string) (int, error) {
	v, err := a.client.Get(ctx, nArmsKey(experimentID))
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("statestore: malformed n_arms for %s: %w", experimentID, err)
	}
	return n, nil
}

// ReadPosteriors performs one batched multi-get of 2*n_arms keys in a fixed
// interleaved order (alpha_0, beta_0, alpha_1, beta_1, ...), defaulting any
// missing counter to 1 per I5. This is the only multi-key read on the
// /select hot path; /select also issues one GET (GetNArms) before it, so a
// select costs two State Store round trips.
func (a *Adapter) ReadPosteriors(ctx context.Context, experimentID string, nArms int) (alphas, betas []int64, err error) {
	keys := make([]string, 0, 2*nArms)
	for k := 0; k < nArms; k++ {
		keys = append(keys, alphaKey(experimentID, k), betaKey(experimentID, k))
	}
	vals, err := a.client.MGet(ctx, keys)
	if err != nil {
		return nil, nil, err
	}
	alphas = make([]int64, nArms)
	betas = make([]int64, nArms)
	for k := 0; k < nArms; k++ {
		alphas[k] = parseCounterOrDefault(vals[2*k])
		betas[k] = parseCounterOrDefault(vals[2*k+1])
	}
	return alphas, betas, nil
}

func parseCounterOrDefault(v *string) int64 {
	if v == nil {
		return 1
	}
	n, err := strconv.ParseInt(*v, 10, 64)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// ApplyReward increments alpha or beta for arm, and increments total_draws,
// in a single pipeline. The two increments are not required to be atomic
// together (only total_draws, which is advisory, observes both) — per
// §4.1, individual increments are atomic, which is what O1 requires.
func (a *Adapter) ApplyReward(ctx context.Context, experimentID string, arm int, success bool) error {
	key := alphaKey(experimentID, arm)
	if !success {
		key = betaKey(experimentID, arm)
	}
	return a.client.Pipeline(ctx, func(p Pipeliner) {
		p.Incr(key)
		p.Incr(totalDrawsKey(experimentID))
	})
}
