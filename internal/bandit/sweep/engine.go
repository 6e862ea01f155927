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

// Package sweep implements the Conclusion Engine (§4.5): a recurring job
// that sweeps every running experiment, applies the stopping rule, and
// transitions winners to concluded exactly once.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"bandit/internal/bandit/metrics"
	"bandit/internal/bandit/posterior"
	"bandit/internal/bandit/ports"
	"bandit/internal/bandit/statestore"
)

// Registry is the subset of registry.Store the Conclusion Engine depends on.
type Registry interface {
	ListRunning(ctx context.Context) ([]string, error)
	Conclude(ctx context.Context, experimentID string, winnerArm int, now time.Time) (bool, error)
}

// Store is the subset of the State Store Adapter the engine reads from.
type Store interface {
	GetNArms(ctx context.Context, experimentID string) (int, error)
	ReadPosteriors(ctx context.Context, experimentID string, nArms int) (alphas, betas []int64, err error)
}

// Engine runs the periodic sweep described in §4.5, as a ticker-plus-stop
// channel background loop directly modeled on the teacher's Worker: two
// goroutines share one stopChan/wg, commitLoop's role played here by loop
// (runs RunSweepOnce) and evictionLoop's role played by cacheEvictionLoop
// (bounds the p_best Cache the same way evictionLoop bounded the VSA
// store, dropping entries nothing has touched in a while).
type Engine struct {
	reg       Registry
	store     Store
	posterior *posterior.Engine
	cache     *posterior.Cache
	sink      ports.AnnotationSink
	snapshots ports.SnapshotExporter

	threshold float64
	mStop     int
	interval  time.Duration

	cacheEvictionAge      time.Duration
	cacheEvictionInterval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// Config bundles the Conclusion Engine's tunables (§6 "Configuration").
type Config struct {
	Threshold float64
	MStop     int
	Interval  time.Duration

	// CacheEvictionAge and CacheEvictionInterval bound the p_best Cache the
	// Engine shares with the Inference Service: entries untouched for
	// CacheEvictionAge are dropped every CacheEvictionInterval. A zero
	// CacheEvictionInterval disables eviction (the cache then grows with the
	// number of distinct experiment ids ever seen, for the life of the
	// process); with a non-zero interval, a zero CacheEvictionAge drops
	// every entry on each tick.
	CacheEvictionAge      time.Duration
	CacheEvictionInterval time.Duration
}

// New builds a Conclusion Engine.
func New(reg Registry, store Store, posteriorEngine *posterior.Engine, cache *posterior.Cache, sink ports.AnnotationSink, snapshots ports.SnapshotExporter, cfg Config) *Engine {
	return &Engine{
		reg:                   reg,
		store:                 store,
		posterior:             posteriorEngine,
		cache:                 cache,
		sink:                  sink,
		snapshots:             snapshots,
		threshold:             cfg.Threshold,
		mStop:                 cfg.MStop,
		interval:              cfg.Interval,
		cacheEvictionAge:      cfg.CacheEvictionAge,
		cacheEvictionInterval: cfg.CacheEvictionInterval,
		stopChan:              make(chan struct{}),
	}
}

// Start launches the sweep loop and, if configured, the cache eviction
// loop as twin background goroutines, the same shape as the teacher's
// Worker.Start launching commitLoop and evictionLoop together.
func (e *Engine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loop()
	}()

	if e.cacheEvictionInterval > 0 {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.cacheEvictionLoop()
		}()
	}
}

// Stop signals the loop to exit and waits for it to finish the sweep in
// flight, if any.
func (e *Engine) Stop() {
	if !atomic.CompareAndSwapUint32(&e.stopped, 0, 1) {
		return
	}
	close(e.stopChan)
	e.wg.Wait()
}

func (e *Engine) loop() {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			concluded, err := e.RunSweepOnce(context.Background())
			if err != nil {
				log.Printf("sweep: cycle failed: %v", err)
				continue
			}
			if len(concluded) > 0 {
				log.Printf("sweep: concluded %v", concluded)
			}
		case <-e.stopChan:
			return
		}
	}
}

// cacheEvictionLoop periodically drops p_best Cache entries nothing has
// read or refreshed in cacheEvictionAge, bounding the Cache's size to the
// number of experiments active within that window rather than every
// experiment id ever seen.
func (e *Engine) cacheEvictionLoop() {
	ticker := time.NewTicker(e.cacheEvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := e.cache.Evict(e.cacheEvictionAge); n > 0 {
				log.Printf("sweep: evicted %d stale cache entries", n)
			}
		case <-e.stopChan:
			return
		}
	}
}

// RunSweepOnce executes the five §4.5 steps once, synchronously, and
// returns the ids successfully concluded this cycle. It is the unit the
// loop calls on a timer and the one callers invoke directly for an
// on-demand sweep (e.g. the `bandit sweep` CLI subcommand).
func (e *Engine) RunSweepOnce(ctx context.Context) ([]string, error) {
	started := time.Now()
	defer func() { metrics.ObserveSweepDuration(time.Since(started)) }()

	running, err := e.reg.ListRunning(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep: list_running: %w", err)
	}

	var concluded []string
	for _, experimentID := range running {
		ok, err := e.sweepOne(ctx, experimentID)
		if err != nil {
			log.Printf("sweep: experiment %s: %v", experimentID, err)
			continue
		}
		if ok {
			concluded = append(concluded, experimentID)
		}
	}
	return concluded, nil
}

// sweepOne applies steps 2-4 of §4.5 to a single experiment, isolating its
// failure from the rest of the sweep.
func (e *Engine) sweepOne(ctx context.Context, experimentID string) (bool, error) {
	nArms, err := e.store.GetNArms(ctx, experimentID)
	if err != nil {
		if errors.Is(err, statestore.ErrNotFound) {
			return false, fmt.Errorf("experiment has a registry row but no state store entry: %w", err)
		}
		return false, err
	}
	if nArms < 2 {
		return false, fmt.Errorf("malformed state for %s: n_arms=%d", experimentID, nArms)
	}
	alphas, betas, err := e.store.ReadPosteriors(ctx, experimentID, nArms)
	if err != nil {
		return false, err
	}

	pBest := e.posterior.PBestAll(alphas, betas, e.mStop)
	e.cache.Put(experimentID, pBest)

	snapshotAt := time.Now().UTC()
	snapshots := make([]ports.PosteriorSnapshot, nArms)
	for k := 0; k < nArms; k++ {
		snapshots[k] = ports.PosteriorSnapshot{
			SnapshotAt:   snapshotAt,
			ExperimentID: experimentID,
			ArmID:        k,
			Alpha:        alphas[k],
			Beta:         betas[k],
			PrimaryProb:  pBest[k],
		}
	}
	if err := e.snapshots.Export(ctx, snapshots); err != nil {
		// Snapshot export is analytic, not operational: never block or
		// reverse a conclusion because the export failed.
		log.Printf("sweep: snapshot export for %s: %v", experimentID, err)
	}

	winner := argmax(pBest)
	if pBest[winner] < e.threshold {
		return false, nil
	}

	ok, err := e.reg.Conclude(ctx, experimentID, winner, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("conclude: %w", err)
	}
	if !ok {
		// (§7 ConcurrentConclude) another sweep already won the race; the
		// conditional update returning zero rows means "already concluded".
		return false, nil
	}

	metrics.RecordConcluded()
	if err := e.sink.Emit(ctx, ports.Annotation{
		TimeMillis: time.Now().UnixMilli(),
		Tags:       []string{"bandit", "experiment-concluded"},
		Text:       fmt.Sprintf("experiment %s concluded: arm %d crossed p_best threshold %.2f", experimentID, winner, e.threshold),
	}); err != nil {
		// §4.5: annotation failures never roll back the conclusion.
		log.Printf("sweep: annotation for %s: %v (conclusion stands)", experimentID, err)
	}

	return true, nil
}

func argmax(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}
