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

// Package app wires a config.Config into the fully-constructed set of
// collaborators the bandit entrypoints need, the same way the teacher's
// cmd/ratelimiter-api/main.go built its Persister/Store/Worker/Server chain
// by hand before handing them to the HTTP server and background worker.
package app

import (
	"fmt"
	"time"

	"bandit/internal/bandit/config"
	"bandit/internal/bandit/posterior"
	"bandit/internal/bandit/ports"
	"bandit/internal/bandit/registry"
	"bandit/internal/bandit/service"
	"bandit/internal/bandit/statestore"
	"bandit/internal/bandit/sweep"
)

// App bundles every long-lived collaborator the serve and sweep
// subcommands share, so each only has to build one of
// these and then decide which pieces to start.
type App struct {
	Config config.Config

	Store    *statestore.Adapter
	Registry *registry.Store
	Posterior *posterior.Engine
	Cache    *posterior.Cache
	Sink     ports.AnnotationSink

	Server *service.Server
	Sweep  *sweep.Engine
}

// New constructs every collaborator named by cfg. The State Store uses a
// real Redis client at cfg.RedisAddr, or the in-process logging client when
// cfg.RedisAddr is empty (the same fallback statestore.BuildClient applies
// to an empty adapter name).
func New(cfg config.Config) (*App, error) {
	redisAdapter := "redis"
	if cfg.RedisAddr == "" {
		redisAdapter = "logging"
	}
	client, err := statestore.BuildClient(redisAdapter, cfg.RedisAddr, cfg.RedisUser, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("app: build state store client: %w", err)
	}
	store := statestore.New(client)

	reg, err := registry.Open(cfg.PostgresDSN, registry.PoolConfig{
		MaxOpenConns:    cfg.PostgresMaxOpenConn,
		MaxIdleConns:    cfg.PostgresMaxIdleConn,
		ConnMaxLifetime: cfg.PostgresConnMaxLife,
		ConnMaxIdleTime: cfg.PostgresConnMaxLife,
	})
	if err != nil {
		return nil, fmt.Errorf("app: open registry: %w", err)
	}

	posteriorEngine := posterior.New()
	cache := posterior.NewCache(30 * time.Second)
	sink := ports.BuildAnnotationSink(cfg.AnnotationURL, cfg.AnnotationToken, cfg.AnnotationTimeout)
	snapshots := ports.NewPostgresSnapshotExporter(reg.DB())

	srv := service.New(store, reg, posteriorEngine, cache, cfg.MHot, cfg.MStop, cfg.StopThreshold, cfg.RejectRewardAgainstConcluded)

	sweepEngine := sweep.New(reg, store, posteriorEngine, cache, sink, snapshots, sweep.Config{
		Threshold:             cfg.StopThreshold,
		MStop:                 cfg.MStop,
		Interval:              cfg.SweepInterval,
		CacheEvictionAge:      cfg.CacheEvictionAge,
		CacheEvictionInterval: cfg.CacheEvictionInterval,
	})

	return &App{
		Config:    cfg,
		Store:     store,
		Registry:  reg,
		Posterior: posteriorEngine,
		Cache:     cache,
		Sink:      sink,
		Server:    srv,
		Sweep:     sweepEngine,
	}, nil
}

// Close releases the Registry's connection pool. The State Store client is
// not closed here; a go-redis client's pool lives until the process exits.
func (a *App) Close() error {
	if a.Registry != nil {
		return a.Registry.Close()
	}
	return nil
}
