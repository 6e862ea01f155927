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

// Package service implements the public-facing Inference Service HTTP
// server (§4.4): it handles experiment creation, arm selection, reward
// ingestion, and the read-only conclude/p_best probes, delegating all state
// to the State Store and Registry.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"bandit/internal/bandit/apierr"
	"bandit/internal/bandit/metrics"
	"bandit/internal/bandit/posterior"
	"bandit/internal/bandit/registry"
	"bandit/internal/bandit/statestore"
)

// registryPort is the subset of registry.Store the service depends on,
// satisfied directly by *registry.Store and by fakes in tests.
type registryPort interface {
	Create(ctx context.Context, experimentID string, nArms int) error
	Get(ctx context.Context, experimentID string) (registry.Experiment, error)
}

// Server is the Inference Service (§4.4). It is stateless across requests:
// all mutable state lives behind store and reg.
type Server struct {
	store                  *statestore.Adapter
	reg                    registryPort
	engine                 *posterior.Engine
	cache                  *posterior.Cache
	mHot                   int
	mStop                  int
	stopThreshold          float64
	rejectAgainstConcluded bool
}

// New builds an Inference Service.
func New(store *statestore.Adapter, reg registryPort, engine *posterior.Engine, cache *posterior.Cache, mHot, mStop int, stopThreshold float64, rejectAgainstConcluded bool) *Server {
	return &Server{
		store:                  store,
		reg:                    reg,
		engine:                 engine,
		cache:                  cache,
		mHot:                   mHot,
		mStop:                  mStop,
		stopThreshold:          stopThreshold,
		rejectAgainstConcluded: rejectAgainstConcluded,
	}
}

// RegisterRoutes wires every §4.4 endpoint onto mux, using Go 1.22+
// method-and-path-parameter routing.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /experiments", metrics.Instrument("create_experiment", s.handleCreateExperiment))
	mux.HandleFunc("POST /select", metrics.Instrument("select", s.handleSelect))
	mux.HandleFunc("POST /reward", metrics.Instrument("reward", s.handleReward))
	mux.HandleFunc("GET /experiments/{id}/conclude", metrics.Instrument("conclude_probe", s.handleConcludeProbe))
	mux.HandleFunc("GET /experiments/{id}/p_best", metrics.Instrument("p_best", s.handlePBest))
	mux.HandleFunc("GET /health", metrics.Instrument("health", s.handleHealth))
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) { metrics.Handler().ServeHTTP(w, r) })
}

// ListenAndServe starts the HTTP server with the teacher's timeout
// defaults, adjusted upward since Thompson Sampling at M_hot can run
// noticeably longer than a simple counter check.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return httpServer.ListenAndServe()
}

type createExperimentRequest struct {
	ExperimentID string `json:"experiment_id"`
	NArms        int    `json:"n_arms"`
}

type createExperimentResponse struct {
	ExperimentID string `json:"experiment_id"`
	NArms        int    `json:"n_arms"`
	Status       string `json:"status"`
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.InvalidInput("malformed request body: %v", err))
		return
	}
	if req.ExperimentID == "" {
		writeError(w, apierr.InvalidInput("experiment_id is required"))
		return
	}
	if req.NArms < 2 {
		writeError(w, apierr.InvalidInput("n_arms must be >= 2, got %d", req.NArms))
		return
	}

	ctx := r.Context()
	if err := s.reg.Create(ctx, req.ExperimentID, req.NArms); err != nil {
		if errors.Is(err, registry.ErrAlreadyExists) {
			writeError(w, apierr.Conflict("experiment %s already exists", req.ExperimentID))
			return
		}
		writeError(w, apierr.Wrap(apierr.KindRegistryUnavailable, err, "create experiment"))
		return
	}
	if err := s.store.Seed(ctx, req.ExperimentID, req.NArms); err != nil {
		writeError(w, apierr.Wrap(apierr.KindStateStoreUnavailable, err, "seed experiment"))
		return
	}

	writeJSON(w, http.StatusCreated, createExperimentResponse{
		ExperimentID: req.ExperimentID,
		NArms:        req.NArms,
		Status:       "initialised",
	})
}

type selectRequest struct {
	ExperimentID string         `json:"experiment_id"`
	UserID       string         `json:"user_id,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

type selectResponse struct {
	SelectionID string  `json:"selection_id"`
	ArmID       int     `json:"arm_id"`
	ArmName     string  `json:"arm_name"`
	PBest       float64 `json:"p_best"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.InvalidInput("malformed request body: %v", err))
		return
	}
	ctx := r.Context()

	nArms, err := s.store.GetNArms(ctx, req.ExperimentID)
	if err != nil {
		writeError(w, toAPIErr(err, req.ExperimentID))
		return
	}
	alphas, betas, err := s.store.ReadPosteriors(ctx, req.ExperimentID, nArms)
	if err != nil {
		writeError(w, toAPIErr(err, req.ExperimentID))
		return
	}

	result := s.engine.ThompsonSample(alphas, betas, s.mHot)
	writeJSON(w, http.StatusOK, selectResponse{
		// A fresh per-draw id, the same per-event id pattern used
		// throughout the pack's service layer (interaction ids, message
		// ids). The service does not store it, and /reward does not take it.
		SelectionID: uuid.NewString(),
		ArmID:       result.ArmID,
		ArmName:     fmt.Sprintf("arm_%d", result.ArmID),
		PBest:       result.PBest,
	})
}

type rewardRequest struct {
	ExperimentID string  `json:"experiment_id"`
	ArmID        int     `json:"arm_id"`
	Reward       float64 `json:"reward"`
}

func (s *Server) handleReward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.InvalidInput("malformed request body: %v", err))
		return
	}
	if req.Reward < 0 || req.Reward > 1 {
		writeError(w, apierr.InvalidInput("reward must be in [0,1], got %v", req.Reward))
		return
	}
	ctx := r.Context()

	nArms, err := s.store.GetNArms(ctx, req.ExperimentID)
	if err != nil {
		writeError(w, toAPIErr(err, req.ExperimentID))
		return
	}
	if req.ArmID < 0 || req.ArmID >= nArms {
		writeError(w, apierr.InvalidInput("arm_id %d out of range [0,%d)", req.ArmID, nArms))
		return
	}

	// (O4) Best-effort precondition: the hot path does not need the
	// Registry, but an operator may opt into rejecting rewards against
	// experiments already concluded.
	if s.rejectAgainstConcluded {
		exp, err := s.reg.Get(ctx, req.ExperimentID)
		if err == nil && exp.Status == registry.StatusConcluded {
			writeError(w, apierr.Conflict("experiment %s already concluded", req.ExperimentID))
			return
		}
	}

	success := req.Reward > 0
	if err := s.store.ApplyReward(ctx, req.ExperimentID, req.ArmID, success); err != nil {
		writeError(w, apierr.Wrap(apierr.KindStateStoreUnavailable, err, "apply reward"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type concludeProbeResponse struct {
	ShouldConclude bool      `json:"should_conclude"`
	WinnerArmID    *int      `json:"winner_arm_id,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
}

func (s *Server) handleConcludeProbe(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	threshold := s.stopThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		var parsed float64
		if _, err := fmt.Sscanf(raw, "%g", &parsed); err == nil {
			threshold = parsed
		}
	}

	ctx := r.Context()
	nArms, err := s.store.GetNArms(ctx, id)
	if err != nil {
		writeError(w, toAPIErr(err, id))
		return
	}
	alphas, betas, err := s.store.ReadPosteriors(ctx, id, nArms)
	if err != nil {
		writeError(w, toAPIErr(err, id))
		return
	}

	pBest := s.engine.PBestAll(alphas, betas, s.mStop)
	s.cache.Put(id, pBest)

	winnerArm := argmaxFloat(pBest)
	resp := concludeProbeResponse{CheckedAt: time.Now().UTC()}
	if pBest[winnerArm] >= threshold {
		resp.ShouldConclude = true
		resp.WinnerArmID = &winnerArm
	}
	writeJSON(w, http.StatusOK, resp)
}

type pBestResponse struct {
	ExperimentID string    `json:"experiment_id"`
	PBest        []float64 `json:"p_best"`
}

func (s *Server) handlePBest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	if cached, fresh := s.cache.Get(id); fresh {
		writeJSON(w, http.StatusOK, pBestResponse{ExperimentID: id, PBest: cached})
		return
	}

	nArms, err := s.store.GetNArms(ctx, id)
	if err != nil {
		writeError(w, toAPIErr(err, id))
		return
	}
	alphas, betas, err := s.store.ReadPosteriors(ctx, id, nArms)
	if err != nil {
		writeError(w, toAPIErr(err, id))
		return
	}
	pBest := s.engine.PBestAll(alphas, betas, s.mStop)
	s.cache.Put(id, pBest)
	writeJSON(w, http.StatusOK, pBestResponse{ExperimentID: id, PBest: pBest})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func argmaxFloat(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}

func toAPIErr(err error, experimentID string) error {
	if errors.Is(err, statestore.ErrNotFound) {
		return apierr.UnknownExperiment(experimentID)
	}
	return apierr.Wrap(apierr.KindStateStoreUnavailable, err, "read posteriors")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	ae, ok := apierr.As(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, apierr.HTTPStatus(ae.Kind), map[string]string{"error": ae.Error()})
}
