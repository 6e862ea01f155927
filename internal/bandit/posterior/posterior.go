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

// Package posterior implements the stateless, CPU-bound arithmetic of
// §4.2: Beta-distribution sampling, Thompson Sampling, and Monte Carlo
// estimation of P(arm k is best).
package posterior

import (
	"math"
	"math/rand/v2"
	"sync"
)

// Engine draws Thompson samples and estimates P(best) for a set of arms. It
// is stateless beyond its PRNG, and safe for concurrent use — the PRNG
// access is guarded by a single mutex, the same "one guarded shared
// resource on the hot path" shape the teacher used for its VSA state.
//
// A process constructs exactly one Engine and shares it across requests;
// tests construct their own with a fixed seed for determinism (§9: "expose
// a seed in the Posterior Engine's constructor and inject it from tests").
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns an Engine seeded from a process-wide, non-deterministic
// source. No cross-process reproducibility is required (§9).
func New() *Engine {
	return &Engine{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeeded returns an Engine with a deterministic PRNG, for tests that
// need reproducible samples.
func NewSeeded(seed1, seed2 uint64) *Engine {
	return &Engine{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// ThompsonResult is the outcome of one Thompson Sampling draw.
type ThompsonResult struct {
	ArmID  int
	PBest  float64
	Sample []float64
}

// ThompsonSample draws one Beta(alpha_k, beta_k) sample per arm, returns the
// argmax (ties broken by lowest index), and estimates p_best as the
// fraction of mHot Monte Carlo rounds in which the chosen arm had the max
// sample.
func (e *Engine) ThompsonSample(alphas, betas []int64, mHot int) ThompsonResult {
	sample := e.drawRound(alphas, betas)
	armID := argmax(sample)

	wins := 0
	for i := 0; i < mHot; i++ {
		round := e.drawRound(alphas, betas)
		if argmax(round) == armID {
			wins++
		}
	}
	return ThompsonResult{
		ArmID:  armID,
		PBest:  float64(wins) / float64(mHot),
		Sample: sample,
	}
}

// PBestAll draws an (n_arms x mStop) matrix of joint Beta samples and
// returns, for each arm, the fraction of columns in which it attained the
// maximum — an estimate of P(arm k is best) for every arm at once. The
// result sums to 1 within Monte Carlo noise (§8).
func (e *Engine) PBestAll(alphas, betas []int64, mStop int) []float64 {
	n := len(alphas)
	wins := make([]int, n)
	for i := 0; i < mStop; i++ {
		round := e.drawRound(alphas, betas)
		wins[argmax(round)]++
	}
	out := make([]float64, n)
	for k := range out {
		out[k] = float64(wins[k]) / float64(mStop)
	}
	return out
}

// drawRound draws one Beta(alpha_k, beta_k) sample per arm under a single
// lock acquisition, so a caller doing mStop rounds only pays mStop lock/
// unlock pairs rather than 2*n_arms*mStop.
func (e *Engine) drawRound(alphas, betas []int64) []float64 {
	n := len(alphas)
	out := make([]float64, n)
	e.mu.Lock()
	for k := 0; k < n; k++ {
		out[k] = sampleBeta(e.rng, float64(alphas[k]), float64(betas[k]))
	}
	e.mu.Unlock()
	return out
}

func argmax(xs []float64) int {
	best := 0
	for i := 1; i < len(xs); i++ {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}

// sampleBeta draws one Beta(alpha, beta) sample as X/(X+Y) for independent
// Gamma(alpha,1), Gamma(beta,1) draws. alpha, beta >= 1 always holds per
// invariant I1, but sampleGamma also handles alpha < 1 (Ahrens-Dieter boost)
// in case a future fractional-reward update rule (§9 open question) ever
// produces non-integer, sub-1 shape parameters.
func sampleBeta(rng *rand.Rand, alpha, beta float64) float64 {
	x := sampleGamma(rng, alpha)
	y := sampleGamma(rng, beta)
	if x+y == 0 {
		return 0.5
	}
	v := x / (x + y)
	if math.IsNaN(v) {
		return 0.5
	}
	return v
}

// sampleGamma draws one Gamma(shape, 1) sample using the Marsaglia-Tsang
// squeeze method for shape >= 1, boosted per Ahrens-Dieter for shape < 1.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		// Boost: Gamma(shape) = Gamma(shape+1) * U^(1/shape)
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1.0 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		x2 := x * x
		if u < 1.0-0.0331*x2*x2 {
			return d * v
		}
		if math.Log(u) < 0.5*x2+d*(1.0-v+math.Log(v)) {
			return d * v
		}
	}
}
