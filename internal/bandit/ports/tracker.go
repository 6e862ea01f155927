// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package ports

import (
	"context"
	"log"
)

// TrackedMetric is one scalar observation keyed by step, for regret and OPE
// (off-policy evaluation) analyses downstream of the core (§6, "Experiment
// Tracker"). The core's only contract is that posteriors and p_best stay
// readable at any time; what a tracker does with a metric is its business.
type TrackedMetric struct {
	ExperimentID string
	Step         int64
	Name         string
	Value        float64
}

// ExperimentTracker receives scalar metrics. The core never blocks on it.
type ExperimentTracker interface {
	Track(ctx context.Context, m TrackedMetric)
}

// LoggingTracker writes every tracked metric to the process log. It is the
// out-of-the-box default, same role as LoggingAnnotationSink.
type LoggingTracker struct{}

func NewLoggingTracker() *LoggingTracker { return &LoggingTracker{} }

func (LoggingTracker) Track(_ context.Context, m TrackedMetric) {
	log.Printf("[tracker] experiment=%s step=%d %s=%v", m.ExperimentID, m.Step, m.Name, m.Value)
}
