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
	"database/sql"
	"fmt"
	"log"
	"time"
)

// PosteriorSnapshot is one row of the analytic snapshot table (§6): the
// posterior parameters for one arm of one experiment, as of snapshotAt.
type PosteriorSnapshot struct {
	SnapshotAt   time.Time
	ExperimentID string
	ArmID        int
	Alpha        int64
	Beta         int64
	PrimaryProb  float64
}

// SnapshotExporter writes posterior snapshots to an out-of-core analytic
// store. The core's only obligation is to call it with whatever it just
// read from the State Store; export failures never affect the hot path.
type SnapshotExporter interface {
	Export(ctx context.Context, snapshots []PosteriorSnapshot) error
}

// LoggingSnapshotExporter prints snapshots instead of writing them to an
// analytic table, the zero-configuration default.
type LoggingSnapshotExporter struct{}

func NewLoggingSnapshotExporter() *LoggingSnapshotExporter { return &LoggingSnapshotExporter{} }

func (LoggingSnapshotExporter) Export(_ context.Context, snapshots []PosteriorSnapshot) error {
	for _, s := range snapshots {
		log.Printf("[snapshot] experiment=%s arm=%d alpha=%d beta=%d primary_prob=%.4f",
			s.ExperimentID, s.ArmID, s.Alpha, s.Beta, s.PrimaryProb)
	}
	return nil
}

// PostgresSnapshotExporter writes snapshots to posterior_snapshots using
// ON CONFLICT DO NOTHING against the composite primary key
// (snapshot_at, experiment_id, arm_id), per §6. It shares the Registry's
// *sql.DB connection pool rather than opening its own.
type PostgresSnapshotExporter struct {
	db *sql.DB
}

// NewPostgresSnapshotExporter wraps an already-open *sql.DB (typically the
// same pool used by the Experiment Registry).
func NewPostgresSnapshotExporter(db *sql.DB) *PostgresSnapshotExporter {
	return &PostgresSnapshotExporter{db: db}
}

func (e *PostgresSnapshotExporter) Export(ctx context.Context, snapshots []PosteriorSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO posterior_snapshots (snapshot_at, experiment_id, arm_id, alpha, beta, primary_prob)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (snapshot_at, experiment_id, arm_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("snapshot: prepare: %w", err)
	}
	defer stmt.Close()

	for _, s := range snapshots {
		if _, err := stmt.ExecContext(ctx, s.SnapshotAt, s.ExperimentID, s.ArmID, s.Alpha, s.Beta, s.PrimaryProb); err != nil {
			return fmt.Errorf("snapshot: insert(%s, arm %d): %w", s.ExperimentID, s.ArmID, err)
		}
	}
	return tx.Commit()
}
