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

// Package registry implements the Experiment Registry of §4.3: a relational
// store of experiment rows, with a conditional conclude that is the
// idempotency anchor for the Conclusion Engine's exactly-once-per-conclusion
// guarantee.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// Status is one of the two lifecycle states an experiment can be in.
type Status string

const (
	StatusRunning   Status = "running"
	StatusConcluded Status = "concluded"
)

// Experiment is one row of the experiments table (§3, §6).
type Experiment struct {
	ExperimentID string
	NArms        int
	Status       Status
	WinnerArm    *int
	CreatedAt    time.Time
	ConcludedAt  *time.Time
}

// ErrAlreadyExists is returned by Create when experiment_id is already
// registered. §9's open question ("already-existing id is unspecified") is
// resolved here as a 409-conflict-shaped error — see DESIGN.md.
var ErrAlreadyExists = errors.New("registry: experiment already exists")

// ErrNotFound is returned when an experiment id has no row.
var ErrNotFound = errors.New("registry: experiment not found")

// Store is the Experiment Registry, backed by Postgres via database/sql
// using the jackc/pgx/v5 stdlib driver. A single *sql.DB (itself a
// connection pool) is shared across the Inference Service and the
// Conclusion Engine, the same "one shared pooled client per process" shape
// the teacher used for its Redis client.
type Store struct {
	db *sql.DB
}

// PoolConfig configures the underlying connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Open connects to Postgres at dsn and configures the connection pool.
func Open(dsn string, cfg PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return &Store{db: db}, nil
}

// NewWithDB wraps an already-opened *sql.DB.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// DB exposes the underlying connection pool so collaborators that share
// schema with the registry (the posterior Snapshot Exporter) don't need to
// open a second pool against the same database.
func (s *Store) DB() *sql.DB { return s.db }

// Create inserts a new experiment row with status "running". If
// experiment_id already exists, it returns ErrAlreadyExists rather than
// silently reseeding (§9 open question, resolved).
func (s *Store) Create(ctx context.Context, experimentID string, nArms int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiments (experiment_id, n_arms, status, created_at)
		 VALUES ($1, $2, $3, now())`,
		experimentID, nArms, StatusRunning)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("registry: create(%s): %w", experimentID, err)
	}
	return nil
}

// Get returns the experiment row, or ErrNotFound.
func (s *Store) Get(ctx context.Context, experimentID string) (Experiment, error) {
	var e Experiment
	var winner sql.NullInt64
	var concludedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT experiment_id, n_arms, status, winner_arm, created_at, concluded_at
		 FROM experiments WHERE experiment_id = $1`, experimentID,
	).Scan(&e.ExperimentID, &e.NArms, &e.Status, &winner, &e.CreatedAt, &concludedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Experiment{}, ErrNotFound
	}
	if err != nil {
		return Experiment{}, fmt.Errorf("registry: get(%s): %w", experimentID, err)
	}
	if winner.Valid {
		w := int(winner.Int64)
		e.WinnerArm = &w
	}
	if concludedAt.Valid {
		t := concludedAt.Time
		e.ConcludedAt = &t
	}
	return e, nil
}

// ListRunning returns every experiment id whose status is "running".
func (s *Store) ListRunning(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT experiment_id FROM experiments WHERE status = $1`, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("registry: list_running: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("registry: list_running scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Conclude conditionally transitions experimentID to "concluded", setting
// winnerArm and concludedAt, but only if the current status is "running".
// It returns true iff a row was updated. A single UPDATE ... WHERE status =
// 'running' is sufficient for serializability here: Postgres guarantees the
// predicate check and the write happen as one atomic statement, so two
// concurrent Conclude calls for the same experiment can never both report
// true (§4.3, §8 "Conditional conclude called twice concurrently").
func (s *Store) Conclude(ctx context.Context, experimentID string, winnerArm int, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE experiments
		   SET status = $1, winner_arm = $2, concluded_at = $3
		 WHERE experiment_id = $4 AND status = $5`,
		StatusConcluded, winnerArm, now, experimentID, StatusRunning)
	if err != nil {
		return false, fmt.Errorf("registry: conclude(%s): %w", experimentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("registry: conclude(%s) rows affected: %w", experimentID, err)
	}
	return n == 1, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), without importing the pgconn error type
// directly so this package also degrades gracefully against other
// database/sql drivers used in tests (e.g. an in-memory fake).
func isUniqueViolation(err error) bool {
	type sqlStater interface{ SQLState() string }
	var s sqlStater
	if errors.As(err, &s) {
		return s.SQLState() == "23505"
	}
	return false
}
