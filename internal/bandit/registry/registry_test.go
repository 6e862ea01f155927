// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package registry

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// Minimal fake SQL driver exercising Store's Exec/Query paths, in the same
// spirit as the teacher's hand-rolled fake for PostgresPersister: no real
// network connection, just enough of database/sql/driver to observe what
// SQL Store issues and to script back canned results/errors.

type fakeRow struct {
	values []driver.Value
}

type fakeResultSet struct {
	columns []string
	rows    []fakeRow
	pos     int
}

func (rs *fakeResultSet) Columns() []string { return rs.columns }
func (rs *fakeResultSet) Close() error      { return nil }
func (rs *fakeResultSet) Next(dest []driver.Value) error {
	if rs.pos >= len(rs.rows) {
		return errRowsDone
	}
	copy(dest, rs.rows[rs.pos].values)
	rs.pos++
	return nil
}

// errRowsDone must be io.EOF: database/sql treats any other error from
// driver.Rows.Next as a failure and reports it from Rows.Err / Row.Scan.
var errRowsDone = io.EOF

type uniqueViolation struct{ msg string }

func (e uniqueViolation) Error() string   { return e.msg }
func (e uniqueViolation) SQLState() string { return "23505" }

type fakeDB struct {
	execs       []string
	queries     []string
	existingIDs map[string]bool
	runningIDs  []string
	failExec    error
}

type fakeDriver struct{}
type fakeConn struct{ db *fakeDB }
type fakeResult struct{ rows int64 }

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, nil }

func (fakeDriver) Open(name string) (driver.Conn, error) { return &fakeConn{db: testFakeDB}, nil }

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported by fake driver")
}
func (c *fakeConn) Close() error              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error) { return nil, errors.New("transactions not supported") }

func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.db.execs = append(c.db.execs, query)
	if c.db.failExec != nil {
		return nil, c.db.failExec
	}
	switch {
	case strings.Contains(query, "INSERT INTO experiments"):
		id := args[0].Value.(string)
		if c.db.existingIDs[id] {
			return nil, uniqueViolation{msg: "duplicate key value violates unique constraint"}
		}
		c.db.existingIDs[id] = true
		c.db.runningIDs = append(c.db.runningIDs, id)
		return fakeResult{rows: 1}, nil
	case strings.Contains(query, "UPDATE experiments"):
		id := args[3].Value.(string)
		for i, rid := range c.db.runningIDs {
			if rid == id {
				c.db.runningIDs = append(c.db.runningIDs[:i], c.db.runningIDs[i+1:]...)
				return fakeResult{rows: 1}, nil
			}
		}
		return fakeResult{rows: 0}, nil
	}
	return fakeResult{rows: 0}, nil
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.db.queries = append(c.db.queries, query)
	switch {
	case strings.Contains(query, "SELECT experiment_id FROM experiments"):
		var rows []fakeRow
		for _, id := range c.db.runningIDs {
			rows = append(rows, fakeRow{values: []driver.Value{id}})
		}
		return &fakeResultSet{columns: []string{"experiment_id"}, rows: rows}, nil
	case strings.Contains(query, "SELECT experiment_id, n_arms"):
		id := args[0].Value.(string)
		if !c.db.existingIDs[id] {
			return &fakeResultSet{columns: []string{"experiment_id", "n_arms", "status", "winner_arm", "created_at", "concluded_at"}}, nil
		}
		status := "running"
		for _, rid := range c.db.runningIDs {
			if rid == id {
				status = "running"
			}
		}
		return &fakeResultSet{
			columns: []string{"experiment_id", "n_arms", "status", "winner_arm", "created_at", "concluded_at"},
			rows: []fakeRow{{values: []driver.Value{
				id, int64(2), status, nil, time.Now().UTC(), nil,
			}}},
		}, nil
	}
	return &fakeResultSet{}, nil
}

var testFakeDB *fakeDB

func init() {
	sql.Register("fakesql-registry", fakeDriver{})
}

func newTestStoreWithFake(db *fakeDB) *Store {
	testFakeDB = db
	d, _ := sql.Open("fakesql-registry", "")
	return &Store{db: d}
}

func newFakeDB() *fakeDB {
	return &fakeDB{existingIDs: map[string]bool{}}
}

func TestCreate_NewExperiment(t *testing.T) {
	s := newTestStoreWithFake(newFakeDB())
	if err := s.Create(context.Background(), "exp-1", 3); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestCreate_Duplicate_ReturnsErrAlreadyExists(t *testing.T) {
	f := newFakeDB()
	s := newTestStoreWithFake(f)
	ctx := context.Background()
	if err := s.Create(ctx, "exp-1", 3); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	err := s.Create(ctx, "exp-1", 3)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
}

func TestGet_Unknown_ReturnsErrNotFound(t *testing.T) {
	s := newTestStoreWithFake(newFakeDB())
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListRunning_ReflectsCreatedExperiments(t *testing.T) {
	f := newFakeDB()
	s := newTestStoreWithFake(f)
	ctx := context.Background()
	if err := s.Create(ctx, "exp-a", 2); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, "exp-b", 2); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ids, err := s.ListRunning(ctx)
	if err != nil {
		t.Fatalf("ListRunning: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("want 2 running experiments, got %v", ids)
	}
}

func TestConclude_RemovesFromRunning(t *testing.T) {
	f := newFakeDB()
	s := newTestStoreWithFake(f)
	ctx := context.Background()
	if err := s.Create(ctx, "exp-a", 2); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ok, err := s.Conclude(ctx, "exp-a", 0, time.Now().UTC())
	if err != nil {
		t.Fatalf("Conclude: %v", err)
	}
	if !ok {
		t.Fatalf("want Conclude to report success")
	}
	ids, err := s.ListRunning(ctx)
	if err != nil {
		t.Fatalf("ListRunning: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no running experiments after conclude, got %v", ids)
	}
}

func TestConclude_AlreadyConcluded_ReturnsFalse(t *testing.T) {
	f := newFakeDB()
	s := newTestStoreWithFake(f)
	ctx := context.Background()
	if err := s.Create(ctx, "exp-a", 2); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok, err := s.Conclude(ctx, "exp-a", 0, time.Now().UTC()); err != nil || !ok {
		t.Fatalf("first Conclude: ok=%v err=%v", ok, err)
	}
	ok, err := s.Conclude(ctx, "exp-a", 1, time.Now().UTC())
	if err != nil {
		t.Fatalf("second Conclude: %v", err)
	}
	if ok {
		t.Fatalf("second Conclude on already-concluded experiment should report false")
	}
}

func TestCreate_ExecError_Propagates(t *testing.T) {
	f := newFakeDB()
	f.failExec = errors.New("connection reset")
	s := newTestStoreWithFake(f)
	err := s.Create(context.Background(), "exp-a", 2)
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("unexpected err: %v", err)
	}
}
