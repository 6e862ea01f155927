// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package registry

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies every pending embedded migration to the Store's database,
// the same go:embed-plus-golang-migrate shape used to version the schema:
// migrations ship inside the binary, so a deploy never depends on a
// separate SQL file being present on disk.
func (s *Store) Migrate() error {
	driver, err := postgres.WithInstance(s.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("registry: migrate driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("registry: migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "bandit", driver)
	if err != nil {
		return fmt.Errorf("registry: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("registry: migrate up: %w", err)
	}
	// Close only the source; closing m would also close the shared *sql.DB.
	return sourceDriver.Close()
}
