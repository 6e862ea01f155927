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

package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"bandit/internal/bandit/config"
	"bandit/internal/bandit/registry"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending registry schema migrations",
	Long:  `migrate brings the Postgres experiment registry schema up to date.`,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("migrate: load config: %w", err)
	}

	store, err := registry.Open(cfg.PostgresDSN, registry.PoolConfig{
		MaxOpenConns:    cfg.PostgresMaxOpenConn,
		MaxIdleConns:    cfg.PostgresMaxIdleConn,
		ConnMaxLifetime: cfg.PostgresConnMaxLife,
		ConnMaxIdleTime: cfg.PostgresConnMaxLife,
	})
	if err != nil {
		return fmt.Errorf("migrate: open registry: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	log.Println("migrate: registry schema up to date")
	return nil
}
