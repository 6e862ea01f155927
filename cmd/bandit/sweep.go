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
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"bandit/internal/bandit/app"
	"bandit/internal/bandit/config"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the Conclusion Engine's sweep once and exit",
	Long: `sweep runs a single pass over every running experiment, applying the
stopping rule and concluding any winner, then exits. Intended for
external schedulers (cron, a Kubernetes CronJob) that prefer to own the
cadence instead of running "serve"'s in-process ticker.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("sweep: load config: %w", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("sweep: build app: %w", err)
	}
	defer a.Close()

	concluded, err := a.Sweep.RunSweepOnce(context.Background())
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	log.Printf("sweep: concluded %d experiment(s): %v", len(concluded), concluded)
	return nil
}
