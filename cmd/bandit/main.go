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

// Package main provides the entry point for the bandit experimentation
// service: a Thompson Sampling inference API and its companion conclusion
// sweeper, wired together the way the rate limiter demo wired its store,
// worker, and API server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bandit",
	Short: "Bayesian multi-armed bandit experimentation service",
	Long: `bandit runs the Inference Service and Conclusion Engine described by
the experimentation design: Thompson Sampling arm selection backed by a
Redis state store, with a Postgres experiment registry recording the
exactly-once transition to a concluded winner.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
