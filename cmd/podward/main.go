// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the podward server.
package main

import (
	"os"

	"github.com/podward/podward/cmd/podward/app"
	"github.com/podward/podward/pkg/logger"
)

func main() {
	// A default logger so early failures are visible; serve reconfigures
	// it from the loaded config.
	logger.Initialize(false)

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
