// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the podward command-line
// application.
package app

import (
	"github.com/spf13/cobra"

	"github.com/podward/podward/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "podward",
	DisableAutoGenTag: true,
	Short:             "Podward is the authentication and identity provisioning service for Solid pods",
	Long: `Podward validates session tokens, drives the first-party OAuth consent flow,
manages machine-to-machine client credentials and provisions each user's pod
on a Community Solid Server.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command for the podward CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)

	return rootCmd
}
