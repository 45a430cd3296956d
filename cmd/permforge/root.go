// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/permforge/permforge/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the PermForge CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permforge",
		Short: "PermForge - A permission management engine",
		Long: `PermForge is a permission management engine with context-aware
nodes, group inheritance, promotion tracks, and multi-server support.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// resolveConfigPath returns the explicit --config path, or the default
// location if a file exists there, or "" when no file is configured.
func resolveConfigPath() string {
	if configFile != "" {
		return configFile
	}
	def := filepath.Join(xdg.ConfigDir(), "permforge.yaml")
	if _, err := os.Stat(def); err == nil {
		return def
	}
	return ""
}
