// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/permforge/permforge/internal/store"
)

// MigrationStatus holds the status of a single migration.
type MigrationStatus struct {
	Version uint   `json:"version"`
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
}

// SchemaStatus holds the overall schema status report.
type SchemaStatus struct {
	Version    uint              `json:"version"`
	Dirty      bool              `json:"dirty"`
	Migrations []MigrationStatus `json:"migrations"`
}

// statusConfig holds configuration for the status subcommand.
type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database schema status",
		Long:  `Show the current schema version and which migrations are applied or pending.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	databaseURL, err := resolveDatabaseURL()
	if err != nil {
		return err
	}

	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	status, err := collectStatus(migrator)
	if err != nil {
		return err
	}

	var output string
	if cfg.jsonOutput {
		output, err = formatStatusJSON(status)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
	} else {
		output = formatStatusTable(status)
	}

	cmd.Println(output)
	return nil
}

func collectStatus(migrator *store.Migrator) (SchemaStatus, error) {
	version, dirty, err := migrator.Version()
	if err != nil {
		return SchemaStatus{}, fmt.Errorf("failed to read schema version: %w", err)
	}

	applied, err := migrator.AppliedMigrations()
	if err != nil {
		return SchemaStatus{}, fmt.Errorf("failed to list applied migrations: %w", err)
	}
	pending, err := migrator.PendingMigrations()
	if err != nil {
		return SchemaStatus{}, fmt.Errorf("failed to list pending migrations: %w", err)
	}

	status := SchemaStatus{Version: version, Dirty: dirty}
	for _, v := range applied {
		status.Migrations = append(status.Migrations, migrationStatus(v, true))
	}
	for _, v := range pending {
		status.Migrations = append(status.Migrations, migrationStatus(v, false))
	}
	return status, nil
}

func migrationStatus(version uint, applied bool) MigrationStatus {
	name, err := store.MigrationName(version)
	if err != nil {
		name = "unknown"
	}
	return MigrationStatus{Version: version, Name: name, Applied: applied}
}

func formatStatusJSON(status SchemaStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}

func formatStatusTable(status SchemaStatus) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Schema version: %d (dirty=%t)\n\n", status.Version, status.Dirty)

	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATE")
	for _, m := range status.Migrations {
		state := "pending"
		if m.Applied {
			state = "applied"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, state)
	}
	_ = w.Flush()
	return strings.TrimRight(sb.String(), "\n")
}
