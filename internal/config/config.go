// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

// Package config loads server configuration from defaults, an optional YAML
// file and command-line flags, in that order of precedence.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the complete server configuration.
type Config struct {
	// Server is this deployment's name for server-scoped nodes. Nodes
	// scoped to a different server are ignored here.
	Server string `koanf:"server" json:"server,omitempty" jsonschema:"default=global"`

	// DefaultValue is the answer for permissions no node decides.
	DefaultValue bool `koanf:"default_value" json:"default_value,omitempty"`

	// SweepInterval is how often expired temporary nodes are removed.
	// Accepts Go duration strings such as "30s" or "5m".
	SweepInterval time.Duration `koanf:"sweep_interval" json:"sweep_interval,omitempty" jsonschema:"oneof_type=string;integer,default=1m0s"`

	Storage   StorageConfig   `koanf:"storage" json:"storage,omitempty"`
	Log       LogConfig       `koanf:"log" json:"log,omitempty"`
	Metrics   MetricsConfig   `koanf:"metrics" json:"metrics,omitempty"`
	ActionLog ActionLogConfig `koanf:"action_log" json:"action_log,omitempty"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Backend is "postgres" or "memory".
	Backend string `koanf:"backend" json:"backend,omitempty" jsonschema:"enum=postgres,enum=memory,default=postgres"`

	// DatabaseURL is the PostgreSQL connection string. Ignored by the
	// memory backend.
	DatabaseURL string `koanf:"database_url" json:"database_url,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=text,enum=json,default=text"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled,omitempty"`
	Addr    string `koanf:"addr" json:"addr,omitempty" jsonschema:"default=:9090"`
}

// ActionLogConfig configures the audit trail.
type ActionLogConfig struct {
	// WALPath is where entries spool when the backend is unreachable.
	// Empty uses the XDG state directory.
	WALPath string `koanf:"wal_path" json:"wal_path,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:        "global",
		DefaultValue:  false,
		SweepInterval: time.Minute,
		Storage: StorageConfig{
			Backend: "postgres",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty or the file exists), then any set flags. The file is
// schema-validated before it is applied.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, oops.In("config").With("path", path).Wrap(err)
		}
		if err := ValidateSchema(data); err != nil {
			return cfg, oops.In("config").
				Code("CONFIG_INVALID").
				With("path", path).
				Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, oops.In("config").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return cfg, oops.In("config").With("source", "flags").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, oops.In("config").Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}
	return cfg, nil
}
