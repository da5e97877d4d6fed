// Package config provides CLI configuration loading for sparkify.
// Configuration is resolved from defaults, an optional sparkify.yaml,
// SPARKIFY_-prefixed environment variables, and command-line flags,
// in ascending order of precedence.
package config

import (
	intconfig "github.com/mking01/spark-data-lakes/internal/config"
)

// Config holds the resolved CLI configuration.
type Config struct {
	// InputRoot is the root under which song_data/ and log_data/ live.
	// Either a local directory or an s3:// (or s3a://) URI.
	InputRoot string `koanf:"input_root"`

	// OutputRoot is the root the five table trees are written under.
	OutputRoot string `koanf:"output_root"`

	// CredentialsFile is the flat KEY=VALUE file holding storage
	// credentials. Only required when a root is on object storage.
	CredentialsFile string `koanf:"credentials_file"`

	// Region is the object-storage region.
	Region string `koanf:"region"`

	// StatePath is the run-ledger SQLite database path.
	StatePath string `koanf:"state_path"`

	// Environment names the run environment recorded in the ledger.
	Environment string `koanf:"environment"`

	// Workers bounds parallel file reads and partition writes.
	Workers int `koanf:"workers"`

	// Compression is the parquet codec: snappy, zstd, gzip, uncompressed.
	Compression string `koanf:"compression"`

	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`

	// ProjectRoot anchors relative paths. Set by the loader, not the file.
	ProjectRoot string `koanf:"-"`
}

// Defaults re-exported for commands that need them without a full load.
const (
	DefaultStateFile = intconfig.DefaultStateFile
	DefaultEnv       = intconfig.DefaultEnv
	DefaultOutput    = intconfig.DefaultOutput
)
