// Package commands implements the sparkify subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mking01/spark-data-lakes/internal/cli/config"
	intconfig "github.com/mking01/spark-data-lakes/internal/config"
	"github.com/mking01/spark-data-lakes/internal/state"
)

// getConfig retrieves the resolved config from the command context.
func getConfig(cmd *cobra.Command) *config.Config {
	return config.GetConfig(cmd.Context())
}

// getLogger retrieves the logger from the command context.
func getLogger(cmd *cobra.Command) *slog.Logger {
	return config.GetLogger(cmd.Context())
}

// openStore opens the run-ledger database, creating its directory and
// running migrations as needed.
func openStore(cfg *config.Config) (*state.SQLiteStore, error) {
	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore()
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// loadCredentials reads the credentials file when a root lives on object
// storage. Local-only configurations never touch the file.
func loadCredentials(cfg *config.Config) (intconfig.Credentials, error) {
	if !config.IsRemoteRoot(cfg.InputRoot) && !config.IsRemoteRoot(cfg.OutputRoot) {
		return intconfig.Credentials{}, nil
	}
	return intconfig.LoadCredentials(cfg.CredentialsFile)
}
