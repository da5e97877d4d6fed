// Package etl implements the star-schema transforms and the pipeline
// that sequences them.
package etl

import (
	"context"
	"fmt"
	"log/slog"

	cliconfig "github.com/mking01/spark-data-lakes/internal/cli/config"
	intconfig "github.com/mking01/spark-data-lakes/internal/config"
	"github.com/mking01/spark-data-lakes/internal/lake"
	"github.com/mking01/spark-data-lakes/internal/storage"
)

// Session is the execution context of a pipeline run: the resolved input
// and output filesystems and the lake writer, built once and shared by
// both transforms.
type Session struct {
	In      storage.Filesystem
	Out     storage.Filesystem
	Writer  *lake.Writer
	Workers int

	logger *slog.Logger
}

// NewSession resolves the configured roots into storage backends and
// builds the lake writer. Credentials are required up front when either
// root is on object storage, so a missing credentials file fails here
// rather than mid-run.
func NewSession(ctx context.Context, cfg *cliconfig.Config, creds intconfig.Credentials, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	remote := cliconfig.IsRemoteRoot(cfg.InputRoot) || cliconfig.IsRemoteRoot(cfg.OutputRoot)
	if remote {
		if err := creds.Validate(); err != nil {
			return nil, fmt.Errorf("object storage root configured: %w", err)
		}
	}

	opts := storage.S3Options{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		Region:          cfg.Region,
	}

	in, err := storage.ParseRoot(ctx, cfg.InputRoot, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve input root: %w", err)
	}
	out, err := storage.ParseRoot(ctx, cfg.OutputRoot, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output root: %w", err)
	}

	writer, err := lake.NewWriter(cfg.Compression, cfg.Workers, logger)
	if err != nil {
		return nil, err
	}

	return &Session{
		In:      in,
		Out:     out,
		Writer:  writer,
		Workers: cfg.Workers,
		logger:  logger,
	}, nil
}
