package etl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mking01/spark-data-lakes/internal/storage"
)

// maxLineBytes bounds a single NDJSON line. Raw records are small; this
// leaves generous headroom.
const maxLineBytes = 1 << 20

// validator checks a decoded record against the schema's required fields.
// A validation failure is a schema violation and aborts the transform.
type validator[T any] func(*T) error

// decodeFiles loads every file matching glob into records. Files are read
// in parallel, bounded by workers, but the returned order follows the
// listing order so surrogate assignment is reproducible for a given
// input listing. Lines that fail to parse as JSON are skipped and
// counted; a non-empty file yielding no records at all fails the load.
func decodeFiles[T any](ctx context.Context, fs storage.Filesystem, glob string, workers int, validate validator[T], logger *slog.Logger) ([]T, int64, error) {
	names, err := fs.List(ctx, glob)
	if err != nil {
		return nil, 0, err
	}
	if len(names) == 0 {
		return nil, 0, fmt.Errorf("no files match %s under %s", glob, fs.Root())
	}

	perFile := make([][]T, len(names))
	var skipped atomic.Int64

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for i, name := range names {
		eg.Go(func() error {
			records, fileSkipped, err := decodeFile(egctx, fs, name, validate, logger)
			if err != nil {
				return err
			}
			perFile[i] = records
			skipped.Add(fileSkipped)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}

	var records []T
	for _, part := range perFile {
		records = append(records, part...)
	}
	return records, skipped.Load(), nil
}

func decodeFile[T any](ctx context.Context, fs storage.Filesystem, name string, validate validator[T], logger *slog.Logger) ([]T, int64, error) {
	rc, err := fs.Open(ctx, name)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rc.Close() }()

	var (
		records []T
		skipped int64
		lines   int64
	)

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lines++

		var record T
		if err := json.Unmarshal(line, &record); err != nil {
			skipped++
			logger.Warn("skipping malformed record",
				slog.String("file", name),
				slog.Int64("line", lines),
				slog.String("error", err.Error()))
			continue
		}

		if validate != nil {
			if err := validate(&record); err != nil {
				return nil, 0, fmt.Errorf("schema violation in %s line %d: %w", name, lines, err)
			}
		}

		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", name, err)
	}

	if lines > 0 && len(records) == 0 {
		return nil, 0, fmt.Errorf("file %s contains no parseable records", name)
	}
	return records, skipped, nil
}
