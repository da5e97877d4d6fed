// Package lake reads and writes the output tables as partitioned parquet
// trees on a storage.Filesystem. Partition directories use hive-style
// key=value segments; partition columns stay present in the part files,
// so every file is self-describing.
package lake

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"golang.org/x/sync/errgroup"

	"github.com/mking01/spark-data-lakes/internal/storage"
)

// parquetConcurrency is the number of marshal goroutines per parquet
// writer and reader.
const parquetConcurrency = 4

// defaultRowGroupSize is 128 MiB, the conventional parquet row-group target.
const defaultRowGroupSize = 128 * 1024 * 1024

// Partition is one key=value pair of a row's partition path.
type Partition struct {
	Key   string
	Value string
}

// Partitioner derives the partition path of a row. A nil Partitioner
// writes the whole table into a single unpartitioned directory.
type Partitioner[T any] func(row T) []Partition

// Result reports what a table write produced.
type Result struct {
	Rows  int64
	Files int64
}

// Writer writes tables with a fixed codec and write parallelism.
type Writer struct {
	codec   parquet.CompressionCodec
	ext     string
	workers int
	logger  *slog.Logger
}

// NewWriter creates a Writer for the named compression codec. Workers
// bounds how many partition directories are written concurrently.
func NewWriter(compression string, workers int, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if workers < 1 {
		workers = 1
	}

	codec, ext, err := codecFor(compression)
	if err != nil {
		return nil, err
	}

	return &Writer{codec: codec, ext: ext, workers: workers, logger: logger}, nil
}

func codecFor(compression string) (parquet.CompressionCodec, string, error) {
	switch compression {
	case "snappy":
		return parquet.CompressionCodec_SNAPPY, ".snappy.parquet", nil
	case "zstd":
		return parquet.CompressionCodec_ZSTD, ".zstd.parquet", nil
	case "gzip":
		return parquet.CompressionCodec_GZIP, ".gz.parquet", nil
	case "uncompressed":
		return parquet.CompressionCodec_UNCOMPRESSED, ".parquet", nil
	default:
		return 0, "", fmt.Errorf("unknown compression %q", compression)
	}
}

// WriteTable writes rows under <table>/ on fs, one part file per distinct
// partition path. Returns per-table row and file counts.
func WriteTable[T any](ctx context.Context, w *Writer, fs storage.Filesystem, table string, rows []T, partitionBy Partitioner[T]) (Result, error) {
	groups := groupByPartition(rows, partitionBy)

	// Sort partition paths so write order, and thus logs, are stable.
	dirs := make([]string, 0, len(groups))
	for dir := range groups {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var mu sync.Mutex
	result := Result{Rows: int64(len(rows))}

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(w.workers)

	for _, dir := range dirs {
		group := groups[dir]
		name := fs.Join(table, dir, "part-"+uuid.New().String()+w.ext)

		eg.Go(func() error {
			if err := writePart(egctx, w, fs, name, group); err != nil {
				return fmt.Errorf("failed to write %s: %w", name, err)
			}
			w.logger.Debug("wrote part file",
				slog.String("table", table),
				slog.String("file", name),
				slog.Int("rows", len(group)))

			mu.Lock()
			result.Files++
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return Result{}, err
	}
	return result, nil
}

func writePart[T any](ctx context.Context, w *Writer, fs storage.Filesystem, name string, rows []T) error {
	wc, err := fs.Create(ctx, name)
	if err != nil {
		return err
	}

	pw, err := writer.NewParquetWriterFromWriter(wc, new(T), parquetConcurrency)
	if err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.RowGroupSize = defaultRowGroupSize
	pw.CompressionType = w.codec

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = wc.Close()
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return wc.Close()
}

// groupByPartition buckets rows by their hive-style partition path. The
// empty path keys an unpartitioned table.
func groupByPartition[T any](rows []T, partitionBy Partitioner[T]) map[string][]T {
	groups := make(map[string][]T)
	for _, row := range rows {
		dir := ""
		if partitionBy != nil {
			dir = partitionPath(partitionBy(row))
		}
		groups[dir] = append(groups[dir], row)
	}
	return groups
}

// partitionPath renders partitions as year=2018/month=11, percent-escaping
// values that would break path segments.
func partitionPath(parts []Partition) string {
	segs := make([]string, len(parts))
	for i, p := range parts {
		segs[i] = p.Key + "=" + url.PathEscape(p.Value)
	}
	return strings.Join(segs, "/")
}
