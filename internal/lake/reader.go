package lake

import (
	"context"
	"fmt"
	"io"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/mking01/spark-data-lakes/internal/storage"
)

// ReadTable reads every part file matching glob back into rows. Row order
// follows file listing order and is not otherwise meaningful.
func ReadTable[T any](ctx context.Context, fs storage.Filesystem, glob string) ([]T, error) {
	names, err := fs.List(ctx, glob)
	if err != nil {
		return nil, err
	}

	var rows []T
	for _, name := range names {
		part, err := readPart[T](ctx, fs, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		rows = append(rows, part...)
	}
	return rows, nil
}

func readPart[T any](ctx context.Context, fs storage.Filesystem, name string) ([]T, error) {
	rc, err := fs.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(data), new(T), parquetConcurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]T, pr.GetNumRows())
	if len(rows) == 0 {
		return nil, nil
	}
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return rows, nil
}
