// Package catalog exposes the parquet lake to SQL through an in-memory
// DuckDB instance, one view per star-schema table.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	cliconfig "github.com/mking01/spark-data-lakes/internal/cli/config"
	intconfig "github.com/mking01/spark-data-lakes/internal/config"
	"github.com/mking01/spark-data-lakes/pkg/star"
)

// Options configures the lake connection.
type Options struct {
	// Root is the lake root, a local directory or an s3:// URI.
	Root   string
	Region string
	// Credentials are required only for object storage roots.
	Credentials intconfig.Credentials
}

// Catalog is a read-only SQL surface over the lake.
type Catalog struct {
	db     *sql.DB
	root   string
	tables []string
	logger *slog.Logger
}

// Open connects an in-memory DuckDB to the lake and registers one view
// per table that has part files. Tables missing from the lake are
// skipped with a warning, so a partially built lake is still queryable.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	c := &Catalog{
		db:     db,
		root:   normalizeRoot(opts.Root),
		logger: logger,
	}

	if cliconfig.IsRemoteRoot(opts.Root) {
		if err := c.configureS3(ctx, opts); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	for _, table := range star.AllTables {
		if err := c.registerView(ctx, table); err != nil {
			logger.Warn("skipping table without part files",
				slog.String("table", table),
				slog.String("error", err.Error()))
			continue
		}
		c.tables = append(c.tables, table)
	}

	if len(c.tables) == 0 {
		_ = db.Close()
		return nil, fmt.Errorf("no tables found under %s", opts.Root)
	}

	return c, nil
}

// configureS3 loads the httpfs extension and sets the session credentials.
func (c *Catalog) configureS3(ctx context.Context, opts Options) error {
	if err := opts.Credentials.Validate(); err != nil {
		return fmt.Errorf("object storage root configured: %w", err)
	}

	stmts := []string{
		`INSTALL httpfs`,
		`LOAD httpfs`,
		fmt.Sprintf(`SET s3_region = '%s'`, quote(opts.Region)),
		fmt.Sprintf(`SET s3_access_key_id = '%s'`, quote(opts.Credentials.AccessKeyID)),
		fmt.Sprintf(`SET s3_secret_access_key = '%s'`, quote(opts.Credentials.SecretAccessKey)),
	}
	if opts.Credentials.SessionToken != "" {
		stmts = append(stmts, fmt.Sprintf(`SET s3_session_token = '%s'`, quote(opts.Credentials.SessionToken)))
	}

	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to configure object storage access: %w", err)
		}
	}
	return nil
}

// registerView binds table to the part files under the root. DuckDB binds
// the view query eagerly, so a table with no part files fails here.
func (c *Catalog) registerView(ctx context.Context, table string) error {
	// Part files carry the partition columns themselves, so hive
	// partition inference stays off to avoid duplicating them.
	stmt := fmt.Sprintf(
		`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet('%s/%s/**/*.parquet', hive_partitioning = 0)`,
		table, quote(c.root), table,
	)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to register view %s: %w", table, err)
	}
	return nil
}

// Query executes a read query against the registered views.
// rows.Err() must be checked by the caller after iteration completes.
func (c *Catalog) Query(ctx context.Context, sqlStr string) (*sql.Rows, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	rows, err := c.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return rows, nil
}

// Tables lists the registered views in schema order.
func (c *Catalog) Tables() []string {
	return c.tables
}

// Root returns the lake root the catalog reads from.
func (c *Catalog) Root() string {
	return c.root
}

// Close closes the DuckDB connection.
func (c *Catalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// normalizeRoot maps s3a:// URIs onto the s3:// scheme DuckDB expects and
// trims a trailing slash.
func normalizeRoot(root string) string {
	root = strings.TrimSuffix(root, "/")
	if strings.HasPrefix(root, "s3a://") {
		return "s3://" + strings.TrimPrefix(root, "s3a://")
	}
	return root
}

// quote escapes a string for embedding in a single-quoted SQL literal.
func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
