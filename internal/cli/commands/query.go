package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mking01/spark-data-lakes/internal/catalog"
	"github.com/mking01/spark-data-lakes/internal/cli/config"
	"github.com/mking01/spark-data-lakes/pkg/star"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Query the lake with SQL",
		Long: `Query the parquet lake directly with SQL.

Each star-schema table is exposed as a view over its part files, so the
five tables can be filtered, aggregated, and joined without rebuilding
anything. Supports multiple output formats for scripting and integration.

When invoked without arguments, enters interactive REPL mode.`,
		Example: `  # Execute SQL directly
  sparkify query "SELECT level, COUNT(*) FROM songplays GROUP BY level"

  # List queryable tables
  sparkify query tables

  # Show schema for a table
  sparkify query schema songplays

  # Output as JSON
  sparkify query "SELECT * FROM users" --format json

  # Interactive mode
  sparkify query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	// Flags
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json, csv, md")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")

	// Subcommands
	cmd.AddCommand(newQueryTablesCommand(opts))
	cmd.AddCommand(newQuerySchemaCommand(opts))

	return cmd
}

// openCatalog connects DuckDB to the configured output root.
func openCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	cfg := getConfig(cmd)

	creds, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	c, err := catalog.Open(cmd.Context(), catalog.Options{
		Root:        cfg.OutputRoot,
		Region:      cfg.Region,
		Credentials: creds,
	}, getLogger(cmd))
	if err != nil {
		if config.IsRemoteRoot(cfg.OutputRoot) {
			return nil, err
		}
		return nil, fmt.Errorf("%w (run 'sparkify run' first)", err)
	}
	return c, nil
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	// Determine SQL source before connecting, so a usage error is cheap.
	var sqlQuery string

	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !isTerminal(os.Stdin):
		// Read from stdin (piped input)
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		// No input, TTY detected - enter REPL mode
		return runQueryREPL(cmd, opts)
	}

	c, err := openCatalog(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	return executeAndRender(cmd, c, sqlQuery, opts.Format)
}

func executeAndRender(cmd *cobra.Command, c *catalog.Catalog, sqlQuery, format string) error {
	rows, err := c.Query(cmd.Context(), sqlQuery)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return renderResults(cmd.OutOrStdout(), rows, format)
}

// newQueryTablesCommand creates the tables subcommand.
func newQueryTablesCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List queryable tables in the lake",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return renderTableList(cmd.OutOrStdout(), c.Tables(), opts.Format)
		},
	}
}

// newQuerySchemaCommand creates the schema subcommand.
func newQuerySchemaCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Show schema for a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return showSchema(cmd, c, args[0], opts.Format)
		},
	}
}

func showSchema(cmd *cobra.Command, c *catalog.Catalog, table, format string) error {
	// Table names feed a DESCRIBE statement, so only known names pass.
	if !star.IsTable(table) {
		return fmt.Errorf("unknown table %q (tables: %s)", table, strings.Join(star.AllTables, ", "))
	}
	return executeAndRender(cmd, c, "DESCRIBE "+table, format)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
