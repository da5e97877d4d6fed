package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mking01/spark-data-lakes/internal/state"
	"github.com/mking01/spark-data-lakes/pkg/star"
)

// StatusOptions holds options for the status command.
type StatusOptions struct {
	Limit  int
	Format string
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	opts := &StatusOptions{}

	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show the latest run or run history",
		Long: `Inspect the run ledger.

Without arguments, shows the most recent run for the configured
environment and its per-table outcomes. Pass a run id to inspect an
older run, or --limit to list run history.`,
		Example: `  # Latest run with per-table detail
  sparkify status

  # Last ten runs across environments
  sparkify status --limit 10

  # A specific run
  sparkify status 4f7c1d0e-8a67-4b7e-9c8f-2f4a6e1b0d3c

  # Machine-readable
  sparkify status --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "List the last N runs instead of run detail")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string, opts *StatusOptions) error {
	cfg := getConfig(cmd)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if opts.Limit > 0 && len(args) == 0 {
		return renderRunHistory(cmd.OutOrStdout(), store, opts)
	}

	var run *star.Run
	if len(args) == 1 {
		run, err = store.GetRun(args[0])
	} else {
		run, err = store.GetLatestRun(cfg.Environment)
	}
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "No runs recorded for environment %q yet\n", cfg.Environment)
		return nil
	}

	tableRuns, err := store.GetTableRunsForRun(run.ID)
	if err != nil {
		return err
	}

	return renderRunDetail(cmd.OutOrStdout(), run, tableRuns, opts.Format)
}

// statusOutput is the JSON form of a run with its table outcomes.
type statusOutput struct {
	RunID       string           `json:"run_id"`
	Environment string           `json:"environment"`
	Status      string           `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Error       string           `json:"error,omitempty"`
	Tables      []tableRunOutput `json:"tables"`
}

func renderRunDetail(w io.Writer, run *star.Run, tableRuns []*star.TableRun, format string) error {
	if format == "json" {
		out := statusOutput{
			RunID:       run.ID,
			Environment: run.Environment,
			Status:      string(run.Status),
			StartedAt:   run.StartedAt,
			CompletedAt: run.CompletedAt,
			Error:       run.Error,
		}
		for _, tr := range tableRuns {
			out.Tables = append(out.Tables, tableRunOutput{
				Table:      tr.Table,
				Status:     string(tr.Status),
				Rows:       tr.Rows,
				Files:      tr.Files,
				DurationMS: tr.DurationMS,
				Error:      tr.Error,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "Run %s (%s): %s\n", run.ID, run.Environment, run.Status)
	fmt.Fprintf(w, "Started: %s\n", run.StartedAt.Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Fprintf(w, "Completed: %s (%s)\n",
			run.CompletedAt.Format(time.RFC3339),
			run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}

	if len(tableRuns) == 0 {
		fmt.Fprintln(w, "(no table runs recorded)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Status", "Rows", "Files", "Duration"})
	for _, tr := range tableRuns {
		t.AppendRow(table.Row{
			tr.Table, tr.Status, tr.Rows, tr.Files,
			(time.Duration(tr.DurationMS) * time.Millisecond).String(),
		})
	}
	t.Render()

	for _, tr := range tableRuns {
		if tr.Error != "" {
			fmt.Fprintf(w, "  %s: %s\n", tr.Table, tr.Error)
		}
	}
	return nil
}

func renderRunHistory(w io.Writer, store *state.SQLiteStore, opts *StatusOptions) error {
	runs, err := store.ListRuns(opts.Limit)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		out := make([]statusOutput, 0, len(runs))
		for _, run := range runs {
			out = append(out, statusOutput{
				RunID:       run.ID,
				Environment: run.Environment,
				Status:      string(run.Status),
				StartedAt:   run.StartedAt,
				CompletedAt: run.CompletedAt,
				Error:       run.Error,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run ID", "Environment", "Status", "Started", "Duration"})
	for _, run := range runs {
		duration := ""
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{run.ID, run.Environment, run.Status, run.StartedAt.Format(time.RFC3339), duration})
	}
	t.Render()
	fmt.Fprintf(w, "(%d runs)\n", len(runs))
	return nil
}
