package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mking01/spark-data-lakes/internal/cli/config"
	"github.com/mking01/spark-data-lakes/internal/etl"
	"github.com/mking01/spark-data-lakes/pkg/star"
)

// debounceDelay coalesces bursts of file events into one rerun.
const debounceDelay = 500 * time.Millisecond

// RunOptions holds options for the run command.
type RunOptions struct {
	Select     string
	Downstream bool
	Watch      bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run all tables or specific tables",
		Long: `Execute the star-schema transforms in dependency order.

By default, builds all five tables. Use --select to build specific tables.
Use --downstream to also build tables that depend on the selected tables.`,
		Example: `  # Build all tables
  sparkify run

  # Build specific tables
  sparkify run --select songs,artists

  # Build a table and its downstream dependents
  sparkify run --select songs --downstream

  # Rerun automatically when input files change
  sparkify run --watch`,
		Aliases: []string{"build"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Select, "select", "s", "", "Comma-separated list of tables to build")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", false, "Include downstream dependents when using --select")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Watch the input root and rerun on changes")

	_ = cmd.RegisterFlagCompletionFunc("select", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return star.AllTables, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cfg := getConfig(cmd)
	logger := getLogger(cmd)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	creds, err := loadCredentials(cfg)
	if err != nil {
		return err
	}

	session, err := etl.NewSession(cmd.Context(), cfg, creds, logger)
	if err != nil {
		return err
	}

	pipeline := etl.New(session, store, cfg.Environment, logger)
	pipelineOpts := etl.Options{
		Tables:     splitSelect(opts.Select),
		Downstream: opts.Downstream,
	}

	if opts.Watch {
		return runWatch(cmd, cfg, pipeline, pipelineOpts, logger)
	}
	return runOnce(cmd, cfg, pipeline, pipelineOpts)
}

func runOnce(cmd *cobra.Command, cfg *config.Config, pipeline *etl.Pipeline, opts etl.Options) error {
	summary, runErr := pipeline.Run(cmd.Context(), opts)
	if summary != nil {
		if err := renderSummary(cmd, cfg, summary); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	return nil
}

// runWatch reruns the pipeline whenever a JSON file under the input root
// changes. Only local input roots can be watched.
func runWatch(cmd *cobra.Command, cfg *config.Config, pipeline *etl.Pipeline, opts etl.Options, logger *slog.Logger) error {
	if config.IsRemoteRoot(cfg.InputRoot) {
		return fmt.Errorf("cannot watch remote input root %s", cfg.InputRoot)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initial run. A failed run keeps the watcher alive so a fixed input
	// file triggers the retry.
	if err := runOnce(cmd, cfg, pipeline, opts); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDirRecursive(watcher, cfg.InputRoot); err != nil {
		return fmt.Errorf("failed to watch input root: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes. Press Ctrl+C to stop.\n", cfg.InputRoot)

	var debounceTimer *time.Timer
	rerun := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-rerun:
			if err := runOnce(cmd, cfg, pipeline, opts); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			}

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			// New input partitions arrive as fresh directories.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchDirRecursive(watcher, event.Name)
				}
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := filepath.Base(event.Name)
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				logger.Info("change detected", slog.String("file", name))
				select {
				case rerun <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}

// watchDirRecursive adds dir and every subdirectory to the watcher.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if len(info.Name()) > 0 && info.Name()[0] == '.' && path != dir {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
}

func splitSelect(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tables := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tables = append(tables, p)
		}
	}
	return tables
}

// runOutput is the JSON form of a run summary.
type runOutput struct {
	RunID               string           `json:"run_id"`
	Status              string           `json:"status"`
	Tables              []tableRunOutput `json:"tables"`
	SkippedSongRecords  int64            `json:"skipped_song_records"`
	SkippedEventRecords int64            `json:"skipped_event_records"`
	TotalMS             int64            `json:"total_ms"`
}

type tableRunOutput struct {
	Table      string `json:"table"`
	Status     string `json:"status"`
	Rows       int64  `json:"rows"`
	Files      int64  `json:"files"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func renderSummary(cmd *cobra.Command, cfg *config.Config, summary *etl.Summary) error {
	if cfg.OutputFormat == "json" {
		out := runOutput{
			RunID:               summary.RunID,
			Status:              string(summary.Status),
			SkippedSongRecords:  summary.SkippedSongRecords,
			SkippedEventRecords: summary.SkippedEventRecords,
			TotalMS:             summary.Duration.Milliseconds(),
		}
		for _, tr := range summary.Tables {
			out.Tables = append(out.Tables, tableRunOutput{
				Table:      tr.Table,
				Status:     string(tr.Status),
				Rows:       tr.Rows,
				Files:      tr.Files,
				DurationMS: tr.Duration.Milliseconds(),
				Error:      tr.Error,
			})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	w := cmd.OutOrStdout()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Status", "Rows", "Files", "Duration"})
	for _, tr := range summary.Tables {
		t.AppendRow(table.Row{tr.Table, tr.Status, tr.Rows, tr.Files, tr.Duration.Round(time.Millisecond)})
	}
	t.Render()

	for _, tr := range summary.Tables {
		if tr.Error != "" {
			fmt.Fprintf(w, "  %s: %s\n", tr.Table, tr.Error)
		}
	}
	if skipped := summary.SkippedSongRecords + summary.SkippedEventRecords; skipped > 0 {
		fmt.Fprintf(w, "Skipped %d malformed input records\n", skipped)
	}
	fmt.Fprintf(w, "Run %s: %s in %s\n", summary.RunID, summary.Status, summary.Duration.Round(time.Millisecond))
	return nil
}
