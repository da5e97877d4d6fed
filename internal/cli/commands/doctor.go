package commands

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mking01/spark-data-lakes/internal/cli/config"
	intconfig "github.com/mking01/spark-data-lakes/internal/config"
	"github.com/mking01/spark-data-lakes/internal/storage"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	Format string // Output format: text, json
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run an environment health check",
		Long: `Check that a run would have everything it needs.

The doctor command verifies the configuration, credentials, input layout,
output root, run ledger, and query engine, and reports each check as
pass, warn, or fail.`,
		Example: `  # Run health check
  sparkify doctor

  # Output as JSON
  sparkify doctor --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "text", "Output format: text, json")

	return cmd
}

const (
	checkPass = "pass"
	checkWarn = "warn"
	checkFail = "fail"
)

// HealthCheck is a single doctor check result.
type HealthCheck struct {
	Name   string `json:"name"`
	Group  string `json:"group"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Checks   []HealthCheck `json:"checks"`
	Failures int           `json:"failures"`
	Warnings int           `json:"warnings"`
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	cfg := getConfig(cmd)

	var checks []HealthCheck
	checks = append(checks, checkConfigFile())
	checks = append(checks, checkCredentials(cfg))
	checks = append(checks, checkInput(cmd, cfg)...)
	checks = append(checks, checkOutput(cfg))
	checks = append(checks, checkLedger(cfg))
	checks = append(checks, checkQueryEngine())

	out := &DoctorOutput{Checks: checks}
	for _, c := range checks {
		switch c.Status {
		case checkFail:
			out.Failures++
		case checkWarn:
			out.Warnings++
		}
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		renderDoctorText(cmd, out)
	}

	if out.Failures > 0 {
		return fmt.Errorf("doctor found %d problems", out.Failures)
	}
	return nil
}

func checkConfigFile() HealthCheck {
	check := HealthCheck{Name: "config file", Group: "configuration"}
	if used := config.GetConfigFileUsed(); used != "" {
		check.Status = checkPass
		check.Detail = used
	} else {
		check.Status = checkWarn
		check.Detail = "no sparkify.yaml found, using defaults and flags"
	}
	return check
}

func checkCredentials(cfg *config.Config) HealthCheck {
	check := HealthCheck{Name: "credentials", Group: "configuration"}
	if !config.IsRemoteRoot(cfg.InputRoot) && !config.IsRemoteRoot(cfg.OutputRoot) {
		check.Status = checkPass
		check.Detail = "not required for local roots"
		return check
	}

	creds, err := intconfig.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		check.Status = checkFail
		check.Detail = err.Error()
		return check
	}
	if err := creds.Validate(); err != nil {
		check.Status = checkFail
		check.Detail = err.Error()
		return check
	}
	check.Status = checkPass
	check.Detail = cfg.CredentialsFile
	return check
}

func checkInput(cmd *cobra.Command, cfg *config.Config) []HealthCheck {
	reach := HealthCheck{Name: "input root", Group: "storage"}

	creds, err := loadCredentials(cfg)
	if err != nil {
		reach.Status = checkFail
		reach.Detail = err.Error()
		return []HealthCheck{reach}
	}
	fs, err := storage.ParseRoot(cmd.Context(), cfg.InputRoot, storage.S3Options{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		Region:          cfg.Region,
	})
	if err != nil {
		reach.Status = checkFail
		reach.Detail = err.Error()
		return []HealthCheck{reach}
	}
	reach.Status = checkPass
	reach.Detail = cfg.InputRoot

	checks := []HealthCheck{reach}
	for _, layout := range []struct {
		name string
		glob string
	}{
		{"song data layout", intconfig.DefaultSongGlob},
		{"log data layout", intconfig.DefaultLogGlob},
	} {
		check := HealthCheck{Name: layout.name, Group: "storage"}
		names, err := fs.List(cmd.Context(), layout.glob)
		switch {
		case err != nil:
			check.Status = checkFail
			check.Detail = err.Error()
		case len(names) == 0:
			check.Status = checkWarn
			check.Detail = fmt.Sprintf("no files match %s", layout.glob)
		default:
			check.Status = checkPass
			check.Detail = fmt.Sprintf("%d files", len(names))
		}
		checks = append(checks, check)
	}
	return checks
}

func checkOutput(cfg *config.Config) HealthCheck {
	check := HealthCheck{Name: "output root", Group: "storage"}
	if config.IsRemoteRoot(cfg.OutputRoot) {
		check.Status = checkWarn
		check.Detail = "writability of object storage is not probed"
		return check
	}

	if err := os.MkdirAll(cfg.OutputRoot, 0750); err != nil {
		check.Status = checkFail
		check.Detail = err.Error()
		return check
	}
	probe := filepath.Join(cfg.OutputRoot, ".sparkify-doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0640); err != nil {
		check.Status = checkFail
		check.Detail = fmt.Sprintf("not writable: %v", err)
		return check
	}
	_ = os.Remove(probe)
	check.Status = checkPass
	check.Detail = cfg.OutputRoot
	return check
}

func checkLedger(cfg *config.Config) HealthCheck {
	check := HealthCheck{Name: "run ledger", Group: "ledger"}
	store, err := openStore(cfg)
	if err != nil {
		check.Status = checkFail
		check.Detail = err.Error()
		return check
	}
	defer func() { _ = store.Close() }()

	version, err := store.GetMigrationVersion()
	if err != nil {
		check.Status = checkFail
		check.Detail = err.Error()
		return check
	}
	check.Status = checkPass
	check.Detail = fmt.Sprintf("%s (schema version %d)", cfg.StatePath, version)
	return check
}

func checkQueryEngine() HealthCheck {
	check := HealthCheck{Name: "duckdb", Group: "engine"}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		check.Status = checkFail
		check.Detail = err.Error()
		return check
	}
	defer func() { _ = db.Close() }()

	var one int
	if err := db.QueryRow("SELECT 1").Scan(&one); err != nil {
		check.Status = checkFail
		check.Detail = err.Error()
		return check
	}
	check.Status = checkPass
	return check
}

func renderDoctorText(cmd *cobra.Command, out *DoctorOutput) {
	w := cmd.OutOrStdout()
	titleCaser := cases.Title(language.English)

	currentGroup := ""
	for _, check := range out.Checks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			fmt.Fprintf(w, "%s\n", titleCaser.String(currentGroup))
		}

		icon := "ok"
		switch check.Status {
		case checkWarn:
			icon = " !"
		case checkFail:
			icon = " x"
		}
		line := fmt.Sprintf("  [%s] %s", icon, check.Name)
		if check.Detail != "" {
			line += ": " + check.Detail
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w)
	switch {
	case out.Failures > 0:
		fmt.Fprintf(w, "%d checks failed, %d warnings\n", out.Failures, out.Warnings)
	case out.Warnings > 0:
		fmt.Fprintf(w, "All checks passed with %d warnings\n", out.Warnings)
	default:
		fmt.Fprintln(w, "All checks passed")
	}
}
