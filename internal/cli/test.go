package cli

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/ifthen/internal/harness"
	"github.com/roach88/ifthen/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Database string
	Update   bool // regenerate golden files
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	RunID  string   `json:"run_id,omitempty"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "mismatch"
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run every scenario in a directory",
		Long: `Run all scenario files (*.yaml, *.yml) under a directory.

A scenario passes when every step expectation and assertion holds. If
<scenarios-dir>/golden/<name>.golden exists, the trace must also match it
byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  ifthen test ./scenarios
  ifthen test ./scenarios --update
  ifthen test ./scenarios --db ./traces.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record every run to this SQLite trace database")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg := opts.config()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	hopts := []harness.Option{harness.WithDriverOptions(cfg.DriverOptions()...)}
	if db := firstNonEmpty(opts.Database, cfg.Store.Path); db != "" {
		st, err := store.Open(db)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		hopts = append(hopts, harness.WithStore(st))
	}

	suite, err := harness.RunSuite(ctx, dir, hopts...)
	var nse *harness.NoScenariosError
	switch {
	case errors.As(err, &nse):
		if formatter.JSON() {
			return formatter.Success(TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	case err != nil:
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(suite.Results)),
		Total:     suite.TotalScenarios,
	}
	goldenDir := filepath.Join(dir, "golden")
	for _, outcome := range suite.Results {
		sr := ScenarioResult{
			Name:   outcome.Scenario,
			Path:   outcome.Path,
			Pass:   outcome.Pass,
			RunID:  outcome.RunID,
			Errors: outcome.Errors,
		}
		if sr.Name == "" {
			sr.Name = filepath.Base(outcome.Path)
		}
		if outcome.Result != nil {
			checkGolden(&sr, goldenDir, outcome.Result, opts.Update)
		}
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if formatter.JSON() {
		if result.Failed == 0 {
			return formatter.Success(result)
		}
		if err := formatter.Failure(result, ErrCodeScenarioFailed, msg); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	w := formatter.Writer
	for _, sr := range result.Scenarios {
		mark := "✓"
		if !sr.Pass {
			mark = "✗"
		}
		switch sr.Golden {
		case "updated":
			fmt.Fprintf(w, "%s %s (golden updated)\n", mark, sr.Name)
		default:
			fmt.Fprintf(w, "%s %s\n", mark, sr.Name)
		}
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, msg)
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

// checkGolden compares the scenario's canonical trace with
// goldenDir/<name>.golden, or rewrites it when update is set. A missing
// golden file is not a failure.
func checkGolden(sr *ScenarioResult, goldenDir string, result *harness.Result, update bool) {
	snapshot := harness.NewTraceSnapshot(sr.Name, result)
	data, err := snapshot.MarshalCanonical()
	if err != nil {
		sr.fail(fmt.Sprintf("failed to marshal trace: %v", err))
		return
	}
	path := filepath.Join(goldenDir, sr.Name+".golden")

	if update {
		if err := os.MkdirAll(goldenDir, 0o755); err != nil {
			sr.fail(fmt.Sprintf("failed to create golden directory: %v", err))
			return
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			sr.fail(fmt.Sprintf("failed to write golden file: %v", err))
			return
		}
		sr.Golden = "updated"
		return
	}

	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		sr.fail(fmt.Sprintf("failed to read golden file: %v", err))
		return
	}
	if !bytes.Equal(want, data) {
		sr.Golden = "mismatch"
		sr.fail("trace does not match golden file (run with --update to regenerate)")
		return
	}
	sr.Golden = "match"
}

func (sr *ScenarioResult) fail(msg string) {
	sr.Pass = false
	sr.Errors = append(sr.Errors, msg)
}
