package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/ifthen/internal/harness"
	"github.com/roach88/ifthen/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayResult is the outcome of running a scenario twice.
type ReplayResult struct {
	Scenario      string `json:"scenario"`
	Left          string `json:"left"`
	Right         string `json:"right"`
	Dispatches    int    `json:"dispatches"`
	Deterministic bool   `json:"deterministic"`
	Divergence    string `json:"divergence,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Run a scenario twice and verify determinism",
		Long: `Run a scenario twice against fresh drivers, record both runs and
compare their dispatch streams.

Without --db the runs are recorded to a temporary database.

Exit codes:
  0 - Both runs dispatched identically
  1 - The runs diverged (the first difference is printed)
  2 - Command error (scenario or database unusable)

Examples:
  ifthen replay ./scenarios/thermostat.yaml
  ifthen replay --db ./traces.db ./scenarios/thermostat.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (default: temporary)")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg := opts.config()

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	db := firstNonEmpty(opts.Database, cfg.Store.Path)
	if db == "" {
		tmp, err := os.MkdirTemp("", "ifthen-replay-")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create temporary database", err)
		}
		defer os.RemoveAll(tmp)
		db = filepath.Join(tmp, "replay.db")
	}

	st, err := store.Open(db)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	h := harness.New(
		harness.WithStore(st),
		harness.WithDriverOptions(cfg.DriverOptions()...),
	)

	var runIDs [2]string
	for i := range runIDs {
		res, err := h.Run(ctx, scenario)
		if err != nil {
			return WrapExitError(ExitCommandError, "scenario execution failed", err)
		}
		runIDs[i] = res.RunID
		formatter.VerboseLog("run %d: %s (%d ticks)", i+1, res.RunID, len(res.Ticks))
	}

	div, err := st.CompareRuns(ctx, runIDs[0], runIDs[1])
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compare runs", err)
	}
	state, err := st.GetRunState(ctx, runIDs[0])
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	result := ReplayResult{
		Scenario:      scenario.Name,
		Left:          runIDs[0],
		Right:         runIDs[1],
		Dispatches:    len(state.Dispatches),
		Deterministic: div == nil,
	}
	if div != nil {
		result.Divergence = div.String()
	}

	if formatter.JSON() {
		if result.Deterministic {
			return formatter.Success(result)
		}
		if err := formatter.Failure(result, ErrCodeRunDiverged, result.Divergence); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "runs diverged")
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Scenario: %s\n", result.Scenario)
	fmt.Fprintf(w, "Runs: %s, %s\n", result.Left, result.Right)
	fmt.Fprintf(w, "Dispatches: %d\n", result.Dispatches)
	if !result.Deterministic {
		fmt.Fprintf(w, "✗ Runs diverged at %s\n", result.Divergence)
		return NewExitError(ExitFailure, "runs diverged")
	}
	fmt.Fprintln(w, "✓ Deterministic")
	return nil
}
