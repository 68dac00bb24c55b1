package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/ifthen/internal/engine"
	"github.com/roach88/ifthen/internal/harness"
	"github.com/roach88/ifthen/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario and print its trace",
		Long: `Run one scenario against a fresh driver and print every tick's
dispatches followed by the final statuses.

With --db (or [store] path in the config file) the run is recorded to a
SQLite trace database and its run ID is printed.

Example:
  ifthen run ./scenarios/thermostat.yaml
  ifthen run --db ./traces.db ./scenarios/thermostat.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg := opts.config()

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	reg := prometheus.NewRegistry()
	hopts := []harness.Option{
		harness.WithDriverOptions(append(cfg.DriverOptions(), engine.WithMetrics(engine.NewMetrics(reg)))...),
		harness.WithLogger(slog.Default()),
	}

	db := firstNonEmpty(opts.Database, cfg.Store.Path)
	if db != "" {
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

	slog.Debug("running scenario", "scenario", scenario.Name, "bundles", len(scenario.Bundles), "steps", len(scenario.Steps))
	result, err := harness.Run(ctx, scenario, hopts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	if opts.Verbose {
		if err := printMetrics(formatter.GetErrWriter(), reg); err != nil {
			slog.Warn("gathering metrics failed", "error", err)
		}
	}

	if formatter.JSON() {
		if result.Pass {
			return formatter.Success(result)
		}
		if err := formatter.Failure(result, ErrCodeScenarioFailed, strings.Join(result.Errors, "; ")); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}

	w := formatter.Writer
	writeTrace(w, result)
	if result.RunID != "" {
		fmt.Fprintf(w, "run: %s\n", result.RunID)
	}
	if !result.Pass {
		fmt.Fprintf(w, "✗ %s\n", scenario.Name)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	fmt.Fprintf(w, "✓ %s\n", scenario.Name)
	return nil
}

// writeTrace prints one line per tick and one indented line per dispatch,
// then the final statuses sorted by name.
func writeTrace(w io.Writer, result *harness.Result) {
	for _, tick := range result.Ticks {
		fmt.Fprintf(w, "tick %d (step %d): %d evaluated\n", tick.Seq, tick.Step, tick.Evaluated)
		for _, d := range tick.Dispatches {
			fmt.Fprintf(w, "  #%d %s %s->%s (priority %d)\n", d.Ordinal, d.Expression, d.Last, d.Now, d.Priority)
		}
	}
	for _, name := range sortedNames(result.Statuses) {
		fmt.Fprintf(w, "%s = %s\n", name, result.Statuses[name])
	}
}

// printMetrics writes gathered counters and gauges as "name{labels} value".
func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			value := m.GetCounter().GetValue()
			if m.GetGauge() != nil {
				value = m.GetGauge().GetValue()
			}
			fmt.Fprintf(w, "%s %g\n", name, value)
		}
	}
	return nil
}

// signalContext cancels on SIGINT/SIGTERM. The harness checks it between ticks.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortedNames[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
