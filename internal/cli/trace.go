package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ifthen/internal/ir"
	"github.com/roach88/ifthen/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	Expression string // optional - filter to one expression name
	Diff       string // optional - run ID to compare against
}

// TraceTick is one recorded tick with its dispatches.
type TraceTick struct {
	Seq        int64           `json:"seq"`
	Evaluated  int             `json:"evaluated"`
	Pruned     int             `json:"pruned"`
	Dispatches []TraceDispatch `json:"dispatches"`
}

// TraceDispatch is one recorded dispatch.
type TraceDispatch struct {
	Ordinal    int        `json:"ordinal"`
	Expression string     `json:"expression"`
	Priority   int32      `json:"priority"`
	Now        ir.Ternary `json:"now"`
	Last       ir.Ternary `json:"last"`
}

// TraceResult holds the complete trace output for one run.
type TraceResult struct {
	Run      ir.RunRecord      `json:"run"`
	Timeline []TraceTick       `json:"timeline"`
	Statuses map[string]string `json:"statuses"`
	Stats    TraceStats        `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Ticks         int            `json:"ticks"`
	Dispatches    int            `json:"dispatches"`
	LastSeq       int64          `json:"last_seq"`
	DispatchCount map[string]int `json:"dispatch_count"`
}

// DiffResult is the output of trace --diff.
type DiffResult struct {
	Left       string `json:"left"`
	Right      string `json:"right"`
	Identical  bool   `json:"identical"`
	Divergence string `json:"divergence,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Inspect recorded runs",
		Long: `Inspect a trace database written by run, replay or test.

Without a run ID, lists every recorded run. With a run ID, prints the run's
ticks and dispatches in order, then the statuses at its last tick.

--diff compares two runs' dispatch streams and reports the first difference.

Examples:
  ifthen trace --db ./traces.db
  ifthen trace --db ./traces.db 0190c0de-...
  ifthen trace --db ./traces.db 0190c0de-... --expression cold
  ifthen trace --db ./traces.db 0190c0de-... --diff 0190c0df-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runTrace(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (default: [store] path)")
	cmd.Flags().StringVar(&opts.Expression, "expression", "", "only show dispatches of this expression")
	cmd.Flags().StringVar(&opts.Diff, "diff", "", "compare against another run ID")

	return cmd
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db := firstNonEmpty(opts.Database, opts.config().Store.Path)
	if db == "" {
		return NewExitError(ExitCommandError, "no database: pass --db or set [store] path")
	}
	if opts.Diff != "" && runID == "" {
		return NewExitError(ExitCommandError, "--diff needs a run ID to compare against")
	}

	st, err := store.Open(db)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	switch {
	case runID == "":
		return listRuns(ctx, st, formatter)
	case opts.Diff != "":
		return diffRuns(ctx, st, formatter, runID, opts.Diff)
	}

	result, err := BuildTrace(ctx, st, runID, opts.Expression)
	if errors.Is(err, sql.ErrNoRows) {
		_ = formatter.Error(ErrCodeRunNotFound, fmt.Sprintf("run not found: %s", runID), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeTraceText(formatter.Writer, result)
	return nil
}

// BuildTrace reads a run and groups its dispatches by tick. A non-empty
// expression name reads only that expression's history from the store;
// ticks and stats cover the whole run either way.
func BuildTrace(ctx context.Context, st *store.Store, runID, expression string) (TraceResult, error) {
	state, err := st.GetRunState(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}

	result := TraceResult{
		Run:      state.Run,
		Timeline: make([]TraceTick, 0, len(state.Ticks)),
		Statuses: make(map[string]string),
		Stats: TraceStats{
			Ticks:         len(state.Ticks),
			Dispatches:    len(state.Dispatches),
			LastSeq:       state.LastSeq,
			DispatchCount: state.DispatchCount,
		},
	}

	records := state.Dispatches
	if expression != "" {
		if records, err = st.ReadExpressionHistory(ctx, runID, ir.ExpressionKeyOf(expression)); err != nil {
			return TraceResult{}, err
		}
	}
	bySeq := make(map[int64][]TraceDispatch, len(state.Ticks))
	for _, d := range records {
		bySeq[d.Seq] = append(bySeq[d.Seq], TraceDispatch{
			Ordinal:    d.Ordinal,
			Expression: d.ExpressionName,
			Priority:   d.Priority,
			Now:        d.Now,
			Last:       d.Last,
		})
	}
	for _, t := range state.Ticks {
		dispatches := bySeq[t.Seq]
		if dispatches == nil {
			dispatches = []TraceDispatch{}
		}
		result.Timeline = append(result.Timeline, TraceTick{
			Seq:        t.Seq,
			Evaluated:  t.Evaluated,
			Pruned:     t.Pruned,
			Dispatches: dispatches,
		})
	}

	if len(state.Ticks) > 0 {
		statuses, err := st.ReadStatuses(ctx, runID, state.LastSeq)
		if err != nil {
			return TraceResult{}, err
		}
		for _, s := range statuses {
			result.Statuses[s.Name] = s.Value
		}
	}
	return result, nil
}

func listRuns(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	runs, err := st.ReadRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if formatter.JSON() {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(formatter.Writer, "%s  %s  (engine %s, trace v%s)\n", r.ID, r.Scenario, r.EngineVersion, r.TraceVersion)
	}
	return nil
}

func diffRuns(ctx context.Context, st *store.Store, formatter *OutputFormatter, left, right string) error {
	div, err := st.CompareRuns(ctx, left, right)
	if errors.Is(err, sql.ErrNoRows) {
		_ = formatter.Error(ErrCodeRunNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compare runs", err)
	}

	result := DiffResult{Left: left, Right: right, Identical: div == nil}
	if div != nil {
		result.Divergence = div.String()
	}

	if formatter.JSON() {
		if result.Identical {
			return formatter.Success(result)
		}
		if err := formatter.Failure(result, ErrCodeRunDiverged, result.Divergence); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "runs diverged")
	}
	if !result.Identical {
		fmt.Fprintf(formatter.Writer, "✗ %s\n", result.Divergence)
		return NewExitError(ExitFailure, "runs diverged")
	}
	fmt.Fprintln(formatter.Writer, "✓ Runs dispatched identically")
	return nil
}

func writeTraceText(w io.Writer, result TraceResult) {
	fmt.Fprintf(w, "Run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Scenario: %s\n", result.Run.Scenario)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no ticks)")
	}
	for _, t := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %d evaluated", t.Seq, t.Evaluated)
		if t.Pruned > 0 {
			fmt.Fprintf(w, ", %d pruned", t.Pruned)
		}
		fmt.Fprintln(w)
		for _, d := range t.Dispatches {
			fmt.Fprintf(w, "       #%d %s %s->%s (priority %d)\n", d.Ordinal, d.Expression, d.Last, d.Now, d.Priority)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Statuses ===")
	if len(result.Statuses) == 0 {
		fmt.Fprintln(w, "  (none recorded)")
	}
	for _, name := range sortedNames(result.Statuses) {
		fmt.Fprintf(w, "  %s = %s\n", name, result.Statuses[name])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Ticks:      %d\n", result.Stats.Ticks)
	fmt.Fprintf(w, "  Dispatches: %d\n", result.Stats.Dispatches)
	for _, name := range sortedNames(result.Stats.DispatchCount) {
		fmt.Fprintf(w, "    %s: %d\n", name, result.Stats.DispatchCount[name])
	}
}
