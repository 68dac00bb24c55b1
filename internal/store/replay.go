package store

import (
	"context"
	"fmt"

	"github.com/roach88/ifthen/internal/ir"
)

// RunState summarizes a recorded run for inspection and replay checks.
type RunState struct {
	Run           ir.RunRecord
	Ticks         []ir.TickRecord
	Dispatches    []ir.DispatchRecord
	LastSeq       int64
	DispatchCount map[string]int // Dispatches per expression name
}

// GetRunState retrieves a run with all its ticks and dispatches.
// Returns sql.ErrNoRows (wrapped) if the run does not exist.
func (s *Store) GetRunState(ctx context.Context, runID string) (RunState, error) {
	var state RunState
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return state, fmt.Errorf("get run state: %w", err)
	}
	state.Run = run

	if state.Ticks, err = s.ReadTicks(ctx, runID); err != nil {
		return state, fmt.Errorf("get run state: %w", err)
	}
	if state.Dispatches, err = s.ReadDispatches(ctx, runID); err != nil {
		return state, fmt.Errorf("get run state: %w", err)
	}

	state.DispatchCount = make(map[string]int)
	for _, t := range state.Ticks {
		state.LastSeq = max(state.LastSeq, t.Seq)
	}
	for _, d := range state.Dispatches {
		state.DispatchCount[d.ExpressionName]++
	}
	return state, nil
}

// Divergence describes the first point where two runs' dispatch streams
// differ. A nil Left or Right means that run ended first.
type Divergence struct {
	Index int
	Left  *ir.DispatchRecord
	Right *ir.DispatchRecord
}

func (d Divergence) String() string {
	describe := func(r *ir.DispatchRecord) string {
		if r == nil {
			return "<end of run>"
		}
		return fmt.Sprintf("seq=%d #%d %s %s->%s", r.Seq, r.Ordinal, r.ExpressionName, r.Last, r.Now)
	}
	return fmt.Sprintf("dispatch %d: %s vs %s", d.Index, describe(d.Left), describe(d.Right))
}

// CompareRuns replays two recorded runs side by side and returns the first
// dispatch that differs, or nil when the streams are identical.
//
// Runs are compared on (seq offset, ordinal, expression, priority, now, last).
// Seq is taken relative to each run's first tick so runs started from
// different clock values still compare equal.
func (s *Store) CompareRuns(ctx context.Context, leftID, rightID string) (*Divergence, error) {
	left, err := s.GetRunState(ctx, leftID)
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}
	right, err := s.GetRunState(ctx, rightID)
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}

	lbase, rbase := firstSeq(left.Ticks), firstSeq(right.Ticks)
	n := max(len(left.Dispatches), len(right.Dispatches))
	for i := range n {
		var l, r *ir.DispatchRecord
		if i < len(left.Dispatches) {
			l = &left.Dispatches[i]
		}
		if i < len(right.Dispatches) {
			r = &right.Dispatches[i]
		}
		if l == nil || r == nil || !sameDispatch(*l, lbase, *r, rbase) {
			return &Divergence{Index: i, Left: l, Right: r}, nil
		}
	}
	return nil, nil
}

func firstSeq(ticks []ir.TickRecord) int64 {
	if len(ticks) == 0 {
		return 0
	}
	return ticks[0].Seq
}

func sameDispatch(l ir.DispatchRecord, lbase int64, r ir.DispatchRecord, rbase int64) bool {
	return l.Seq-lbase == r.Seq-rbase &&
		l.Ordinal == r.Ordinal &&
		l.ExpressionKey == r.ExpressionKey &&
		l.Priority == r.Priority &&
		l.Now == r.Now &&
		l.Last == r.Last
}
