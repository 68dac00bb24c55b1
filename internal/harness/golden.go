package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ifthen/internal/ir"
)

// TraceSnapshot captures the complete trace of a scenario execution.
// It omits the run ID so recorded and unrecorded runs snapshot identically.
type TraceSnapshot struct {
	Scenario string            `json:"scenario"`
	Ticks    []TickEvent       `json:"ticks"`
	Statuses map[string]string `json:"statuses"`
}

// NewTraceSnapshot builds the snapshot of result.
func NewTraceSnapshot(scenario string, result *Result) TraceSnapshot {
	return TraceSnapshot{
		Scenario: scenario,
		Ticks:    result.Ticks,
		Statuses: result.Statuses,
	}
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization. Only seq, evaluated and the dispatches of each tick
// are kept; ordinals are implied by list position.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	ticks := make([]any, len(s.Ticks))
	for i, t := range s.Ticks {
		dispatches := make([]any, len(t.Dispatches))
		for j, d := range t.Dispatches {
			dispatches[j] = map[string]any{
				"expression": d.Expression,
				"priority":   d.Priority,
				"now":        d.Now,
				"last":       d.Last,
			}
		}
		ticks[i] = map[string]any{
			"seq":        t.Seq,
			"evaluated":  t.Evaluated,
			"dispatches": dispatches,
		}
	}

	statuses := make(map[string]any, len(s.Statuses))
	for k, v := range s.Statuses {
		statuses[k] = v
	}
	return map[string]any{
		"scenario": s.Scenario,
		"ticks":    ticks,
		"statuses": statuses,
	}
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s *TraceSnapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := NewTraceSnapshot(scenarioName, result)
	traceJSON, err := snapshot.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
