package harness

import "github.com/roach88/ifthen/internal/ir"

// DispatchEvent is one behavior invocation observed during a scenario.
type DispatchEvent struct {
	Seq        int64      `json:"seq"`
	Ordinal    int        `json:"ordinal"` // Position within the tick
	Expression string     `json:"expression"`
	Priority   int32      `json:"priority"`
	Now        ir.Ternary `json:"now"`
	Last       ir.Ternary `json:"last"`
}

// TickEvent summarizes one engine tick.
type TickEvent struct {
	Seq        int64           `json:"seq"`
	Step       int             `json:"step"` // Index of the scenario step that ran it
	Evaluated  int             `json:"evaluated"`
	Pruned     int             `json:"pruned"`
	Dispatches []DispatchEvent `json:"dispatches"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step expectation and assertion matched.
	Pass bool `json:"pass"`

	// RunID is set when the run was recorded to a store.
	RunID string `json:"run_id,omitempty"`

	// Ticks holds every tick in execution order.
	Ticks []TickEvent `json:"ticks"`

	// Statuses holds the final value of every named status.
	Statuses map[string]string `json:"statuses"`

	// Errors contains failed expectations and assertions.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Ticks:    []TickEvent{},
		Statuses: make(map[string]string),
		Errors:   []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTick appends a tick to the trace.
func (r *Result) AddTick(tick TickEvent) {
	if tick.Dispatches == nil {
		tick.Dispatches = []DispatchEvent{}
	}
	r.Ticks = append(r.Ticks, tick)
}

// Dispatches returns every dispatch across all ticks, in order.
func (r *Result) Dispatches() []DispatchEvent {
	var out []DispatchEvent
	for _, t := range r.Ticks {
		out = append(out, t.Dispatches...)
	}
	return out
}
