package ir

// NOTE: These are trace-store types, not part of the engine's value model.
// Names are carried alongside keys so traces stay readable after hashing.

// RunRecord identifies one recorded engine run (store-layer).
type RunRecord struct {
	ID            string `json:"id"`       // UUIDv7 run identifier
	Scenario      string `json:"scenario"` // Scenario or bundle name
	EngineVersion string `json:"engine_version"`
	TraceVersion  string `json:"trace_version"`
}

// TickRecord summarizes one Driver.Progress call (store-layer).
type TickRecord struct {
	RunID      string `json:"run_id"`
	Seq        int64  `json:"seq"` // Logical clock
	Evaluated  int    `json:"evaluated"`
	Dispatched int    `json:"dispatched"`
	Pruned     int    `json:"pruned"`
}

// DispatchRecord is one behavior invocation within a tick (store-layer).
// Ordinal is the position in the tick's priority-ordered cache.
type DispatchRecord struct {
	RunID          string        `json:"run_id"`
	Seq            int64         `json:"seq"`
	Ordinal        int           `json:"ordinal"`
	ExpressionKey  ExpressionKey `json:"expression_key"`
	ExpressionName string        `json:"expression_name"`
	Priority       int32         `json:"priority"`
	Now            Ternary       `json:"now"`
	Last           Ternary       `json:"last"`
}

// StatusSnapshot is a status value observed at the end of a tick (store-layer).
type StatusSnapshot struct {
	RunID  string    `json:"run_id"`
	Seq    int64     `json:"seq"`
	Key    StatusKey `json:"key"`
	Name   string    `json:"name"`
	Format string    `json:"format"`
	Value  string    `json:"value"`
}
