// Package engine implements expression monitors, the behavior dispatcher and
// the driver that advances the whole engine one tick at a time.
//
// ARCHITECTURE:
//
// Single-Owner Tick Loop:
// The driver owns the archive, the modifier, the evaluator and the
// dispatcher, and runs every tick to completion on the calling goroutine.
// Only the handle Registry is safe to share; owners may revoke their
// behaviors from anywhere.
//
// Tick Processing Flow:
// 1. Queued status assignments are flushed into the archive
// 2. New monitors are linked to the statuses their expression reads
// 3. Changed, appeared and disappeared statuses signal their monitors
// 4. Dirty monitors are re-evaluated; transitions are classified against the
// last evaluation and matching handlers are cached
// 5. Change flags are reset
// 6. The cache is drained in ascending priority order
//
// Behaviors may write statuses (usually through the modifier). Those writes
// are observed on the next tick, never by the tick that is draining.
//
// Determinism:
// Monitors and status links are visited in key order and the cache is
// sorted stably by priority, so the same inputs always produce the same
// dispatch order.
package engine
