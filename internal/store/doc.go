// Package store provides SQLite-backed durable storage for ifthen traces.
//
// A trace is an append-only log of one engine run:
//   - Runs: one row per recorded scenario execution, keyed by UUIDv7
//   - Ticks: one row per Driver.Progress call
//   - Dispatches: the priority-ordered behavior invocations of a tick
//   - Statuses: status values observed at the end of a tick
//
// # Logical Time
//
// All ordering uses seq INTEGER (the driver's logical clock), never
// timestamps. Every query orders by (seq, ordinal) or (seq, name, key) so
// results are identical across replays.
//
// # Idempotency
//
// Every write uses ON CONFLICT DO NOTHING on the table's primary key.
// Re-recording the same tick is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
