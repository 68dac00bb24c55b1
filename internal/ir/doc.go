// Package ir provides the shared value model for the ifthen engine.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// value model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Keys are opaque uint64 handles; 0 is reserved as "no key"
//   - Values are fixed-width scalars (bool, unsigned, signed, float)
//   - Evaluation results are three-valued (True, False, Unknown)
//   - Ticks are logical sequence numbers, never wall-clock timestamps
package ir
