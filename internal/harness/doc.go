// Package harness runs engine scenarios as executable tests.
//
// A scenario loads one or more bundles into a fresh engine.Driver, then
// applies steps: each step queues status writes on the modifier and advances
// the driver by a number of ticks. The dispatches produced by every tick form
// the trace.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: thermostat
//	description: "Heating follows the temperature"
//	bundles:
//	  - bundles/thermostat
//	steps:
//	  - name: initial
//	    expect:
//	      dispatches: [cold]
//	  - name: heat up
//	    set: { temperature: 22 }
//	    ticks: 1
//	    expect:
//	      dispatches: [warm]
//	assertions:
//	  - type: dispatch_count
//	    expression: cold
//	    count: 1
//	  - type: status_equals
//	    status: heating
//	    value: true
//
// # Assertion Types
//
//   - status_equals: A status holds the given value at the end of the run
//   - dispatch_count: An expression was dispatched exactly N times
//   - dispatch_order: Expressions were dispatched in the given relative order
//
// # Determinism
//
// Ticks are numbered by the driver's logical clock and monitors are visited
// in key order, so a scenario always produces the same trace. Golden files
// under testdata/golden hold the canonical JSON of that trace (see
// RunWithGolden). When a store is attached with WithStore, every tick is
// recorded under a run ID from the configured RunIDGenerator.
package harness
