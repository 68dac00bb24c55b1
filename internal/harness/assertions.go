package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ifthen/internal/archive"
	"github.com/roach88/ifthen/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Trace    []DispatchEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, d := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] seq=%d %s %s->%s\n", i+1, d.Seq, d.Expression, d.Last, d.Now)
		}
	}
	return buf.String()
}

// StatusReader reads final status values for status_equals.
// Implemented by *archive.Archive.
type StatusReader interface {
	Get(key ir.StatusKey) (ir.Value, bool)
	Format(key ir.StatusKey) (ir.Format, bool)
}

var _ StatusReader = (*archive.Archive)(nil)

// assertStatusEquals checks a status's final value. Floats compare within
// the engine's comparison tolerance.
func assertStatusEquals(statuses StatusReader, assertion Assertion) error {
	key := ir.StatusKeyOf(assertion.Status)
	actual, ok := statuses.Get(key)
	if !ok {
		return &AssertionError{
			Type:     AssertStatusEquals,
			Expected: fmt.Sprintf("status %s = %v", assertion.Status, assertion.Value),
			Actual:   "status not registered",
		}
	}

	expected, err := toValue(assertion.Value)
	if err != nil {
		return fmt.Errorf("status_equals %s: %w", assertion.Status, err)
	}
	if actual.Compare(ir.Equal, expected) != ir.True {
		return &AssertionError{
			Type:     AssertStatusEquals,
			Expected: fmt.Sprintf("status %s = %v", assertion.Status, expected),
			Actual:   fmt.Sprintf("status %s = %v", assertion.Status, actual),
		}
	}
	return nil
}

// assertDispatchCount checks that the expression was dispatched exactly
// the specified number of times.
func assertDispatchCount(trace []DispatchEvent, assertion Assertion) error {
	count := 0
	for _, d := range trace {
		if d.Expression == assertion.Expression {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertDispatchCount,
			Expected: fmt.Sprintf("%s dispatched %d times", assertion.Expression, assertion.Count),
			Actual:   fmt.Sprintf("%s dispatched %d times", assertion.Expression, count),
			Trace:    trace,
		}
	}
	return nil
}

// assertDispatchOrder checks that the expressions appear in the trace in
// the specified order. Intervening dispatches are allowed.
func assertDispatchOrder(trace []DispatchEvent, assertion Assertion) error {
	next := 0
	for _, d := range trace {
		if next < len(assertion.Expressions) && d.Expression == assertion.Expressions[next] {
			next++
		}
	}
	if next < len(assertion.Expressions) {
		return &AssertionError{
			Type:     AssertDispatchOrder,
			Expected: fmt.Sprintf("dispatches in order: %v", assertion.Expressions),
			Actual:   fmt.Sprintf("matched %v, missing %s", assertion.Expressions[:next], assertion.Expressions[next]),
			Trace:    trace,
		}
	}
	return nil
}

// assertStepDispatches checks the dispatches of a single step exactly.
func assertStepDispatches(step string, got []DispatchEvent, want []string) error {
	names := make([]string, len(got))
	for i, d := range got {
		names[i] = d.Expression
	}
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(names, want) {
		return &AssertionError{
			Type:     "step " + step,
			Expected: fmt.Sprintf("dispatches %v", want),
			Actual:   fmt.Sprintf("dispatches %v", names),
			Trace:    got,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// statuses provides the final values for status_equals assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, statuses StatusReader) []string {
	var errors []string
	trace := result.Dispatches()

	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertStatusEquals:
			if statuses == nil {
				err = fmt.Errorf("assertion[%d]: status_equals requires a status reader", i)
			} else {
				err = assertStatusEquals(statuses, assertion)
			}
		case AssertDispatchCount:
			err = assertDispatchCount(trace, assertion)
		case AssertDispatchOrder:
			err = assertDispatchOrder(trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
