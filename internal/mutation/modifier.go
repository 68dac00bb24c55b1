package mutation

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/ifthen/internal/archive"
)

// Delay selects how a queued operation is grouped into a series and how it
// is postponed when its series conflicts with an earlier change.
type Delay uint8

const (
	// Nonblock starts a new series. If the series is postponed, only the
	// series itself waits for the next flush.
	Nonblock Delay = iota
	// Block starts a new series. If the series is postponed, every
	// operation queued after it waits too.
	Block
	// Follow continues the previous series and is applied or postponed with it.
	Follow
)

func (d Delay) String() string {
	switch d {
	case Block:
		return "BLOCK"
	case Follow:
		return "FOLLOW"
	default:
		return "NONBLOCK"
	}
}

// ParseDelay parses NONBLOCK, BLOCK or FOLLOW. An empty string is Nonblock.
func ParseDelay(s string) (Delay, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONBLOCK":
		return Nonblock, nil
	case "BLOCK":
		return Block, nil
	case "FOLLOW":
		return Follow, nil
	default:
		return Nonblock, fmt.Errorf("unknown delay %q", s)
	}
}

// accumulation is one queued operation. Consecutive entries with the same
// series bit belong to the same series.
type accumulation struct {
	op     Operation
	series bool
	block  bool
}

// Modifier queues operations and applies them at the start of the next tick.
//
// Within one Flush, a series touching a status that already changed this tick
// (directly, or by an earlier series in the same flush) is postponed to the
// next Flush so changes from different series never collapse into one tick.
//
// Thread-safety: Modifier is NOT safe for concurrent use.
type Modifier struct {
	pending  []accumulation
	deferred []accumulation
}

// NewModifier creates an empty Modifier.
func NewModifier() *Modifier {
	return &Modifier{}
}

// Accumulate queues op and returns the number of queued operations.
func (m *Modifier) Accumulate(op Operation, delay Delay) int {
	series := len(m.pending) == 0 || m.pending[len(m.pending)-1].series != (delay != Follow)
	m.pending = append(m.pending, accumulation{op: op, series: series, block: delay == Block})
	return len(m.pending)
}

// Len returns the number of queued operations.
func (m *Modifier) Len() int {
	return len(m.pending)
}

// Flush applies queued operations to the archive series by series.
//
// A series whose target statuses already changed since the archive's last
// ResetTransitions is postponed to the next Flush; a postponed Block series
// postpones everything queued after it. Failed operations are logged and
// returned joined; the remaining operations still run.
func (m *Modifier) Flush(a Archive) error {
	var errs []error
	pending := m.pending
	for i := 0; i < len(pending); {
		// Find the end of this series and whether any target already changed.
		apply := true
		j := i
		for ; j < len(pending) && pending[j].series == pending[i].series; j++ {
			if apply && a.Transition(pending[j].op.Status()) == archive.Changed {
				apply = false
			}
		}

		if apply {
			for ; i < j; i++ {
				if err := pending[i].op.Apply(a); err != nil {
					slog.Warn("deferred status operation failed", "operation", pending[i].op.String(), "error", err)
					errs = append(errs, err)
				}
			}
			continue
		}

		// Postpone; keep series boundaries intact in the deferred queue.
		flip := len(m.deferred) > 0 && m.deferred[len(m.deferred)-1].series == pending[i].series
		if pending[i].block {
			j = len(pending)
		}
		for ; i < j; i++ {
			acc := pending[i]
			acc.series = acc.series != flip
			m.deferred = append(m.deferred, acc)
		}
	}

	m.pending, m.deferred = m.deferred, pending[:0]
	return errors.Join(errs...)
}
