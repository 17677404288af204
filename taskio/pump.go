//go:build unix

package taskio

// Status is the outcome of one pump turn.
type Status int8

const (
	StatusFailed     Status = -1
	StatusIdle       Status = 0
	StatusProgressed Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusIdle:
		return "idle"
	case StatusProgressed:
		return "progressed"
	default:
		return "unknown"
	}
}

// merge combines the two steps of a turn: failed beats progressed beats idle.
func merge(a, b Status) Status {
	if a == StatusFailed || b == StatusFailed {
		return StatusFailed
	}
	if a == StatusProgressed || b == StatusProgressed {
		return StatusProgressed
	}
	return StatusIdle
}

// pump moves bytes from one input descriptor to one output descriptor through
// a staging resource it owns.
type pump interface {
	// Pump performs one bounded, non-blocking turn. A failed turn carries the
	// cause in the error.
	Pump(in, out int) (Status, error)
	// Pending is the number of bytes staged but not yet written out.
	Pending() int
	Close() error
}
