package hubotel

import "time"

// stopwatch measures one invocation. time.Time carries the monotonic clock reading,
// so elapsed is immune to wall clock jumps. The zero value is inactive.
type stopwatch struct {
	start time.Time
	now   func() time.Time
}

func startStopwatch(now func() time.Time) stopwatch {
	return stopwatch{start: now(), now: now}
}

func (s stopwatch) active() bool {
	return !s.start.IsZero()
}

// elapsed returns the time since start, or 0 for an inactive stopwatch
func (s stopwatch) elapsed() time.Duration {
	if !s.active() {
		return 0
	}
	return s.now().Sub(s.start)
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
