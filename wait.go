package loraping

import "time"

// Clock is a monotonic time source. time.Now carries a monotonic reading,
// so SystemClock is safe for elapsed-time measurement.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

var SystemClock Clock = systemClock{}

type WaitResult int

const (
	WaitCompleted WaitResult = iota
	WaitTimedOut
)

func (r WaitResult) String() string {
	if r == WaitCompleted {
		return "completed"
	}
	return "timed out"
}

// WaitFor busy-polls cond until it reports true or timeout has elapsed on
// clk. cond is evaluated before the deadline check, so a condition that is
// already satisfied completes even with a zero timeout.
func WaitFor(clk Clock, timeout time.Duration, cond func() bool) WaitResult {
	start := clk.Now()
	for {
		if cond() {
			return WaitCompleted
		}
		if clk.Now().Sub(start) >= timeout {
			return WaitTimedOut
		}
	}
}

// WaitUntil is WaitFor for a fallible condition. An error from cond ends the
// wait immediately and is returned with WaitTimedOut.
func WaitUntil(clk Clock, timeout time.Duration, cond func() (bool, error)) (WaitResult, error) {
	var err error
	res := WaitFor(clk, timeout, func() bool {
		var done bool
		done, err = cond()
		return done || err != nil
	})
	if err != nil {
		return WaitTimedOut, err
	}
	return res, nil
}

// busyWait spins until d has elapsed.
func busyWait(clk Clock, d time.Duration) {
	start := clk.Now()
	for clk.Now().Sub(start) < d {
	}
}
