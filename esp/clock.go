package esp

import "time"

// Clock abstracts time for the polling loops in the command transport, so
// tests can simulate elapsed time without real delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
