package trustedtime

import "time"

// SystemClock reads the trusted time from the host clock.
type SystemClock struct{}

func (SystemClock) NowNano() int64 {
	return time.Now().UnixNano()
}

// FixedClock always returns the same instant. Used for replays and tests.
type FixedClock struct {
	Nano int64
}

func (c FixedClock) NowNano() int64 {
	return c.Nano
}
