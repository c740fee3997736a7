package progress

import "time"

// Clock abstracts timer creation so the scheduler's quiet period can be
// driven by a fake in tests instead of real timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type Timer interface {
	Reset(d time.Duration) bool
	Stop() bool
}

type wallClock struct{}

// WallClock returns the real-time Clock used outside tests.
func WallClock() Clock {
	return wallClock{}
}

func (wallClock) Now() time.Time {
	return time.Now()
}

func (wallClock) AfterFunc(d time.Duration, fn func()) Timer {
	return wallTimer{timer: time.AfterFunc(d, fn)}
}

type wallTimer struct {
	timer *time.Timer
}

func (t wallTimer) Reset(d time.Duration) bool {
	return t.timer.Reset(d)
}

func (t wallTimer) Stop() bool {
	return t.timer.Stop()
}
