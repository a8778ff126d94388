package audio

import (
	"context"
	"time"
)

// WallClock is a monotonic clock that is always running. MIDI output
// schedules against it.
type WallClock struct {
	start time.Time
}

func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

func (c *WallClock) Now() float64 { return time.Since(c.start).Seconds() }

func (c *WallClock) IsRunning() bool { return true }

func (c *WallClock) Activate(context.Context) error { return nil }

// FrameClock reads the time from a mixer's rendered frames without any
// device behind it. Offline rendering advances it by calling Process.
type FrameClock struct {
	Mixer *Mixer
}

func (c FrameClock) Now() float64 { return c.Mixer.Now() }

func (c FrameClock) IsRunning() bool { return true }

func (c FrameClock) Activate(context.Context) error { return nil }
