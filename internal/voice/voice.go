// Package voice defines the boundary between the scheduler and the sound
// backends that render triggered notes.
package voice

import (
	"errors"
	"math"
	"strconv"

	"gitlab.com/gomidi/midi/v2"
)

var ErrDisposed = errors.New("voice already disposed")

// Trigger is one scheduled note.
type Trigger struct {
	Key      int     // MIDI key number
	Note     string  // scientific note name of Key, empty when out of MIDI range
	Start    float64 // absolute clock time in seconds
	Duration float64 // seconds
	Velocity float64 // 0..1
}

// NewTrigger builds a trigger for pitch, filling in its note name.
func NewTrigger(pitch int, start, duration, velocity float64) Trigger {
	return Trigger{
		Key:      pitch,
		Note:     NoteName(pitch),
		Start:    start,
		Duration: duration,
		Velocity: velocity,
	}
}

// Voice renders triggered notes. A voice is owned by one playback and
// disposed exactly once.
type Voice interface {
	Trigger(t Trigger) error
	Dispose() error
}

// Resolver hands out fresh voices. Each call returns a voice the caller owns.
type Resolver interface {
	Resolve(instrument string) (Voice, error)
	ResolveAccompaniment() (Voice, error)
}

// NoteName returns the scientific note name of a MIDI key: "C4" for 60,
// "A4" for 69, "C-1" for 0. Black keys use gomidi's flat spelling.
func NoteName(key int) string {
	if key < 0 || key > 127 {
		return ""
	}
	return midi.Note(uint8(key)).Name() + strconv.Itoa(key/12-1)
}

// ClampKey folds a pitch into the MIDI key range by whole octaves.
func ClampKey(key int) uint8 {
	for key < 0 {
		key += 12
	}
	for key > 127 {
		key -= 12
	}
	return uint8(key)
}

// MIDIVelocity converts a 0..1 velocity to 1..127.
func MIDIVelocity(v float64) uint8 {
	n := int(math.Round(v * 127))
	if n < 1 {
		n = 1
	}
	if n > 127 {
		n = 127
	}
	return uint8(n)
}
