// Package rhythm derives per-note duration and velocity from a playing style.
package rhythm

import (
	"fmt"
	"strings"
)

type Style int

const (
	Straight Style = iota
	Accented
	Swing
)

func (s Style) String() string {
	switch s {
	case Straight:
		return "straight"
	case Accented:
		return "accented"
	case Swing:
		return "swing"
	default:
		return fmt.Sprintf("Style(%d)", int(s))
	}
}

// ParseStyle accepts the style names used in chat controls.
func ParseStyle(name string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "straight":
		return Straight, nil
	case "accented", "accent":
		return Accented, nil
	case "swing":
		return Swing, nil
	default:
		return Straight, fmt.Errorf("unknown style %q (expected straight|accented|swing)", name)
	}
}

const (
	BaseVelocity      = 0.9
	SwingShortVel     = 0.85
	SwingLongVel      = 0.95
	MinVelocity       = 0.05
	MaxVelocity       = 1.0
	DefaultStrongMul  = 1.15
	DefaultWeakMul    = 0.85
	DefaultSwingShort = 0.7
	DefaultSwingLong  = 1.3
)

// Tuning holds the style multipliers. Zero fields take the defaults.
// SwingShort and SwingLong are applied as given and never rescaled to
// conserve the pair's total.
type Tuning struct {
	StrongMul  float64
	WeakMul    float64
	SwingShort float64
	SwingLong  float64
}

func DefaultTuning() Tuning {
	return Tuning{
		StrongMul:  DefaultStrongMul,
		WeakMul:    DefaultWeakMul,
		SwingShort: DefaultSwingShort,
		SwingLong:  DefaultSwingLong,
	}
}

func (t Tuning) withDefaults() Tuning {
	d := DefaultTuning()
	if t.StrongMul <= 0 {
		t.StrongMul = d.StrongMul
	}
	if t.WeakMul <= 0 {
		t.WeakMul = d.WeakMul
	}
	if t.SwingShort <= 0 {
		t.SwingShort = d.SwingShort
	}
	if t.SwingLong <= 0 {
		t.SwingLong = d.SwingLong
	}
	return t
}

// NotePlan is the duration in beats and the velocity in [0.05, 1] of one note.
type NotePlan struct {
	Beats    float64
	Velocity float64
}

// Plan computes the note plan for the token at noteIndex, counting every
// token of the phrase including skipped ones.
func Plan(style Style, noteIndex int, baseBeats float64, tuning Tuning) NotePlan {
	tuning = tuning.withDefaults()
	switch style {
	case Accented:
		vel := BaseVelocity * tuning.WeakMul
		if beat := noteIndex % 4; beat == 0 || beat == 2 {
			vel = BaseVelocity * tuning.StrongMul
		}
		return NotePlan{Beats: baseBeats, Velocity: clampVelocity(vel)}
	case Swing:
		if noteIndex%2 == 0 {
			return NotePlan{Beats: baseBeats * tuning.SwingShort, Velocity: clampVelocity(SwingShortVel)}
		}
		return NotePlan{Beats: baseBeats * tuning.SwingLong, Velocity: clampVelocity(SwingLongVel)}
	default:
		return NotePlan{Beats: baseBeats, Velocity: BaseVelocity}
	}
}

func clampVelocity(v float64) float64 {
	if v < MinVelocity {
		return MinVelocity
	}
	if v > MaxVelocity {
		return MaxVelocity
	}
	return v
}
