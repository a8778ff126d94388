// Package accomp derives accompaniment notes from the melody.
package accomp

import (
	"fmt"
	"strings"

	"github.com/cbegin/jianpu-go/internal/voice"
)

type Kind int

const (
	None Kind = iota
	Alberti
	Backbeat
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Alberti:
		return "alberti"
	case Backbeat:
		return "backbeat"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "off":
		return None, nil
	case "alberti", "a", "pattern-a":
		return Alberti, nil
	case "backbeat", "b", "pattern-b":
		return Backbeat, nil
	default:
		return None, fmt.Errorf("unknown accompaniment %q (expected none|alberti|backbeat)", name)
	}
}

// BassOffset places the bass two octaves under the melody.
const BassOffset = -24

// Triggers returns the accompaniment notes for one melody note starting at
// start and lasting dur seconds. Every returned start is >= start.
func Triggers(kind Kind, start, dur float64, melodyPitch int) []voice.Trigger {
	if kind == None {
		return nil
	}
	bass := melodyPitch + BassOffset
	switch kind {
	case Alberti:
		return []voice.Trigger{
			voice.NewTrigger(bass, start, dur*0.9, 0.5),
			voice.NewTrigger(bass+7, start+dur*0.4, dur*0.6, 0.35),
		}
	case Backbeat:
		return []voice.Trigger{
			voice.NewTrigger(bass+12, start+dur*0.5, dur*0.25, 0.25),
		}
	}
	return nil
}

// Accompany passes the accompaniment notes to emit in start order.
func Accompany(kind Kind, start, dur float64, melodyPitch int, emit func(voice.Trigger)) {
	for _, t := range Triggers(kind, start, dur, melodyPitch) {
		emit(t)
	}
}
