package voice

import (
	"sort"
	"strings"
)

// DefaultInstrument is used for empty or unknown instrument names.
const DefaultInstrument = "piano"

// Instrument maps a chat-facing instrument name to a General MIDI program.
type Instrument struct {
	Name    string
	Program int
}

var instruments = map[string]Instrument{
	"piano":   {"piano", 0},     // Acoustic Grand Piano
	"organ":   {"organ", 16},    // Drawbar Organ
	"guitar":  {"guitar", 24},   // Nylon Guitar
	"violin":  {"violin", 40},   // Violin
	"trumpet": {"trumpet", 56},  // Trumpet
	"flute":   {"flute", 73},    // Flute
	"bagpipe": {"bagpipe", 109}, // Bag pipe
}

// AccompanimentProgram is the General MIDI program for accompaniment voices
// (Electric Piano 1).
const AccompanimentProgram = 4

// LookupInstrument reports the instrument registered under name, ignoring
// case and surrounding space.
func LookupInstrument(name string) (Instrument, bool) {
	inst, ok := instruments[strings.ToLower(strings.TrimSpace(name))]
	return inst, ok
}

// InstrumentFor is LookupInstrument with the piano fallback.
func InstrumentFor(name string) Instrument {
	if inst, ok := LookupInstrument(name); ok {
		return inst
	}
	return instruments[DefaultInstrument]
}

// InstrumentNames lists the known instruments in alphabetical order.
func InstrumentNames() []string {
	names := make([]string, 0, len(instruments))
	for name := range instruments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
