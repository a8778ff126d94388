package synth

import (
	"strings"

	"github.com/cbegin/jianpu-go/internal/voice"
)

type Waveform int

const (
	Sine Waveform = iota
	Triangle
	Saw
	Square
	// Pluck is a Karplus-Strong string excited by a noise burst.
	Pluck
)

type FilterKind int

const (
	NoFilter FilterKind = iota
	LowPass
	HighPass
	BandPass
)

// Preset is the timbre of one instrument.
type Preset struct {
	Wave    Waveform
	Attack  float64 // seconds
	Decay   float64 // seconds
	Sustain float64 // level 0..1
	Release float64 // seconds

	Filter FilterKind
	Cutoff float64 // Hz

	VibratoHz    float64
	VibratoCents float64

	// Damping is the pluck loop gain per period, 0..1.
	Damping float64
	Gain    float64
}

var presets = map[string]Preset{
	"piano":   {Wave: Triangle, Attack: 0.005, Decay: 0.25, Sustain: 0.5, Release: 0.2, Gain: 0.5},
	"guitar":  {Wave: Pluck, Attack: 0.001, Decay: 1.2, Sustain: 0, Release: 0.3, Filter: LowPass, Cutoff: 2500, Damping: 0.996, Gain: 0.7},
	"violin":  {Wave: Saw, Attack: 0.15, Decay: 0.2, Sustain: 0.8, Release: 0.6, Filter: LowPass, Cutoff: 1800, VibratoHz: 5, VibratoCents: 15, Gain: 0.35},
	"bagpipe": {Wave: Square, Attack: 0.05, Sustain: 1, Release: 0.4, Filter: BandPass, Cutoff: 900, Gain: 0.45},
	"organ":   {Wave: Sine, Attack: 0.01, Sustain: 1, Release: 0.2, Gain: 0.45},
	"trumpet": {Wave: Saw, Attack: 0.02, Decay: 0.15, Sustain: 0.5, Release: 0.25, Filter: HighPass, Cutoff: 600, Gain: 0.35},
	"flute":   {Wave: Triangle, Attack: 0.06, Decay: 0.1, Sustain: 0.7, Release: 0.4, Filter: LowPass, Cutoff: 1200, Gain: 0.55},
}

// Accompaniment is the soft triangle used under every melody instrument.
var Accompaniment = Preset{Wave: Triangle, Attack: 0.005, Decay: 0.08, Sustain: 0.6, Release: 0.35, Gain: 0.4}

// PresetFor returns the preset for an instrument, falling back to piano.
func PresetFor(name string) Preset {
	if p, ok := presets[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return presets[voice.DefaultInstrument]
}
