// Package lfo provides the low-frequency oscillator synth voices use for
// vibrato.
package lfo

import "math"

const (
	WaveSine = iota
	WaveTriangle
	WaveSquare
)

// LFO produces per-sample modulation in [-depth, +depth].
type LFO struct {
	depth    float64
	rateHz   float64
	waveform int
	phase    float64 // [0, 1)
}

func New(depth, rateHz float64, waveform int) LFO {
	var l LFO
	l.Set(depth, rateHz, waveform)
	return l
}

func (l *LFO) Set(depth, rateHz float64, waveform int) {
	l.depth = depth
	l.rateHz = rateHz
	if waveform < WaveSine || waveform > WaveSquare {
		waveform = WaveSine
	}
	l.waveform = waveform
}

// Sample advances the LFO by one sample. It returns 0 while inactive.
func (l *LFO) Sample(sampleRate float64) float64 {
	if !l.Active() || sampleRate <= 0 {
		return 0
	}
	var v float64
	switch l.waveform {
	case WaveTriangle:
		if l.phase < 0.5 {
			v = 4*l.phase - 1
		} else {
			v = 3 - 4*l.phase
		}
	case WaveSquare:
		v = 1
		if l.phase >= 0.5 {
			v = -1
		}
	default:
		v = math.Sin(2 * math.Pi * l.phase)
	}
	l.phase += l.rateHz / sampleRate
	for l.phase >= 1 {
		l.phase--
	}
	return v * l.depth
}

func (l *LFO) Active() bool {
	return l.depth != 0 && l.rateHz != 0
}

func (l *LFO) Reset() { l.phase = 0 }
