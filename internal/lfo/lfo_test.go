package lfo

import (
	"math"
	"testing"
)

func TestSineShape(t *testing.T) {
	l := New(15, 1, WaveSine)
	sr := 100.0
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = l.Sample(sr)
	}
	checks := map[int]float64{0: 0, 25: 15, 50: 0, 75: -15}
	for i, want := range checks {
		if math.Abs(samples[i]-want) > 1e-6 {
			t.Fatalf("sample %d = %v, want %v", i, samples[i], want)
		}
	}
}

func TestTriangleShape(t *testing.T) {
	l := New(1, 1, WaveTriangle)
	sr := 100.0
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = l.Sample(sr)
	}
	if math.Abs(samples[0]+1) > 0.05 || math.Abs(samples[25]) > 0.05 || math.Abs(samples[50]-1) > 0.05 {
		t.Fatalf("triangle = %v %v %v, want -1 0 1", samples[0], samples[25], samples[50])
	}
}

func TestSquareShape(t *testing.T) {
	l := New(2, 1, WaveSquare)
	if v := l.Sample(100); v != 2 {
		t.Fatalf("first half = %v, want 2", v)
	}
	for i := 1; i < 60; i++ {
		l.Sample(100)
	}
	if v := l.Sample(100); v != -2 {
		t.Fatalf("second half = %v, want -2", v)
	}
}

func TestInactive(t *testing.T) {
	var l LFO
	if l.Active() || l.Sample(48000) != 0 {
		t.Fatalf("zero LFO should be silent")
	}
	l.Set(1, 5, 42)
	if !l.Active() || l.waveform != WaveSine {
		t.Fatalf("bad waveform should fall back to sine")
	}
}

func TestReset(t *testing.T) {
	l := New(1, 1, WaveSine)
	for i := 0; i < 30; i++ {
		l.Sample(100)
	}
	l.Reset()
	if v := l.Sample(100); math.Abs(v) > 1e-9 {
		t.Fatalf("after reset = %v, want 0", v)
	}
}
