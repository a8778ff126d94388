package jianpu

import (
	"encoding/binary"
	"math"
	"testing"
)

func energy(samples []float32) float64 {
	var e float64
	for _, s := range samples {
		e += float64(s) * float64(s)
	}
	return e
}

func TestRenderRequestCoversPhraseAndTail(t *testing.T) {
	const sr = 8000
	samples, err := RenderRequest(Request{Phrase: "1 2 3", BPM: 60, NoteBeats: 1}, sr)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	// lead-in 0.05s + three 1s notes + 0.15s margin
	wantFrames := int(math.Ceil(3.2 * sr))
	if got := len(samples) / 2; got < wantFrames-1 || got > wantFrames+1 {
		t.Fatalf("frames = %d, want about %d", got, wantFrames)
	}
	if e := energy(samples); e < 1 {
		t.Fatalf("energy = %v, want audible output", e)
	}
	for i, s := range samples {
		if s > 1 || s < -1 || math.IsNaN(float64(s)) {
			t.Fatalf("sample %d out of range: %v", i, s)
		}
	}
}

func TestRenderRequestLeadInIsSilent(t *testing.T) {
	const sr = 8000
	samples, err := RenderRequest(Request{Phrase: "5", Instrument: "organ"}, sr)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	leadIn := int(0.05*sr) - 1
	if e := energy(samples[:leadIn*2]); e != 0 {
		t.Fatalf("sound during lead-in: energy %v", e)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	req := Request{Phrase: "1 3 5 1'", Instrument: "guitar", Style: Swing, Accompaniment: Alberti}
	a, err := RenderRequest(req, 8000)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	b, _ := RenderRequest(req, 8000)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestRenderUnparseablePhraseIsSilent(t *testing.T) {
	samples, err := RenderPhrase("x ! 0", 8000)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if e := energy(samples); e != 0 {
		t.Fatalf("energy = %v, want silence", e)
	}
}

func TestRenderRejectsBadSampleRate(t *testing.T) {
	if _, err := RenderPhrase("1", 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEncodeWAVFloat32LE(t *testing.T) {
	samples := []float32{0.5, -0.5, 0.25, -0.25}
	wav := EncodeWAVFloat32LE(samples, 48000, 2)
	if len(wav) != 44+16 {
		t.Fatalf("len = %d, want 60", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[12:16]) != "fmt " || string(wav[36:40]) != "data" {
		t.Fatalf("bad chunk ids: %q", wav[:40])
	}
	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"chunk size", binary.LittleEndian.Uint32(wav[4:]), 36 + 16},
		{"format", uint32(binary.LittleEndian.Uint16(wav[20:])), 3},
		{"channels", uint32(binary.LittleEndian.Uint16(wav[22:])), 2},
		{"sample rate", binary.LittleEndian.Uint32(wav[24:]), 48000},
		{"byte rate", binary.LittleEndian.Uint32(wav[28:]), 48000 * 8},
		{"block align", uint32(binary.LittleEndian.Uint16(wav[32:])), 8},
		{"bits", uint32(binary.LittleEndian.Uint16(wav[34:])), 32},
		{"data size", binary.LittleEndian.Uint32(wav[40:]), 16},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(wav[44+4:])); got != -0.5 {
		t.Fatalf("second sample = %v, want -0.5", got)
	}
}
