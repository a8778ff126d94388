package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"ENVIRONMENT", "JIANPU_SAMPLE_RATE", "JIANPU_BACKEND", "JIANPU_SOUNDFONT", "JIANPU_MIDI_PORT",
		"JIANPU_VOLUME", "JIANPU_INSTRUMENT", "JIANPU_BPM", "JIANPU_NOTE_LEN", "JIANPU_STYLE",
		"JIANPU_ACCOMPANIMENT", "JIANPU_LOG_LEVEL", "SENTRY_DSN",
	} {
		t.Setenv(key, "")
	}
	cfg := Load()
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, BackendSynth, cfg.Backend)
	assert.Equal(t, 0, cfg.MIDIPort)
	assert.Equal(t, 1.0, cfg.Volume)
	assert.Equal(t, "piano", cfg.Instrument)
	assert.Equal(t, 90.0, cfg.BPM)
	assert.Equal(t, 0.5, cfg.NoteLen)
	assert.Equal(t, "straight", cfg.Style)
	assert.Equal(t, "none", cfg.Accompaniment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.SentryDSN)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JIANPU_SAMPLE_RATE", "44100")
	t.Setenv("JIANPU_BACKEND", "SoundFont")
	t.Setenv("JIANPU_SOUNDFONT", "/tmp/gm.sf2")
	t.Setenv("JIANPU_MIDI_PORT", "2")
	t.Setenv("JIANPU_BPM", "120")
	t.Setenv("JIANPU_NOTE_LEN", "0.25")
	t.Setenv("JIANPU_STYLE", "swing")
	t.Setenv("JIANPU_ACCOMPANIMENT", "alberti")

	cfg := Load()
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, BackendSoundFont, cfg.Backend)
	assert.Equal(t, "/tmp/gm.sf2", cfg.SoundFont)
	assert.Equal(t, 2, cfg.MIDIPort)
	assert.Equal(t, 120.0, cfg.BPM)
	assert.Equal(t, 0.25, cfg.NoteLen)
	assert.Equal(t, "swing", cfg.Style)
	assert.Equal(t, "alberti", cfg.Accompaniment)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("JIANPU_SAMPLE_RATE", "fast")
	t.Setenv("JIANPU_BPM", "quick")
	cfg := Load()
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, 90.0, cfg.BPM)
}
