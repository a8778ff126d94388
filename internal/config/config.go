// Package config reads runtime settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	BackendSynth     = "synth"
	BackendSoundFont = "soundfont"
	BackendMIDI      = "midi"
)

// Config holds the player configuration. Command-line flags override it.
type Config struct {
	Environment string

	// Audio
	SampleRate int
	Backend    string // synth, soundfont or midi
	SoundFont  string // .sf2 path for the soundfont backend
	MIDIPort   int
	Volume     float64

	// Playback defaults
	Instrument    string
	BPM           float64
	NoteLen       float64
	Style         string
	Accompaniment string

	// Observability
	LogLevel  string
	SentryDSN string
}

func Load() *Config {
	return &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		SampleRate:    getEnvInt("JIANPU_SAMPLE_RATE", 48000),
		Backend:       strings.ToLower(getEnv("JIANPU_BACKEND", BackendSynth)),
		SoundFont:     getEnv("JIANPU_SOUNDFONT", ""),
		MIDIPort:      getEnvInt("JIANPU_MIDI_PORT", 0),
		Volume:        getEnvFloat("JIANPU_VOLUME", 1),
		Instrument:    getEnv("JIANPU_INSTRUMENT", "piano"),
		BPM:           getEnvFloat("JIANPU_BPM", 90),
		NoteLen:       getEnvFloat("JIANPU_NOTE_LEN", 0.5),
		Style:         getEnv("JIANPU_STYLE", "straight"),
		Accompaniment: getEnv("JIANPU_ACCOMPANIMENT", "none"),
		LogLevel:      getEnv("JIANPU_LOG_LEVEL", "info"),
		SentryDSN:     getEnv("SENTRY_DSN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// IsProduction reports whether ENVIRONMENT is "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
