package audio

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"
)

// Source is one voice feeding the mixer.
type Source interface {
	// Mix adds len(dst)/2 interleaved stereo frames into dst. frame is the
	// absolute index of the first frame, so sources can place events
	// sample-accurately.
	Mix(dst []float32, frame int64)
}

const (
	limiterThresholdDB = -1
	limiterAttackMs    = 1
	limiterReleaseMs   = 80
)

// Mixer sums its sources into a stereo stream and counts the frames it has
// produced. That count is the audio clock every voice schedules against.
type Mixer struct {
	sampleRate int

	// Tap, when set, sees every mixed buffer on the audio thread.
	Tap func([]float32)

	mu      sync.Mutex
	sources []Source

	renderMu sync.Mutex
	limiter  *Limiter

	frame atomic.Int64
	gain  atomic.Uint64
}

func NewMixer(sampleRate int) *Mixer {
	m := &Mixer{
		sampleRate: sampleRate,
		limiter:    NewLimiter(sampleRate, limiterThresholdDB, limiterAttackMs, limiterReleaseMs),
	}
	m.gain.Store(math.Float64bits(1))
	return m
}

func (m *Mixer) SampleRate() int { return m.sampleRate }

func (m *Mixer) Add(s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, s)
}

// Remove detaches s and reports whether it was attached.
func (m *Mixer) Remove(s Source) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.Index(m.sources, s)
	if i < 0 {
		return false
	}
	m.sources = slices.Delete(m.sources, i, i+1)
	return true
}

func (m *Mixer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

// Process renders the next len(dst)/2 frames.
func (m *Mixer) Process(dst []float32) {
	m.renderMu.Lock()
	defer m.renderMu.Unlock()

	m.mu.Lock()
	sources := slices.Clone(m.sources)
	m.mu.Unlock()

	clear(dst)
	start := m.frame.Load()
	for _, s := range sources {
		s.Mix(dst, start)
	}
	g := float32(m.Gain())
	for i := 0; i+1 < len(dst); i += 2 {
		dst[i], dst[i+1] = m.limiter.Process(dst[i]*g, dst[i+1]*g)
	}
	if m.Tap != nil {
		m.Tap(dst)
	}
	m.frame.Add(int64(len(dst) / 2))
}

// Frame is the number of frames rendered so far.
func (m *Mixer) Frame() int64 { return m.frame.Load() }

// Now is Frame in seconds.
func (m *Mixer) Now() float64 {
	return float64(m.frame.Load()) / float64(m.sampleRate)
}

// FrameAt converts a clock time to a frame index.
func (m *Mixer) FrameAt(sec float64) int64 {
	return int64(math.Round(sec * float64(m.sampleRate)))
}

func (m *Mixer) SetGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	m.gain.Store(math.Float64bits(gain))
}

func (m *Mixer) Gain() float64 {
	return math.Float64frombits(m.gain.Load())
}
