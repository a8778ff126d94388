package synth

import (
	"math"
	"math/rand"

	"github.com/cbegin/jianpu-go/internal/lfo"
)

const (
	twoPi            = math.Pi * 2
	DefaultPolyphony = 8
)

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type slot struct {
	active      bool
	id          int
	age         int
	freq        float64
	phase       float64
	velocity    float64
	env         float64
	envState    envState
	releaseStep float64
	// Karplus-Strong delay line, only for Pluck.
	ring []float64
	pos  int
}

// Engine is a small polyphonic oscillator bank rendering one preset in mono.
// It is not safe for concurrent use.
type Engine struct {
	sampleRate float64
	preset     Preset
	slots      []slot
	nextID     int
	vibrato    lfo.LFO
	rng        *rand.Rand

	filterAlpha float64
	lp, bp      float64
	dcPrevIn    float64
	dcPrevOut   float64
}

func NewEngine(sampleRate int, p Preset, polyphony int) *Engine {
	if polyphony <= 0 {
		polyphony = DefaultPolyphony
	}
	if p.Gain <= 0 {
		p.Gain = 0.5
	}
	e := &Engine{
		sampleRate: float64(sampleRate),
		preset:     p,
		slots:      make([]slot, polyphony),
		vibrato:    lfo.New(p.VibratoCents, p.VibratoHz, lfo.WaveSine),
		rng:        rand.New(rand.NewSource(int64(sampleRate))),
	}
	if p.Filter != NoFilter && p.Cutoff > 0 && p.Cutoff < e.sampleRate/2 {
		rc := 1.0 / (twoPi * p.Cutoff)
		dt := 1.0 / e.sampleRate
		e.filterAlpha = dt / (rc + dt)
	}
	return e
}

// NoteOn starts key at velocity (0..1) and returns a handle for NoteOff.
func (e *Engine) NoteOn(key int, velocity float64) int {
	i := e.stealSlot()
	id := e.nextID
	e.nextID++
	s := &e.slots[i]
	*s = slot{
		active:   true,
		id:       id,
		freq:     midiToFreq(key),
		velocity: clamp(velocity, 0, 1),
		envState: envAttack,
		ring:     s.ring[:0],
	}
	if e.preset.Wave == Pluck {
		e.excite(s)
	}
	return id
}

func (e *Engine) NoteOff(id int) {
	for i := range e.slots {
		s := &e.slots[i]
		if s.active && s.id == id && s.envState != envRelease {
			e.release(s)
		}
	}
}

// AllNotesOff moves every sounding note into its release stage.
func (e *Engine) AllNotesOff() {
	for i := range e.slots {
		if s := &e.slots[i]; s.active && s.envState != envRelease {
			e.release(s)
		}
	}
}

func (e *Engine) ActiveNotes() int {
	n := 0
	for i := range e.slots {
		if e.slots[i].active {
			n++
		}
	}
	return n
}

// Next renders one mono sample.
func (e *Engine) Next() float64 {
	mul := 1.0
	if cents := e.vibrato.Sample(e.sampleRate); cents != 0 {
		mul = math.Pow(2, cents/1200)
	}
	var out float64
	for i := range e.slots {
		s := &e.slots[i]
		if !s.active {
			continue
		}
		s.age++
		env := e.advanceEnv(s)
		if !s.active {
			continue
		}
		out += e.oscillate(s, mul) * env * s.velocity
	}
	out = e.filter(e.dcBlock(out))
	return clamp(out*e.preset.Gain, -1, 1)
}

func (e *Engine) filter(x float64) float64 {
	if e.filterAlpha == 0 {
		return x
	}
	e.lp += e.filterAlpha * (x - e.lp)
	switch e.preset.Filter {
	case HighPass:
		return x - e.lp
	case BandPass:
		e.bp += e.filterAlpha * (e.lp - e.bp)
		return e.lp - e.bp
	default:
		return e.lp
	}
}

func (e *Engine) dcBlock(x float64) float64 {
	const r = 0.995
	y := x - e.dcPrevIn + r*e.dcPrevOut
	e.dcPrevIn = x
	e.dcPrevOut = y
	return y
}

// polyBLEP reduces aliasing at waveform discontinuities.
// t is the phase position [0,1), dt is the phase increment per sample.
func polyBLEP(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func (e *Engine) oscillate(s *slot, freqMul float64) float64 {
	if e.preset.Wave == Pluck {
		return e.pluck(s)
	}
	dt := s.freq * freqMul / e.sampleRate
	s.phase += dt
	if s.phase >= 1 {
		s.phase -= 1
	}
	switch e.preset.Wave {
	case Triangle:
		return 2*math.Abs(2*s.phase-1) - 1
	case Saw:
		return 2*s.phase - 1 - polyBLEP(s.phase, dt)
	case Square:
		out := -1.0
		if s.phase < 0.5 {
			out = 1
		}
		out += polyBLEP(s.phase, dt)
		out -= polyBLEP(math.Mod(s.phase+0.5, 1), dt)
		return out
	default:
		return math.Sin(twoPi * s.phase)
	}
}

func (e *Engine) excite(s *slot) {
	n := int(math.Round(e.sampleRate / s.freq))
	if n < 2 {
		n = 2
	}
	if cap(s.ring) < n {
		s.ring = make([]float64, n)
	}
	s.ring = s.ring[:n]
	for i := range s.ring {
		s.ring[i] = e.rng.Float64()*2 - 1
	}
	s.pos = 0
}

func (e *Engine) pluck(s *slot) float64 {
	n := len(s.ring)
	if n == 0 {
		return 0
	}
	next := (s.pos + 1) % n
	out := s.ring[s.pos]
	s.ring[s.pos] = e.preset.Damping * 0.5 * (out + s.ring[next])
	s.pos = next
	return out
}

func (e *Engine) release(s *slot) {
	s.envState = envRelease
	steps := e.preset.Release * e.sampleRate
	if steps < 1 {
		steps = 1
	}
	s.releaseStep = s.env / steps
}

func (e *Engine) stealSlot() int {
	for i := range e.slots {
		if !e.slots[i].active {
			return i
		}
	}
	// Steal the oldest releasing slot, or failing that the oldest one.
	oldestRelease, oldestReleaseAge := -1, -1
	oldest, oldestAge := 0, -1
	for i := range e.slots {
		s := &e.slots[i]
		if s.envState == envRelease && s.age > oldestReleaseAge {
			oldestRelease, oldestReleaseAge = i, s.age
		}
		if s.age > oldestAge {
			oldest, oldestAge = i, s.age
		}
	}
	if oldestRelease >= 0 {
		return oldestRelease
	}
	return oldest
}

func (e *Engine) advanceEnv(s *slot) float64 {
	p := e.preset
	switch s.envState {
	case envAttack:
		if p.Attack <= 0 {
			s.env = 1
		} else {
			s.env += 1 / (p.Attack * e.sampleRate)
		}
		if s.env >= 1 {
			s.env = 1
			s.envState = envDecay
		}
	case envDecay:
		if p.Decay <= 0 {
			s.env = p.Sustain
		} else {
			s.env -= (1 - p.Sustain) / (p.Decay * e.sampleRate)
		}
		if s.env <= p.Sustain {
			s.env = p.Sustain
			s.envState = envSustain
		}
	case envSustain:
		if s.env <= 0 {
			s.envState = envOff
			s.active = false
		}
	case envRelease:
		s.env -= s.releaseStep
		if s.env <= 0.0001 {
			s.env = 0
			s.envState = envOff
			s.active = false
		}
	case envOff:
		s.active = false
		s.env = 0
	}
	return s.env
}

func midiToFreq(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
