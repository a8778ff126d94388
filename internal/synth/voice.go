// Package synth is the built-in voice backend: a polyphonic oscillator engine
// per voice, mixed into an audio.Mixer and scheduled sample-accurately on the
// mixer's frame clock.
package synth

import (
	"sort"
	"sync"

	"github.com/cbegin/jianpu-go/internal/audio"
	"github.com/cbegin/jianpu-go/internal/voice"
)

type noteEvent struct {
	frame    int64
	on       bool
	seq      int
	key      int
	velocity float64
}

// Voice plays triggers through its own Engine. It implements both
// voice.Voice and audio.Source.
type Voice struct {
	mixer *audio.Mixer

	mu       sync.Mutex
	engine   *Engine
	events   []noteEvent // ordered by frame
	notes    map[int]int // trigger seq -> engine note id
	seq      int
	disposed bool
}

func NewVoice(mixer *audio.Mixer, p Preset, polyphony int) *Voice {
	return &Voice{
		mixer:  mixer,
		engine: NewEngine(mixer.SampleRate(), p, polyphony),
		notes:  make(map[int]int),
	}
}

func (v *Voice) Trigger(t voice.Trigger) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return voice.ErrDisposed
	}
	start := v.mixer.FrameAt(t.Start)
	end := v.mixer.FrameAt(t.Start + t.Duration)
	if end <= start {
		end = start + 1
	}
	seq := v.seq
	v.seq++
	v.insert(noteEvent{frame: start, on: true, seq: seq, key: int(voice.ClampKey(t.Key)), velocity: t.Velocity})
	v.insert(noteEvent{frame: end, seq: seq})
	return nil
}

// insert keeps events ordered by frame, after any event at the same frame.
func (v *Voice) insert(ev noteEvent) {
	i := sort.Search(len(v.events), func(i int) bool { return v.events[i].frame > ev.frame })
	v.events = append(v.events, noteEvent{})
	copy(v.events[i+1:], v.events[i:])
	v.events[i] = ev
}

// Mix renders into dst. Events whose frame has already passed fire at the
// start of the block.
func (v *Voice) Mix(dst []float32, frame int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed || (len(v.events) == 0 && v.engine.ActiveNotes() == 0) {
		return
	}
	frames := len(dst) / 2
	for i := 0; i < frames; i++ {
		f := frame + int64(i)
		for len(v.events) > 0 && v.events[0].frame <= f {
			v.fire(v.events[0])
			v.events = v.events[1:]
		}
		s := float32(v.engine.Next())
		dst[2*i] += s
		dst[2*i+1] += s
	}
}

func (v *Voice) fire(ev noteEvent) {
	if ev.on {
		v.notes[ev.seq] = v.engine.NoteOn(ev.key, ev.velocity)
		return
	}
	if id, ok := v.notes[ev.seq]; ok {
		v.engine.NoteOff(id)
		delete(v.notes, ev.seq)
	}
}

// Pending is the number of note events not yet reached by the clock.
func (v *Voice) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.events)
}

// Dispose drops pending notes and detaches the voice from the mixer.
func (v *Voice) Dispose() error {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return nil
	}
	v.disposed = true
	v.events = nil
	v.engine.AllNotesOff()
	v.mu.Unlock()
	v.mixer.Remove(v)
	return nil
}

// Resolver hands out synth voices attached to one mixer.
type Resolver struct {
	mixer     *audio.Mixer
	Polyphony int
}

func NewResolver(mixer *audio.Mixer) *Resolver {
	return &Resolver{mixer: mixer, Polyphony: DefaultPolyphony}
}

// Resolve returns a voice with the instrument's preset. Unknown names play
// as piano.
func (r *Resolver) Resolve(instrument string) (voice.Voice, error) {
	return r.attach(PresetFor(instrument)), nil
}

func (r *Resolver) ResolveAccompaniment() (voice.Voice, error) {
	return r.attach(Accompaniment), nil
}

func (r *Resolver) attach(p Preset) *Voice {
	v := NewVoice(r.mixer, p, r.Polyphony)
	r.mixer.Add(v)
	return v
}
