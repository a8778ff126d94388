// Package soundfont renders voices with a SoundFont through go-meltysynth.
// Every voice owns a synthesizer; the parsed SoundFont is shared.
package soundfont

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/cbegin/jianpu-go/internal/audio"
	"github.com/cbegin/jianpu-go/internal/voice"
	"github.com/sinshu/go-meltysynth/meltysynth"
)

const (
	channel          = 0
	msgControlChange = 0xB0
	msgProgramChange = 0xC0
	ccAllNotesOff    = 123
)

// synthesizer is the subset of meltysynth.Synthesizer a voice drives.
type synthesizer interface {
	ProcessMidiMessage(channel, command, data1, data2 int32)
	NoteOn(channel, key, velocity int32)
	NoteOff(channel, key int32)
	Render(left, right []float32)
}

// Load parses a SoundFont (.sf2).
func Load(r io.Reader) (*meltysynth.SoundFont, error) {
	sf, err := meltysynth.NewSoundFont(r)
	if err != nil {
		return nil, fmt.Errorf("parse soundfont: %w", err)
	}
	return sf, nil
}

func LoadFile(path string) (*meltysynth.SoundFont, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

type noteEvent struct {
	frame    int64
	on       bool
	key      int32
	velocity int32
}

// Voice is one synthesizer playing one General MIDI program.
type Voice struct {
	mixer *audio.Mixer

	mu       sync.Mutex
	synth    synthesizer
	events   []noteEvent // ordered by frame
	left     []float32
	right    []float32
	disposed bool
}

func newVoice(mixer *audio.Mixer, s synthesizer, program int) *Voice {
	s.ProcessMidiMessage(channel, msgProgramChange, int32(program), 0)
	return &Voice{mixer: mixer, synth: s}
}

func (v *Voice) Trigger(t voice.Trigger) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return voice.ErrDisposed
	}
	key := int32(voice.ClampKey(t.Key))
	start := v.mixer.FrameAt(t.Start)
	end := v.mixer.FrameAt(t.Start + t.Duration)
	if end <= start {
		end = start + 1
	}
	v.insert(noteEvent{frame: start, on: true, key: key, velocity: int32(voice.MIDIVelocity(t.Velocity))})
	v.insert(noteEvent{frame: end, key: key})
	return nil
}

func (v *Voice) insert(ev noteEvent) {
	i := sort.Search(len(v.events), func(i int) bool { return v.events[i].frame > ev.frame })
	v.events = append(v.events, noteEvent{})
	copy(v.events[i+1:], v.events[i:])
	v.events[i] = ev
}

// Mix renders the block in runs split at event frames, so note starts land
// on their exact frame.
func (v *Voice) Mix(dst []float32, frame int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	frames := len(dst) / 2
	if cap(v.left) < frames {
		v.left = make([]float32, frames)
		v.right = make([]float32, frames)
	}
	pos := 0
	for pos < frames {
		for len(v.events) > 0 && v.events[0].frame <= frame+int64(pos) {
			v.fire(v.events[0])
			v.events = v.events[1:]
		}
		n := frames - pos
		if len(v.events) > 0 {
			if until := int(v.events[0].frame - frame - int64(pos)); until < n {
				n = until
			}
		}
		l, r := v.left[:n], v.right[:n]
		v.synth.Render(l, r)
		for i := 0; i < n; i++ {
			dst[2*(pos+i)] += l[i]
			dst[2*(pos+i)+1] += r[i]
		}
		pos += n
	}
}

func (v *Voice) fire(ev noteEvent) {
	if ev.on {
		v.synth.NoteOn(channel, ev.key, ev.velocity)
		return
	}
	v.synth.NoteOff(channel, ev.key)
}

func (v *Voice) Dispose() error {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return nil
	}
	v.disposed = true
	v.events = nil
	v.synth.ProcessMidiMessage(channel, msgControlChange, ccAllNotesOff, 0)
	v.mu.Unlock()
	v.mixer.Remove(v)
	return nil
}

// Resolver maps instruments to General MIDI programs of a shared SoundFont.
type Resolver struct {
	mixer    *audio.Mixer
	newSynth func() (synthesizer, error)
}

func NewResolver(mixer *audio.Mixer, sf *meltysynth.SoundFont) *Resolver {
	return &Resolver{
		mixer: mixer,
		newSynth: func() (synthesizer, error) {
			settings := meltysynth.NewSynthesizerSettings(int32(mixer.SampleRate()))
			s, err := meltysynth.NewSynthesizer(sf, settings)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

// Resolve plays unknown instruments with the piano program.
func (r *Resolver) Resolve(instrument string) (voice.Voice, error) {
	return r.attach(voice.InstrumentFor(instrument).Program)
}

func (r *Resolver) ResolveAccompaniment() (voice.Voice, error) {
	return r.attach(voice.AccompanimentProgram)
}

func (r *Resolver) attach(program int) (voice.Voice, error) {
	s, err := r.newSynth()
	if err != nil {
		return nil, fmt.Errorf("create synthesizer: %w", err)
	}
	v := newVoice(r.mixer, s, program)
	r.mixer.Add(v)
	return v, nil
}
