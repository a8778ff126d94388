// Package jianpu plays numbered-notation phrases. A phrase such as
// "1 2 3 5, 6'" is compiled into timed note triggers and scheduled against an
// audio clock, rendered by a built-in synth, a SoundFont or an external MIDI
// device.
package jianpu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	intaccomp "github.com/cbegin/jianpu-go/internal/accomp"
	intaudio "github.com/cbegin/jianpu-go/internal/audio"
	intchat "github.com/cbegin/jianpu-go/internal/chat"
	intconfig "github.com/cbegin/jianpu-go/internal/config"
	intmidi "github.com/cbegin/jianpu-go/internal/midiout"
	intrhythm "github.com/cbegin/jianpu-go/internal/rhythm"
	intsched "github.com/cbegin/jianpu-go/internal/scheduler"
	intsf "github.com/cbegin/jianpu-go/internal/soundfont"
	intsynth "github.com/cbegin/jianpu-go/internal/synth"
	intvoice "github.com/cbegin/jianpu-go/internal/voice"
	"github.com/charmbracelet/log"
	"github.com/sinshu/go-meltysynth/meltysynth"
	"gitlab.com/gomidi/midi/v2"
)

type (
	Request       = intsched.Request
	Playback      = intsched.Playback
	Style         = intrhythm.Style
	Tuning        = intrhythm.Tuning
	Accompaniment = intaccomp.Kind
	Message       = intchat.Message
	Session       = intchat.Session
)

const (
	Straight = intrhythm.Straight
	Accented = intrhythm.Accented
	Swing    = intrhythm.Swing

	NoAccompaniment = intaccomp.None
	Alberti         = intaccomp.Alberti
	Backbeat        = intaccomp.Backbeat
)

var (
	ErrClockInactive     = intsched.ErrClockInactive
	ErrUnknownInstrument = intchat.ErrUnknownInstrument
	ErrBadPayload        = intchat.ErrBadPayload
)

func ParseStyle(name string) (Style, error)                 { return intrhythm.ParseStyle(name) }
func ParseAccompaniment(name string) (Accompaniment, error) { return intaccomp.ParseKind(name) }
func NewSession(self string) *Session                       { return intchat.NewSession(self) }
func Instruments() []string                                 { return intvoice.InstrumentNames() }

// PlaybackEvent carries scheduler events from Watch().
type PlaybackEvent struct {
	Kind       int // EventTriggered, EventSkipped, EventTriggerFailed, EventDraining or EventDisposed
	PlaybackID string
	Index      int    // token index, -1 for playback-level events
	Token      string // source token
	// Accompaniment is set for triggers on the accompaniment voice.
	Accompaniment bool
	Key           int
	Note          string
	Start         float64
	Duration      float64
	Velocity      float64
	Err           error
}

const (
	EventTriggered     = int(intsched.EventTriggered)
	EventSkipped       = int(intsched.EventSkipped)
	EventTriggerFailed = int(intsched.EventTriggerFailed)
	EventDraining      = int(intsched.EventDraining)
	EventDisposed      = int(intsched.EventDisposed)
)

type Backend string

const (
	BackendSynth     Backend = intconfig.BackendSynth
	BackendSoundFont Backend = intconfig.BackendSoundFont
	BackendMIDI      Backend = intconfig.BackendMIDI
)

// ParseBackend accepts synth, soundfont (or sf2) and midi.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", intconfig.BackendSynth:
		return BackendSynth, nil
	case intconfig.BackendSoundFont, "sf2":
		return BackendSoundFont, nil
	case intconfig.BackendMIDI:
		return BackendMIDI, nil
	default:
		return "", fmt.Errorf("invalid backend %q (expected synth|soundfont|midi)", name)
	}
}

type PlayerOption func(*playerConfig)

type playerConfig struct {
	backend       Backend
	soundFontPath string
	soundFont     *meltysynth.SoundFont
	midiSend      func(midi.Message) error
	leadIn        time.Duration
	defaults      Request
	sampleTap     func([]float32)

	// test seams
	clock     intsched.Clock
	resolver  intvoice.Resolver
	afterFunc func(time.Duration, func()) intsched.Timer
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{backend: BackendSynth}
}

func WithBackend(b Backend) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.backend = b
	}
}

// WithSoundFont selects the soundfont backend with the .sf2 file at path.
func WithSoundFont(path string) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.backend = BackendSoundFont
		cfg.soundFontPath = path
	}
}

// WithSoundFontData is WithSoundFont for an already parsed SoundFont.
func WithSoundFontData(sf *meltysynth.SoundFont) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.backend = BackendSoundFont
		cfg.soundFont = sf
	}
}

// WithMIDISender selects the MIDI backend, sending through send
// (typically the result of midi.SendTo).
func WithMIDISender(send func(midi.Message) error) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.backend = BackendMIDI
		cfg.midiSend = send
	}
}

// WithLeadIn sets the delay between scheduling and the first note.
func WithLeadIn(d time.Duration) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.leadIn = d
	}
}

// WithDefaults sets the tempo, note length, instrument, style and
// accompaniment PlayPhrase uses.
func WithDefaults(req Request) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.defaults = req
	}
}

// WithSampleTap installs a callback invoked with each mixed stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

type Player struct {
	mu         sync.Mutex
	sampleRate int
	backend    Backend
	mixer      *intaudio.Mixer
	device     *intaudio.Device
	clock      intsched.Clock
	sched      *intsched.Scheduler
	defaults   Request
	volume     float64
	live       map[string]*Playback
	inflight   sync.WaitGroup
	eventCh    chan PlaybackEvent
	eventChMu  sync.Mutex
}

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	p := &Player{
		sampleRate: sampleRate,
		backend:    cfg.backend,
		mixer:      intaudio.NewMixer(sampleRate),
		defaults:   cfg.defaults,
		volume:     1,
		live:       make(map[string]*Playback),
	}
	p.mixer.Tap = cfg.sampleTap

	resolver, err := p.buildBackend(&cfg)
	if err != nil {
		return nil, err
	}
	if cfg.clock != nil {
		p.clock = cfg.clock
	}
	if cfg.resolver != nil {
		resolver = cfg.resolver
	}
	p.sched = intsched.New(p.clock, resolver, intsched.Options{
		LeadIn:    cfg.leadIn,
		AfterFunc: cfg.afterFunc,
		OnEvent:   p.forward,
	})
	return p, nil
}

func (p *Player) buildBackend(cfg *playerConfig) (intvoice.Resolver, error) {
	switch cfg.backend {
	case BackendSynth:
		p.device = intaudio.NewDevice(p.mixer)
		p.clock = p.device
		return intsynth.NewResolver(p.mixer), nil
	case BackendSoundFont:
		sf := cfg.soundFont
		if sf == nil {
			if cfg.soundFontPath == "" {
				return nil, errors.New("soundfont backend needs a .sf2 file")
			}
			var err error
			if sf, err = intsf.LoadFile(cfg.soundFontPath); err != nil {
				return nil, err
			}
		}
		p.device = intaudio.NewDevice(p.mixer)
		p.clock = p.device
		return intsf.NewResolver(p.mixer, sf), nil
	case BackendMIDI:
		if cfg.midiSend == nil && cfg.resolver == nil {
			return nil, errors.New("midi backend needs a sender")
		}
		clock := intaudio.NewWallClock()
		p.clock = clock
		return intmidi.NewResolver(cfg.midiSend, clock), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.backend)
	}
}

func (p *Player) Backend() Backend { return p.backend }

// Play schedules req and returns once every note has been handed to the
// voices. The returned playback's Done channel closes after its voices are
// released. ctx bounds only the audio clock activation.
func (p *Player) Play(ctx context.Context, req Request) (*Playback, error) {
	pb, err := p.sched.Play(ctx, req)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.live[pb.ID] = pb
	p.mu.Unlock()
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		<-pb.Done()
		p.mu.Lock()
		delete(p.live, pb.ID)
		p.mu.Unlock()
	}()
	return pb, nil
}

// PlayPhrase plays phrase with the player's defaults.
func (p *Player) PlayPhrase(ctx context.Context, phrase string) (*Playback, error) {
	req := p.defaults
	req.Phrase = phrase
	return p.Play(ctx, req)
}

// HandleMessage plays what msg asks for. Until the session is unlocked the
// request is queued instead; it is also queued when the audio clock cannot
// start, so the next Unlock retries it. A nil playback with a nil error means
// nothing played yet.
func (p *Player) HandleMessage(ctx context.Context, s *Session, msg Message) (*Playback, error) {
	logger := log.FromContext(ctx).With("message", msg.ID, "channel", msg.Channel)
	req, ok, err := s.Observe(msg)
	if err != nil {
		logger.Warn("message rejected", "err", err)
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if !s.Unlocked() {
		logger.Info("queued until unlock", "instrument", req.Instrument)
		s.Queue(req)
		return nil, nil
	}
	pb, err := p.Play(ctx, req)
	if errors.Is(err, ErrClockInactive) {
		s.Queue(req)
	}
	return pb, err
}

// Unlock starts the audio clock on behalf of a user gesture, marks the session
// unlocked and plays the queued request, if any.
func (p *Player) Unlock(ctx context.Context, s *Session) (*Playback, error) {
	if !p.clock.IsRunning() {
		if err := p.clock.Activate(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrClockInactive, err)
		}
	}
	s.MarkUnlocked()
	req, ok := s.TakeQueued()
	if !ok {
		return nil, nil
	}
	log.FromContext(ctx).Debug("playing queued request", "instrument", req.Instrument)
	pb, err := p.Play(ctx, req)
	if errors.Is(err, ErrClockInactive) {
		s.Queue(req)
	}
	return pb, err
}

func (p *Player) forward(ev intsched.Event) {
	p.sendEvent(PlaybackEvent{
		Kind:          int(ev.Kind),
		PlaybackID:    ev.PlaybackID,
		Index:         ev.Index,
		Token:         ev.Token,
		Accompaniment: ev.Role == intsched.RoleAccompaniment,
		Key:           ev.Trigger.Key,
		Note:          ev.Trigger.Note,
		Start:         ev.Trigger.Start,
		Duration:      ev.Trigger.Duration,
		Velocity:      ev.Trigger.Velocity,
		Err:           ev.Err,
	})
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// slow watcher
		}
	}
}

// Watch returns a channel that receives playback events: one per trigger or
// skipped token while scheduling, then EventDraining, and EventDisposed once
// the voices are released.
//
// The channel is buffered (cap 64); events are dropped while it is full.
// Only the most recent Watch() channel receives events; call Watch before Play.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 64)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

// Wait blocks until every playback started so far has released its voices.
func (p *Player) Wait() {
	p.inflight.Wait()
}

// SetMasterVolume scales the mixed output of the synth and soundfont
// backends; negative values mute. The MIDI backend ignores it, the device
// keeps its own volume.
func (p *Player) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	p.mixer.SetGain(volume)
}

func (p *Player) MasterVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Close releases the voices of every playback still sounding or draining,
// then stops audio output.
func (p *Player) Close() error {
	p.mu.Lock()
	live := make([]*Playback, 0, len(p.live))
	for _, pb := range p.live {
		live = append(live, pb)
	}
	p.mu.Unlock()
	for _, pb := range live {
		pb.Release()
	}
	if p.device == nil {
		return nil
	}
	return p.device.Close()
}
