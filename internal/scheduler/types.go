package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cbegin/jianpu-go/internal/accomp"
	"github.com/cbegin/jianpu-go/internal/notation"
	"github.com/cbegin/jianpu-go/internal/rhythm"
	"github.com/cbegin/jianpu-go/internal/voice"
)

var (
	// ErrClockInactive is returned when the audio clock could not be
	// started. Callers may retry on a later user interaction.
	ErrClockInactive = errors.New("audio clock is not running")
	ErrNoResolver    = errors.New("no voice resolver configured")
)

// Clock is the shared audio clock triggers are scheduled against.
type Clock interface {
	// Now returns the current clock time in seconds.
	Now() float64
	IsRunning() bool
	// Activate starts the clock, blocking until it runs or ctx ends.
	Activate(ctx context.Context) error
}

const (
	DefaultBPM       = 90
	DefaultNoteBeats = 0.5
)

// Request describes one phrase playback.
type Request struct {
	Phrase        string
	BPM           float64
	NoteBeats     float64
	Instrument    string
	Style         rhythm.Style
	Accompaniment accomp.Kind
	Tuning        rhythm.Tuning
}

func (r Request) withDefaults() Request {
	if r.BPM <= 0 {
		r.BPM = DefaultBPM
	}
	if r.NoteBeats <= 0 {
		r.NoteBeats = DefaultNoteBeats
	}
	if r.Instrument == "" {
		r.Instrument = voice.DefaultInstrument
	}
	return r
}

// SecondsPerBeat converts the request tempo.
func (r Request) SecondsPerBeat() float64 {
	return 60 / r.withDefaults().BPM
}

// State is the lifecycle stage of a playback.
type State int32

const (
	StateIdle State = iota
	StatePreparing
	StateScheduling
	StateDraining
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateScheduling:
		return "scheduling"
	case StateDraining:
		return "draining"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// EventKind identifies scheduler events.
type EventKind int

const (
	EventTriggered EventKind = iota
	EventSkipped
	EventTriggerFailed
	EventDraining
	EventDisposed
)

// Role tells melody triggers from accompaniment triggers.
type Role int

const (
	RoleMelody Role = iota
	RoleAccompaniment
)

func (r Role) String() string {
	if r == RoleAccompaniment {
		return "accompaniment"
	}
	return "melody"
}

// Event reports scheduler progress through Options.OnEvent.
type Event struct {
	Kind       EventKind
	PlaybackID string
	Index      int    // token index, -1 for playback-level events
	Token      string // source token
	Role       Role
	Trigger    voice.Trigger
	Err        error
}

// Timer is the handle returned by Options.AfterFunc.
type Timer interface {
	Stop() bool
}

type Options struct {
	// LeadIn offsets the first note from the clock's current time
	// (default 50ms).
	LeadIn time.Duration
	// TailFloor is the minimum delay before voices are released
	// (default 200ms).
	TailFloor time.Duration
	// TailMargin is added after the last note ends (default 150ms).
	TailMargin time.Duration
	// AfterFunc schedules the deferred release. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer
	OnEvent   func(Event)
	Parser    *notation.Parser
}

const (
	defaultLeadIn     = 50 * time.Millisecond
	defaultTailFloor  = 200 * time.Millisecond
	defaultTailMargin = 150 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.LeadIn <= 0 {
		o.LeadIn = defaultLeadIn
	}
	if o.TailFloor <= 0 {
		o.TailFloor = defaultTailFloor
	}
	if o.TailMargin <= 0 {
		o.TailMargin = defaultTailMargin
	}
	if o.AfterFunc == nil {
		o.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if o.Parser == nil {
		o.Parser = notation.NewParser(notation.DefaultConfig())
	}
	return o
}
