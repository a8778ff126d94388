package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbegin/jianpu-go/internal/accomp"
	"github.com/cbegin/jianpu-go/internal/notation"
	"github.com/cbegin/jianpu-go/internal/rhythm"
	"github.com/cbegin/jianpu-go/internal/voice"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Scheduler turns phrase requests into triggers on freshly resolved voices.
// It is safe for concurrent use; overlapping playbacks own separate voices
// and may sound together.
type Scheduler struct {
	clock    Clock
	resolver voice.Resolver
	opts     Options
}

func New(clock Clock, resolver voice.Resolver, opts Options) *Scheduler {
	return &Scheduler{clock: clock, resolver: resolver, opts: opts.withDefaults()}
}

// Playback is one scheduled phrase. Its voices are released once after the
// last note has had time to decay.
type Playback struct {
	ID      string
	Request Request
	// Start is the clock time of the first token, End the time the last
	// token finishes.
	Start float64
	End   float64
	// Tail is the delay, measured from the end of scheduling, after which
	// the voices are released.
	Tail time.Duration

	Notes   int // melody triggers delivered
	Skipped int // tokens that produced no sound
	Failed  int // triggers the voices rejected

	state   atomic.Int32
	done    chan struct{}
	once    sync.Once
	melody  voice.Voice
	partner voice.Voice

	mu      sync.Mutex
	timer   Timer
	release func()
}

func (p *Playback) State() State { return State(p.state.Load()) }

// Done is closed once the voices have been released.
func (p *Playback) Done() <-chan struct{} { return p.done }

func (p *Playback) setState(s State) { p.state.Store(int32(s)) }

// Release cancels the pending deferred release and releases the voices now.
// Notes still sounding are cut off. It is a no-op once released.
func (p *Playback) Release() {
	p.mu.Lock()
	timer, release := p.timer, p.release
	p.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
	if release != nil {
		release()
	}
}

// Play schedules req and returns once every trigger has been handed to the
// voices. Only clock activation honours ctx; scheduling itself cannot be
// cancelled.
func (s *Scheduler) Play(ctx context.Context, req Request) (*Playback, error) {
	if s.resolver == nil {
		return nil, ErrNoResolver
	}
	req = req.withDefaults()
	p := &Playback{
		ID:      uuid.NewString(),
		Request: req,
		done:    make(chan struct{}),
	}
	logger := log.FromContext(ctx).With("playback", p.ID)

	p.setState(StatePreparing)
	if err := s.prepare(ctx, p); err != nil {
		p.setState(StateIdle)
		logger.Warn("playback not started", "err", err)
		return nil, err
	}

	p.setState(StateScheduling)
	s.schedule(p, logger)

	p.setState(StateDraining)
	now := s.clock.Now()
	p.Tail = releaseDelay(p.End, now, s.opts.TailFloor, s.opts.TailMargin)
	s.event(Event{Kind: EventDraining, PlaybackID: p.ID, Index: -1})
	logger.Debug("phrase scheduled", "notes", p.Notes, "skipped", p.Skipped, "failed", p.Failed, "tail", p.Tail)
	release := func() { s.release(p, logger) }
	timer := s.opts.AfterFunc(p.Tail, release)
	p.mu.Lock()
	p.timer, p.release = timer, release
	p.mu.Unlock()
	return p, nil
}

func (s *Scheduler) prepare(ctx context.Context, p *Playback) error {
	if !s.clock.IsRunning() {
		if err := s.clock.Activate(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrClockInactive, err)
		}
		if !s.clock.IsRunning() {
			return ErrClockInactive
		}
	}
	melody, err := s.resolver.Resolve(p.Request.Instrument)
	if err != nil {
		return fmt.Errorf("resolve %s voice: %w", p.Request.Instrument, err)
	}
	p.melody = melody
	if p.Request.Accompaniment != accomp.None {
		partner, err := s.resolver.ResolveAccompaniment()
		if err != nil {
			_ = melody.Dispose()
			p.melody = nil
			return fmt.Errorf("resolve accompaniment voice: %w", err)
		}
		p.partner = partner
	}
	return nil
}

func (s *Scheduler) schedule(p *Playback, logger *log.Logger) {
	req := p.Request
	tokens := notation.Tokenize(req.Phrase)
	secPerBeat := 60 / req.BPM
	cursor := s.clock.Now() + s.opts.LeadIn.Seconds()
	p.Start = cursor
	for i, tok := range tokens {
		plan := rhythm.Plan(req.Style, i, req.NoteBeats, req.Tuning)
		dur := plan.Beats * secPerBeat
		pitch, ok := s.opts.Parser.ParseToken(tok)
		if !ok || pitch.IsRest {
			p.Skipped++
			s.event(Event{Kind: EventSkipped, PlaybackID: p.ID, Index: i, Token: tok})
			cursor += dur
			continue
		}
		melody := voice.NewTrigger(pitch.Pitch, cursor, dur, plan.Velocity)
		if s.emit(p, p.melody, RoleMelody, i, tok, melody, logger) {
			p.Notes++
		}
		if p.partner != nil {
			accomp.Accompany(req.Accompaniment, cursor, dur, pitch.Pitch, func(t voice.Trigger) {
				s.emit(p, p.partner, RoleAccompaniment, i, tok, t, logger)
			})
		}
		cursor += dur
	}
	p.End = cursor
}

func (s *Scheduler) emit(p *Playback, v voice.Voice, role Role, index int, tok string, t voice.Trigger, logger *log.Logger) bool {
	ev := Event{Kind: EventTriggered, PlaybackID: p.ID, Index: index, Token: tok, Role: role, Trigger: t}
	if err := v.Trigger(t); err != nil {
		p.Failed++
		logger.Warn("trigger failed", "role", role, "token", tok, "key", t.Key, "err", err)
		ev.Kind = EventTriggerFailed
		ev.Err = err
		s.event(ev)
		return false
	}
	s.event(ev)
	return true
}

func (s *Scheduler) release(p *Playback, logger *log.Logger) {
	p.once.Do(func() {
		var errs []error
		for _, v := range []voice.Voice{p.melody, p.partner} {
			if v == nil {
				continue
			}
			if err := v.Dispose(); err != nil {
				errs = append(errs, err)
			}
		}
		err := errors.Join(errs...)
		if err != nil {
			logger.Warn("voice release failed", "err", err)
		}
		p.setState(StateDisposed)
		close(p.done)
		s.event(Event{Kind: EventDisposed, PlaybackID: p.ID, Index: -1, Err: err})
	})
}

func (s *Scheduler) event(ev Event) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
}

// releaseDelay is max(floor, time left until end + margin).
func releaseDelay(end, now float64, floor, margin time.Duration) time.Duration {
	d := time.Duration((end-now)*float64(time.Second)) + margin
	if d < floor {
		return floor
	}
	return d
}
