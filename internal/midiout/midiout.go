// Package midiout plays voices on an external MIDI device. Notes are sent at
// wall-clock times from timers; each voice gets its own channel.
package midiout

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cbegin/jianpu-go/internal/voice"
	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

const (
	channels          = 16
	percussionChannel = 9
)

var ErrNoSender = errors.New("no MIDI sender configured")

// Sender delivers one message, e.g. the func returned by midi.SendTo.
type Sender func(msg midi.Message) error

// Clock is the time base trigger start times refer to.
type Clock interface {
	Now() float64
}

type Timer interface {
	Stop() bool
}

// Port is an opened MIDI output.
type Port struct {
	Out  drivers.Out
	Send Sender
}

// Open opens output port n of the registered driver.
func Open(n int) (*Port, error) {
	out, err := midi.OutPort(n)
	if err != nil {
		return nil, fmt.Errorf("open MIDI port %d: %w", n, err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("send to MIDI port %d: %w", n, err)
	}
	return &Port{Out: out, Send: send}, nil
}

// Close silences every channel and closes the port.
func (p *Port) Close() error {
	var errs []error
	for ch := uint8(0); ch < channels; ch++ {
		if err := p.Send(midi.ControlChange(ch, midi.AllNotesOff, midi.Off)); err != nil {
			errs = append(errs, err)
			break
		}
	}
	if p.Out != nil {
		errs = append(errs, p.Out.Close())
	}
	return errors.Join(errs...)
}

// Resolver hands out voices round-robin on channels no live voice holds,
// skipping the General MIDI percussion channel. Only when every channel is
// held do two voices share one.
type Resolver struct {
	send      Sender
	clock     Clock
	AfterFunc func(d time.Duration, f func()) Timer
	Logger    *log.Logger

	mu   sync.Mutex
	next uint8
	held [channels]int
}

func NewResolver(send Sender, clock Clock) *Resolver {
	return &Resolver{
		send:  send,
		clock: clock,
		AfterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		Logger: log.Default(),
	}
}

func (r *Resolver) Resolve(instrument string) (voice.Voice, error) {
	return r.attach(voice.InstrumentFor(instrument).Program)
}

func (r *Resolver) ResolveAccompaniment() (voice.Voice, error) {
	return r.attach(voice.AccompanimentProgram)
}

func (r *Resolver) attach(program int) (voice.Voice, error) {
	if r.send == nil {
		return nil, ErrNoSender
	}
	ch := r.acquireChannel()
	if err := r.send(midi.ProgramChange(ch, uint8(program))); err != nil {
		r.releaseChannel(ch)
		return nil, fmt.Errorf("program change on channel %d: %w", ch, err)
	}
	return &Voice{
		channel: ch,
		send:    r.send,
		clock:   r.clock,
		after:   r.AfterFunc,
		logger:  r.Logger.With("channel", ch),
		free:    func() { r.releaseChannel(ch) },
		held:    make(map[uint8]int),
	}, nil
}

func (r *Resolver) acquireChannel() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := r.next
	for i := uint8(0); i < channels; i++ {
		c := (r.next + i) % channels
		if c != percussionChannel && r.held[c] == 0 {
			ch = c
			break
		}
	}
	r.held[ch]++
	r.next = (ch + 1) % channels
	if r.next == percussionChannel {
		r.next++
	}
	return ch
}

func (r *Resolver) releaseChannel(ch uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held[ch] > 0 {
		r.held[ch]--
	}
}

// Voice sends its notes on one MIDI channel.
type Voice struct {
	channel uint8
	send    Sender
	clock   Clock
	after   func(d time.Duration, f func()) Timer
	logger  *log.Logger
	free    func()

	mu       sync.Mutex
	timers   []Timer
	held     map[uint8]int // key -> overlapping note-ons
	disposed bool
}

func (v *Voice) Channel() uint8 { return v.channel }

func (v *Voice) Trigger(t voice.Trigger) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return voice.ErrDisposed
	}
	key := voice.ClampKey(t.Key)
	vel := voice.MIDIVelocity(t.Velocity)
	delay := seconds(t.Start - v.clock.Now())
	if delay < 0 {
		delay = 0
	}
	v.timers = append(v.timers,
		v.after(delay, func() { v.noteOn(key, vel) }),
		v.after(delay+seconds(t.Duration), func() { v.noteOff(key) }),
	)
	return nil
}

func (v *Voice) noteOn(key, vel uint8) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	if err := v.send(midi.NoteOn(v.channel, key, vel)); err != nil {
		v.logger.Warn("note on failed", "key", key, "err", err)
		return
	}
	v.held[key]++
}

func (v *Voice) noteOff(key uint8) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed || v.held[key] == 0 {
		return
	}
	v.held[key]--
	if v.held[key] > 0 {
		return
	}
	delete(v.held, key)
	if err := v.send(midi.NoteOff(v.channel, key)); err != nil {
		v.logger.Warn("note off failed", "key", key, "err", err)
	}
}

// Dispose cancels pending notes and silences the channel.
func (v *Voice) Dispose() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return nil
	}
	v.disposed = true
	for _, t := range v.timers {
		t.Stop()
	}
	v.timers = nil
	var errs []error
	for key := range v.held {
		errs = append(errs, v.send(midi.NoteOff(v.channel, key)))
	}
	clear(v.held)
	errs = append(errs, v.send(midi.ControlChange(v.channel, midi.AllNotesOff, midi.Off)))
	v.free()
	return errors.Join(errs...)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
