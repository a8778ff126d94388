package jianpu

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	intconfig "github.com/cbegin/jianpu-go/internal/config"
	intsched "github.com/cbegin/jianpu-go/internal/scheduler"
	intvoice "github.com/cbegin/jianpu-go/internal/voice"
	"gitlab.com/gomidi/midi/v2"
)

type stubClock struct {
	mu          sync.Mutex
	running     bool
	activateErr error
}

func (c *stubClock) Now() float64 { return 0 }

func (c *stubClock) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *stubClock) Activate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activateErr != nil {
		return c.activateErr
	}
	c.running = true
	return nil
}

type countingVoice struct {
	mu       sync.Mutex
	keys     []int
	disposed int
}

func (v *countingVoice) Trigger(t intvoice.Trigger) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys = append(v.keys, t.Key)
	return nil
}

func (v *countingVoice) Dispose() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disposed++
	return nil
}

type countingResolver struct {
	mu     sync.Mutex
	voices []*countingVoice
	names  []string
}

func (r *countingResolver) Resolve(name string) (intvoice.Voice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := &countingVoice{}
	r.voices = append(r.voices, v)
	r.names = append(r.names, name)
	return v, nil
}

func (r *countingResolver) ResolveAccompaniment() (intvoice.Voice, error) {
	return r.Resolve("accompaniment")
}

type immediateTimer struct{}

func (immediateTimer) Stop() bool { return false }

type heldTimer struct{ stopped *bool }

func (t heldTimer) Stop() bool {
	*t.stopped = true
	return true
}

func withFakes(clock *stubClock, res *countingResolver) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.clock = clock
		cfg.resolver = res
		cfg.afterFunc = func(_ time.Duration, f func()) intsched.Timer {
			go f()
			return immediateTimer{}
		}
	}
}

func TestPlayerMasterVolumeRuntimeAPI(t *testing.T) {
	pl, err := NewPlayer(48000)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if got := pl.MasterVolume(); got != 1 {
		t.Fatalf("default master volume = %v, want 1", got)
	}
	pl.SetMasterVolume(0.35)
	if got := pl.MasterVolume(); got != 0.35 {
		t.Fatalf("master volume = %v, want 0.35", got)
	}
	if got := pl.mixer.Gain(); got != 0.35 {
		t.Fatalf("mixer gain = %v, want 0.35", got)
	}
	pl.SetMasterVolume(-2)
	if got := pl.MasterVolume(); got != 0 {
		t.Fatalf("master volume should clamp to 0, got %v", got)
	}
	if err := pl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewPlayerValidatesBackend(t *testing.T) {
	if _, err := NewPlayer(0); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
	if _, err := NewPlayer(48000, WithBackend(BackendSoundFont)); err == nil {
		t.Fatalf("expected error for soundfont backend without a file")
	}
	if _, err := NewPlayer(48000, WithSoundFont("testdata/missing.sf2")); err == nil {
		t.Fatalf("expected error for missing soundfont file")
	}
	if _, err := NewPlayer(48000, WithBackend(BackendMIDI)); err == nil {
		t.Fatalf("expected error for midi backend without sender")
	}
	if _, err := NewPlayer(48000, WithBackend("theremin")); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestParseBackend(t *testing.T) {
	cases := map[string]Backend{"": BackendSynth, "Synth": BackendSynth, "sf2": BackendSoundFont, "midi": BackendMIDI}
	for in, want := range cases {
		got, err := ParseBackend(in)
		if err != nil || got != want {
			t.Fatalf("ParseBackend(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, name := range []string{intconfig.BackendSynth, intconfig.BackendSoundFont, intconfig.BackendMIDI} {
		if got, err := ParseBackend(name); err != nil || string(got) != name {
			t.Fatalf("ParseBackend(%q) = %v, %v; want the config name back", name, got, err)
		}
	}
	if _, err := ParseBackend("fm"); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestPlayPhraseUsesDefaultsAndWaits(t *testing.T) {
	clock := &stubClock{running: true}
	res := &countingResolver{}
	pl, err := NewPlayer(48000, withFakes(clock, res), WithDefaults(Request{Instrument: "flute", Accompaniment: Backbeat}))
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	ch := pl.Watch()
	pb, err := pl.PlayPhrase(context.Background(), "1 2 x")
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	pl.Wait()
	select {
	case <-pb.Done():
	default:
		t.Fatalf("Wait returned before the playback was released")
	}
	if res.names[0] != "flute" || res.names[1] != "accompaniment" {
		t.Fatalf("resolved %v, want flute then accompaniment", res.names)
	}
	for _, v := range res.voices {
		if v.disposed != 1 {
			t.Fatalf("voice disposed %d times, want 1", v.disposed)
		}
	}

	counts := map[int]int{}
	timeout := time.After(5 * time.Second)
	for counts[EventDisposed] == 0 {
		select {
		case ev := <-ch:
			counts[ev.Kind]++
			if ev.PlaybackID != pb.ID {
				t.Fatalf("event for playback %q, want %q", ev.PlaybackID, pb.ID)
			}
		case <-timeout:
			t.Fatalf("no disposed event, got %v", counts)
		}
	}
	if counts[EventTriggered] != 4 || counts[EventSkipped] != 1 || counts[EventDraining] != 1 || counts[EventDisposed] != 1 {
		t.Fatalf("event counts = %v", counts)
	}
}

func TestHandleMessageQueuesUntilUnlock(t *testing.T) {
	clock := &stubClock{}
	res := &countingResolver{}
	pl, err := NewPlayer(48000, withFakes(clock, res))
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	s := NewSession("")
	ctx := context.Background()

	pb, err := pl.HandleMessage(ctx, s, Message{ID: "1", Channel: "general", Text: "numbered notation: 1 2 3"})
	if err != nil || pb != nil {
		t.Fatalf("locked session played: %v, %v", pb, err)
	}
	if len(res.voices) != 0 {
		t.Fatalf("voices acquired before unlock")
	}

	pb, err = pl.Unlock(ctx, s)
	if err != nil || pb == nil {
		t.Fatalf("unlock = %v, %v; want queued playback", pb, err)
	}
	if got := res.voices[0].keys; len(got) != 3 || got[0] != 60 || got[2] != 64 {
		t.Fatalf("keys = %v", got)
	}

	pb, err = pl.HandleMessage(ctx, s, Message{ID: "2", Channel: "general", Text: "bpm: 120\ninstrument: violin"})
	if err != nil || pb == nil {
		t.Fatalf("controls = %v, %v", pb, err)
	}
	if pb.Request.BPM != 120 || pb.Request.Instrument != "violin" {
		t.Fatalf("request = %+v", pb.Request)
	}
	pl.Wait()
}

func TestUnlockFailureKeepsSessionLocked(t *testing.T) {
	clock := &stubClock{activateErr: errors.New("no gesture")}
	res := &countingResolver{}
	pl, _ := NewPlayer(48000, withFakes(clock, res))
	s := NewSession("")
	_, _ = pl.HandleMessage(context.Background(), s, Message{ID: "1", Text: "numbered notation: 5"})

	if _, err := pl.Unlock(context.Background(), s); !errors.Is(err, ErrClockInactive) {
		t.Fatalf("err = %v, want ErrClockInactive", err)
	}
	if s.Unlocked() {
		t.Fatalf("session unlocked despite failure")
	}
	if _, ok := s.TakeQueued(); !ok {
		t.Fatalf("queued request lost")
	}
}

func TestHandleMessageRejectsUnknownInstrument(t *testing.T) {
	pl, _ := NewPlayer(48000, withFakes(&stubClock{running: true}, &countingResolver{}))
	s := NewSession("")
	s.MarkUnlocked()
	ctx := context.Background()
	if _, err := pl.HandleMessage(ctx, s, Message{ID: "1", Text: "numbered notation: 1"}); err != nil {
		t.Fatalf("notation: %v", err)
	}
	if _, err := pl.HandleMessage(ctx, s, Message{ID: "2", Text: "instrument: kazoo"}); !errors.Is(err, ErrUnknownInstrument) {
		t.Fatalf("err = %v, want ErrUnknownInstrument", err)
	}
	pl.Wait()
}

type midiRecorder struct {
	mu   sync.Mutex
	msgs []midi.Message
}

func (r *midiRecorder) send(msg midi.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *midiRecorder) has(want midi.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if bytes.Equal(m, want) {
			return true
		}
	}
	return false
}

func TestMIDIBackendSendsNotes(t *testing.T) {
	rec := &midiRecorder{}
	pl, err := NewPlayer(48000, WithMIDISender(rec.send), WithLeadIn(time.Millisecond))
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if pl.Backend() != BackendMIDI {
		t.Fatalf("backend = %v", pl.Backend())
	}
	pb, err := pl.Play(context.Background(), Request{Phrase: "1 5", BPM: 240, NoteBeats: 0.25, Instrument: "trumpet"})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	select {
	case <-pb.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("playback never released")
	}
	for _, want := range []midi.Message{
		midi.ProgramChange(0, 56),
		midi.NoteOn(0, 60, intvoice.MIDIVelocity(0.9)),
		midi.NoteOn(0, 67, intvoice.MIDIVelocity(0.9)),
		midi.ControlChange(0, midi.AllNotesOff, midi.Off),
	} {
		if !rec.has(want) {
			t.Fatalf("missing %v in %v", want, rec.msgs)
		}
	}
}

func TestCloseReleasesDrainingPlaybacks(t *testing.T) {
	res := &countingResolver{}
	stopped := false
	pl, err := NewPlayer(48000, withFakes(&stubClock{running: true}, res), func(cfg *playerConfig) {
		cfg.afterFunc = func(time.Duration, func()) intsched.Timer {
			return heldTimer{stopped: &stopped}
		}
	})
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	pb, err := pl.PlayPhrase(context.Background(), "1 2 3")
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := pl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-pb.Done():
	default:
		t.Fatalf("playback still draining after Close")
	}
	if !stopped {
		t.Fatalf("deferred release timer not stopped")
	}
	if res.voices[0].disposed != 1 {
		t.Fatalf("voice disposed %d times, want 1", res.voices[0].disposed)
	}
	pl.Wait()
}
