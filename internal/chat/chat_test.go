package chat

import (
	"errors"
	"strings"
	"testing"

	"github.com/cbegin/jianpu-go/internal/accomp"
	"github.com/cbegin/jianpu-go/internal/rhythm"
	"github.com/cbegin/jianpu-go/internal/scheduler"
)

func TestExtractPlayRequest(t *testing.T) {
	ex, ok, err := Extract(`PLAY_REQUEST_JSON:{"jianpu":"1 2 3","bpm":120,"note_len_beats":1,"instrument":"Flute","style":"swing","accompaniment":"alberti"}`)
	if err != nil || !ok {
		t.Fatalf("extract = %v, %v", ok, err)
	}
	want := scheduler.Request{Phrase: "1 2 3", BPM: 120, NoteBeats: 1, Instrument: "flute", Style: rhythm.Swing, Accompaniment: accomp.Alberti}
	if ex.Kind != KindPlayRequest || ex.Request != want {
		t.Fatalf("extraction = %+v, want %+v", ex.Request, want)
	}
}

func TestExtractPlayRequestDefaults(t *testing.T) {
	ex, ok, err := Extract(`PLAY_REQUEST_JSON: {"jianpu":"5 6","noteLenBeats":0.25,"instrument":"kazoo"}`)
	if err != nil || !ok {
		t.Fatalf("extract = %v, %v", ok, err)
	}
	r := ex.Request
	if r.BPM != 90 || r.NoteBeats != 0.25 || r.Instrument != "piano" || r.Style != rhythm.Straight || r.Accompaniment != accomp.None {
		t.Fatalf("request = %+v", r)
	}
}

func TestExtractBadPayload(t *testing.T) {
	for _, text := range []string{
		`PLAY_REQUEST_JSON:{not json`,
		`PLAY_REQUEST_JSON:{"bpm":90}`,
		`PLAY_REQUEST_JSON:{"jianpu":"1","style":"waltz"}`,
	} {
		if _, ok, err := Extract(text); ok || !errors.Is(err, ErrBadPayload) {
			t.Fatalf("Extract(%q) = %v, %v; want ErrBadPayload", text, ok, err)
		}
	}
}

func TestExtractNotationMarker(t *testing.T) {
	cases := []string{
		"Generated out.mid numbered notation:1 2 3 5",
		"NUMBERED NOTATION \uff1a 1 2 3 5",
		"here you go\nNumbered notation:\n1 2\n3 5",
	}
	for _, text := range cases {
		ex, ok, err := Extract(text)
		if err != nil || !ok || ex.Kind != KindNotation {
			t.Fatalf("Extract(%q) = %+v, %v, %v", text, ex, ok, err)
		}
		if strings.Join(strings.Fields(ex.Request.Phrase), " ") != "1 2 3 5" {
			t.Fatalf("phrase = %q", ex.Request.Phrase)
		}
		if ex.Request.BPM != 90 || ex.Request.NoteBeats != 0.5 {
			t.Fatalf("defaults = %+v", ex.Request)
		}
	}
}

func TestExtractNothing(t *testing.T) {
	for _, text := range []string{"", "hello there", "numbered notation:   ", "\u25b6 Click to play | instrument: piano"} {
		if _, ok, err := Extract(text); ok || err != nil {
			t.Fatalf("Extract(%q) = %v, %v; want nothing", text, ok, err)
		}
	}
}

func TestParseControls(t *testing.T) {
	c := ParseControls("instrument: Flute\ntempo\uff1a 110.7, noteLen: 0.25\nbeat: straight\naccomp: b\ncolor: red")
	want := Controls{Instrument: "flute", BPM: 110, NoteBeats: 0.25, Style: "straight", Accompaniment: "b"}
	if c != want {
		t.Fatalf("controls = %+v, want %+v", c, want)
	}
	if c := ParseControls("bpm: fast"); c.BPM != 0 {
		t.Fatalf("unparseable bpm = %v, want ignored", c.BPM)
	}
}

func TestControlsApplyClamps(t *testing.T) {
	base := scheduler.Request{Phrase: "1", BPM: 90, NoteBeats: 0.5, Instrument: "piano"}
	cases := []struct {
		c         Controls
		bpm, beat float64
	}{
		{Controls{BPM: 500}, 240, 0.5},
		{Controls{BPM: 10}, 30, 0.5},
		{Controls{NoteBeats: 9}, 90, 4},
		{Controls{NoteBeats: 0.001}, 90, 0.05},
	}
	for _, tc := range cases {
		got, err := tc.c.Apply(base)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if got.BPM != tc.bpm || got.NoteBeats != tc.beat {
			t.Fatalf("Apply(%+v) = %v/%v, want %v/%v", tc.c, got.BPM, got.NoteBeats, tc.bpm, tc.beat)
		}
	}
}

func TestControlsApplyStyleAndInstrument(t *testing.T) {
	base := scheduler.Request{Phrase: "1", BPM: 90, NoteBeats: 0.5, Instrument: "piano", Accompaniment: accomp.Alberti}
	got, err := Controls{Instrument: "organ", Style: "bogus", Accompaniment: "bogus"}.Apply(base)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Instrument != "organ" || got.Style != rhythm.Swing || got.Accompaniment != accomp.Alberti {
		t.Fatalf("request = %+v", got)
	}

	_, err = Controls{Instrument: "kazoo"}.Apply(base)
	if !errors.Is(err, ErrUnknownInstrument) {
		t.Fatalf("err = %v, want ErrUnknownInstrument", err)
	}
	if !strings.Contains(err.Error(), "bagpipe") || !strings.Contains(err.Error(), "violin") {
		t.Fatalf("error should list instruments: %v", err)
	}
}

func TestSessionDedupesByID(t *testing.T) {
	s := NewSession("")
	msg := Message{ID: "m1", Channel: "general", Text: "numbered notation: 1 2 3"}
	if _, ok, _ := s.Observe(msg); !ok {
		t.Fatalf("first observe should play")
	}
	if _, ok, _ := s.Observe(msg); ok {
		t.Fatalf("same id played twice")
	}
	msg.ID = "m2"
	if _, ok, _ := s.Observe(msg); !ok {
		t.Fatalf("new id should play")
	}
	noID := Message{Text: "numbered notation: 5"}
	if _, ok, _ := s.Observe(noID); !ok {
		t.Fatalf("message without id should play")
	}
	if _, ok, _ := s.Observe(noID); !ok {
		t.Fatalf("messages without id are not deduplicated")
	}
}

func TestSessionIgnoresSelf(t *testing.T) {
	s := NewSession("SoundRender")
	if _, ok, _ := s.Observe(Message{ID: "1", Sender: "SoundRender", Text: "numbered notation: 1"}); ok {
		t.Fatalf("own message played")
	}
}

func TestSessionControlsNeedPending(t *testing.T) {
	s := NewSession("")
	if _, ok, err := s.Observe(Message{ID: "1", Channel: "a", Text: "bpm: 120"}); ok || !errors.Is(err, ErrNoPending) {
		t.Fatalf("observe = %v, %v; want ErrNoPending", ok, err)
	}
	if _, _, err := s.Observe(Message{ID: "2", Channel: "a", Text: "numbered notation: 1 3 5"}); err != nil {
		t.Fatalf("notation: %v", err)
	}
	req, ok, err := s.Observe(Message{ID: "3", Channel: "a", Text: "instrument: violin\nbpm: 120\nstyle: swing"})
	if err != nil || !ok {
		t.Fatalf("controls = %v, %v", ok, err)
	}
	if req.Phrase != "1 3 5" || req.Instrument != "violin" || req.BPM != 120 || req.Style != rhythm.Swing {
		t.Fatalf("request = %+v", req)
	}
	if p, _ := s.Pending("a"); p != req {
		t.Fatalf("pending not updated: %+v", p)
	}
	if _, ok, err := s.Observe(Message{ID: "4", Channel: "b", Text: "bpm: 100"}); ok || !errors.Is(err, ErrNoPending) {
		t.Fatalf("pending leaked across channels: %v %v", ok, err)
	}
	if _, _, err := s.Observe(Message{ID: "5", Channel: "a", Text: "instrument: kazoo"}); !errors.Is(err, ErrUnknownInstrument) {
		t.Fatalf("err = %v, want ErrUnknownInstrument", err)
	}
}

func TestSessionQueue(t *testing.T) {
	s := NewSession("")
	if _, ok := s.TakeQueued(); ok {
		t.Fatalf("fresh session has a queued request")
	}
	s.Queue(scheduler.Request{Phrase: "1"})
	s.Queue(scheduler.Request{Phrase: "2"})
	req, ok := s.TakeQueued()
	if !ok || req.Phrase != "2" {
		t.Fatalf("queued = %+v, %v; want latest", req, ok)
	}
	if _, ok := s.TakeQueued(); ok {
		t.Fatalf("queue not cleared")
	}
	if s.Unlocked() {
		t.Fatalf("fresh session unlocked")
	}
	s.MarkUnlocked()
	if !s.Unlocked() {
		t.Fatalf("MarkUnlocked had no effect")
	}
}

func TestDescribe(t *testing.T) {
	d := Describe(scheduler.Request{Phrase: "1 2", BPM: 110, NoteBeats: 0.5, Instrument: "flute", Style: rhythm.Swing})
	if !strings.Contains(d, "instrument: flute") || !strings.Contains(d, "BPM: 110") || !strings.HasSuffix(d, "numbered notation: 1 2") {
		t.Fatalf("describe = %q", d)
	}
}
