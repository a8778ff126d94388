// Package chat recognises play requests in chat messages and keeps the
// per-process state deciding when they play.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cbegin/jianpu-go/internal/accomp"
	"github.com/cbegin/jianpu-go/internal/rhythm"
	"github.com/cbegin/jianpu-go/internal/scheduler"
	"github.com/cbegin/jianpu-go/internal/voice"
)

const PlayRequestPrefix = "PLAY_REQUEST_JSON:"

var (
	ErrBadPayload        = errors.New("malformed play request")
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrNoPending         = errors.New("no pending notation in this channel")
)

// Message is one chat message, whatever transport it came from.
type Message struct {
	ID      string
	Channel string
	Sender  string
	Text    string
}

type Kind int

const (
	KindNone Kind = iota
	// KindPlayRequest is a PLAY_REQUEST_JSON payload.
	KindPlayRequest
	// KindNotation is free text carrying "numbered notation: <phrase>".
	KindNotation
	// KindControls adjusts the pending phrase of a channel.
	KindControls
)

func (k Kind) String() string {
	switch k {
	case KindPlayRequest:
		return "play-request"
	case KindNotation:
		return "notation"
	case KindControls:
		return "controls"
	default:
		return "none"
	}
}

// Extraction is what a message asks for. Request is set for play requests
// and notation, Controls for control lines.
type Extraction struct {
	Kind     Kind
	Request  scheduler.Request
	Controls Controls
}

var (
	notationRe    = regexp.MustCompile(`(?is)numbered notation\s*[:\x{ff1a}]\s*(.+)$`)
	clickToPlayRe = regexp.MustCompile(`(?i)click to play`)
)

type playPayload struct {
	Jianpu        string   `json:"jianpu"`
	BPM           *float64 `json:"bpm"`
	NoteLenBeats  *float64 `json:"note_len_beats"`
	NoteLenCamel  *float64 `json:"noteLenBeats"`
	Instrument    string   `json:"instrument"`
	Style         string   `json:"style"`
	Accompaniment string   `json:"accompaniment"`
}

// Extract classifies text. ok is false when the message asks for nothing;
// err is set when it tried and was malformed.
func Extract(text string) (Extraction, bool, error) {
	trimmed := strings.TrimSpace(text)
	if rest, found := strings.CutPrefix(trimmed, PlayRequestPrefix); found {
		req, err := parsePayload(rest)
		if err != nil {
			return Extraction{}, false, err
		}
		return Extraction{Kind: KindPlayRequest, Request: req}, true, nil
	}
	if m := notationRe.FindStringSubmatch(trimmed); m != nil {
		phrase := strings.TrimSpace(m[1])
		if phrase == "" {
			return Extraction{}, false, nil
		}
		return Extraction{Kind: KindNotation, Request: scheduler.Request{
			Phrase:     phrase,
			BPM:        scheduler.DefaultBPM,
			NoteBeats:  scheduler.DefaultNoteBeats,
			Instrument: voice.DefaultInstrument,
		}}, true, nil
	}
	if HasControls(trimmed) && !clickToPlayRe.MatchString(trimmed) {
		return Extraction{Kind: KindControls, Controls: ParseControls(trimmed)}, true, nil
	}
	return Extraction{}, false, nil
}

func parsePayload(body string) (scheduler.Request, error) {
	var p playPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &p); err != nil {
		return scheduler.Request{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if strings.TrimSpace(p.Jianpu) == "" {
		return scheduler.Request{}, fmt.Errorf("%w: empty jianpu", ErrBadPayload)
	}
	req := scheduler.Request{
		Phrase:     p.Jianpu,
		BPM:        scheduler.DefaultBPM,
		NoteBeats:  scheduler.DefaultNoteBeats,
		Instrument: voice.InstrumentFor(p.Instrument).Name,
	}
	if p.BPM != nil && *p.BPM > 0 {
		req.BPM = ClampBPM(*p.BPM)
	}
	switch {
	case p.NoteLenBeats != nil && *p.NoteLenBeats > 0:
		req.NoteBeats = ClampNoteBeats(*p.NoteLenBeats)
	case p.NoteLenCamel != nil && *p.NoteLenCamel > 0:
		req.NoteBeats = ClampNoteBeats(*p.NoteLenCamel)
	}
	style, err := rhythm.ParseStyle(p.Style)
	if err != nil {
		return scheduler.Request{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	req.Style = style
	kind, err := accomp.ParseKind(p.Accompaniment)
	if err != nil {
		return scheduler.Request{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	req.Accompaniment = kind
	return req, nil
}
