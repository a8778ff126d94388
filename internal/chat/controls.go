package chat

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/cbegin/jianpu-go/internal/accomp"
	"github.com/cbegin/jianpu-go/internal/rhythm"
	"github.com/cbegin/jianpu-go/internal/scheduler"
	"github.com/cbegin/jianpu-go/internal/voice"
)

const (
	MinBPM       = 30
	MaxBPM       = 240
	MinNoteBeats = 0.05
	MaxNoteBeats = 4
)

// Controls are the settings a control message changes. Zero fields are
// unchanged.
type Controls struct {
	Instrument    string
	BPM           float64
	NoteBeats     float64
	Style         string
	Accompaniment string
}

var (
	controlRe    = regexp.MustCompile(`([a-zA-Z_]+)\s*[:\x{ff1a}]\s*([^\s,]+)`)
	splitRe      = regexp.MustCompile(`[\n,]+`)
	hasControlRe = regexp.MustCompile(`(?i)\b(instrument|instr|bpm|tempo|temple|notelen|note_len|note_len_beats|notelenbeats|len|style|beat|accompaniment|accomp)\s*[:\x{ff1a}]`)
)

// HasControls reports whether text contains at least one control line.
func HasControls(text string) bool {
	return hasControlRe.MatchString(text)
}

// ParseControls reads "key: value" pairs separated by newlines or commas.
// Unknown keys and unparseable numbers are ignored.
func ParseControls(text string) Controls {
	var c Controls
	for _, part := range splitRe.Split(strings.TrimSpace(text), -1) {
		for _, m := range controlRe.FindAllStringSubmatch(part, -1) {
			key := strings.ToLower(m[1])
			val := strings.TrimSpace(m[2])
			switch key {
			case "instrument", "instr":
				c.Instrument = strings.ToLower(val)
			case "bpm", "tempo", "temple":
				if f, err := strconv.ParseFloat(val, 64); err == nil {
					c.BPM = math.Trunc(f)
				}
			case "notelen", "note_len", "note_len_beats", "notelenbeats", "len":
				if f, err := strconv.ParseFloat(val, 64); err == nil {
					c.NoteBeats = f
				}
			case "style", "beat":
				c.Style = strings.ToLower(val)
			case "accompaniment", "accomp":
				c.Accompaniment = strings.ToLower(val)
			}
		}
	}
	return c
}

// Apply merges c into req. Tempo and note length are clamped; an unknown
// instrument is an error listing the known ones; an unknown style falls
// back to swing and an unknown accompaniment leaves the current one.
func (c Controls) Apply(req scheduler.Request) (scheduler.Request, error) {
	if c.Instrument != "" {
		inst, ok := voice.LookupInstrument(c.Instrument)
		if !ok {
			return req, fmt.Errorf("%w %q, available: %s", ErrUnknownInstrument, c.Instrument, strings.Join(voice.InstrumentNames(), ", "))
		}
		req.Instrument = inst.Name
	}
	if c.BPM != 0 {
		req.BPM = c.BPM
	}
	if c.NoteBeats != 0 {
		req.NoteBeats = c.NoteBeats
	}
	req.BPM = ClampBPM(req.BPM)
	req.NoteBeats = ClampNoteBeats(req.NoteBeats)
	if c.Style != "" {
		style, err := rhythm.ParseStyle(c.Style)
		if err != nil {
			style = rhythm.Swing
		}
		req.Style = style
	}
	if c.Accompaniment != "" {
		if kind, err := accomp.ParseKind(c.Accompaniment); err == nil {
			req.Accompaniment = kind
		}
	}
	return req, nil
}

func ClampBPM(bpm float64) float64 {
	return math.Max(MinBPM, math.Min(MaxBPM, bpm))
}

func ClampNoteBeats(beats float64) float64 {
	return math.Max(MinNoteBeats, math.Min(MaxNoteBeats, beats))
}

// Describe renders req the way the play confirmation reads in chat.
func Describe(req scheduler.Request) string {
	return fmt.Sprintf("\u25b6 Click to play | instrument: %s | BPM: %g, noteLen: %g, style: %s, accompaniment: %s\nnumbered notation: %s",
		req.Instrument, req.BPM, req.NoteBeats, req.Style, req.Accompaniment, req.Phrase)
}
