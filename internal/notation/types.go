package notation

// Pitch is the result of parsing one notation token.
type Pitch struct {
	// Pitch is the absolute semitone number (MIDI key numbering).
	Pitch int
	// IsRest marks a token that advances time without sounding. The current
	// grammar has no rest notation, so the parser never sets it.
	IsRest bool
	// HasAccidental reports whether the token carried sharp or flat marks.
	HasAccidental bool
}

// Notation marks after normalization.
const (
	MarkOctaveDown = ','
	MarkOctaveUp   = '\''
	MarkSharp      = '#'
	MarkFlat       = 'b'
)

// ReferencePitch is the pitch of an unmarked degree 1: middle C (C4).
const ReferencePitch = 60

type Config struct {
	// ReferencePitch is the key number that degree "1" maps to.
	ReferencePitch int
}

func DefaultConfig() Config {
	return Config{ReferencePitch: ReferencePitch}
}
