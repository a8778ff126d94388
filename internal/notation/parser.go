package notation

import (
	"strings"

	"golang.org/x/text/width"
)

var degreeOffsets = [8]int{
	1: 0, 2: 2, 3: 4, 4: 5, 5: 7, 6: 9, 7: 11,
}

// symbolReplacer maps the marks width folding leaves alone.
var symbolReplacer = strings.NewReplacer(
	"\u266f", "#",
	"\u266d", "b",
	"\u0323", ",", // combining dot below
)

type Parser struct{ cfg Config }

func NewParser(cfg Config) *Parser { return &Parser{cfg: cfg} }

// Normalize folds full-width punctuation to its half-width form, maps the
// alternative sharp, flat and low-octave marks, and collapses whitespace.
func Normalize(phrase string) string {
	s := width.Narrow.String(phrase)
	s = symbolReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Tokenize normalizes phrase once and splits it on whitespace runs.
func Tokenize(phrase string) []string {
	return strings.Fields(Normalize(phrase))
}

// Parse tokenizes phrase and parses every token. The returned slices have
// equal length; ok[i] is false for tokens without a scale degree.
func (p *Parser) Parse(phrase string) (tokens []string, pitches []Pitch, ok []bool) {
	tokens = Tokenize(phrase)
	pitches = make([]Pitch, len(tokens))
	ok = make([]bool, len(tokens))
	for i, tok := range tokens {
		pitches[i], ok[i] = p.ParseToken(tok)
	}
	return tokens, pitches, ok
}

// ParseToken parses an already normalized token. It reports false when the
// token holds no degree digit 1-7.
func (p *Parser) ParseToken(token string) (Pitch, bool) {
	token = strings.TrimSpace(token)
	degree := 0
	var down, up, sharps, flats int
	for i := 0; i < len(token); i++ {
		switch ch := token[i]; {
		case ch >= '1' && ch <= '7':
			if degree == 0 {
				degree = int(ch - '0')
			}
		case ch == MarkOctaveDown:
			down++
		case ch == MarkOctaveUp:
			up++
		case ch == MarkSharp:
			sharps++
		case ch == MarkFlat:
			flats++
		}
	}
	if degree == 0 {
		return Pitch{}, false
	}
	offset := degreeOffsets[degree] + sharps - flats + (up-down)*12
	return Pitch{
		Pitch:         p.cfg.ReferencePitch + offset,
		HasAccidental: sharps > 0 || flats > 0,
	}, true
}

var defaultParser = NewParser(DefaultConfig())

// ParseToken parses token against ReferencePitch.
func ParseToken(token string) (Pitch, bool) {
	return defaultParser.ParseToken(token)
}
