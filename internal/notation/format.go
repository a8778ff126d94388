package notation

import "strings"

// sharpOf holds, for each semitone above the tonic, the degree to write and
// whether it needs a sharp.
var sharpOf = [12]struct {
	degree byte
	sharp  bool
}{
	{'1', false}, {'1', true}, {'2', false}, {'2', true}, {'3', false}, {'4', false},
	{'4', true}, {'5', false}, {'5', true}, {'6', false}, {'6', true}, {'7', false},
}

// FormatPitch writes pitch as a token relative to reference: an optional
// sharp, the degree, then octave marks. ParseToken reverses it exactly.
func FormatPitch(pitch, reference int) string {
	delta := pitch - reference
	octave := delta / 12
	rel := delta % 12
	if rel < 0 {
		rel += 12
		octave--
	}
	d := sharpOf[rel]
	var b strings.Builder
	if d.sharp {
		b.WriteByte(MarkSharp)
	}
	b.WriteByte(d.degree)
	for ; octave > 0; octave-- {
		b.WriteByte(MarkOctaveUp)
	}
	for ; octave < 0; octave++ {
		b.WriteByte(MarkOctaveDown)
	}
	return b.String()
}
