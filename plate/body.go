package plate

import "strings"

// Body is the G-code of a plate as an immutable sequence of lines. Joining
// the lines with "\n" gives back the original text byte for byte.
type Body struct {
	lines []string
}

func NewBody(text string) Body {
	return Body{lines: strings.Split(text, "\n")}
}

func (b Body) Len() int {
	return len(b.lines)
}

func (b Body) Line(i int) string {
	return b.lines[i]
}

// Size is the length in bytes of the rendered body without edits.
func (b Body) Size() int {
	n := len(b.lines) - 1
	for _, l := range b.lines {
		n += len(l)
	}
	if n < 0 {
		return 0
	}
	return n
}

func (b Body) String() string {
	return strings.Join(b.lines, "\n")
}

// Render returns the body with the lines named in edits replaced. The body
// itself is never changed, so one Body can be rendered for any number of
// copies with different edits.
func (b Body) Render(edits map[int]string) string {
	if len(edits) == 0 {
		return b.String()
	}
	var sb strings.Builder
	sb.Grow(b.Size() + 16*len(edits))
	for i, l := range b.lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if e, ok := edits[i]; ok {
			l = e
		}
		sb.WriteString(l)
	}
	return sb.String()
}
