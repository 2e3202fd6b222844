package gcode

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyString = errors.New("empty string")
	ErrNotTool     = errors.New("not a tool selection")
)

const (
	// WordSeparator separates the words of a block when it is exported as a line string
	WordSeparator = " "

	// ToolHousekeeping is the first tool number the firmware reserves for
	// itself (T255 unload, T1000 nozzle-only moves); it never selects a filament.
	ToolHousekeeping = 255
)

// Word is one letter/address pair of a block, e.g. "G1", "X10.5" or "T2".
type Word struct {
	letter byte
	addr   string
}

func (w *Word) Letter() byte {
	return w.letter
}

func (w *Word) HasAddr() bool {
	return len(w.addr) > 0
}

func (w *Word) Addr() string {
	return w.addr
}

// Int parses the address as a base 10 integer.
func (w *Word) Int() (int, error) {
	i64, err := ParseInt([]byte(w.addr))
	if err != nil {
		return 0, fmt.Errorf("%c%s: %w", w.letter, w.addr, err)
	}
	return int(i64), nil
}

func (w *Word) Is(s string) bool {
	return len(s) > 0 && w.letter == s[0] && w.addr == s[1:]
}

func (w *Word) String() string {
	return string(append([]byte{w.letter}, w.addr...))
}

func NewWord(letter byte, addr string) (*Word, error) {
	if err := isValidLetter(letter); err != nil {
		return nil, err
	}
	return &Word{letter: letter, addr: addr}, nil
}

func ParseWord(s string) (*Word, error) {
	if s == "" {
		return nil, ErrEmptyString
	}
	return NewWord(s[0], s[1:])
}

// Block is one parsed line of G-code: a command word, its parameters and
// the trailing comment.
type Block struct {
	cmd     *Word
	params  []*Word
	comment string
}

func (b *Block) Cmd() *Word {
	if b.cmd == nil {
		return &Word{}
	}
	return b.cmd
}

func (b *Block) Params() []*Word {
	if b.params == nil {
		return []*Word{}
	}
	return b.params
}

func (b *Block) Comment() string {
	return b.comment
}

func (b *Block) Is(s string) bool {
	return b.Cmd().Is(s)
}

func (b *Block) Param(letter byte) (*Word, bool) {
	for _, w := range b.Params() {
		if w.Letter() == letter {
			return w, true
		}
	}
	return nil, false
}

// ToolNum returns the filament slot a block selects. Only plain tool changes
// (Tn) and the AMS bracket commands (M620 Sn A / M621 Sn A) select a slot;
// everything else returns ErrNotTool.
func (b *Block) ToolNum() (int, error) {
	switch b.Cmd().Letter() {
	case 'T':
		return b.Cmd().Int()
	case 'M':
		if !b.Is("M620") && !b.Is("M621") {
			return -1, ErrNotTool
		}
		s, ok := b.Param('S')
		if !ok || !s.HasAddr() || !strings.HasSuffix(s.Addr(), "A") {
			return -1, ErrNotTool
		}
		w := &Word{letter: 'S', addr: strings.TrimSuffix(s.Addr(), "A")}
		return w.Int()
	}
	return -1, ErrNotTool
}

/*
Format formats the block with the given format string.

%c : command
%p : series of params
%m : comments
*/
func (b *Block) Format(format string) string {
	result := strings.Builder{}
	result.Grow(64)

	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 >= len(format) {
			result.WriteByte(format[i])
			continue
		}
		switch format[i+1] {
		case 'c':
			if b.cmd != nil {
				result.WriteString(b.cmd.String())
			}
		case 'p':
			for n, w := range b.Params() {
				if n > 0 {
					result.WriteString(WordSeparator)
				}
				result.WriteString(w.String())
			}
		case 'm':
			result.WriteString(b.comment)
		default:
			result.WriteByte(format[i])
			continue
		}
		i++
	}

	return result.String()
}

func (b *Block) String() string {
	return removeDuplicateSpaces(strings.TrimSpace(b.Format("%c %p %m")))
}

func ParseBlock(source string) (*Block, error) {
	if len(source) > 0 && (source[0] == ' ' || source[0] == '\t') {
		source = strings.TrimSpace(source)
	}

	if source == "" {
		return nil, ErrEmptyString
	}

	block := &Block{}

	// keep comments
	if i := strings.IndexByte(source, ';'); i != -1 {
		block.comment = strings.TrimSpace(source[i:])
		source = source[:i]
	}

	parse := prepareLineToParse(source)
	if parse == "" {
		return block, nil // only comments
	}

	words := make([]*Word, 0, 8)
	for _, field := range strings.Split(parse, " ") {
		if field == "" || isValidLetter(field[0]) != nil {
			continue
		}
		w, err := ParseWord(field)
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}

	if len(words) > 0 {
		block.cmd = words[0]
		block.params = words[1:]
	}

	return block, nil
}

// isValidLetter reports whether a word letter is acceptable G-code.
func isValidLetter(letter byte) error {
	if letter >= 'A' && letter <= 'Z' {
		return nil
	}
	return fmt.Errorf("gcode's word has invalid value: %v", letter)
}
