package gcode

import (
	"errors"
	"math"
	"strings"
)

var (
	ErrValueSyntax  = errors.New("invalid syntax")
	ErrIntegerRange = errors.New("value out of range")
)

const (
	maxUint64   = math.MaxUint64
	maxInt64    = math.MaxInt64
	absMinInt64 = 1 << 63
)

// Split splits a multi-value setting such as "#FFFFFF;#000000" or "0.4,0.4".
func Split(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	delimiter := ","
	if strings.Contains(s, ";") {
		delimiter = ";"
	}
	x := strings.Split(s, delimiter)
	for i, str := range x {
		x[i] = strings.TrimSpace(str)
	}
	return x
}

func ParseInt(b []byte) (int64, error) {
	if v, ok, overflow := parseInt(b); !ok {
		if overflow {
			return 0, ErrIntegerRange
		}
		return 0, ErrValueSyntax
	} else {
		return v, nil
	}
}

// About 2x faster then strconv.ParseInt because it only supports base 10
func parseInt(bytes []byte) (v int64, ok bool, overflow bool) {
	if len(bytes) == 0 {
		return 0, false, false
	}

	var neg bool = false
	if bytes[0] == '-' {
		neg = true
		bytes = bytes[1:]
	}
	if len(bytes) == 0 {
		return 0, false, false
	}

	var n uint64 = 0
	for _, c := range bytes {
		if c < '0' || c > '9' {
			return 0, false, false
		}
		if n > maxUint64/10 {
			return 0, false, true
		}
		n *= 10
		n1 := n + uint64(c-'0')
		if n1 < n {
			return 0, false, true
		}
		n = n1
	}

	if n > maxInt64 {
		if neg && n == absMinInt64 {
			return math.MinInt64, true, false
		}
		return 0, false, true
	}

	if neg {
		return -int64(n), true, false
	}
	return int64(n), true, false
}

// removeDuplicateSpaces removes all consecutive spaces in a string
func removeDuplicateSpaces(s string) string {
	var (
		sb        strings.Builder
		prevSpace = false
	)

	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			if !prevSpace {
				sb.WriteByte(s[i])
				prevSpace = true
			}
		} else {
			sb.WriteByte(s[i])
			prevSpace = false
		}
	}

	return sb.String()
}

// removeSpecialChars turns the escape characters \n, \t and \r into spaces
func removeSpecialChars(s string) string {
	return strings.Map(func(c rune) rune {
		switch c {
		case '\n', '\t', '\r':
			return ' '
		}
		return c
	}, s)
}

// prepareLineToParse normalises whitespace so a line can be split into words.
// It doesn't verify that s is a valid gcode line.
func prepareLineToParse(s string) string {
	s = removeSpecialChars(s)
	s = strings.TrimSpace(s)
	return removeDuplicateSpaces(s)
}
