package gcode

import "strings"

// settingsTail bounds the backward search for "; key = value" lines; the
// slicer writes its config block at the head of the file and PrusaSlicer
// derivatives at the tail, so both ends are searched.
const settingsTail = 1000

// Setting returns the value of a "; key = value" comment line when it
// carries one of the keys.
func Setting(line string, keys ...string) (v string, ok bool) {
	strlen := len(line)
	if strlen < 5 || line[0] != ';' {
		return "", false
	}
	for _, key := range keys {
		if strlen < len(key)+4 {
			continue
		}
		prefix := "; " + key + " ="
		if strings.HasPrefix(line, prefix) {
			if v := strings.TrimSpace(line[len(prefix):]); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// Lookup finds the first non-empty value of any of the keys in the leading
// and trailing settingsTail lines.
func Lookup(lines []string, keys ...string) string {
	head := len(lines)
	if head > settingsTail {
		head = settingsTail
	}
	for _, line := range lines[:head] {
		if v, ok := Setting(line, keys...); ok {
			return v
		}
	}

	i := len(lines) - 1
	j := max(i-settingsTail, head)
	for ; i >= j; i-- {
		if v, ok := Setting(lines[i], keys...); ok {
			return v
		}
	}
	return ""
}

func max(a, b int) int {
	if a >= b {
		return a
	}
	return b
}
