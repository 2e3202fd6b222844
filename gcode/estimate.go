package gcode

import (
	"strconv"
	"strings"
	"time"
)

var estimateKeys = []string{
	"total estimated time:",   // bbs header
	"estimated printing time", // prusaslicer derivatives
}

// ParseDuration reads slicer durations like "2d 12h 8m 58s".
func ParseDuration(s string) time.Duration {
	est := strings.ReplaceAll(s, " ", "")
	t := map[byte]int{'d': 0, 'h': 0, 'm': 0, 's': 0}
	for _, p := range []byte("dhms") {
		if i := strings.IndexByte(est, p); i >= 0 {
			t[p], _ = strconv.Atoi(est[0:i])
			est = est[i+1:]
		}
	}
	return time.Duration(t['d']*86400+t['h']*3600+t['m']*60+t['s']) * time.Second
}

// EstimatedTime returns the print time the slicer wrote into the header,
// 0 when there is none.
func EstimatedTime(lines []string) time.Duration {
	head := len(lines)
	if head > settingsTail {
		head = settingsTail
	}
	for _, line := range lines[:head] {
		if len(line) == 0 || line[0] != ';' {
			continue
		}
		for _, key := range estimateKeys {
			i := strings.Index(line, key)
			if i < 0 {
				continue
			}
			v := line[i+len(key):]
			if j := strings.IndexAny(v, "=:"); j >= 0 && !strings.HasSuffix(key, ":") {
				v = v[j+1:]
			}
			if j := strings.IndexByte(v, ';'); j >= 0 {
				v = v[:j]
			}
			return ParseDuration(v)
		}
	}
	return 0
}
