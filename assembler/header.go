package assembler

import (
	"fmt"
	"strings"

	"github.com/printloop/printloop/planner"
	"github.com/printloop/printloop/plate"
)

const (
	Mark = "; Postprocessed by printloop"

	markerPrefix = "; ===== printloop job "

	processedHead = 500
)

func H(s string, p ...any) string {
	return fmt.Sprintf(s, p...) + "\n"
}

func writeHeader(sb *strings.Builder, jobs []planner.Job) {
	mode := "single colour"
	if jobs[0].Variant != nil {
		mode = "multicolour"
	}
	plates := map[int]bool{}
	for _, j := range jobs {
		plates[j.Plate.Index] = true
	}

	sb.WriteString(H(Mark))
	sb.WriteString(H("; printloop_jobs: %d", len(jobs)))
	sb.WriteString(H("; printloop_source_plates: %d", len(plates)))
	sb.WriteString(H("; printloop_colour_mode: %s", mode))
	for k, j := range jobs {
		sb.WriteString(H("; printloop_job %d: %s", k+1, j))
	}
	sb.WriteString(H("; printloop header end"))
}

func beginMarker(k, total int, j planner.Job) string {
	return H("%s%d/%d begin: plate %d copy %d/%d =====", markerPrefix, k+1, total, j.Plate.Index, j.Ordinal+1, j.Count)
}

func endMarker(k, total int, j planner.Job) string {
	return H("%s%d/%d end: plate %d copy %d/%d =====", markerPrefix, k+1, total, j.Plate.Index, j.Ordinal+1, j.Count)
}

// CountJobs returns the number of job bodies in an assembled stream.
func CountJobs(gcode string) int {
	n := 0
	for _, line := range strings.Split(gcode, "\n") {
		if strings.HasPrefix(line, markerPrefix) && strings.Contains(line, " begin: ") {
			n++
		}
	}
	return n
}

// Processed reports whether a body already went through Assemble. The mark
// and the first job marker sit right below the start sequence, so only the
// head is searched.
func Processed(b plate.Body) bool {
	for i := 0; i < b.Len() && i < processedHead; i++ {
		if l := b.Line(i); strings.HasPrefix(l, Mark) || strings.HasPrefix(l, markerPrefix) {
			return true
		}
	}
	return false
}
