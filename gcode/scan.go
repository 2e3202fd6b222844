package gcode

import (
	"strconv"
	"strings"
)

// ToolRef is one filament selection found in a G-code stream. Start and End
// are the byte offsets of the slot number inside the line, so the number can
// be replaced without touching anything else on the line.
type ToolRef struct {
	Line  int
	Tool  int
	Start int
	End   int
}

// Replace returns line with the referenced slot number swapped for tool.
func (r ToolRef) Replace(line string, tool int) string {
	return line[:r.Start] + strconv.Itoa(tool) + line[r.End:]
}

// ObjectRef is one object label found in a G-code stream.
type ObjectRef struct {
	Line int
	ID   string
}

// ScanTools returns every filament selection of the stream in line order.
// Housekeeping tools (>= ToolHousekeeping) are left out.
func ScanTools(lines []string) (refs []ToolRef, err error) {
	for n, line := range lines {
		loc := toolSpan(line)
		if loc == nil {
			continue
		}
		block, err := ParseBlock(line)
		if err != nil {
			return nil, err
		}
		tool, err := block.ToolNum()
		if err == ErrNotTool {
			continue
		} else if err != nil {
			return nil, err
		}
		if tool >= ToolHousekeeping {
			continue
		}
		refs = append(refs, ToolRef{Line: n, Tool: tool, Start: loc[0], End: loc[1]})
	}
	return refs, nil
}

func toolSpan(line string) []int {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return nil
	}
	var m []int
	switch trimmed[0] {
	case 'T':
		m = reToolchange.FindStringSubmatchIndex(line)
	case 'M':
		m = reAMSBracket.FindStringSubmatchIndex(line)
	}
	if m == nil {
		return nil
	}
	return m[2:4]
}

// ScanObjects returns every object label of the stream in line order.
func ScanObjects(lines []string) (refs []ObjectRef) {
	for n, line := range lines {
		if !strings.Contains(line, "unique label id") {
			continue
		}
		if m := reObjectLabel.FindStringSubmatch(line); m != nil {
			refs = append(refs, ObjectRef{Line: n, ID: m[1]})
		}
	}
	return refs
}
