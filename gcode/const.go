package gcode

import "regexp"

const (
	// settings keys written by the slicer into the CONFIG_BLOCK of each plate
	KeyFilamentColour = "filament_colour"
	KeyFilamentType   = "filament_type"
)

var (
	// toolchange command, the tool number is group 1
	reToolchange = regexp.MustCompile(`^\s*T([0-9]+)`)
	// AMS filament bracket, the slot is group 1
	reAMSBracket = regexp.MustCompile(`^\s*M62[01]\s+S([0-9]+)A`)
	// object label written in front of every labelled extrusion segment
	reObjectLabel = regexp.MustCompile(`^\s*;\s*start printing object, unique label id:\s*(-?[0-9]+)`)
)
