// Package plate models one sliced plate of a print package: its G-code
// body, the objects and filaments the slicer declared for it, and the
// colour-change points found in the body.
package plate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/printloop/printloop/gcode"
)

var ErrInvalidPlate = errors.New("invalid plate")

// Filament is one filament slot a plate declares. ID is the 1-based slot
// number of the slicer metadata, Tool the T number the G-code uses for it.
type Filament struct {
	ID    int
	Tool  int
	Type  string
	Color string
}

type Object struct {
	ID   string
	Name string
}

// Record is what the package metadata says about a plate.
type Record struct {
	Index     int
	GcodeName string
	Thumbnail string
	Objects   []Object
	Filaments []Filament
}

// ColorPrimitive is a filament selection inside the body. Slot is the
// position of the selected filament in the plate's Filaments.
type ColorPrimitive struct {
	gcode.ToolRef
	Slot int
}

type Plate struct {
	Record
	Body       Body
	Primitives []ColorPrimitive
	// Estimate is the print time from the slicer header, 0 when missing.
	Estimate time.Duration
}

type Options struct {
	// Multicolor records the colour-change points of the body so they can
	// be rewritten later. Filament references are validated either way.
	Multicolor bool
}

func (p *Plate) String() string {
	return fmt.Sprintf("plate %d", p.Index)
}

// Parse builds a Plate from the raw G-code of one package entry and its
// metadata record. When the record declares no filaments they are taken
// from the body's filament_colour setting.
func Parse(text string, rec Record, opts Options) (*Plate, error) {
	body := NewBody(text)
	p := &Plate{Record: rec, Body: body, Estimate: gcode.EstimatedTime(body.lines)}

	if len(p.Filaments) == 0 {
		p.Filaments = filamentsFromSettings(body.lines)
	}

	slots := make(map[int]int, len(p.Filaments))
	for i, f := range p.Filaments {
		if _, dup := slots[f.Tool]; dup {
			return nil, fmt.Errorf("%w: %s declares filament %d twice", ErrInvalidPlate, p, f.ID)
		}
		slots[f.Tool] = i
	}

	refs, err := gcode.ScanTools(body.lines)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPlate, p, err)
	}
	for _, ref := range refs {
		slot, ok := slots[ref.Tool]
		if !ok {
			return nil, fmt.Errorf("%w: %s line %d references filament index %d but declares %d filament(s)",
				ErrInvalidPlate, p, ref.Line+1, ref.Tool, len(p.Filaments))
		}
		if opts.Multicolor {
			p.Primitives = append(p.Primitives, ColorPrimitive{ToolRef: ref, Slot: slot})
		}
	}

	if len(p.Objects) > 0 {
		declared := make(map[string]bool, len(p.Objects))
		for _, o := range p.Objects {
			declared[o.ID] = true
		}
		for _, ref := range gcode.ScanObjects(body.lines) {
			if !declared[ref.ID] {
				return nil, fmt.Errorf("%w: %s line %d prints object %s which is not among its %d declared object(s)",
					ErrInvalidPlate, p, ref.Line+1, ref.ID, len(p.Objects))
			}
		}
	}

	return p, nil
}

func filamentsFromSettings(lines []string) []Filament {
	colors := gcode.Split(gcode.Lookup(lines, gcode.KeyFilamentColour))
	types := gcode.Split(gcode.Lookup(lines, gcode.KeyFilamentType))
	var fs []Filament
	for i, c := range colors {
		f := Filament{ID: i + 1, Tool: i, Color: strings.ToUpper(c)}
		if i < len(types) {
			f.Type = types[i]
		}
		fs = append(fs, f)
	}
	return fs
}
