// Package planner turns per-plate repetition counts into the ordered list of
// jobs the assembler renders.
package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/printloop/printloop/plate"
)

var (
	ErrEmptyJobList = errors.New("empty job list")
	ErrInvalidSpec  = errors.New("invalid repetition spec")
)

type Mode string

const (
	// ModeSimple applies one count to every plate.
	ModeSimple Mode = "simple"
	// ModeAdvanced takes one count per plate.
	ModeAdvanced Mode = "advanced"
)

// Cycle decides which colour variant each copy of a multicolour plate gets.
type Cycle string

const (
	// CycleAlternate rotates the colours by one slot on every copy.
	CycleAlternate Cycle = "alternate"
	// CycleRepeat prints every copy in the sliced colours.
	CycleRepeat Cycle = "repeat"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeSimple, ModeAdvanced:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidSpec, s)
}

func ParseCycle(s string) (Cycle, error) {
	switch c := Cycle(strings.ToLower(s)); c {
	case CycleAlternate, CycleRepeat:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown colour cycle %q", ErrInvalidSpec, s)
}

// RepetitionSpec says how often each plate is printed. A count of 0 leaves
// the plate out.
type RepetitionSpec struct {
	Mode   Mode
	Count  int
	Counts []int
}

// CountFor returns the number of copies of the plate at position i.
func (s RepetitionSpec) CountFor(i int) int {
	if s.Mode == ModeAdvanced {
		return s.Counts[i]
	}
	return s.Count
}

func (s RepetitionSpec) Validate(plates int) error {
	switch s.Mode {
	case ModeSimple:
		if s.Count < 0 {
			return fmt.Errorf("%w: negative count %d", ErrInvalidSpec, s.Count)
		}
	case ModeAdvanced:
		if len(s.Counts) != plates {
			return fmt.Errorf("%w: %d count(s) given for %d plate(s)", ErrInvalidSpec, len(s.Counts), plates)
		}
		for i, c := range s.Counts {
			if c < 0 {
				return fmt.Errorf("%w: negative count %d for plate %d", ErrInvalidSpec, c, i+1)
			}
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSpec, s.Mode)
	}
	return nil
}

// Job is one copy of one plate in the output stream.
type Job struct {
	Plate *plate.Plate
	// Ordinal is the 0-based copy number of the plate, Count the number of
	// copies of the plate in the whole run.
	Ordinal int
	Count   int
	// Variant is the colour variant to render, nil when colours are left
	// untouched.
	Variant *int
}

func (j Job) String() string {
	s := fmt.Sprintf("%s copy %d/%d", j.Plate, j.Ordinal+1, j.Count)
	if j.Variant != nil {
		s += fmt.Sprintf(" colour variant %d", *j.Variant)
	}
	return s
}

type Options struct {
	Multicolor bool
	Cycle      Cycle
	// Variants optionally lists, per plate position, the colour variants to
	// cycle through instead of Cycle.
	Variants [][]int
	Logger   hclog.Logger
}

// Plan orders the jobs plate by plate: every copy of the first plate comes
// before any copy of the second.
func Plan(plates []*plate.Plate, spec RepetitionSpec, opts Options) ([]Job, error) {
	if err := spec.Validate(len(plates)); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	cycle := opts.Cycle
	if cycle == "" {
		cycle = CycleAlternate
	}

	var jobs []Job
	for i, p := range plates {
		count := spec.CountFor(i)
		if count == 0 {
			logger.Debug("skipping plate", "plate", p.Index)
			continue
		}
		var explicit []int
		if i < len(opts.Variants) {
			explicit = opts.Variants[i]
		}
		for r := 0; r < count; r++ {
			job := Job{Plate: p, Ordinal: r, Count: count}
			if opts.Multicolor {
				v := variant(p, r, cycle, explicit)
				job.Variant = &v
			}
			jobs = append(jobs, job)
		}
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: every plate has a count of 0", ErrEmptyJobList)
	}
	logger.Debug("planned jobs", "jobs", len(jobs), "plates", len(plates), "cycle", cycle)
	return jobs, nil
}

func variant(p *plate.Plate, ordinal int, cycle Cycle, explicit []int) int {
	if len(explicit) > 0 {
		return explicit[ordinal%len(explicit)]
	}
	if cycle == CycleRepeat || len(p.Filaments) < 2 {
		return 0
	}
	return ordinal % len(p.Filaments)
}
