// Package assembler renders a job list into one G-code stream: the start
// sequence once, every job's body separated by the transition sequence, and
// the end sequence once.
package assembler

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/printloop/printloop/planner"
	"github.com/printloop/printloop/plate"
	"github.com/printloop/printloop/sequence"
)

var ErrColorSubstitution = errors.New("colour substitution error")

// Segment is the part of the stream that belongs to one job. Concatenating
// all segments in order gives the whole stream.
type Segment struct {
	Job  planner.Job
	Text string
}

// OutputPlate describes one plate of the rewritten package. Copies of the
// same source plate share its thumbnail.
type OutputPlate struct {
	Index     int
	Source    *plate.Plate
	Thumbnail string
}

type Output struct {
	Segments []Segment
	Plates   []OutputPlate
}

// WriteTo writes the whole stream.
func (o *Output) WriteTo(w io.Writer) (n int64, err error) {
	for _, s := range o.Segments {
		m, err := io.WriteString(w, s.Text)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (o *Output) String() string {
	var sb strings.Builder
	o.WriteTo(&sb)
	return sb.String()
}

type Options struct {
	Logger hclog.Logger
}

// Assemble renders jobs in order. Source plates are only read; each job
// gets a freshly rendered copy of its plate's body.
func Assemble(jobs []planner.Job, opts Options) (*Output, error) {
	if len(jobs) == 0 {
		return nil, planner.ErrEmptyJobList
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	out := &Output{
		Segments: make([]Segment, 0, len(jobs)),
		Plates:   make([]OutputPlate, 0, len(jobs)),
	}
	for k, job := range jobs {
		edits, err := Substitution(job.Plate, job.Variant)
		if err != nil {
			return nil, fmt.Errorf("job %d (%s): %w", k+1, job, err)
		}

		var sb strings.Builder
		sb.Grow(job.Plate.Body.Size() + len(sequence.Transition) + 256)
		if k == 0 {
			sb.WriteString(sequence.Start)
			writeHeader(&sb, jobs)
		}
		sb.WriteString(beginMarker(k, len(jobs), job))
		body := job.Plate.Body.Render(edits)
		sb.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			sb.WriteByte('\n')
		}
		sb.WriteString(endMarker(k, len(jobs), job))
		if k < len(jobs)-1 {
			sb.WriteString(sequence.Transition)
		} else {
			sb.WriteString(sequence.End)
		}

		out.Segments = append(out.Segments, Segment{Job: job, Text: sb.String()})
		out.Plates = append(out.Plates, OutputPlate{
			Index:     k + 1,
			Source:    job.Plate,
			Thumbnail: job.Plate.Thumbnail,
		})
		logger.Debug("assembled job", "job", k+1, "plate", job.Plate.Index, "copy", job.Ordinal+1, "edits", len(edits))
	}

	return out, nil
}

// Substitution returns the line edits that render p in colour variant v.
// Variant 0 and a nil variant leave the body as sliced; variant k moves every
// colour change k slots further along the plate's declared filaments.
func Substitution(p *plate.Plate, v *int) (map[int]string, error) {
	if v == nil || *v == 0 {
		return nil, nil
	}
	n := len(p.Filaments)
	if *v < 0 || *v >= n {
		return nil, fmt.Errorf("%w: %s has no colour variant %d, it declares %d filament(s)", ErrColorSubstitution, p, *v, n)
	}
	edits := make(map[int]string, len(p.Primitives))
	for _, c := range p.Primitives {
		if c.Slot < 0 || c.Slot >= n {
			return nil, fmt.Errorf("%w: %s line %d selects undeclared slot %d", ErrColorSubstitution, p, c.Line+1, c.Slot)
		}
		tool := p.Filaments[(c.Slot+*v)%n].Tool
		edits[c.Line] = c.Replace(p.Body.Line(c.Line), tool)
	}
	return edits, nil
}
