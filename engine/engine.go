// Package engine runs one print loop: it reads a package, plans the copies,
// assembles the G-code and writes the new package. Runs share no state and
// may be executed side by side.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/printloop/printloop/assembler"
	"github.com/printloop/printloop/planner"
	"github.com/printloop/printloop/threemf"
)

var ErrInvalidRequest = errors.New("invalid request")

type Request struct {
	Input  string
	Output string

	Spec       planner.RepetitionSpec
	Multicolor bool
	Cycle      planner.Cycle
	Variants   [][]int
	Layout     threemf.Layout
	// Force processes a package that already carries printloop output.
	Force bool

	Logger hclog.Logger
}

func (r Request) validate() error {
	switch {
	case r.Input == "":
		return fmt.Errorf("%w: no input package", ErrInvalidRequest)
	case r.Output == "":
		return fmt.Errorf("%w: no output path", ErrInvalidRequest)
	}
	return nil
}

type Result struct {
	RunID   string
	Output  string
	Jobs    []planner.Job
	Plates  int
	Elapsed time.Duration
}

// Run processes one package. On error nothing is written to req.Output.
func Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	logger := req.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	res := &Result{RunID: uuid.NewString(), Output: req.Output}
	logger = logger.With("run", res.RunID)
	start := time.Now()

	logger.Info("reading package", "input", req.Input)
	pkg, err := threemf.Read(req.Input, threemf.ReadOptions{
		Multicolor: req.Multicolor,
		Logger:     logger.Named("reader"),
	})
	if err != nil {
		return nil, err
	}
	for _, p := range pkg.Plates {
		if !assembler.Processed(p.Body) {
			continue
		}
		if !req.Force {
			return nil, fmt.Errorf("%w: %s was already processed by printloop", threemf.ErrMalformedPackage, p)
		}
		logger.Warn("processing printloop output again", "plate", p.Index)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jobs, err := planner.Plan(pkg.Plates, expand(req.Spec, len(pkg.Plates)), planner.Options{
		Multicolor: req.Multicolor,
		Cycle:      req.Cycle,
		Variants:   req.Variants,
		Logger:     logger.Named("planner"),
	})
	if err != nil {
		return nil, err
	}
	res.Jobs = jobs

	out, err := assembler.Assemble(jobs, assembler.Options{Logger: logger.Named("assembler")})
	if err != nil {
		return nil, err
	}

	layout := req.Layout
	if layout == "" {
		layout = threemf.LayoutMerged
	}
	if err := threemf.Write(ctx, req.Output, pkg, out, threemf.WriteOptions{
		Layout: layout,
		Logger: logger.Named("writer"),
	}); err != nil {
		return nil, err
	}
	if layout == threemf.LayoutSplit {
		res.Plates = len(out.Plates)
	} else {
		res.Plates = 1
	}
	res.Elapsed = time.Since(start)

	logger.Info("print loop written", "output", req.Output, "jobs", len(jobs), "plates", res.Plates,
		"elapsed", res.Elapsed)
	return res, nil
}

// expand turns an advanced spec without per-plate counts into one that sets
// every plate to Count.
func expand(spec planner.RepetitionSpec, plates int) planner.RepetitionSpec {
	if spec.Mode != planner.ModeAdvanced || spec.Counts != nil {
		return spec
	}
	spec.Counts = make([]int, plates)
	for i := range spec.Counts {
		spec.Counts[i] = spec.Count
	}
	return spec
}

// Inspect reads a package for listing its plates.
func Inspect(path string, logger hclog.Logger) (*threemf.Package, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return threemf.Read(path, threemf.ReadOptions{Logger: logger.Named("reader")})
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
