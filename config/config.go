// Package config collects the options of a print loop run from an optional
// YAML job file and the command line.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/printloop/printloop/engine"
	"github.com/printloop/printloop/planner"
	"github.com/printloop/printloop/threemf"
)

const (
	EnvLogLevel = "PRINTLOOP_LOG_LEVEL"

	packageExt = ".gcode.3mf"
)

var ErrConfig = errors.New("invalid configuration")

// Job is the content of a job file. Zero fields take their defaults.
type Job struct {
	Output     string  `yaml:"output"`
	Mode       string  `yaml:"mode"`
	Count      int     `yaml:"count"`
	Counts     []int   `yaml:"counts"`
	Multicolor bool    `yaml:"multicolor"`
	ColorCycle string  `yaml:"color_cycle"`
	Variants   [][]int `yaml:"variants"`
	Layout     string  `yaml:"layout"`
	Force      bool    `yaml:"force"`
}

// Default returns the job used when neither a file nor a flag says otherwise.
func Default() Job {
	return Job{
		Mode:       string(planner.ModeSimple),
		Count:      1,
		ColorCycle: string(planner.CycleAlternate),
		Layout:     string(threemf.LayoutMerged),
	}
}

// Load reads a job file over the defaults. Unknown keys are an error.
func Load(path string) (Job, error) {
	job := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return job, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := yaml.UnmarshalStrict(data, &job); err != nil {
		return job, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}
	return job, nil
}

// Spec returns the repetition spec of the job.
func (j Job) Spec() (planner.RepetitionSpec, error) {
	mode, err := planner.ParseMode(j.Mode)
	if err != nil {
		return planner.RepetitionSpec{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	spec := planner.RepetitionSpec{Mode: mode, Count: j.Count}
	if mode == planner.ModeAdvanced && len(j.Counts) > 0 {
		spec.Counts = append([]int(nil), j.Counts...)
	}
	if spec.Count < 0 {
		return spec, fmt.Errorf("%w: negative count %d", ErrConfig, spec.Count)
	}
	return spec, nil
}

// Request builds the engine request for input.
func (j Job) Request(input string, logger hclog.Logger) (engine.Request, error) {
	spec, err := j.Spec()
	if err != nil {
		return engine.Request{}, err
	}
	cycle, err := planner.ParseCycle(j.ColorCycle)
	if err != nil {
		return engine.Request{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	layout, err := threemf.ParseLayout(j.Layout)
	if err != nil {
		return engine.Request{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if len(j.Variants) > 0 && !j.Multicolor {
		return engine.Request{}, fmt.Errorf("%w: colour variants are only used with multicolor", ErrConfig)
	}
	for i, vs := range j.Variants {
		for _, v := range vs {
			if v < 0 {
				return engine.Request{}, fmt.Errorf("%w: negative colour variant %d for plate %d", ErrConfig, v, i+1)
			}
		}
	}

	output := j.Output
	if output == "" {
		output = DefaultOutput(input, spec)
	}
	return engine.Request{
		Input:      input,
		Output:     output,
		Spec:       spec,
		Multicolor: j.Multicolor,
		Cycle:      cycle,
		Variants:   j.Variants,
		Layout:     layout,
		Force:      j.Force,
		Logger:     logger,
	}, nil
}

// DefaultOutput names the output next to input: <base>_x<count> for a
// simple run, <base>_loop for an advanced one.
func DefaultOutput(input string, spec planner.RepetitionSpec) string {
	dir, base := filepath.Split(input)
	switch {
	case strings.HasSuffix(strings.ToLower(base), packageExt):
		base = base[:len(base)-len(packageExt)]
	default:
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	suffix := "_loop"
	if spec.Mode == planner.ModeSimple {
		suffix = fmt.Sprintf("_x%d", spec.Count)
	}
	return filepath.Join(dir, base+suffix+packageExt)
}

// LogLevel returns the level named by flag, falling back to the
// environment and then to info.
func LogLevel(flag string) hclog.Level {
	if flag == "" {
		flag = os.Getenv(EnvLogLevel)
	}
	if l := hclog.LevelFromString(flag); l != hclog.NoLevel {
		return l
	}
	return hclog.Info
}

// Flags are the job flags of the run command.
type Flags struct {
	*pflag.FlagSet

	Config   string
	LogLevel string

	job      Job
	advanced bool
}

// NewFlags registers the job flags on a new flag set called name.
func NewFlags(name string) *Flags {
	f := &Flags{
		FlagSet: pflag.NewFlagSet(name, pflag.ContinueOnError),
	}
	d := Default()

	f.StringVarP(&f.job.Output, "output", "o", "", "Output package (default <input>_x<count>.gcode.3mf)")
	f.IntVarP(&f.job.Count, "count", "n", d.Count, "Copies of every plate")
	f.IntSliceVar(&f.job.Counts, "counts", nil, "Copies per plate, in plate order (advanced mode)")
	f.BoolVar(&f.advanced, "advanced", false, "Give every plate its own count")
	f.BoolVar(&f.job.Multicolor, "multicolor", false, "Cycle the colours of multicolour plates between copies")
	f.StringVar(&f.job.ColorCycle, "color-cycle", d.ColorCycle, "Colour cycle of multicolour copies: alternate or repeat")
	f.StringVar(&f.job.Layout, "layout", d.Layout, "Output layout: merged (one plate) or split (a plate per copy)")
	f.BoolVar(&f.job.Force, "force", false, "Process a package that already went through printloop")
	f.StringVar(&f.Config, "config", "", "YAML job file")
	f.StringVar(&f.LogLevel, "log-level", "", "Log level: trace, debug, info, warn or error (default $"+EnvLogLevel+" or info)")

	f.SetInterspersed(true)
	return f
}

// Job returns the job of the parsed flags. Options come from the job file
// named by --config, if any, with flags given on the command line on top.
func (f *Flags) Job() (Job, error) {
	job := Default()
	if f.Config != "" {
		var err error
		if job, err = Load(f.Config); err != nil {
			return job, err
		}
	}

	if f.Changed("output") {
		job.Output = f.job.Output
	}
	if f.Changed("count") {
		job.Count = f.job.Count
	}
	if f.Changed("counts") {
		job.Counts = f.job.Counts
		job.Mode = string(planner.ModeAdvanced)
	}
	if f.Changed("advanced") {
		if f.advanced {
			job.Mode = string(planner.ModeAdvanced)
		} else {
			job.Mode = string(planner.ModeSimple)
		}
	}
	if f.Changed("multicolor") {
		job.Multicolor = f.job.Multicolor
	}
	if f.Changed("color-cycle") {
		job.ColorCycle = f.job.ColorCycle
	}
	if f.Changed("layout") {
		job.Layout = f.job.Layout
	}
	if f.Changed("force") {
		job.Force = f.job.Force
	}
	return job, nil
}
