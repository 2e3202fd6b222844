package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"

	"github.com/printloop/printloop/config"
	"github.com/printloop/printloop/engine"
	"github.com/printloop/printloop/sequence"
)

func newLogger(level string, out io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "printloop",
		Output: out,
		Level:  config.LogLevel(level),
	})
}

func cmdRun(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f := config.NewFlags("run")
	f.SetOutput(stderr)
	f.Usage = func() { printUsage(stderr, f.FlagSet) }
	if err := f.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}
	if f.NArg() != 1 {
		printUsage(stderr, f.FlagSet)
		return ExitUsage
	}

	logger := newLogger(f.LogLevel, stderr)
	job, err := f.Job()
	if err != nil {
		logger.Error("bad job", "error", err)
		return ExitUsage
	}
	req, err := job.Request(f.Arg(0), logger)
	if err != nil {
		logger.Error("bad job", "error", err)
		return ExitUsage
	}

	res, err := engine.Run(ctx, req)
	kind := engine.KindOf(err)
	switch kind {
	case engine.KindNone:
		fmt.Fprintf(stdout, "%s: %d job(s) on %s\n", res.Output, len(res.Jobs), plural(res.Plates, "plate"))
	case engine.KindEmptyJobList:
		fmt.Fprintf(stdout, "nothing to print: every plate has a count of 0\n")
	default:
		logger.Error("print loop failed", "kind", kind, "error", err)
	}
	return exitCode(kind)
}

func cmdPlates(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("plates", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	level := fs.String("log-level", "", "Log level")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: printloop plates <package.gcode.3mf>")
		return ExitUsage
	}

	logger := newLogger(*level, stderr)
	pkg, err := engine.Inspect(fs.Arg(0), logger)
	if err != nil {
		kind := engine.KindOf(err)
		logger.Error("cannot read package", "kind", kind, "error", err)
		return exitCode(kind)
	}

	fmt.Fprintf(stdout, "%s: %s, %s\n", pkg.Path, pkg.Printer, plural(len(pkg.Plates), "plate"))
	for _, p := range pkg.Plates {
		names := make([]string, 0, len(p.Objects))
		for _, o := range p.Objects {
			names = append(names, o.Name)
		}
		colors := make([]string, 0, len(p.Filaments))
		for _, fl := range p.Filaments {
			colors = append(colors, fmt.Sprintf("%s %s", fl.Type, fl.Color))
		}
		thumb := p.Thumbnail
		if thumb == "" {
			thumb = "-"
		}
		fmt.Fprintf(stdout, "  plate %d: %s [%s] thumbnail %s", p.Index,
			orDash(strings.Join(names, ", ")), orDash(strings.Join(colors, ", ")), thumb)
		if p.Estimate > 0 {
			fmt.Fprintf(stdout, " time %s", p.Estimate)
		}
		fmt.Fprintln(stdout)
	}
	return ExitOK
}

func cmdExport(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("export-gcode", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}
	dir := "."
	switch fs.NArg() {
	case 0:
	case 1:
		dir = fs.Arg(0)
	default:
		fmt.Fprintln(stderr, "usage: printloop export-gcode [dir]")
		return ExitUsage
	}

	written, err := sequence.Export(dir)
	for _, p := range written {
		fmt.Fprintln(stdout, p)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitWrite
	}
	return ExitOK
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr, config.NewFlags("run").FlagSet)
		return ExitUsage
	}
	switch args[0] {
	case "-h", "--help", "help":
		printUsage(stdout, config.NewFlags("run").FlagSet)
		return ExitOK
	case "-v", "--version", "version":
		fmt.Fprintf(stdout, "printloop %s\n", Version)
		return ExitOK
	case "plates":
		return cmdPlates(args[1:], stdout, stderr)
	case "export-gcode":
		return cmdExport(args[1:], stdout, stderr)
	case "run":
		args = args[1:]
	}
	return cmdRun(ctx, args, stdout, stderr)
}

func main() {
	startCPUProfile()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	stopCPUProfile()
	writeMemProfile()
	os.Exit(code)
}
