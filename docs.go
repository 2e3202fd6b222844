package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/printloop/printloop/sequence"
)

var (
	Version = "dev"
)

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	usage := `Repeat the plates of a sliced print package in one unattended print loop.
printloop %s

Usage:

  printloop [run] [flags] <package.gcode.3mf>
  printloop plates <package.gcode.3mf>
  printloop export-gcode [dir]

Between two copies the bed cools to %d°C and is pushed fully forward so the
finished part slides off before the next copy starts. Slice the package for a
Bambu Lab A1 with the start and end G-code written by export-gcode.

The default merged layout stores the whole loop as one plate; use
--layout split to get one plate per copy when re-importing the package.

Flags:
`
	fmt.Fprintf(w, usage, Version, sequence.ReleaseTemp)
	fmt.Fprint(w, fs.FlagUsages())
}
