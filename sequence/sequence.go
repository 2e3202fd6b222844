// Package sequence holds the machine G-code a print loop wraps around the
// sliced plate bodies.
//
// Start runs once before the first copy: it switches automatic bed leveling
// off, homes, heats and purges. Transition runs between two copies: it cools
// the bed to the release temperature, pushes the bed fully forward so the
// part slides off, and primes again. End runs once after the last copy: the
// same release, followed by a full shutdown.
package sequence

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

// ReleaseTemp is the bed temperature, in °C, the release step waits for.
const ReleaseTemp = 20

var (
	//go:embed fragments/calibration.gcode
	calibration string
	//go:embed fragments/prime.gcode
	prime string
	//go:embed fragments/release.gcode
	release string
	//go:embed fragments/shutdown.gcode
	shutdown string
)

var (
	Start      = calibration + prime
	Transition = release + prime
	End        = release + shutdown
)

// Files maps the names the fragments are exported under to their text.
var Files = []struct {
	Name string
	Text string
}{
	{"Start_A1_PrintLoop.txt", Start},
	{"Transition_A1_PrintLoop.txt", Transition},
	{"End_A1_PrintLoop.txt", End},
}

// Export writes the fragments to dir as plain text for pasting into the
// slicer's machine G-code settings. It returns the written paths.
func Export(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	var written []string
	for _, f := range Files {
		p := filepath.Join(dir, f.Name)
		if err := os.WriteFile(p, []byte(f.Text), 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", p, err)
		}
		written = append(written, p)
	}
	return written, nil
}
