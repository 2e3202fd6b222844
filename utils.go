package main

import (
	"fmt"

	"github.com/printloop/printloop/engine"
)

func exitCode(k engine.Kind) int {
	if c, ok := exitCodes[k]; ok {
		return c
	}
	return ExitFailure
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
