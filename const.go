package main

import "github.com/printloop/printloop/engine"

const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitUsage        = 2
	ExitMalformed    = 3
	ExitUnsupported  = 4
	ExitInvalidPlate = 5
	ExitColor        = 6
	ExitWrite        = 7
	ExitInterrupted  = 130
)

var exitCodes = map[engine.Kind]int{
	engine.KindNone:               ExitOK,
	engine.KindEmptyJobList:       ExitOK,
	engine.KindInvalidRequest:     ExitUsage,
	engine.KindMalformedPackage:   ExitMalformed,
	engine.KindUnsupportedVersion: ExitUnsupported,
	engine.KindInvalidPlate:       ExitInvalidPlate,
	engine.KindColorSubstitution:  ExitColor,
	engine.KindWrite:              ExitWrite,
	engine.KindCanceled:           ExitInterrupted,
}
