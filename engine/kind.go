package engine

import (
	"errors"

	"github.com/printloop/printloop/assembler"
	"github.com/printloop/printloop/planner"
	"github.com/printloop/printloop/plate"
	"github.com/printloop/printloop/threemf"
)

// Kind classifies the failure of a run for the caller.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidRequest
	KindMalformedPackage
	KindUnsupportedVersion
	KindInvalidPlate
	KindEmptyJobList
	KindColorSubstitution
	KindWrite
	KindCanceled
	KindUnknown
)

var kindNames = [...]string{
	KindNone:               "none",
	KindInvalidRequest:     "invalid request",
	KindMalformedPackage:   "malformed package",
	KindUnsupportedVersion: "unsupported version",
	KindInvalidPlate:       "invalid plate",
	KindEmptyJobList:       "empty job list",
	KindColorSubstitution:  "colour substitution error",
	KindWrite:              "write error",
	KindCanceled:           "canceled",
	KindUnknown:            "unknown",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{threemf.ErrWrite, KindWrite},
	{ErrInvalidRequest, KindInvalidRequest},
	{planner.ErrInvalidSpec, KindInvalidRequest},
	{threemf.ErrMalformedPackage, KindMalformedPackage},
	{threemf.ErrUnsupportedVersion, KindUnsupportedVersion},
	{plate.ErrInvalidPlate, KindInvalidPlate},
	{planner.ErrEmptyJobList, KindEmptyJobList},
	{assembler.ErrColorSubstitution, KindColorSubstitution},
}

// KindOf returns the kind of err, KindNone for a nil error.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	// a write cut short by cancellation wraps both ErrWrite and the context error
	if isCanceled(err) {
		return KindCanceled
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}
