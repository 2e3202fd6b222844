package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/printloop/printloop/assembler"
	"github.com/printloop/printloop/planner"
	"github.com/printloop/printloop/plate"
	"github.com/printloop/printloop/sequence"
	"github.com/printloop/printloop/threemf"
	"github.com/printloop/printloop/threemf/threemftest"
)

func cube() threemftest.Plate {
	return threemftest.Plate{
		Gcode:      threemftest.Body("74", 0),
		Colors:     []string{"#FF0000"},
		Objects:    []threemftest.Object{{ID: "74", Name: "Cube"}},
		Prediction: 600,
		Weight:     3.5,
	}
}

func ring() threemftest.Plate {
	return threemftest.Plate{
		Gcode:      threemftest.Body("118", 0, 1),
		Colors:     []string{"#FF0000", "#00FF00"},
		Objects:    []threemftest.Object{{ID: "118", Name: "Ring"}},
		Prediction: 1200,
		Weight:     7.25,
	}
}

func outPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "out", "loop.gcode.3mf")
}

func noFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("%s exists after a failed run (stat err = %v)", path, err)
	}
}

// inOrder reports whether every part occurs in s after the previous one.
func inOrder(s string, parts ...string) error {
	at := 0
	for i, p := range parts {
		j := strings.Index(s[at:], p)
		if j < 0 {
			return fmt.Errorf("part %d not found after offset %d", i, at)
		}
		at += j + len(p)
	}
	return nil
}

func TestRunSimpleSingleColour(t *testing.T) {
	in := threemftest.WriteFile(t, threemftest.Package{Plates: []threemftest.Plate{cube()}})
	out := outPath(t)

	res, err := Run(context.Background(), Request{
		Input:  in,
		Output: out,
		Spec:   planner.RepetitionSpec{Mode: planner.ModeSimple, Count: 3},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Jobs) != 3 || res.Plates != 1 || res.RunID == "" {
		t.Errorf("result = %d jobs, %d plates, run %q", len(res.Jobs), res.Plates, res.RunID)
	}

	pkg, err := threemf.Read(out, threemf.ReadOptions{})
	if err != nil {
		t.Fatalf("Read output: %v", err)
	}
	g := pkg.Plates[0].Body.String()
	body := threemftest.Body("74", 0)

	if !strings.HasPrefix(g, sequence.Start) {
		t.Errorf("output does not start with the start sequence")
	}
	if !strings.HasSuffix(g, sequence.End) {
		t.Errorf("output does not end with the end sequence")
	}
	if n := strings.Count(g, sequence.Transition); n != 2 {
		t.Errorf("%d transitions, want 2", n)
	}
	if n := strings.Count(g, body); n != 3 {
		t.Errorf("%d bodies, want 3", n)
	}
	if err := inOrder(g, sequence.Start, body, sequence.Transition, body, sequence.Transition, body, sequence.End); err != nil {
		t.Errorf("output order: %v", err)
	}
}

func TestRunAdvancedOrder(t *testing.T) {
	in := threemftest.WriteFile(t, threemftest.Package{Plates: []threemftest.Plate{cube(), ring()}})
	out := outPath(t)

	res, err := Run(context.Background(), Request{
		Input:  in,
		Output: out,
		Spec:   planner.RepetitionSpec{Mode: planner.ModeAdvanced, Counts: []int{2, 1}},
		Layout: threemf.LayoutSplit,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var order []int
	for _, j := range res.Jobs {
		order = append(order, j.Plate.Index)
	}
	if !reflect.DeepEqual(order, []int{1, 1, 2}) {
		t.Errorf("job order = %v, want [1 1 2]", order)
	}

	pkg, err := threemf.Read(out, threemf.ReadOptions{})
	if err != nil {
		t.Fatalf("Read output: %v", err)
	}
	if len(pkg.Plates) != 3 || res.Plates != 3 {
		t.Fatalf("output has %d plates (result says %d), want 3", len(pkg.Plates), res.Plates)
	}
	transitions := 0
	for k, want := range []string{"Cube", "Cube", "Ring"} {
		p := pkg.Plates[k]
		if len(p.Objects) != 1 || p.Objects[0].Name != want {
			t.Errorf("plate %d objects = %v, want %s", k+1, p.Objects, want)
		}
		if _, ok := pkg.Thumbnails[p.Thumbnail]; !ok {
			t.Errorf("plate %d thumbnail %q missing", k+1, p.Thumbnail)
		}
		transitions += strings.Count(p.Body.String(), sequence.Transition)
	}
	if transitions != 2 {
		t.Errorf("%d transitions, want 2", transitions)
	}
}

func TestRunZeroCountExcludesPlate(t *testing.T) {
	in := threemftest.WriteFile(t, threemftest.Package{Plates: []threemftest.Plate{cube(), ring()}})
	out := outPath(t)

	res, err := Run(context.Background(), Request{
		Input:  in,
		Output: out,
		Spec:   planner.RepetitionSpec{Mode: planner.ModeAdvanced, Counts: []int{0, 2}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, j := range res.Jobs {
		if j.Plate.Index == 1 {
			t.Errorf("plate 1 has a job: %s", j)
		}
	}
	pkg, err := threemf.Read(out, threemf.ReadOptions{})
	if err != nil {
		t.Fatalf("Read output: %v", err)
	}
	g := pkg.Plates[0].Body.String()
	if strings.Contains(g, "unique label id: 74") {
		t.Errorf("excluded plate body is in the output")
	}
	if n := assembler.CountJobs(g); n != 2 {
		t.Errorf("CountJobs = %d, want 2", n)
	}
}

func TestRunSetAllAdvanced(t *testing.T) {
	in := threemftest.WriteFile(t, threemftest.Package{Plates: []threemftest.Plate{cube(), ring()}})
	res, err := Run(context.Background(), Request{
		Input:  in,
		Output: outPath(t),
		Spec:   planner.RepetitionSpec{Mode: planner.ModeAdvanced, Count: 2},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Jobs) != 4 {
		t.Errorf("%d jobs, want 4", len(res.Jobs))
	}
}

func TestRunMulticolour(t *testing.T) {
	in := threemftest.WriteFile(t, threemftest.Package{Plates: []threemftest.Plate{ring()}})
	cases := []struct {
		cycle    planner.Cycle
		variants [][]int
		want     []int
	}{
		{planner.CycleAlternate, nil, []int{0, 1, 0}},
		{planner.CycleRepeat, nil, []int{0, 0, 0}},
		{"", [][]int{{1}}, []int{1, 1, 1}},
	}
	for _, c := range cases {
		res, err := Run(context.Background(), Request{
			Input:      in,
			Output:     outPath(t),
			Spec:       planner.RepetitionSpec{Mode: planner.ModeSimple, Count: 3},
			Multicolor: true,
			Cycle:      c.cycle,
			Variants:   c.variants,
		})
		if err != nil {
			t.Fatalf("%s: Run: %v", c.cycle, err)
		}
		var got []int
		for _, j := range res.Jobs {
			got = append(got, *j.Variant)
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("%s %v: variants = %v, want %v", c.cycle, c.variants, got, c.want)
		}
	}
}

func TestRunFailures(t *testing.T) {
	invalid := threemftest.Plate{
		Gcode:  threemftest.Body("", 0, 5),
		Colors: []string{"#FF0000", "#00FF00", "#0000FF"},
	}
	cases := []struct {
		name string
		pkg  threemftest.Package
		spec planner.RepetitionSpec
		mc   bool
		vars [][]int
		kind Kind
	}{
		{
			name: "filament index out of range",
			pkg:  threemftest.Package{Plates: []threemftest.Plate{invalid}},
			spec: planner.RepetitionSpec{Mode: planner.ModeSimple, Count: 1},
			kind: KindInvalidPlate,
		},
		{
			name: "all counts zero",
			pkg:  threemftest.Package{Plates: []threemftest.Plate{cube(), ring()}},
			spec: planner.RepetitionSpec{Mode: planner.ModeAdvanced, Counts: []int{0, 0}},
			kind: KindEmptyJobList,
		},
		{
			name: "count list too short",
			pkg:  threemftest.Package{Plates: []threemftest.Plate{cube(), ring()}},
			spec: planner.RepetitionSpec{Mode: planner.ModeAdvanced, Counts: []int{1}},
			kind: KindInvalidRequest,
		},
		{
			name: "unknown printer",
			pkg:  threemftest.Package{Printer: "C11", Plates: []threemftest.Plate{cube()}},
			spec: planner.RepetitionSpec{Mode: planner.ModeSimple, Count: 1},
			kind: KindUnsupportedVersion,
		},
		{
			name: "no slice info",
			pkg:  threemftest.Package{NoSliceInfo: true, Plates: []threemftest.Plate{cube()}},
			spec: planner.RepetitionSpec{Mode: planner.ModeSimple, Count: 1},
			kind: KindMalformedPackage,
		},
		{
			name: "colour variant out of range",
			pkg:  threemftest.Package{Plates: []threemftest.Plate{ring()}},
			spec: planner.RepetitionSpec{Mode: planner.ModeSimple, Count: 1},
			mc:   true,
			vars: [][]int{{2}},
			kind: KindColorSubstitution,
		},
	}
	for _, c := range cases {
		out := outPath(t)
		_, err := Run(context.Background(), Request{
			Input:      threemftest.WriteFile(t, c.pkg),
			Output:     out,
			Spec:       c.spec,
			Multicolor: c.mc,
			Variants:   c.vars,
		})
		if k := KindOf(err); k != c.kind {
			t.Errorf("%s: kind = %s (%v), want %s", c.name, k, err, c.kind)
		}
		noFile(t, out)
	}
}

func TestRunAlreadyProcessed(t *testing.T) {
	in := threemftest.WriteFile(t, threemftest.Package{Plates: []threemftest.Plate{cube()}})
	first := outPath(t)
	spec := planner.RepetitionSpec{Mode: planner.ModeSimple, Count: 2}
	if _, err := Run(context.Background(), Request{Input: in, Output: first, Spec: spec}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := outPath(t)
	_, err := Run(context.Background(), Request{Input: first, Output: second, Spec: spec})
	if !errors.Is(err, threemf.ErrMalformedPackage) {
		t.Fatalf("second run err = %v, want %v", err, threemf.ErrMalformedPackage)
	}
	noFile(t, second)

	res, err := Run(context.Background(), Request{Input: first, Output: second, Spec: spec, Force: true})
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if len(res.Jobs) != 2 {
		t.Errorf("forced run has %d jobs", len(res.Jobs))
	}
}

func TestRunCanceled(t *testing.T) {
	in := threemftest.WriteFile(t, threemftest.Package{Plates: []threemftest.Plate{cube()}})
	out := outPath(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, Request{Input: in, Output: out, Spec: planner.RepetitionSpec{Mode: planner.ModeSimple, Count: 1}})
	if k := KindOf(err); k != KindCanceled {
		t.Errorf("kind = %s (%v), want %s", k, err, KindCanceled)
	}
	noFile(t, out)
}

func TestRunInvalidRequest(t *testing.T) {
	for _, req := range []Request{
		{Output: "out.gcode.3mf"},
		{Input: "in.gcode.3mf"},
	} {
		if _, err := Run(context.Background(), req); KindOf(err) != KindInvalidRequest {
			t.Errorf("Run(%+v) err = %v, want an invalid request", req, err)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{fmt.Errorf("%w: x", threemf.ErrMalformedPackage), KindMalformedPackage},
		{fmt.Errorf("%w: x", threemf.ErrUnsupportedVersion), KindUnsupportedVersion},
		{fmt.Errorf("%w: x", plate.ErrInvalidPlate), KindInvalidPlate},
		{fmt.Errorf("%w: x", planner.ErrEmptyJobList), KindEmptyJobList},
		{fmt.Errorf("job 1: %w", assembler.ErrColorSubstitution), KindColorSubstitution},
		{fmt.Errorf("%w: %v", threemf.ErrWrite, context.Canceled), KindWrite},
		{fmt.Errorf("%w: %w", threemf.ErrWrite, context.Canceled), KindCanceled},
		{fmt.Errorf("%w: x", planner.ErrInvalidSpec), KindInvalidRequest},
		{context.DeadlineExceeded, KindCanceled},
		{errors.New("boom"), KindUnknown},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Errorf("KindOf(%v) = %s, want %s", c.err, got, c.want)
		}
	}
	if Kind(42).String() != "unknown" {
		t.Errorf("Kind(42) = %q", Kind(42).String())
	}
}
