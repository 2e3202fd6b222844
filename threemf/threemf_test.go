package threemf

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/printloop/printloop/assembler"
	"github.com/printloop/printloop/planner"
	"github.com/printloop/printloop/plate"
	"github.com/printloop/printloop/threemf/threemftest"
)

func twoPlates() threemftest.Package {
	return threemftest.Package{
		Plates: []threemftest.Plate{
			{
				Gcode:      threemftest.Body("74", 0),
				Colors:     []string{"#FF0000"},
				Objects:    []threemftest.Object{{ID: "74", Name: "Cube"}},
				Prediction: 600,
				Weight:     3.5,
			},
			{
				Gcode:      threemftest.Body("118", 0, 1),
				Colors:     []string{"#FF0000", "#00FF00"},
				Objects:    []threemftest.Object{{ID: "118", Name: "Ring"}},
				Prediction: 1200,
				Weight:     7.25,
			},
		},
	}
}

func readBytes(t *testing.T, b []byte, opts ReadOptions) (*Package, error) {
	t.Helper()
	return ReadFrom(bytes.NewReader(b), int64(len(b)), opts)
}

func TestRead(t *testing.T) {
	path := threemftest.WriteFile(t, twoPlates())
	pkg, err := Read(path, ReadOptions{Multicolor: true})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if pkg.Path != path {
		t.Errorf("Path = %q", pkg.Path)
	}
	if pkg.Printer.Model != "A1" || pkg.ClientVersion != "01.10.01.50" {
		t.Errorf("Printer = %v, ClientVersion = %q", pkg.Printer, pkg.ClientVersion)
	}
	if len(pkg.Plates) != 2 {
		t.Fatalf("read %d plates, want 2", len(pkg.Plates))
	}
	p2 := pkg.Plates[1]
	if p2.Index != 2 || p2.GcodeName != "Metadata/plate_2.gcode" || p2.Thumbnail != "Metadata/plate_2.png" {
		t.Errorf("plate 2 record = %+v", p2.Record)
	}
	wantFilaments := []plate.Filament{
		{ID: 1, Tool: 0, Type: "PLA", Color: "#FF0000"},
		{ID: 2, Tool: 1, Type: "PLA", Color: "#00FF00"},
	}
	if !reflect.DeepEqual(p2.Filaments, wantFilaments) {
		t.Errorf("plate 2 filaments = %v, want %v", p2.Filaments, wantFilaments)
	}
	if !reflect.DeepEqual(p2.Objects, []plate.Object{{ID: "118", Name: "Ring"}}) {
		t.Errorf("plate 2 objects = %v", p2.Objects)
	}
	if len(p2.Primitives) != 6 {
		t.Errorf("plate 2 has %d colour changes, want 6", len(p2.Primitives))
	}
	if p2.Body.String() != threemftest.Body("118", 0, 1) {
		t.Errorf("plate 2 body differs from the archive entry")
	}
	if _, ok := pkg.Thumbnails["Metadata/plate_1_small.png"]; !ok {
		t.Errorf("thumbnails = %v", pkg.Thumbnails)
	}
}

func TestReadMalformed(t *testing.T) {
	badXML := twoPlates()
	badXML.SliceInfo = "<config><plate>"
	badIndex := twoPlates()
	badIndex.SliceInfo = `<config><plate><metadata key="index" value="one"/></plate></config>`

	cases := []struct {
		name string
		data []byte
	}{
		{"not a zip", []byte("PK but not really")},
		{"no slice info", threemftest.Build(t, threemftest.Package{NoSliceInfo: true, Plates: twoPlates().Plates})},
		{"bad xml", threemftest.Build(t, badXML)},
		{"bad plate index", threemftest.Build(t, badIndex)},
		{"extra gcode", threemftest.Build(t, threemftest.Package{ExtraGcode: 1, Plates: twoPlates().Plates})},
		{"no plates", threemftest.Build(t, threemftest.Package{})},
	}
	for _, c := range cases {
		if _, err := readBytes(t, c.data, ReadOptions{}); !errors.Is(err, ErrMalformedPackage) {
			t.Errorf("%s: err = %v, want %v", c.name, err, ErrMalformedPackage)
		}
	}

	if _, err := Read(filepath.Join(t.TempDir(), "missing.gcode.3mf"), ReadOptions{}); !errors.Is(err, ErrMalformedPackage) {
		t.Errorf("missing file: err = %v, want %v", err, ErrMalformedPackage)
	}
}

func TestReadUnsupportedVersion(t *testing.T) {
	for _, printer := range []string{"C11", "BL-P001"} {
		p := twoPlates()
		p.Printer = printer
		if _, err := readBytes(t, threemftest.Build(t, p), ReadOptions{}); !errors.Is(err, ErrUnsupportedVersion) {
			t.Errorf("printer %s: err = %v, want %v", printer, err, ErrUnsupportedVersion)
		}
	}
}

func TestReadInvalidPlate(t *testing.T) {
	p := threemftest.Package{Plates: []threemftest.Plate{{
		Gcode:  threemftest.Body("", 0, 5),
		Colors: []string{"#FF0000", "#00FF00", "#0000FF"},
	}}}
	if _, err := readBytes(t, threemftest.Build(t, p), ReadOptions{}); !errors.Is(err, plate.ErrInvalidPlate) {
		t.Errorf("err = %v, want %v", err, plate.ErrInvalidPlate)
	}
}

func TestReadWithoutModelSettings(t *testing.T) {
	p := twoPlates()
	p.NoModelSettings = true
	p.Plates[1].NoThumbnail = true
	pkg, err := readBytes(t, threemftest.Build(t, p), ReadOptions{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if pkg.Plates[0].Thumbnail != "Metadata/plate_1.png" || pkg.Plates[1].Thumbnail != "" {
		t.Errorf("thumbnails = %q, %q", pkg.Plates[0].Thumbnail, pkg.Plates[1].Thumbnail)
	}
}

func assemble(t *testing.T, pkg *Package, spec planner.RepetitionSpec, multicolor bool) *assembler.Output {
	t.Helper()
	jobs, err := planner.Plan(pkg.Plates, spec, planner.Options{Multicolor: multicolor})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	out, err := assembler.Assemble(jobs, assembler.Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return out
}

func TestWriteSplitRoundTrip(t *testing.T) {
	pkg, err := Read(threemftest.WriteFile(t, twoPlates()), ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	out := assemble(t, pkg, planner.RepetitionSpec{Mode: planner.ModeAdvanced, Counts: []int{2, 1}}, false)

	dst := filepath.Join(t.TempDir(), "out", "loop.gcode.3mf")
	if err := Write(context.Background(), dst, pkg, out, WriteOptions{Layout: LayoutSplit}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	back, err := Read(dst, ReadOptions{})
	if err != nil {
		t.Fatalf("Read back: %v", err)
	}
	if len(back.Plates) != 3 {
		t.Fatalf("read back %d plates, want 3", len(back.Plates))
	}
	var stream strings.Builder
	for k, p := range back.Plates {
		if p.Index != k+1 {
			t.Errorf("plate %d has index %d", k+1, p.Index)
		}
		if _, ok := back.Thumbnails[p.Thumbnail]; !ok {
			t.Errorf("plate %d thumbnail %q is not in the package", p.Index, p.Thumbnail)
		}
		stream.WriteString(p.Body.String())
	}
	if stream.String() != out.String() {
		t.Errorf("split plates do not concatenate to the assembled stream")
	}
	wantThumbs := []string{"Metadata/plate_1.png", "Metadata/plate_1.png", "Metadata/plate_2.png"}
	for k, want := range wantThumbs {
		if back.Plates[k].Thumbnail != want {
			t.Errorf("plate %d thumbnail = %q, want %q", k+1, back.Plates[k].Thumbnail, want)
		}
	}
}

func TestWriteMerged(t *testing.T) {
	src := threemftest.Build(t, twoPlates())
	pkg, err := readBytes(t, src, ReadOptions{Multicolor: true})
	if err != nil {
		t.Fatal(err)
	}
	out := assemble(t, pkg, planner.RepetitionSpec{Mode: planner.ModeSimple, Count: 2}, true)

	dst := filepath.Join(t.TempDir(), "loop.gcode.3mf")
	if err := Write(context.Background(), dst, pkg, out, WriteOptions{Layout: LayoutMerged}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	back, err := Read(dst, ReadOptions{})
	if err != nil {
		t.Fatalf("Read back: %v", err)
	}
	if len(back.Plates) != 1 {
		t.Fatalf("merged package has %d plates", len(back.Plates))
	}
	gcode, _ := back.Entry("Metadata/plate_1.gcode")
	if string(gcode) != out.String() {
		t.Errorf("plate_1.gcode differs from the assembled stream")
	}
	if n := assembler.CountJobs(string(gcode)); n != 4 {
		t.Errorf("CountJobs = %d, want 4", n)
	}
	sum := md5.Sum(gcode)
	if md5sum, _ := back.Entry("Metadata/plate_1.gcode.md5"); string(md5sum) != strings.ToUpper(hex.EncodeToString(sum[:])) {
		t.Errorf("md5 entry %q does not match", md5sum)
	}
	if _, ok := back.Entry("Metadata/plate_2.gcode"); ok {
		t.Errorf("source plate 2 G-code still in the merged package")
	}
	for _, name := range []string{"3D/3dmodel.model", "Metadata/plate_2.png", "Metadata/project_settings.config"} {
		a, _ := pkg.Entry(name)
		b, ok := back.Entry(name)
		if !ok || !bytes.Equal(a, b) {
			t.Errorf("%s not copied unchanged", name)
		}
	}

	p := back.Plates[0]
	if p.Thumbnail != "Metadata/plate_1.png" {
		t.Errorf("merged thumbnail = %q", p.Thumbnail)
	}
	if len(p.Objects) != 2 || len(p.Filaments) != 2 {
		t.Errorf("merged plate objects = %v, filaments = %v", p.Objects, p.Filaments)
	}
	sp := back.slicePlates[1]
	if got := get(sp.Metadata, keyPrediction); got != "3600" {
		t.Errorf("prediction = %s, want 3600", got)
	}
	if got := get(sp.Metadata, keyWeight); got != "21.50" {
		t.Errorf("weight = %s, want 21.50", got)
	}
	if len(sp.Rest) == 0 || sp.Rest[0].XMLName.Local != "warning" {
		t.Errorf("unknown plate elements were dropped: %v", sp.Rest)
	}
	if len(back.modelSettings.Objects) != 1 || len(back.modelSettings.Rest) != 1 {
		t.Errorf("model settings objects/assemble were dropped")
	}
}

func TestWriteLeavesNothingOnFailure(t *testing.T) {
	pkg, err := readBytes(t, threemftest.Build(t, twoPlates()), ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	out := assemble(t, pkg, planner.RepetitionSpec{Mode: planner.ModeSimple, Count: 1}, false)

	dir := t.TempDir()
	dst := filepath.Join(dir, "loop.gcode.3mf")
	if err := os.WriteFile(dst, []byte("previous"), 0644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Write(ctx, dst, pkg, out, WriteOptions{})
	if !errors.Is(err, ErrWrite) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Write with cancelled context err = %v, want %v wrapping %v", err, ErrWrite, context.Canceled)
	}
	if b, _ := os.ReadFile(dst); string(b) != "previous" {
		t.Errorf("destination was overwritten by a failed write")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("staging files left behind: %v", entries)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	blocked := filepath.Join(file, "loop.gcode.3mf")
	if err := Write(context.Background(), blocked, pkg, out, WriteOptions{}); !errors.Is(err, ErrWrite) {
		t.Errorf("Write below a file err = %v, want %v", err, ErrWrite)
	}
	if err := Write(context.Background(), dst, pkg, &assembler.Output{}, WriteOptions{}); !errors.Is(err, ErrWrite) {
		t.Errorf("Write of empty output err = %v, want %v", err, ErrWrite)
	}
	if err := Write(context.Background(), dst, pkg, out, WriteOptions{Layout: "zigzag"}); !errors.Is(err, ErrWrite) {
		t.Errorf("Write with unknown layout err = %v, want %v", err, ErrWrite)
	}
}

func TestParseLayout(t *testing.T) {
	if l, err := ParseLayout("Split"); err != nil || l != LayoutSplit {
		t.Errorf("ParseLayout(Split) = %q, %v", l, err)
	}
	if _, err := ParseLayout("zigzag"); err == nil {
		t.Errorf("ParseLayout(zigzag) succeeded")
	}
}

func TestReadLatin1Descriptor(t *testing.T) {
	p := threemftest.Package{Plates: []threemftest.Plate{{
		Gcode:  threemftest.Body("74", 0),
		Colors: []string{"#FF0000"},
	}}}
	p.SliceInfo = `<?xml version="1.0" encoding="ISO-8859-1"?>
<config>
  <header><header_item key="X-BBL-Client-Version" value="01.10.01.50"/></header>
  <plate>
    <metadata key="index" value="1"/>
    <metadata key="printer_model_id" value="N2S"/>
    <object identify_id="74" name="W` + "\xfc" + `rfel" skipped="false"/>
    <filament id="1" type="PLA" color="#FF0000"/>
  </plate>
</config>
`
	pkg, err := readBytes(t, threemftest.Build(t, p), ReadOptions{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if name := pkg.Plates[0].Objects[0].Name; name != "Würfel" {
		t.Fatalf("object name = %q, want %q", name, "Würfel")
	}

	out := assemble(t, pkg, planner.RepetitionSpec{Mode: planner.ModeSimple, Count: 2}, false)
	dst := filepath.Join(t.TempDir(), "loop.gcode.3mf")
	if err := Write(context.Background(), dst, pkg, out, WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	back, err := Read(dst, ReadOptions{})
	if err != nil {
		t.Fatalf("Read back: %v", err)
	}
	si, _ := back.Entry(SliceInfoName)
	if !bytes.HasPrefix(si, []byte(`<?xml version="1.0" encoding="UTF-8"?>`)) || !bytes.Contains(si, []byte("Würfel")) {
		t.Errorf("slice info not re-encoded as UTF-8:\n%s", si)
	}
	if name := back.Plates[0].Objects[0].Name; name != "Würfel" {
		t.Errorf("object name after write = %q", name)
	}
}
