// Package threemftest builds small print packages for tests.
package threemftest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// PNG is a stand-in thumbnail; readers only check the entry exists.
var PNG = []byte("\x89PNG\r\n\x1a\nthumbnail")

type Object struct {
	ID   string
	Name string
}

type Plate struct {
	Gcode string
	// Colors declares one filament per entry, ids counting from 1.
	Colors  []string
	Objects []Object
	// Printer overrides the package printer for this plate.
	Printer     string
	Prediction  int
	Weight      float64
	NoThumbnail bool
}

type Package struct {
	// Printer is the printer_model_id, "N2S" when empty.
	Printer         string
	ClientVersion   string
	Plates          []Plate
	NoSliceInfo     bool
	NoModelSettings bool
	// ExtraGcode adds G-code entries no plate declares.
	ExtraGcode int
	// SliceInfo replaces the generated slice_info.config.
	SliceInfo string
}

func (p Package) printer(pl Plate) string {
	switch {
	case pl.Printer != "":
		return pl.Printer
	case p.Printer != "":
		return p.Printer
	}
	return "N2S"
}

func (p Package) sliceInfo() string {
	if p.SliceInfo != "" {
		return p.SliceInfo
	}
	version := p.ClientVersion
	if version == "" {
		version = "01.10.01.50"
	}
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<config>\n  <header>\n")
	sb.WriteString(`    <header_item key="X-BBL-Client-Type" value="slicer"/>` + "\n")
	fmt.Fprintf(&sb, `    <header_item key="X-BBL-Client-Version" value="%s"/>`+"\n", version)
	sb.WriteString("  </header>\n")
	for i, pl := range p.Plates {
		sb.WriteString("  <plate>\n")
		fmt.Fprintf(&sb, `    <metadata key="index" value="%d"/>`+"\n", i+1)
		fmt.Fprintf(&sb, `    <metadata key="printer_model_id" value="%s"/>`+"\n", p.printer(pl))
		sb.WriteString(`    <metadata key="nozzle_diameters" value="0.4"/>` + "\n")
		fmt.Fprintf(&sb, `    <metadata key="prediction" value="%d"/>`+"\n", pl.Prediction)
		fmt.Fprintf(&sb, `    <metadata key="weight" value="%.2f"/>`+"\n", pl.Weight)
		for _, o := range pl.Objects {
			fmt.Fprintf(&sb, `    <object identify_id="%s" name="%s" skipped="false"/>`+"\n", o.ID, o.Name)
		}
		for f, c := range pl.Colors {
			fmt.Fprintf(&sb, `    <filament id="%d" tray_info_idx="GFA00" type="PLA" color="%s" used_m="1.20" used_g="3.58"/>`+"\n", f+1, c)
		}
		sb.WriteString(`    <warning msg="bed_temperature_too_high_than_filament" level="1" error_code="1000C001"/>` + "\n")
		sb.WriteString("  </plate>\n")
	}
	sb.WriteString("</config>\n")
	return sb.String()
}

func (p Package) modelSettings() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<config>\n")
	sb.WriteString(`  <object id="2">` + "\n" + `    <metadata key="name" value="Cube"/>` + "\n  </object>\n")
	for i, pl := range p.Plates {
		n := i + 1
		sb.WriteString("  <plate>\n")
		fmt.Fprintf(&sb, `    <metadata key="plater_id" value="%d"/>`+"\n", n)
		sb.WriteString(`    <metadata key="locked" value="false"/>` + "\n")
		fmt.Fprintf(&sb, `    <metadata key="gcode_file" value="Metadata/plate_%d.gcode"/>`+"\n", n)
		fmt.Fprintf(&sb, `    <metadata key="thumbnail_file" value="Metadata/plate_%d.png"/>`+"\n", n)
		for _, o := range pl.Objects {
			sb.WriteString("    <model_instance>\n")
			sb.WriteString(`      <metadata key="object_id" value="2"/>` + "\n")
			fmt.Fprintf(&sb, `      <metadata key="identify_id" value="%s"/>`+"\n", o.ID)
			sb.WriteString("    </model_instance>\n")
		}
		sb.WriteString("  </plate>\n")
	}
	sb.WriteString(`  <assemble>` + "\n" + `   <assemble_item object_id="2" instance_id="0" offset="0 0 0"/>` + "\n  </assemble>\n")
	sb.WriteString("</config>\n")
	return sb.String()
}

// Build returns the zip bytes of the package.
func Build(t testing.TB, p Package) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, data []byte) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}

	add("[Content_Types].xml", []byte(`<?xml version="1.0" encoding="UTF-8"?><Types/>`))
	add("3D/3dmodel.model", []byte(`<?xml version="1.0" encoding="UTF-8"?><model unit="millimeter"/>`))
	add("Metadata/project_settings.config", []byte(`{"printer_model": "Bambu Lab A1"}`))
	for i, pl := range p.Plates {
		n := i + 1
		add(fmt.Sprintf("Metadata/plate_%d.gcode", n), []byte(pl.Gcode))
		add(fmt.Sprintf("Metadata/plate_%d.gcode.md5", n), []byte("00000000000000000000000000000000"))
		add(fmt.Sprintf("Metadata/plate_%d.json", n), []byte(`{"version":2}`))
		if !pl.NoThumbnail {
			add(fmt.Sprintf("Metadata/plate_%d.png", n), PNG)
			add(fmt.Sprintf("Metadata/plate_%d_small.png", n), PNG)
		}
	}
	for i := 0; i < p.ExtraGcode; i++ {
		add(fmt.Sprintf("Metadata/plate_%d.gcode", len(p.Plates)+i+1), []byte("G28\n"))
	}
	if !p.NoSliceInfo {
		add("Metadata/slice_info.config", []byte(p.sliceInfo()))
	}
	if !p.NoModelSettings {
		add("Metadata/model_settings.config", []byte(p.modelSettings()))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// WriteFile builds the package into a file under t.TempDir and returns its path.
func WriteFile(t testing.TB, p Package) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.gcode.3mf")
	if err := os.WriteFile(path, Build(t, p), 0644); err != nil {
		t.Fatalf("write package: %v", err)
	}
	return path
}

// Body returns a small single-object plate body that selects the given
// filament slots in order and prints object id between them.
func Body(id string, tools ...int) string {
	var sb strings.Builder
	sb.WriteString("; HEADER_BLOCK_START\n; model printing time: 9m 30s; total estimated time: 10m 0s\n")
	sb.WriteString("; total layer number: 2\n; HEADER_BLOCK_END\n")
	sb.WriteString("M620 S255\nT255\nM621 S255\n")
	for _, tool := range tools {
		fmt.Fprintf(&sb, "M620 S%dA\nT%d\nM621 S%dA\n", tool, tool, tool)
		if id != "" {
			fmt.Fprintf(&sb, "; start printing object, unique label id: %s\n", id)
		}
		sb.WriteString("G1 X10 Y10 E0.5\n")
		if id != "" {
			fmt.Fprintf(&sb, "; stop printing object, unique label id: %s\n", id)
		}
	}
	sb.WriteString("; EXECUTABLE_BLOCK_END\n")
	return sb.String()
}
