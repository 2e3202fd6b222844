// Package threemf reads and writes the sliced print packages (.gcode.3mf)
// of Bambu Lab printers. The archive layout and the metadata schema stay in
// this package; callers work on plates and assembled output.
package threemf

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/printloop/printloop/plate"
)

var (
	ErrMalformedPackage   = errors.New("malformed package")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrWrite              = errors.New("write error")
)

var (
	reGcodeEntry = regexp.MustCompile(`^Metadata/plate_([0-9]+)\.gcode$`)
	reMD5Entry   = regexp.MustCompile(`^Metadata/plate_([0-9]+)\.gcode\.md5$`)
)

func GcodeName(index int) string {
	return fmt.Sprintf("Metadata/plate_%d.gcode", index)
}

func thumbnailName(index int) string {
	return fmt.Sprintf("Metadata/plate_%d.png", index)
}

type entry struct {
	name   string
	header zip.FileHeader
	data   []byte
}

// Package is one print package held in memory for the length of a run.
type Package struct {
	Path          string
	Printer       Printer
	ClientVersion string
	Plates        []*plate.Plate
	// Thumbnails maps entry names to image bytes.
	Thumbnails map[string][]byte

	entries       []entry
	sliceInfo     *SliceInfo
	slicePlates   map[int]SlicePlate
	modelSettings *ModelSettings
	settingPlates map[int]SettingsPlate
}

// Entry returns the content of an archive entry.
func (p *Package) Entry(name string) ([]byte, bool) {
	for _, e := range p.entries {
		if e.name == name {
			return e.data, true
		}
	}
	return nil, false
}

type ReadOptions struct {
	Multicolor bool
	Logger     hclog.Logger
}

// Read opens the package at path.
func Read(path string, opts ReadOptions) (*Package, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}
	defer zr.Close()

	pkg, err := read(&zr.Reader, opts)
	if err != nil {
		return nil, err
	}
	pkg.Path = path
	return pkg, nil
}

// ReadFrom reads a package from r.
func ReadFrom(r io.ReaderAt, size int64, opts ReadOptions) (*Package, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}
	return read(zr, opts)
}

func read(zr *zip.Reader, opts ReadOptions) (*Package, error) {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	pkg := &Package{
		Thumbnails:    map[string][]byte{},
		slicePlates:   map[int]SlicePlate{},
		settingPlates: map[int]SettingsPlate{},
	}
	index := map[string]int{}
	gcodes := 0
	for _, f := range zr.File {
		data, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPackage, f.Name, err)
		}
		index[f.Name] = len(pkg.entries)
		pkg.entries = append(pkg.entries, entry{name: f.Name, header: f.FileHeader, data: data})

		switch {
		case reGcodeEntry.MatchString(f.Name):
			gcodes++
		case strings.HasPrefix(f.Name, "Metadata/") && strings.HasSuffix(strings.ToLower(f.Name), ".png"):
			pkg.Thumbnails[f.Name] = data
		}
	}
	logger.Debug("read archive", "entries", len(pkg.entries), "gcode", gcodes, "thumbnails", len(pkg.Thumbnails))

	i, ok := index[SliceInfoName]
	if !ok {
		return nil, fmt.Errorf("%w: %s not found", ErrMalformedPackage, SliceInfoName)
	}
	pkg.sliceInfo = &SliceInfo{}
	if err := decodeXML(pkg.entries[i].data, pkg.sliceInfo); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPackage, SliceInfoName, err)
	}
	if len(pkg.sliceInfo.Plates) == 0 {
		return nil, fmt.Errorf("%w: %s declares no plates", ErrMalformedPackage, SliceInfoName)
	}
	pkg.ClientVersion = get(pkg.sliceInfo.Header.Items, headerClientVersion)

	for _, sp := range pkg.sliceInfo.Plates {
		n, err := sp.Index()
		if err != nil {
			return nil, fmt.Errorf("%w: plate index %q: %v", ErrMalformedPackage, get(sp.Metadata, keyIndex), err)
		}
		if _, dup := pkg.slicePlates[n]; dup {
			return nil, fmt.Errorf("%w: plate %d declared twice", ErrMalformedPackage, n)
		}
		pkg.slicePlates[n] = sp

		printer, err := LookupPrinter(get(sp.Metadata, keyPrinterModelID))
		if err != nil {
			return nil, err
		}
		if pkg.Printer.ModelID != "" && pkg.Printer != printer {
			return nil, fmt.Errorf("%w: plates are sliced for %s and %s", ErrMalformedPackage, pkg.Printer, printer)
		}
		pkg.Printer = printer
	}

	if gcodes != len(pkg.slicePlates) {
		return nil, fmt.Errorf("%w: %d G-code entries for %d declared plate(s)", ErrMalformedPackage, gcodes, len(pkg.slicePlates))
	}

	if i, ok := index[ModelSettingsName]; ok {
		pkg.modelSettings = &ModelSettings{}
		if err := decodeXML(pkg.entries[i].data, pkg.modelSettings); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPackage, ModelSettingsName, err)
		}
		for _, sp := range pkg.modelSettings.Plates {
			n, err := strconv.Atoi(get(sp.Metadata, keyPlaterID))
			if err != nil {
				return nil, fmt.Errorf("%w: %s: plater_id %q: %v", ErrMalformedPackage, ModelSettingsName, get(sp.Metadata, keyPlaterID), err)
			}
			pkg.settingPlates[n] = sp
		}
	}

	indices := make([]int, 0, len(pkg.slicePlates))
	for n := range pkg.slicePlates {
		indices = append(indices, n)
	}
	sort.Ints(indices)

	for _, n := range indices {
		rec := pkg.record(n)
		i, ok := index[rec.GcodeName]
		if !ok {
			return nil, fmt.Errorf("%w: plate %d: %s not found", ErrMalformedPackage, n, rec.GcodeName)
		}
		if _, ok := pkg.Thumbnails[rec.Thumbnail]; !ok {
			logger.Warn("plate has no thumbnail", "plate", n, "thumbnail", rec.Thumbnail)
			rec.Thumbnail = ""
		}
		p, err := plate.Parse(string(pkg.entries[i].data), rec, plate.Options{Multicolor: opts.Multicolor})
		if err != nil {
			return nil, err
		}
		logger.Debug("parsed plate", "plate", n, "lines", p.Body.Len(), "filaments", len(p.Filaments),
			"objects", len(p.Objects), "colour_changes", len(p.Primitives))
		pkg.Plates = append(pkg.Plates, p)
	}

	return pkg, nil
}

func (pkg *Package) record(n int) plate.Record {
	sp := pkg.slicePlates[n]
	rec := plate.Record{
		Index:     n,
		GcodeName: GcodeName(n),
		Thumbnail: thumbnailName(n),
	}
	if st, ok := pkg.settingPlates[n]; ok {
		if v := get(st.Metadata, keyGcodeFile); v != "" {
			rec.GcodeName = strings.TrimPrefix(v, "/")
		}
		if v := get(st.Metadata, keyThumbnailFile); v != "" {
			rec.Thumbnail = strings.TrimPrefix(v, "/")
		}
	}
	for _, o := range sp.Objects {
		rec.Objects = append(rec.Objects, plate.Object{ID: o.IdentifyID, Name: o.Name})
	}
	for _, f := range sp.Filaments {
		rec.Filaments = append(rec.Filaments, plate.Filament{ID: f.ID, Tool: f.ID - 1, Type: f.Type, Color: f.Color})
	}
	return rec
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
