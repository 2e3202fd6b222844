package threemf

import (
	"archive/zip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/printloop/printloop/assembler"
	"github.com/printloop/printloop/plate"
)

// Layout decides how the assembled stream is stored in the output package.
type Layout string

const (
	// LayoutMerged stores the whole stream as a single plate, which the
	// printer runs unattended from start to end.
	LayoutMerged Layout = "merged"
	// LayoutSplit stores every job as a plate of its own. The plates
	// concatenated in order are the assembled stream.
	LayoutSplit Layout = "split"
)

func ParseLayout(s string) (Layout, error) {
	switch l := Layout(strings.ToLower(s)); l {
	case LayoutMerged, LayoutSplit:
		return l, nil
	}
	return "", fmt.Errorf("unknown layout %q", s)
}

type WriteOptions struct {
	Layout Layout
	Logger hclog.Logger
}

// outPlate is one plate of the package being written.
type outPlate struct {
	index    int
	segments []assembler.Segment
	sources  []*plate.Plate
	thumb    string
}

// Write stores the assembled output as a new package at path. Entries the
// rewrite does not touch (thumbnails, the 3D model, project settings) are
// copied from pkg unchanged. Nothing is left at path unless the whole
// package was written.
func Write(ctx context.Context, path string, pkg *Package, out *assembler.Output, opts WriteOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if out == nil || len(out.Segments) == 0 || len(out.Segments) != len(out.Plates) {
		return fmt.Errorf("%w: nothing to write", ErrWrite)
	}

	plates, err := layoutPlates(pkg, out, opts.Layout)
	if err != nil {
		return err
	}
	sliceInfo, err := encodeXML(pkg.rewriteSliceInfo(plates))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, SliceInfoName, err)
	}
	modelSettings, err := encodeXML(pkg.rewriteModelSettings(plates))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, ModelSettingsName, err)
	}

	st, err := newStage(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	defer st.release()

	zw := zip.NewWriter(st.file)
	if err := pkg.copyEntries(zw); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	for _, p := range plates {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
		sum, err := writeGcode(zw, GcodeName(p.index), p.segments)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrWrite, GcodeName(p.index), err)
		}
		if err := writeEntry(zw, GcodeName(p.index)+".md5", []byte(sum)); err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
		logger.Debug("wrote plate", "plate", p.index, "jobs", len(p.segments), "md5", sum)
	}
	if err := writeEntry(zw, SliceInfoName, sliceInfo); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := writeEntry(zw, ModelSettingsName, modelSettings); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := st.commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	logger.Info("package written", "path", path, "plates", len(plates), "layout", opts.Layout)
	return nil
}

func layoutPlates(pkg *Package, out *assembler.Output, layout Layout) ([]outPlate, error) {
	thumb := func(op assembler.OutputPlate) string {
		if _, ok := pkg.Thumbnails[op.Thumbnail]; ok {
			return op.Thumbnail
		}
		return ""
	}
	switch layout {
	case LayoutSplit:
		plates := make([]outPlate, 0, len(out.Plates))
		for k, op := range out.Plates {
			plates = append(plates, outPlate{
				index:    op.Index,
				segments: out.Segments[k : k+1],
				sources:  []*plate.Plate{op.Source},
				thumb:    thumb(op),
			})
		}
		return plates, nil
	case LayoutMerged, "":
		merged := outPlate{index: 1, segments: out.Segments, thumb: thumb(out.Plates[0])}
		seen := map[*plate.Plate]bool{}
		for _, op := range out.Plates {
			if !seen[op.Source] {
				seen[op.Source] = true
				merged.sources = append(merged.sources, op.Source)
			}
		}
		return []outPlate{merged}, nil
	}
	return nil, fmt.Errorf("%w: unknown layout %q", ErrWrite, layout)
}

func (pkg *Package) rewriteSliceInfo(plates []outPlate) *SliceInfo {
	si := &SliceInfo{Header: pkg.sliceInfo.Header}
	for _, p := range plates {
		sp := pkg.slicePlates[p.sources[0].Index].clone()
		sp.Metadata = set(sp.Metadata, keyIndex, strconv.Itoa(p.index))

		if len(p.segments) > 1 || len(p.sources) > 1 {
			prediction, weight := 0, 0.0
			for _, s := range p.segments {
				src := pkg.slicePlates[s.Job.Plate.Index]
				v, _ := strconv.Atoi(get(src.Metadata, keyPrediction))
				prediction += v
				w, _ := strconv.ParseFloat(get(src.Metadata, keyWeight), 64)
				weight += w
			}
			sp.Metadata = set(sp.Metadata, keyPrediction, strconv.Itoa(prediction))
			sp.Metadata = set(sp.Metadata, keyWeight, strconv.FormatFloat(weight, 'f', 2, 64))

			objects := map[string]bool{}
			filaments := map[int]bool{}
			sp.Objects, sp.Filaments = nil, nil
			for _, src := range p.sources {
				ssp := pkg.slicePlates[src.Index]
				for _, o := range ssp.Objects {
					if !objects[o.IdentifyID] {
						objects[o.IdentifyID] = true
						sp.Objects = append(sp.Objects, o)
					}
				}
				for _, f := range ssp.Filaments {
					if !filaments[f.ID] {
						filaments[f.ID] = true
						sp.Filaments = append(sp.Filaments, f)
					}
				}
			}
		}
		si.Plates = append(si.Plates, sp)
	}
	return si
}

// rewriteModelSettings points every written plate at its G-code entry and
// at the thumbnail of its first source plate. A package read without model
// settings gets a minimal one so the associations are explicit.
func (pkg *Package) rewriteModelSettings(plates []outPlate) *ModelSettings {
	ms := &ModelSettings{}
	if pkg.modelSettings != nil {
		ms.Objects = pkg.modelSettings.Objects
		ms.Rest = pkg.modelSettings.Rest
	}
	for _, p := range plates {
		var sp SettingsPlate
		if src, ok := pkg.settingPlates[p.sources[0].Index]; ok {
			sp = src.clone()
		}
		sp.Instances = nil
		for _, src := range p.sources {
			sp.Instances = append(sp.Instances, pkg.settingPlates[src.Index].Instances...)
		}
		sp.Metadata = set(sp.Metadata, keyPlaterID, strconv.Itoa(p.index))
		sp.Metadata = set(sp.Metadata, keyGcodeFile, GcodeName(p.index))
		sp.Metadata = set(sp.Metadata, keyThumbnailFile, p.thumb)
		ms.Plates = append(ms.Plates, sp)
	}
	return ms
}

// copyEntries copies every entry the rewrite does not replace.
func (pkg *Package) copyEntries(zw *zip.Writer) error {
	for _, e := range pkg.entries {
		switch {
		case e.name == SliceInfoName, e.name == ModelSettingsName,
			reGcodeEntry.MatchString(e.name), reMD5Entry.MatchString(e.name):
			continue
		}
		hdr := &zip.FileHeader{
			Name:     e.name,
			Method:   e.header.Method,
			Modified: e.header.Modified,
			Comment:  e.header.Comment,
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if _, err := w.Write(e.data); err != nil {
			return fmt.Errorf("%s: %v", e.name, err)
		}
	}
	return nil
}

func writeGcode(zw *zip.Writer, name string, segments []assembler.Segment) (string, error) {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return "", err
	}
	h := md5.New()
	mw := io.MultiWriter(w, h)
	for _, s := range segments {
		if _, err := io.WriteString(mw, s.Text); err != nil {
			return "", err
		}
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))), nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%s: %v", name, err)
	}
	return nil
}
