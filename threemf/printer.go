package threemf

import "fmt"

// Printer is a machine whose packages this tool can loop.
type Printer struct {
	ModelID string
	Vendor  string
	Model   string
}

func (p Printer) String() string {
	return p.Vendor + " " + p.Model
}

var printers = map[string]Printer{
	"N2S": {ModelID: "N2S", Vendor: "Bambu Lab", Model: "A1"},
}

// LookupPrinter resolves the printer_model_id of a package.
func LookupPrinter(modelID string) (Printer, error) {
	if modelID == "" {
		return Printer{}, fmt.Errorf("%w: package does not declare a printer model", ErrUnsupportedVersion)
	}
	p, ok := printers[modelID]
	if !ok {
		return Printer{}, fmt.Errorf("%w: printer model %q is not supported", ErrUnsupportedVersion, modelID)
	}
	return p, nil
}
