package threemf

import (
	"bytes"
	"encoding/xml"
	"strconv"

	"golang.org/x/net/html/charset"
)

const (
	SliceInfoName     = "Metadata/slice_info.config"
	ModelSettingsName = "Metadata/model_settings.config"

	headerClientVersion = "X-BBL-Client-Version"

	keyIndex          = "index"
	keyPrinterModelID = "printer_model_id"
	keyPrediction     = "prediction"
	keyWeight         = "weight"

	keyPlaterID      = "plater_id"
	keyGcodeFile     = "gcode_file"
	keyThumbnailFile = "thumbnail_file"
)

// KV is the key/value element the slicer uses for almost every setting.
type KV struct {
	Key   string `xml:"key,attr"`
	Value string `xml:"value,attr"`
}

// Node is an element this package does not interpret. It is written back
// as it was read.
type Node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

type SliceInfo struct {
	XMLName xml.Name     `xml:"config"`
	Header  SliceHeader  `xml:"header"`
	Plates  []SlicePlate `xml:"plate"`
}

type SliceHeader struct {
	Items []KV `xml:"header_item"`
}

type SlicePlate struct {
	Metadata  []KV            `xml:"metadata"`
	Objects   []SliceObject   `xml:"object"`
	Filaments []SliceFilament `xml:"filament"`
	Rest      []Node          `xml:",any"`
}

type SliceObject struct {
	IdentifyID string     `xml:"identify_id,attr"`
	Name       string     `xml:"name,attr"`
	Attrs      []xml.Attr `xml:",any,attr"`
}

type SliceFilament struct {
	ID    int        `xml:"id,attr"`
	Type  string     `xml:"type,attr"`
	Color string     `xml:"color,attr"`
	Attrs []xml.Attr `xml:",any,attr"`
}

type ModelSettings struct {
	XMLName xml.Name        `xml:"config"`
	Objects []Node          `xml:"object"`
	Plates  []SettingsPlate `xml:"plate"`
	Rest    []Node          `xml:",any"`
}

type SettingsPlate struct {
	Metadata  []KV   `xml:"metadata"`
	Instances []Node `xml:"model_instance"`
	Rest      []Node `xml:",any"`
}

func get(kvs []KV, key string) string {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

func set(kvs []KV, key, value string) []KV {
	for i := range kvs {
		if kvs[i].Key == key {
			kvs[i].Value = value
			return kvs
		}
	}
	return append(kvs, KV{Key: key, Value: value})
}

func (p SlicePlate) Index() (int, error) {
	return strconv.Atoi(get(p.Metadata, keyIndex))
}

func (p SlicePlate) clone() SlicePlate {
	return SlicePlate{
		Metadata:  append([]KV(nil), p.Metadata...),
		Objects:   append([]SliceObject(nil), p.Objects...),
		Filaments: append([]SliceFilament(nil), p.Filaments...),
		Rest:      append([]Node(nil), p.Rest...),
	}
}

func (p SettingsPlate) clone() SettingsPlate {
	return SettingsPlate{
		Metadata:  append([]KV(nil), p.Metadata...),
		Instances: append([]Node(nil), p.Instances...),
		Rest:      append([]Node(nil), p.Rest...),
	}
}

func decodeXML(raw []byte, v any) error {
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	decoder.CharsetReader = charset.NewReaderLabel
	return decoder.Decode(v)
}

func encodeXML(v any) ([]byte, error) {
	b, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(b, '\n')...), nil
}
