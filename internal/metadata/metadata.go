package metadata

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DateTimeLayout is the EXIF date format, also used for the modification
// time fallback.
const DateTimeLayout = "2006:01:02 15:04:05"

// Metadata is the normalized record written next to each derivative. Field
// order here is the order in the JSON output. Absent fields are omitted.
type Metadata struct {
	DateTime     string   `json:"datetime,omitempty"`
	Camera       string   `json:"camera,omitempty"`
	Exposure     *Number  `json:"exposure,omitempty"`
	ShutterSpeed *Number  `json:"shutter_speed,omitempty"`
	FNumber      *Decimal `json:"fnumber,omitempty"`
	ISO          *Number  `json:"iso,omitempty"`
	FocalLength  string   `json:"focal_length,omitempty"`
}

// JSON encodes the record as a single line terminated by a newline.
func (m Metadata) JSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Precision is the number of decimal places kept per numeric field.
type Precision struct {
	Exposure     int `yaml:"exposure"`
	ShutterSpeed int `yaml:"shutter_speed"`
	ISO          int `yaml:"iso"`
	FNumber      int `yaml:"fnumber"`
	FocalLength  int `yaml:"focal_length"`
}

// DefaultPrecision keeps four places for exposure so that 1/250 survives as
// 0.004.
func DefaultPrecision() Precision {
	return Precision{
		Exposure:     4,
		ShutterSpeed: 2,
		ISO:          1,
		FNumber:      1,
		FocalLength:  1,
	}
}

// Normalizer turns a backend's raw tag map into Metadata.
type Normalizer struct {
	precision Precision
	location  *time.Location
}

// NewNormalizer creates a normalizer. Modification-time fallbacks are
// rendered in the local time zone.
func NewNormalizer(p Precision) *Normalizer {
	return &Normalizer{precision: p, location: time.Local}
}

// Candidates lists the keys tried for a logical tag, most specific first.
// Backends that emit libvips-style keys store IFD0 fields (Make, Model,
// Orientation) under exif-ifd0- and Exif sub-IFD fields under exif-ifd2-.
func Candidates(name string, prefixed bool) []string {
	if !prefixed {
		return []string{name}
	}
	return []string{name, "exif-ifd0-" + name, "exif-ifd2-" + name}
}

// Lookup returns the first non-empty value among the candidate keys.
func Lookup(tags map[string]string, prefixed bool, name string) (string, bool) {
	for _, key := range Candidates(name, prefixed) {
		if v := strings.TrimSpace(tags[key]); v != "" {
			return v, true
		}
	}
	return "", false
}

// Orientation returns the EXIF orientation, or 1 when absent or invalid.
func Orientation(tags map[string]string, prefixed bool) int {
	v, ok := Lookup(tags, prefixed, "Orientation")
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 8 {
		return 1
	}
	return n
}

// Normalize builds the record. modTime is used for datetime when neither
// DateTimeOriginal nor DateTime is present; a zero modTime leaves it empty.
func (n *Normalizer) Normalize(tags map[string]string, prefixed bool, modTime time.Time) Metadata {
	var m Metadata

	m.DateTime = n.dateTime(tags, prefixed, modTime)
	m.Camera = camera(tags, prefixed)

	if v, ok := n.number(tags, prefixed, "ExposureTime", n.precision.Exposure); ok {
		m.Exposure = &v
	}
	if v, ok := n.number(tags, prefixed, "ShutterSpeedValue", n.precision.ShutterSpeed); ok {
		m.ShutterSpeed = &v
	}
	if v, ok := n.number(tags, prefixed, "FNumber", n.precision.FNumber); ok {
		m.FNumber = &Decimal{Value: float64(v), Places: n.precision.FNumber}
	}
	if v, ok := n.number(tags, prefixed, "ISOSpeedRatings", n.precision.ISO); ok {
		m.ISO = &v
	}
	if v, ok := n.number(tags, prefixed, "FocalLength", n.precision.FocalLength); ok {
		m.FocalLength = strconv.FormatFloat(float64(v), 'f', -1, 64) + "mm"
	}

	return m
}

func (n *Normalizer) dateTime(tags map[string]string, prefixed bool, modTime time.Time) string {
	for _, name := range []string{"DateTimeOriginal", "DateTime"} {
		if v, ok := Lookup(tags, prefixed, name); ok {
			return v
		}
	}
	if modTime.IsZero() {
		return ""
	}
	return modTime.In(n.location).Format(DateTimeLayout)
}

// camera is Model with a leading Make removed ("Canon EOS R5" from Canon
// becomes "EOS R5").
func camera(tags map[string]string, prefixed bool) string {
	model, ok := Lookup(tags, prefixed, "Model")
	if !ok {
		return ""
	}
	maker, ok := Lookup(tags, prefixed, "Make")
	if ok && len(model) > len(maker) && strings.EqualFold(model[:len(maker)], maker) {
		if stripped := strings.TrimSpace(model[len(maker):]); stripped != "" {
			return stripped
		}
	}
	return model
}

func (n *Normalizer) number(tags map[string]string, prefixed bool, name string, places int) (Number, bool) {
	raw, ok := Lookup(tags, prefixed, name)
	if !ok {
		return 0, false
	}
	v, ok := ParseNumber(raw)
	if !ok {
		return 0, false
	}
	return Number(Round(v, places)), true
}
