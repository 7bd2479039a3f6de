package media

import (
	"errors"
	"fmt"
	"strings"
)

// Asset-scoped failure causes. Backends and the Selector wrap these so that
// callers can classify an error with errors.Is.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrDecode            = errors.New("decode failed")
	ErrMissingCapability = errors.New("missing backend capability")
	ErrEncode            = errors.New("encode failed")
)

// Format is an output raster format.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// ParseFormat accepts "jpeg", "jpg", "png" or "webp" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want jpeg, png or webp)", s)
	}
}

// Ext returns the file extension for the format, including the dot.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	case FormatWebP:
		return ".webp"
	default:
		return "." + string(f)
	}
}

// Image is a decoded picture owned by exactly one pipeline pass. Release
// frees the pixel data and may be called any number of times.
type Image interface {
	Width() int
	Height() int
	Release()
}

// Backend is the set of primitives the pipeline needs from an image library.
// Every transforming method returns a new Image and leaves its input usable;
// the caller releases both.
type Backend interface {
	// Name identifies the backend in logs, metrics and results.
	Name() string

	// PrefixedTags reports whether ReadTags returns IFD-prefixed keys
	// (exif-ifd0-Model) instead of bare tag names (Model).
	PrefixedTags() bool

	CanDecode(contentType string) bool
	CanEncode(format Format) bool

	Decode(data []byte) (Image, error)
	ReadTags(path string) (map[string]string, error)

	// Orient applies an EXIF orientation value. Values other than 3, 6
	// and 8 return an untransformed copy.
	Orient(img Image, orientation int) (Image, error)
	CropSquareCenter(img Image) (Image, error)
	ResizeLongestEdge(img Image, target int) (Image, error)
	Encode(img Image, format Format, quality int) ([]byte, error)
}
