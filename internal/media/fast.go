package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"strings"

	"gallery-pipeline/internal/logging"
	"gallery-pipeline/internal/mediatypes"

	// Decoders registered with image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxImagePixels bounds what the fast backend will decode. Anything larger is
// left to libvips, which can stream the decode. A 100MP image is ~400MB as
// NRGBA.
const MaxImagePixels = 100_000_000

// FastName is the backend name reported for the pure-Go backend.
const FastName = "fast"

// FastBackend decodes with the standard library and x/image, transforms with
// imaging, and reads EXIF with goexif. It cannot read HEIC/HEIF or encode WebP.
type FastBackend struct {
	maxPixels int
}

// NewFastBackend creates a fast backend with the default pixel limit.
func NewFastBackend() *FastBackend {
	return &FastBackend{maxPixels: MaxImagePixels}
}

type fastImage struct {
	img image.Image
}

func (i *fastImage) Width() int {
	if i.img == nil {
		return 0
	}
	return i.img.Bounds().Dx()
}

func (i *fastImage) Height() int {
	if i.img == nil {
		return 0
	}
	return i.img.Bounds().Dy()
}

func (i *fastImage) Release() {
	i.img = nil
}

func (b *FastBackend) Name() string { return FastName }

func (b *FastBackend) PrefixedTags() bool { return false }

func (b *FastBackend) CanDecode(contentType string) bool {
	switch contentType {
	case mediatypes.ContentTypeJPEG, mediatypes.ContentTypePNG, mediatypes.ContentTypeGIF,
		mediatypes.ContentTypeBMP, mediatypes.ContentTypeWebP, mediatypes.ContentTypeTIFF:
		return true
	default:
		return false
	}
}

func (b *FastBackend) CanEncode(format Format) bool {
	return format == FormatJPEG || format == FormatPNG
}

// Decode reads the header first so oversized images are rejected before any
// pixel buffer is allocated.
func (b *FastBackend) Decode(data []byte) (Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if b.maxPixels > 0 && cfg.Width*cfg.Height > b.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixel limit", ErrDecode, cfg.Width, cfg.Height, b.maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &fastImage{img: img}, nil
}

// ReadTags returns EXIF tags keyed by bare tag name. A file without EXIF
// yields an empty map.
func (b *FastBackend) ReadTags(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close %s: %v", path, err)
		}
	}()

	return readEXIF(f, path)
}

func readEXIF(r io.Reader, path string) (map[string]string, error) {
	tags := make(map[string]string)

	x, err := exif.Decode(r)
	if x == nil {
		if err != nil && !errors.Is(err, io.EOF) {
			logging.Debug("No EXIF in %s: %v", path, err)
		}
		return tags, nil
	}
	if err != nil {
		// Partial decode; keep what was read.
		logging.Debug("Partial EXIF in %s: %v", path, err)
	}

	if err := x.Walk(tagWalker(tags)); err != nil {
		logging.Debug("EXIF walk stopped early for %s: %v", path, err)
	}
	return tags, nil
}

// tagWalker flattens goexif tags into strings. Rationals keep their N/D
// form; the normalizer does the division.
type tagWalker map[string]string

func (w tagWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	var val string
	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return nil
		}
		val = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	case tiff.RatVal:
		num, den, err := tag.Rat2(0)
		if err != nil {
			return nil
		}
		val = strconv.FormatInt(num, 10) + "/" + strconv.FormatInt(den, 10)
	case tiff.IntVal:
		n, err := tag.Int(0)
		if err != nil {
			return nil
		}
		val = strconv.Itoa(n)
	case tiff.FloatVal:
		f, err := tag.Float(0)
		if err != nil {
			return nil
		}
		val = strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return nil
	}

	if val != "" {
		w[string(name)] = val
	}
	return nil
}

func (b *FastBackend) pixels(img Image) (image.Image, error) {
	fi, ok := img.(*fastImage)
	if !ok {
		return nil, fmt.Errorf("fast backend: foreign image type %T", img)
	}
	if fi.img == nil {
		return nil, errors.New("fast backend: image already released")
	}
	return fi.img, nil
}

func (b *FastBackend) Orient(img Image, orientation int) (Image, error) {
	src, err := b.pixels(img)
	if err != nil {
		return nil, err
	}

	switch orientation {
	case 3:
		return &fastImage{img: imaging.Rotate180(src)}, nil
	case 6:
		// imaging rotates counter-clockwise
		return &fastImage{img: imaging.Rotate270(src)}, nil
	case 8:
		return &fastImage{img: imaging.Rotate90(src)}, nil
	default:
		return &fastImage{img: imaging.Clone(src)}, nil
	}
}

func (b *FastBackend) CropSquareCenter(img Image) (Image, error) {
	src, err := b.pixels(img)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	x, y, side := SquareCenter(bounds.Dx(), bounds.Dy())
	origin := bounds.Min.Add(image.Pt(x, y))
	return &fastImage{img: imaging.Crop(src, image.Rectangle{Min: origin, Max: origin.Add(image.Pt(side, side))})}, nil
}

func (b *FastBackend) ResizeLongestEdge(img Image, target int) (Image, error) {
	src, err := b.pixels(img)
	if err != nil {
		return nil, err
	}
	if target <= 0 {
		return nil, fmt.Errorf("fast backend: invalid target size %d", target)
	}

	w, h := LongestEdge(src.Bounds().Dx(), src.Bounds().Dy(), target)
	return &fastImage{img: imaging.Resize(src, w, h, imaging.Lanczos)}, nil
}

func (b *FastBackend) Encode(img Image, format Format, quality int) ([]byte, error) {
	src, err := b.pixels(img)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		err = imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatPNG:
		err = imaging.Encode(&buf, src, imaging.PNG)
	default:
		return nil, fmt.Errorf("%w: fast backend cannot encode %s", ErrMissingCapability, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}
