package vips

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"gallery-pipeline/internal/logging"
	"gallery-pipeline/internal/media"
	"gallery-pipeline/internal/mediatypes"

	govips "github.com/davidbyttow/govips/v2/vips"
)

// Name is the backend name reported for libvips.
const Name = "general"

// Backend implements media.Backend on libvips. It is the only backend that
// reads HEIC/HEIF and writes WebP. Images are converted to sRGB on decode so
// that every later operation works on the same color model.
type Backend struct{}

// New initializes libvips if needed and returns the backend.
func New(concurrency int) (*Backend, error) {
	if err := Init(concurrency); err != nil {
		return nil, err
	}
	return &Backend{}, nil
}

type vipsImage struct {
	ref  *govips.ImageRef
	once sync.Once
}

func (i *vipsImage) Width() int {
	if i.ref == nil {
		return 0
	}
	return i.ref.Width()
}

func (i *vipsImage) Height() int {
	if i.ref == nil {
		return 0
	}
	return i.ref.Height()
}

func (i *vipsImage) Release() {
	i.once.Do(func() {
		if i.ref != nil {
			i.ref.Close()
			i.ref = nil
		}
	})
}

func (b *Backend) Name() string { return Name }

func (b *Backend) PrefixedTags() bool { return true }

func (b *Backend) CanDecode(contentType string) bool {
	switch contentType {
	case mediatypes.ContentTypeJPEG:
		return govips.IsTypeSupported(govips.ImageTypeJPEG)
	case mediatypes.ContentTypePNG:
		return govips.IsTypeSupported(govips.ImageTypePNG)
	case mediatypes.ContentTypeGIF:
		return govips.IsTypeSupported(govips.ImageTypeGIF)
	case mediatypes.ContentTypeWebP:
		return govips.IsTypeSupported(govips.ImageTypeWEBP)
	case mediatypes.ContentTypeTIFF:
		return govips.IsTypeSupported(govips.ImageTypeTIFF)
	case mediatypes.ContentTypeHEIC, mediatypes.ContentTypeHEIF:
		return govips.IsTypeSupported(govips.ImageTypeHEIF)
	case mediatypes.ContentTypeAVIF:
		return govips.IsTypeSupported(govips.ImageTypeAVIF)
	default:
		return false
	}
}

func (b *Backend) CanEncode(format media.Format) bool {
	switch format {
	case media.FormatJPEG, media.FormatPNG, media.FormatWebP:
		return true
	default:
		return false
	}
}

func importParams() *govips.ImportParams {
	params := govips.NewImportParams()
	// Orientation is applied explicitly by the pipeline.
	params.AutoRotate.Set(false)
	params.FailOnError.Set(true)
	return params
}

func (b *Backend) Decode(data []byte) (media.Image, error) {
	ref, err := govips.LoadImageFromBuffer(data, importParams())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrDecode, err)
	}

	if ref.Interpretation() != govips.InterpretationSRGB {
		if err := ref.ToColorSpace(govips.InterpretationSRGB); err != nil {
			ref.Close()
			return nil, fmt.Errorf("%w: convert to sRGB: %v", media.ErrDecode, err)
		}
	}
	return &vipsImage{ref: ref}, nil
}

// ReadTags returns libvips' EXIF fields (exif-ifd0-Make, exif-ifd2-FNumber,
// ...) with the human-readable description libvips appends removed.
func (b *Backend) ReadTags(path string) (map[string]string, error) {
	ref, err := govips.LoadImageFromFile(path, importParams())
	if err != nil {
		return nil, fmt.Errorf("read tags from %s: %w", path, err)
	}
	defer ref.Close()

	raw := ref.GetExif()
	tags := make(map[string]string, len(raw))
	for k, v := range raw {
		if v = stripDescription(v); v != "" {
			tags[k] = v
		}
	}
	logging.Debug("Read %d EXIF fields from %s", len(tags), path)
	return tags, nil
}

// stripDescription turns "Canon (Canon, ASCII, 6 components, 6 bytes)" into
// "Canon" and "1/250 (1/250 sec., Rational, 1 components, 8 bytes)" into
// "1/250". String values are repeated at the start of the description, which
// disambiguates values that themselves contain " (".
func stripDescription(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasSuffix(v, ")") {
		return v
	}

	first := -1
	for i := 0; i+2 <= len(v); i++ {
		if v[i] != ' ' || v[i+1] != '(' {
			continue
		}
		if first < 0 {
			first = i
		}
		if value := v[:i]; strings.HasPrefix(v[i+2:], value+", ") {
			return strings.TrimSpace(value)
		}
	}
	if first < 0 {
		return v
	}
	return strings.TrimSpace(v[:first])
}

func refOf(img media.Image) (*govips.ImageRef, error) {
	vi, ok := img.(*vipsImage)
	if !ok {
		return nil, fmt.Errorf("general backend: foreign image type %T", img)
	}
	if vi.ref == nil {
		return nil, errors.New("general backend: image already released")
	}
	return vi.ref, nil
}

// transform copies img and applies fn to the copy.
func transform(img media.Image, fn func(*govips.ImageRef) error) (media.Image, error) {
	src, err := refOf(img)
	if err != nil {
		return nil, err
	}
	out, err := src.Copy()
	if err != nil {
		return nil, fmt.Errorf("general backend: copy: %w", err)
	}
	if err := fn(out); err != nil {
		out.Close()
		return nil, err
	}
	return &vipsImage{ref: out}, nil
}

func (b *Backend) Orient(img media.Image, orientation int) (media.Image, error) {
	return transform(img, func(r *govips.ImageRef) error {
		switch orientation {
		case 3:
			return r.Rotate(govips.Angle180)
		case 6:
			return r.Rotate(govips.Angle90)
		case 8:
			return r.Rotate(govips.Angle270)
		default:
			return nil
		}
	})
}

func (b *Backend) CropSquareCenter(img media.Image) (media.Image, error) {
	return transform(img, func(r *govips.ImageRef) error {
		x, y, side := media.SquareCenter(r.Width(), r.Height())
		return r.ExtractArea(x, y, side, side)
	})
}

func (b *Backend) ResizeLongestEdge(img media.Image, target int) (media.Image, error) {
	if target <= 0 {
		return nil, fmt.Errorf("general backend: invalid target size %d", target)
	}

	return transform(img, func(r *govips.ImageRef) error {
		w, h := media.LongestEdge(r.Width(), r.Height(), target)
		hscale := float64(w) / float64(r.Width())
		vscale := float64(h) / float64(r.Height())
		if err := r.ResizeWithVScale(hscale, vscale, govips.KernelLanczos3); err != nil {
			return fmt.Errorf("general backend: resize: %w", err)
		}
		return exactSize(r, w, h)
	})
}

// exactSize trims or edge-extends by the odd pixel libvips' own rounding can
// leave, so derivative dimensions match the computed geometry exactly.
func exactSize(r *govips.ImageRef, w, h int) error {
	if r.Width() == w && r.Height() == h {
		return nil
	}
	if r.Width() > w || r.Height() > h {
		if err := r.ExtractArea(0, 0, min(r.Width(), w), min(r.Height(), h)); err != nil {
			return err
		}
	}
	if r.Width() < w || r.Height() < h {
		return r.Embed(0, 0, w, h, govips.ExtendCopy)
	}
	return nil
}

func (b *Backend) Encode(img media.Image, format media.Format, quality int) ([]byte, error) {
	r, err := refOf(img)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch format {
	case media.FormatJPEG:
		params := govips.NewJpegExportParams()
		params.Quality = quality
		params.StripMetadata = true
		data, _, err = r.ExportJpeg(params)
	case media.FormatPNG:
		params := govips.NewPngExportParams()
		params.Quality = quality
		params.StripMetadata = true
		data, _, err = r.ExportPng(params)
	case media.FormatWebP:
		params := govips.NewWebpExportParams()
		params.Quality = quality
		params.StripMetadata = true
		data, _, err = r.ExportWebp(params)
	default:
		return nil, fmt.Errorf("%w: general backend cannot encode %s", media.ErrMissingCapability, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrEncode, err)
	}
	return data, nil
}
