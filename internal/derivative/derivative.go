package derivative

import (
	"fmt"

	"gallery-pipeline/internal/media"
)

// Options fixes derivative geometry and encoding for a run.
type Options struct {
	ThumbnailSize    int
	PreviewSize      int
	ThumbnailQuality int
	PreviewQuality   int
	Format           media.Format
}

// Rendered is one encoded derivative.
type Rendered struct {
	Data   []byte
	Width  int
	Height int
}

// Generator produces thumbnails and previews from an oriented image.
type Generator struct {
	opts Options
}

// NewGenerator validates opts and returns a generator.
func NewGenerator(opts Options) (*Generator, error) {
	if opts.ThumbnailSize <= 0 || opts.PreviewSize <= 0 {
		return nil, fmt.Errorf("derivative sizes must be positive (thumbnail %d, preview %d)", opts.ThumbnailSize, opts.PreviewSize)
	}
	if !validQuality(opts.ThumbnailQuality) || !validQuality(opts.PreviewQuality) {
		return nil, fmt.Errorf("quality must be 1-100 (thumbnail %d, preview %d)", opts.ThumbnailQuality, opts.PreviewQuality)
	}
	if _, err := media.ParseFormat(string(opts.Format)); err != nil {
		return nil, err
	}
	return &Generator{opts: opts}, nil
}

func validQuality(q int) bool {
	return q >= 1 && q <= 100
}

// Options returns the generator's configuration.
func (g *Generator) Options() Options {
	return g.opts
}

// Orient applies the EXIF orientation. The result is a new image even when
// no rotation is needed; the caller releases it.
func (g *Generator) Orient(b media.Backend, img media.Image, orientation int) (media.Image, error) {
	out, err := b.Orient(img, orientation)
	if err != nil {
		return nil, fmt.Errorf("orient %d: %w", orientation, err)
	}
	return out, nil
}

// Thumbnail crops the centered square and scales it to ThumbnailSize.
func (g *Generator) Thumbnail(b media.Backend, img media.Image) (*Rendered, error) {
	square, err := b.CropSquareCenter(img)
	if err != nil {
		return nil, fmt.Errorf("thumbnail crop: %w", err)
	}
	defer square.Release()

	scaled, err := b.ResizeLongestEdge(square, g.opts.ThumbnailSize)
	if err != nil {
		return nil, fmt.Errorf("thumbnail resize: %w", err)
	}
	defer scaled.Release()

	return g.encode(b, scaled, g.opts.ThumbnailQuality)
}

// Preview scales the image so its longest edge equals PreviewSize.
func (g *Generator) Preview(b media.Backend, img media.Image) (*Rendered, error) {
	scaled, err := b.ResizeLongestEdge(img, g.opts.PreviewSize)
	if err != nil {
		return nil, fmt.Errorf("preview resize: %w", err)
	}
	defer scaled.Release()

	return g.encode(b, scaled, g.opts.PreviewQuality)
}

func (g *Generator) encode(b media.Backend, img media.Image, quality int) (*Rendered, error) {
	data, err := b.Encode(img, g.opts.Format, quality)
	if err != nil {
		return nil, err
	}
	return &Rendered{Data: data, Width: img.Width(), Height: img.Height()}, nil
}

// Set holds both derivatives of one source.
type Set struct {
	Thumbnail *Rendered
	Preview   *Rendered
}

// Generate orients img and renders both derivatives from the oriented copy.
// img itself is left for the caller to release.
func (g *Generator) Generate(b media.Backend, img media.Image, orientation int) (*Set, error) {
	oriented, err := g.Orient(b, img, orientation)
	if err != nil {
		return nil, err
	}
	defer oriented.Release()

	thumb, err := g.Thumbnail(b, oriented)
	if err != nil {
		return nil, err
	}
	preview, err := g.Preview(b, oriented)
	if err != nil {
		return nil, err
	}
	return &Set{Thumbnail: thumb, Preview: preview}, nil
}
