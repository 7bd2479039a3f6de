package derivative

import (
	"bytes"
	"errors"
	"image"
	"testing"

	"gallery-pipeline/internal/media"
	"gallery-pipeline/internal/media/mediatest"
)

func testOptions() Options {
	return Options{
		ThumbnailSize:    64,
		PreviewSize:      160,
		ThumbnailQuality: 80,
		PreviewQuality:   85,
		Format:           media.FormatJPEG,
	}
}

func TestNewGeneratorValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"valid", func(*Options) {}, false},
		{"zero thumbnail", func(o *Options) { o.ThumbnailSize = 0 }, true},
		{"negative preview", func(o *Options) { o.PreviewSize = -1 }, true},
		{"quality too high", func(o *Options) { o.PreviewQuality = 101 }, true},
		{"quality zero", func(o *Options) { o.ThumbnailQuality = 0 }, true},
		{"unknown format", func(o *Options) { o.Format = "gif" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.mutate(&opts)
			_, err := NewGenerator(opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewGenerator() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func dims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("derivative is not decodable: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestGenerateGeometry(t *testing.T) {
	b := media.NewFastBackend()
	g, err := NewGenerator(testOptions())
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	tests := []struct {
		name          string
		width, height int
		orientation   int
		wantPreviewW  int
		wantPreviewH  int
	}{
		{"landscape", 400, 300, 1, 160, 120},
		{"portrait", 300, 400, 1, 120, 160},
		{"square", 250, 250, 1, 160, 160},
		{"landscape rotated 180", 400, 300, 3, 160, 120},
		{"landscape rotated 90 cw", 400, 300, 6, 120, 160},
		{"landscape rotated 90 ccw", 400, 300, 8, 120, 160},
		{"portrait rotated 90 cw", 300, 400, 6, 160, 120},
		{"unknown orientation ignored", 400, 300, 5, 160, 120},
		{"odd aspect rounds", 333, 100, 1, 160, 48},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := b.Decode(mediatest.PNG(t, tt.width, tt.height))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			defer src.Release()

			set, err := g.Generate(b, src, tt.orientation)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}

			if set.Thumbnail.Width != 64 || set.Thumbnail.Height != 64 {
				t.Errorf("thumbnail = %dx%d, want 64x64", set.Thumbnail.Width, set.Thumbnail.Height)
			}
			if w, h := dims(t, set.Thumbnail.Data); w != 64 || h != 64 {
				t.Errorf("encoded thumbnail = %dx%d, want 64x64", w, h)
			}

			if set.Preview.Width != tt.wantPreviewW || set.Preview.Height != tt.wantPreviewH {
				t.Errorf("preview = %dx%d, want %dx%d", set.Preview.Width, set.Preview.Height, tt.wantPreviewW, tt.wantPreviewH)
			}
			if w, h := dims(t, set.Preview.Data); w != tt.wantPreviewW || h != tt.wantPreviewH {
				t.Errorf("encoded preview = %dx%d, want %dx%d", w, h, tt.wantPreviewW, tt.wantPreviewH)
			}

			if src.Width() != tt.width || src.Height() != tt.height {
				t.Errorf("source changed to %dx%d", src.Width(), src.Height())
			}
		})
	}
}

func TestGeneratePNGOutput(t *testing.T) {
	b := media.NewFastBackend()
	opts := testOptions()
	opts.Format = media.FormatPNG
	g, err := NewGenerator(opts)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	src, err := b.Decode(mediatest.JPEG(t, 200, 100, nil))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	defer src.Release()

	set, err := g.Generate(b, src, 1)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(set.Preview.Data)); err != nil || format != "png" {
		t.Errorf("preview format = %q (err %v), want png", format, err)
	}
}

func TestGenerateEncodeFailure(t *testing.T) {
	b := media.NewFastBackend()
	opts := testOptions()
	opts.Format = media.FormatWebP
	g, err := NewGenerator(opts)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	src, err := b.Decode(mediatest.PNG(t, 20, 20))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	defer src.Release()

	if _, err := g.Generate(b, src, 1); !errors.Is(err, media.ErrMissingCapability) {
		t.Errorf("Generate() error = %v, want ErrMissingCapability", err)
	}
}
