package mediatypes

import (
	"testing"
)

func TestNormalizeExt(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{".JPG", ".jpg"},
		{"jpeg", ".jpeg"},
		{" .HeIc ", ".heic"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeExt(tt.input); got != tt.want {
			t.Errorf("NormalizeExt(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestGetMimeType(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		want string
	}{
		{name: "JPEG", ext: ".jpg", want: ContentTypeJPEG},
		{name: "JPEG upper case", ext: ".JPEG", want: ContentTypeJPEG},
		{name: "PNG", ext: ".png", want: ContentTypePNG},
		{name: "HEIC", ext: ".heic", want: ContentTypeHEIC},
		{name: "HEIF", ext: ".HEIF", want: ContentTypeHEIF},
		{name: "Unknown", ext: ".xyz", want: ContentTypeUnknown},
		{name: "Empty", ext: "", want: ContentTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetMimeType(tt.ext); got != tt.want {
				t.Errorf("GetMimeType(%q) = %q, want %q", tt.ext, got, tt.want)
			}
		})
	}
}

func TestIsHEIF(t *testing.T) {
	for _, ct := range []string{ContentTypeHEIC, ContentTypeHEIF, ContentTypeAVIF} {
		if !IsHEIF(ct) {
			t.Errorf("IsHEIF(%q) = false, want true", ct)
		}
	}
	for _, ct := range []string{ContentTypeJPEG, ContentTypePNG, ContentTypeUnknown, ""} {
		if IsHEIF(ct) {
			t.Errorf("IsHEIF(%q) = true, want false", ct)
		}
	}
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   string
	}{
		{name: "JPEG", header: []byte{0xFF, 0xD8, 0xFF, 0xE1}, want: ContentTypeJPEG},
		{name: "PNG", header: []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, want: ContentTypePNG},
		{name: "GIF", header: []byte("GIF89a"), want: ContentTypeGIF},
		{name: "WebP", header: []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), want: ContentTypeWebP},
		{name: "TIFF little endian", header: []byte{0x49, 0x49, 0x2A, 0x00}, want: ContentTypeTIFF},
		{name: "HEIC", header: []byte("\x00\x00\x00\x18ftypheic"), want: ContentTypeHEIC},
		{name: "HEIF mif1", header: []byte("\x00\x00\x00\x18ftypmif1"), want: ContentTypeHEIF},
		{name: "MP4 container is not an image", header: []byte("\x00\x00\x00\x18ftypisom"), want: ""},
		{name: "Text", header: []byte("hello world"), want: ""},
		{name: "Empty", header: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.header); got != tt.want {
				t.Errorf("Sniff() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolvePrefersSignature(t *testing.T) {
	heic := []byte("\x00\x00\x00\x18ftypheic")
	if got := Resolve(".jpg", heic); got != ContentTypeHEIC {
		t.Errorf("Resolve(.jpg, heic header) = %q, want %q", got, ContentTypeHEIC)
	}
	if got := Resolve(".png", []byte("garbage")); got != ContentTypePNG {
		t.Errorf("Resolve(.png, unknown header) = %q, want %q", got, ContentTypePNG)
	}
}
