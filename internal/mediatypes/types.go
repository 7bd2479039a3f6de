package mediatypes

import "strings"

// Content types recognized by the pipeline.
const (
	ContentTypeJPEG    = "image/jpeg"
	ContentTypePNG     = "image/png"
	ContentTypeGIF     = "image/gif"
	ContentTypeBMP     = "image/bmp"
	ContentTypeWebP    = "image/webp"
	ContentTypeTIFF    = "image/tiff"
	ContentTypeHEIC    = "image/heic"
	ContentTypeHEIF    = "image/heif"
	ContentTypeAVIF    = "image/avif"
	ContentTypeUnknown = "application/octet-stream"
)

// DefaultAllowedExtensions is the source allow-list used when none is configured.
var DefaultAllowedExtensions = []string{".jpg", ".jpeg", ".png", ".heic", ".heif"}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  ContentTypeJPEG,
	".jpeg": ContentTypeJPEG,
	".jpe":  ContentTypeJPEG,
	".png":  ContentTypePNG,
	".gif":  ContentTypeGIF,
	".bmp":  ContentTypeBMP,
	".webp": ContentTypeWebP,
	".tiff": ContentTypeTIFF,
	".tif":  ContentTypeTIFF,
	".heic": ContentTypeHEIC,
	".heif": ContentTypeHEIF,
	".hif":  ContentTypeHEIF,
	".avif": ContentTypeAVIF,
}

// NormalizeExt lower-cases an extension and ensures the leading dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// GetMimeType returns the MIME type for a given file extension.
// The extension is matched case-insensitively.
// Returns ContentTypeUnknown if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[NormalizeExt(ext)]; ok {
		return mime
	}
	return ContentTypeUnknown
}

// IsHEIF reports whether a content type belongs to the HEIF container family.
func IsHEIF(contentType string) bool {
	switch contentType {
	case ContentTypeHEIC, ContentTypeHEIF, ContentTypeAVIF:
		return true
	}
	return false
}

// Sniff detects a content type from the leading bytes of a file.
// Returns an empty string if the signature is not recognized.
func Sniff(header []byte) string {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return ContentTypeJPEG

	case len(header) >= 8 && header[0] == 0x89 && header[1] == 0x50 && header[2] == 0x4E && header[3] == 0x47:
		return ContentTypePNG

	case len(header) >= 4 && header[0] == 0x47 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x38:
		return ContentTypeGIF

	case len(header) >= 12 && header[0] == 0x52 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x46 &&
		header[8] == 0x57 && header[9] == 0x45 && header[10] == 0x42 && header[11] == 0x50:
		return ContentTypeWebP

	case len(header) >= 2 && header[0] == 0x42 && header[1] == 0x4D:
		return ContentTypeBMP

	case len(header) >= 4 && ((header[0] == 0x49 && header[1] == 0x49 && header[2] == 0x2A && header[3] == 0x00) ||
		(header[0] == 0x4D && header[1] == 0x4D && header[2] == 0x00 && header[3] == 0x2A)):
		return ContentTypeTIFF

	case len(header) >= 12 && header[4] == 0x66 && header[5] == 0x74 && header[6] == 0x79 && header[7] == 0x70:
		switch string(header[8:12]) {
		case "heic", "heix", "hevc", "hevx":
			return ContentTypeHEIC
		case "mif1", "msf1":
			return ContentTypeHEIF
		case "avif", "avis":
			return ContentTypeAVIF
		}
	}

	return ""
}

// Resolve returns the content type for a file, preferring the sniffed
// signature over the extension when the two disagree.
func Resolve(ext string, header []byte) string {
	if sniffed := Sniff(header); sniffed != "" {
		return sniffed
	}
	return GetMimeType(ext)
}
