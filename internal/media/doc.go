// Package media defines the image backend contract used by the pipeline and
// provides the pure-Go implementation of it.
//
// A [Backend] decodes source bytes, reads EXIF tags, and performs the three
// geometric operations the derivatives need (orient, center square crop,
// longest-edge resize) before encoding. Two implementations exist:
//
//   - [FastBackend]: imaging and the standard decoders. JPEG, PNG, GIF, BMP,
//     TIFF and WebP input; JPEG and PNG output.
//   - the general backend in media/vips: libvips, including HEIC/HEIF input
//     and WebP output.
//
// The [Selector] decides per asset which backend decodes it. Failures are
// reported by wrapping [ErrUnsupportedFormat], [ErrDecode],
// [ErrMissingCapability] or [ErrEncode].
package media
