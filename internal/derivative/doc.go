// Package derivative renders the two web derivatives of a photograph:
//
//   - thumbnail: the centered square of side min(width, height), scaled to
//     ThumbnailSize x ThumbnailSize with Lanczos resampling.
//   - preview: the whole frame scaled so its longest edge is PreviewSize.
//
// Orientation is corrected first and both derivatives are computed
// independently from the corrected image. All pixel work is delegated to a
// media.Backend.
package derivative
