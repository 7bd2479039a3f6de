// Package metadata normalizes raw EXIF tag maps from either image backend
// into the sparse record published as meta/<name>.json.
//
// Backends disagree on key names: the fast backend reports bare tag names
// (FNumber) while libvips prefixes them with their IFD (exif-ifd2-FNumber).
// Every field is resolved through one prioritized candidate list, see
// [Candidates].
package metadata
