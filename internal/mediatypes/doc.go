// Package mediatypes provides dependency-free content type helpers shared by
// the walker, the backends and the pipeline.
//
// A source file's declared content type comes from its extension; Resolve
// cross-checks it against the file signature so that, for example, a HEIC
// file saved with a .jpg extension is still routed to a HEIF-capable backend.
package mediatypes
