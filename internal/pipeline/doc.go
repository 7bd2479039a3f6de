// Package pipeline orchestrates a derivative run.
//
// A run walks the source tree and hands each dated photograph to a bounded
// pool of workers. Every asset moves through
//
//	Discovered -> Decoding -> MetadataExtracted -> Oriented -> DerivativesWritten
//
// or ends early as Skipped or Failed. Failures are scoped to the asset: they
// are classified into an ErrorKind, recorded in the run Summary and never
// stop the run. Outputs are written atomically, so a failed asset leaves no
// partial files behind.
package pipeline
