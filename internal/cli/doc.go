// Package cli wires configuration, backends and the pipeline into the
// gallery-pipeline command: run (the default), watch and version.
package cli
