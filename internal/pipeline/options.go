package pipeline

import (
	"errors"
	"fmt"

	"gallery-pipeline/internal/derivative"
	"gallery-pipeline/internal/filesystem"
	"gallery-pipeline/internal/metadata"
)

// Options is the immutable configuration of a pipeline. It is copied at
// construction; later changes to the caller's value have no effect.
type Options struct {
	SourceDir string
	OutputDir string
	Layout    Layout

	// AllowedExtensions restricts the files considered; nil means the
	// default photo extensions.
	AllowedExtensions []string

	Derivatives derivative.Options
	Precision   metadata.Precision

	// Workers is the number of concurrent assets. Zero picks one per CPU.
	Workers int

	// SkipUnchanged skips assets whose three derivatives exist and are not
	// older than the source file.
	SkipUnchanged bool

	Retry filesystem.RetryConfig
}

func (o Options) validate() error {
	var errs []error
	if o.SourceDir == "" {
		errs = append(errs, errors.New("source directory is required"))
	}
	if o.OutputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if _, err := ParseLayout(string(o.Layout)); err != nil {
		errs = append(errs, err)
	}
	if o.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", o.Workers))
	}
	return errors.Join(errs...)
}
