package forge

import "context"

// ConvertResult is the byte payload produced by a successful conversion,
// plus the small opaque metadata bundle (e.g. a chosen rendering
// variant) stored alongside it in the cache.
type ConvertResult struct {
	Payload  []byte
	Metadata []byte
}

// ProgressReporter lets a Converter implementation check in periodically
// during a long-running conversion. The Worker Runtime translates calls
// into a cancellation check: if the job has been cancelled, the
// reporter returns a non-nil error (context.Canceled) that the
// converter must propagate promptly.
type ProgressReporter func(ctx context.Context, note string) error

// Converter is the kind-specific conversion contract. One implementation
// exists per job.Kind; the Worker Runtime does not know which kind it is
// invoking, only that Convert takes an input path and params and
// produces a result or a structured failure.
//
// A Converter is free to create temporary files under workDir; the
// Worker Runtime is responsible for providing one that is safe to write
// to and is cleaned up between attempts.
type Converter interface {
	Convert(ctx context.Context, inputPath string, workDir string, params []byte, report ProgressReporter) (*ConvertResult, error)
}

// ConverterFunc adapts a plain function to Converter.
type ConverterFunc func(ctx context.Context, inputPath string, workDir string, params []byte, report ProgressReporter) (*ConvertResult, error)

func (f ConverterFunc) Convert(ctx context.Context, inputPath string, workDir string, params []byte, report ProgressReporter) (*ConvertResult, error) {
	return f(ctx, inputPath, workDir, params, report)
}
