package convert

import (
	"context"

	"github.com/coursemark/forge"
)

// FuncFn is the shape of an in-process, kind-specific conversion. It
// receives the raw input bytes (already read by the caller) rather than
// a path, which is the natural contract for a converter that never forks
// a subprocess.
type FuncFn func(ctx context.Context, input []byte, params []byte, report forge.ProgressReporter) (*forge.ConvertResult, error)

// FuncConverter adapts a FuncFn to forge.Converter for converters that
// run in-process rather than as an external tool.
type FuncConverter struct {
	Fn FuncFn

	// ReadInput loads inputPath into bytes; defaults to os.ReadFile.
	ReadInput func(path string) ([]byte, error)
}

func (c *FuncConverter) Convert(ctx context.Context, inputPath string, workDir string, params []byte, report forge.ProgressReporter) (*forge.ConvertResult, error) {
	read := c.ReadInput
	if read == nil {
		read = defaultReadInput
	}
	input, err := read(inputPath)
	if err != nil {
		return nil, &Error{Record: inputErrorRecord(err)}
	}
	return c.Fn(ctx, input, params, report)
}
