package convert

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coursemark/forge"
	"github.com/coursemark/forge/job"
)

// killGrace is how long a subprocess is given to exit after SIGTERM
// before Convert escalates to SIGKILL, matching the 2-second kill
// escalation the cancellation design specifies.
const killGrace = 2 * time.Second

// ArgsFunc builds the command-line arguments for one invocation.
// outputPath is an absolute path under workDir the subprocess is expected
// to have written by the time it exits zero.
type ArgsFunc func(inputPath, outputPath string, params []byte) ([]string, error)

// SubprocessConverter adapts an external program to forge.Converter. It
// runs Path with the arguments ArgsFunc builds, waits for it to exit, and
// on success reads OutputName (relative to workDir) back into the result
// payload.
//
// Cancellation delivers SIGTERM to the started process; if the
// process has not exited within killGrace afterward, os/exec escalates to
// SIGKILL via Cmd.WaitDelay, the idiomatic way to bound a graceful
// shutdown in Go 1.20+.
type SubprocessConverter struct {
	Path       string
	Args       ArgsFunc
	OutputName string
	Env        []string
}

func (c *SubprocessConverter) Convert(ctx context.Context, inputPath string, workDir string, params []byte, report forge.ProgressReporter) (*forge.ConvertResult, error) {
	if report != nil {
		if err := report(ctx, "starting"); err != nil {
			return nil, err
		}
	}

	outputPath := filepath.Join(workDir, c.OutputName)
	args, err := c.Args(inputPath, outputPath, params)
	if err != nil {
		return nil, &Error{Record: inputErrorRecord(err)}
	}

	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Dir = workDir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &Error{Record: *Classify(err, 1, stderr.String())}
	}

	payload, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, &Error{Record: job.ErrorRecord{
			Kind:      job.Infrastructure,
			Message:   "converter exited zero but produced no output: " + err.Error(),
			Traceback: stderr.String(),
		}}
	}
	return &forge.ConvertResult{Payload: payload}, nil
}
