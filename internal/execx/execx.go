package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// ErrEmptyCommand is returned when a command line has no program name.
var ErrEmptyCommand = errors.New("empty command")

// Runner abstracts command execution so probes and hop discovery can be
// unit-tested without spawning real processes.
type Runner interface {
	// Run executes the command to completion, discarding its output.
	Run(name string, args ...string) error
	// Stream starts the command and returns its stdout. wait must be called
	// after the reader is drained or abandoned.
	Stream(ctx context.Context, name string, args ...string) (stdout io.ReadCloser, wait func() error, err error)
}

// OSRunner executes commands on the host via os/exec.
type OSRunner struct{}

func NewOSRunner() *OSRunner {
	return &OSRunner{}
}

func (r *OSRunner) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run()
}

func (r *OSRunner) Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, func() error, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	wait := func() error {
		if err := cmd.Wait(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return fmt.Errorf("%s: %s", err.Error(), msg)
			}
			return err
		}
		return nil
	}
	return stdout, wait, nil
}

// IsExitError reports whether err means the process ran and exited non-zero,
// as opposed to failing to start.
func IsExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// SplitCommand splits a command line on whitespace. No shell quoting is applied.
func SplitCommand(line string) (string, []string, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return "", nil, ErrEmptyCommand
	}
	return words[0], words[1:], nil
}
