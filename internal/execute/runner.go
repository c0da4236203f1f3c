// Package execute runs system utilities with fixed argument lists and
// captures their output for logging and error reporting.
package execute

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
)

// Result holds the outcome of a completed command.
type Result struct {
	// Argv is the command line that was executed.
	Argv []string

	// ExitCode is the process exit code. Zero on success.
	ExitCode int

	// Output is the combined stdout and stderr of the process.
	Output string
}

// CommandError reports a command that exited non-zero. It carries the full
// command line, the exit code, and the captured output so callers can decide
// whether the failure is fatal (e.g. systemd-detect-virt exits 1 to mean
// "no container detected").
type CommandError struct {
	Argv     []string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("execute: %s: exit status %d", strings.Join(e.Argv, " "), e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// ExitCode extracts the exit code from a CommandError wrapped in err.
// The second return is false if err is not a command failure.
func ExitCode(err error) (int, bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode, true
	}
	return 0, false
}

// IsNotFound reports whether err means the command binary does not exist.
func IsNotFound(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return errors.Is(execErr.Err, fs.ErrNotExist) || errors.Is(execErr.Err, exec.ErrNotFound)
	}
	return errors.Is(err, fs.ErrNotExist)
}

// Runner abstracts child-process execution for testability.
type Runner interface {
	// Run executes name with args and waits for completion. A non-zero exit
	// yields a *CommandError; the Result is populated in either case.
	Run(ctx context.Context, name string, args ...string) (Result, error)

	// LookPath resolves name in PATH.
	LookPath(name string) (string, error)
}

// realRunner implements Runner using os/exec.
type realRunner struct {
	logger *slog.Logger
}

// NewRunner returns a Runner that executes real processes.
func NewRunner(logger *slog.Logger) Runner {
	return &realRunner{logger: logger.With("component", "execute")}
}

func (r *realRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	argv := append([]string{name}, args...)
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()

	res := Result{
		Argv:   argv,
		Output: string(output),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.logger.Debug("command failed",
				"argv", strings.Join(argv, " "),
				"exit_code", res.ExitCode,
				"output", strings.TrimSpace(res.Output))
			return res, &CommandError{
				Argv:     argv,
				ExitCode: res.ExitCode,
				Output:   res.Output,
			}
		}
		// Startup failure: binary missing, permission denied, etc.
		return res, fmt.Errorf("execute: %s: %w", strings.Join(argv, " "), err)
	}

	r.logger.Debug("command succeeded", "argv", strings.Join(argv, " "))
	return res, nil
}

func (r *realRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
