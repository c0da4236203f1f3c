package execute

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_Success(t *testing.T) {
	r := NewRunner(testLogger())

	res, err := r.Run(context.Background(), "sh", "-c", "echo hello")
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if got := strings.TrimSpace(res.Output); got != "hello" {
		t.Errorf("Output = %q, want %q", got, "hello")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := NewRunner(testLogger())

	res, err := r.Run(context.Background(), "sh", "-c", "echo oops >&2; exit 3")
	if err == nil {
		t.Fatal("Run() = nil, want *CommandError")
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Run() error = %T, want *CommandError", err)
	}
	if cmdErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", cmdErr.ExitCode)
	}
	if !strings.Contains(cmdErr.Output, "oops") {
		t.Errorf("Output = %q, want to contain %q", cmdErr.Output, "oops")
	}
	if res.ExitCode != 3 {
		t.Errorf("Result.ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestRun_MissingBinary(t *testing.T) {
	r := NewRunner(testLogger())

	_, err := r.Run(context.Background(), "/nonexistent/idmd-test-binary")
	if err == nil {
		t.Fatal("Run() = nil, want error for missing binary")
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		t.Errorf("Run() error = *CommandError, want startup failure")
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false, want true", err)
	}
}

func TestExitCode(t *testing.T) {
	if _, ok := ExitCode(errors.New("plain")); ok {
		t.Error("ExitCode(plain error) ok = true, want false")
	}

	err := error(&CommandError{Argv: []string{"true"}, ExitCode: 1})
	code, ok := ExitCode(err)
	if !ok || code != 1 {
		t.Errorf("ExitCode() = (%d, %v), want (1, true)", code, ok)
	}
}

func TestCommandError_Message(t *testing.T) {
	err := &CommandError{
		Argv:     []string{"setsebool", "-P", "httpd_can_network_connect=on"},
		ExitCode: 1,
		Output:   "permission denied\n",
	}
	msg := err.Error()
	for _, want := range []string{"setsebool -P httpd_can_network_connect=on", "exit status 1", "permission denied"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, want to contain %q", msg, want)
		}
	}
}
