// Package env provides the isolated desktop environments tests run in and
// the backends that build the test binary for them.
package env

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/1broseidon/deskrig/internal/readiness"
)

// State is the lifecycle state of a runtime environment.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateMissing State = "missing"
	StateUnknown State = "unknown"
)

// ErrNotRunning is returned when an operation needs a running environment.
var ErrNotRunning = errors.New("environment is not running")

// ExecRequest is a command to run inside an environment.
type ExecRequest struct {
	Argv []string
	// Env entries are KEY=VALUE and extend the environment's defaults.
	Env []string
	Dir string
	// Timeout bounds the command; zero uses the runtime default.
	Timeout time.Duration
}

// ExecResult is the captured outcome of a command. A non-zero ExitCode is
// not an error from Exec.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExitError describes a command that exited non-zero.
type ExitError struct {
	Argv   []string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", strings.Join(e.Argv, " "), e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Check returns an *ExitError when the command exited non-zero.
func (r ExecResult) Check(argv []string) error {
	if r.ExitCode == 0 {
		return nil
	}
	return &ExitError{Argv: argv, Code: r.ExitCode, Stderr: r.Stderr}
}

// Runtime is an environment the test binary runs in.
type Runtime interface {
	// Name returns the backend name (docker, ssh, local).
	Name() string

	// State reports whether the environment exists and is running.
	State(ctx context.Context) (State, error)

	// Ensure makes the environment available. reused is true when an
	// existing environment was picked up instead of created.
	Ensure(ctx context.Context) (reused bool, err error)

	// Remove destroys the environment. Removing a missing environment
	// succeeds.
	Remove(ctx context.Context) error

	// Exec runs a command inside the environment.
	Exec(ctx context.Context, req ExecRequest) (ExecResult, error)

	// CopyIn copies a host file, or the contents of a host directory, to
	// dst inside the environment. Parent directories are created.
	CopyIn(ctx context.Context, src, dst string) error

	// CopyOut copies the contents of a directory inside the environment
	// into the host directory dst.
	CopyOut(ctx context.Context, src, dst string) error
}

// RunFunc adapts a runtime to the readiness probe's command runner. Non-zero
// exits are returned as *ExitError.
func RunFunc(rt Runtime) readiness.RunFunc {
	return func(ctx context.Context, argv ...string) (string, error) {
		res, err := rt.Exec(ctx, ExecRequest{Argv: argv})
		if err != nil {
			return "", err
		}
		if err := res.Check(argv); err != nil {
			return res.Stdout, err
		}
		return res.Stdout, nil
	}
}

// commandRunner runs a host command. It is swapped in tests.
type commandRunner func(ctx context.Context, stdin io.Reader, name string, args ...string) (ExecResult, error)

var runCommandFn commandRunner = runCommand

func runCommand(ctx context.Context, stdin io.Reader, name string, args ...string) (ExecResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctx.Err() != nil {
			return res, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return res, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

// withTimeout applies d, or fallback when d is zero.
func withTimeout(ctx context.Context, d, fallback time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = fallback
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=@%+,", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// shellJoin quotes and joins argv into one shell command line.
func shellJoin(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = shellQuote(a)
	}
	return strings.Join(parts, " ")
}
