package env

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// LocalRuntime drives the host's own display. Nothing is provisioned.
type LocalRuntime struct {
	Display     string
	Workdir     string
	ExecTimeout time.Duration
	Logger      *slog.Logger

	envOnce sync.Once
	baseEnv []string
}

var _ Runtime = (*LocalRuntime)(nil)

// environ is the host environment with the X session resolved once.
func (l *LocalRuntime) environ() []string {
	l.envOnce.Do(func() { l.baseEnv = x11Environ(os.Environ(), l.Display) })
	return append([]string(nil), l.baseEnv...)
}

func (l *LocalRuntime) Name() string { return "local" }

func (l *LocalRuntime) State(ctx context.Context) (State, error) {
	return StateRunning, nil
}

func (l *LocalRuntime) Ensure(ctx context.Context) (bool, error) {
	if l.Workdir != "" {
		if err := os.MkdirAll(l.Workdir, 0755); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (l *LocalRuntime) Remove(ctx context.Context) error { return nil }

func (l *LocalRuntime) Exec(ctx context.Context, req ExecRequest) (ExecResult, error) {
	if len(req.Argv) == 0 {
		return ExecResult{}, fmt.Errorf("exec: empty command")
	}
	ctx, cancel := withTimeout(ctx, req.Timeout, l.ExecTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, req.Argv[0], req.Argv[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = append(l.environ(), req.Env...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if l.Logger != nil {
		l.Logger.Debug("exec", "argv", req.Argv)
	}

	err := cmd.Run()
	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctx.Err() != nil {
			return res, fmt.Errorf("%s: %w", req.Argv[0], ctx.Err())
		}
		return res, fmt.Errorf("%s: %w", req.Argv[0], err)
	}
	return res, nil
}

func (l *LocalRuntime) resolve(p string) string {
	if filepath.IsAbs(p) || l.Workdir == "" {
		return p
	}
	return filepath.Join(l.Workdir, p)
}

func (l *LocalRuntime) CopyIn(ctx context.Context, src, dst string) error {
	return copyTree(src, l.resolve(dst))
}

func (l *LocalRuntime) CopyOut(ctx context.Context, src, dst string) error {
	return copyTree(l.resolve(src), dst)
}
