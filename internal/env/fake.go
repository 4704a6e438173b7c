package env

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Copy records one CopyIn call on a FakeRuntime.
type Copy struct {
	Src string
	Dst string
}

// FakeRuntime is an in-memory Runtime for tests.
type FakeRuntime struct {
	mu sync.Mutex

	Current   State
	EnsureErr error
	Ensures   int
	Removes   int

	// Handle answers Exec. A nil Handle succeeds with no output.
	Handle func(req ExecRequest) (ExecResult, error)
	Execs  []ExecRequest

	CopiedIn []Copy

	// OutFiles maps a CopyOut source directory to relative file paths and
	// their contents.
	OutFiles map[string]map[string]string
}

var _ Runtime = (*FakeRuntime)(nil)

func (f *FakeRuntime) Name() string { return "fake" }

func (f *FakeRuntime) State(context.Context) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Current == "" {
		return StateMissing, nil
	}
	return f.Current, nil
}

func (f *FakeRuntime) Ensure(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EnsureErr != nil {
		return false, f.EnsureErr
	}
	f.Ensures++
	reused := f.Current == StateRunning
	f.Current = StateRunning
	return reused, nil
}

func (f *FakeRuntime) Remove(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Removes++
	f.Current = StateMissing
	return nil
}

func (f *FakeRuntime) Exec(_ context.Context, req ExecRequest) (ExecResult, error) {
	f.mu.Lock()
	f.Execs = append(f.Execs, req)
	handle := f.Handle
	f.mu.Unlock()
	if len(req.Argv) == 0 {
		return ExecResult{}, fmt.Errorf("exec: empty command")
	}
	if handle == nil {
		return ExecResult{}, nil
	}
	return handle(req)
}

func (f *FakeRuntime) CopyIn(_ context.Context, src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CopiedIn = append(f.CopiedIn, Copy{Src: src, Dst: dst})
	return nil
}

// CopyOut writes the files registered under src in OutFiles. An unknown
// src copies nothing.
func (f *FakeRuntime) CopyOut(_ context.Context, src, dst string) error {
	f.mu.Lock()
	files := f.OutFiles[src]
	f.mu.Unlock()
	for rel, data := range files {
		p := filepath.Join(dst, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(data), 0644); err != nil {
			return err
		}
	}
	return nil
}

// ExecArgv returns the argv of every Exec call so far.
func (f *FakeRuntime) ExecArgv() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.Execs))
	for i, req := range f.Execs {
		out[i] = req.Argv
	}
	return out
}

// FakeBuilder is a BuildBackend for tests.
type FakeBuilder struct {
	mu sync.Mutex

	Reused     bool
	PrepareErr error
	BuildErr   error
	Output     string

	Prepares int
	Builds   []Target
}

var _ BuildBackend = (*FakeBuilder)(nil)

func (b *FakeBuilder) Name() string { return "fake" }

func (b *FakeBuilder) Prepare(context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Prepares++
	return b.Reused, b.PrepareErr
}

func (b *FakeBuilder) Build(_ context.Context, target Target, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Builds = append(b.Builds, target)
	if b.BuildErr != nil {
		return "", b.BuildErr
	}
	return b.Output, nil
}
