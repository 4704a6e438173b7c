package env

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, data string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(data), mode))
}

func TestCopyTreeDirectoryAndFile(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "window", "pattern", "01 - checkerboard.new.png"), "png", 0644)
	writeFile(t, filepath.Join(src, "run.log"), "log", 0644)
	dst := filepath.Join(t.TempDir(), "out")

	require.NoError(t, copyTree(src, dst))
	data, err := os.ReadFile(filepath.Join(dst, "window", "pattern", "01 - checkerboard.new.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	assert.FileExists(t, filepath.Join(dst, "run.log"))

	bin := filepath.Join(t.TempDir(), "deskrig")
	writeFile(t, bin, "#!/bin/sh\n", 0755)
	target := filepath.Join(t.TempDir(), "usr", "local", "bin", "deskrig")
	require.NoError(t, copyTree(bin, target))
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0100, "executable bit must survive the copy")
}

func TestExtractTarRejectsEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: "../evil", Mode: 0644, Size: 1}))
	_, err := tw.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	dst := t.TempDir()
	err = extractTar(&buf, filepath.Join(dst, "inner"))
	assert.ErrorContains(t, err, "escapes destination")
	assert.NoFileExists(t, filepath.Join(dst, "evil"))
}

func TestLocalExec(t *testing.T) {
	l := &LocalRuntime{Display: ":42", ExecTimeout: 10 * time.Second}
	dir := t.TempDir()

	res, err := l.Exec(context.Background(), ExecRequest{
		Argv: []string{"sh", "-c", `echo "$DISPLAY $EXTRA $(pwd -P)"; echo oops >&2; exit 3`},
		Env:  []string{"EXTRA=yes"},
		Dir:  dir,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	realDir, _ := filepath.EvalSymlinks(dir)
	assert.Equal(t, ":42 yes "+realDir, strings.TrimSpace(res.Stdout))
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Error(t, res.Check([]string{"sh"}))
}

func TestLocalExecTimeout(t *testing.T) {
	l := &LocalRuntime{}
	_, err := l.Exec(context.Background(), ExecRequest{Argv: []string{"sleep", "5"}, Timeout: 50 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalRuntimeCopiesRelativeToWorkdir(t *testing.T) {
	work := t.TempDir()
	l := &LocalRuntime{Workdir: work}
	reused, err := l.Ensure(context.Background())
	require.NoError(t, err)
	assert.True(t, reused)

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "top"), "edge=top", 0644)
	require.NoError(t, l.CopyIn(context.Background(), src, "panels"))
	assert.FileExists(t, filepath.Join(work, "panels", "top"))

	out := t.TempDir()
	require.NoError(t, l.CopyOut(context.Background(), "panels", out))
	assert.FileExists(t, filepath.Join(out, "top"))
}

func TestRunFuncReportsExitErrors(t *testing.T) {
	run := RunFunc(&LocalRuntime{})
	out, err := run(context.Background(), "sh", "-c", "echo 0x1200007")
	require.NoError(t, err)
	assert.Equal(t, "0x1200007\n", out)

	_, err = run(context.Background(), "sh", "-c", "exit 1")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
}

func TestShellQuote(t *testing.T) {
	tests := map[string]string{
		"":                      "''",
		"deskrig":               "deskrig",
		"DISPLAY=:99":           "DISPLAY=:99",
		"01 - checkerboard.png": "'01 - checkerboard.png'",
		"it's":                  `'it'"'"'s'`,
		"$(rm -rf /)":           "'$(rm -rf /)'",
	}
	for in, want := range tests {
		assert.Equal(t, want, shellQuote(in), in)
	}
	assert.Equal(t, "deskrig test window::focus 'a b'", shellJoin([]string{"deskrig", "test", "window::focus", "a b"}))
}
