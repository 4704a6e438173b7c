package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestValidateDescription(t *testing.T) {
	for _, ok := range []string{"initial", "after click", "step_2-b", "A1"} {
		assert.NoError(t, ValidateDescription(ok), ok)
	}
	for _, bad := range []string{"", "   ", "a/b", "dots.png", "ünicode", "tab\tx"} {
		assert.Error(t, ValidateDescription(bad), bad)
	}
}

func TestKeyNames(t *testing.T) {
	k := Key{Test: "window::pattern", Step: 3, Description: "after resize"}
	assert.Equal(t, "03 - after resize.png", k.BaselineName())
	assert.Equal(t, "03 - after resize.new.png", k.UnconfirmedName())
	assert.Equal(t, "03 - after resize.diff.png", k.DiffName())
	assert.Equal(t, filepath.Join("root", "window", "pattern"), TestDir("root", k.Test))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "01 - initial.png"))
	touch(t, filepath.Join(dir, "01 - initial.diff.png"))
	touch(t, filepath.Join(dir, "02 - clicked.new.png"))
	touch(t, filepath.Join(dir, "notes.txt"))

	files, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.NotNil(t, files[1].Confirmed)
	assert.Equal(t, "initial", files[1].Confirmed.Description)
	assert.Nil(t, files[1].Unconfirmed)
	require.NotNil(t, files[2].Unconfirmed)
	assert.Equal(t, "clicked", files[2].Unconfirmed.Description)

	empty, err := Discover(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDiscoverRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "01 - a.png"))
	touch(t, filepath.Join(dir, "01 - b.png"))
	_, err := Discover(dir)
	assert.ErrorContains(t, err, "duplicate confirmed files")
}

func TestDiscoverRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "first.png"))
	_, err := Discover(dir)
	assert.ErrorContains(t, err, "invalid snapshot name")
}

func TestApprove(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "01 - old.png"))
	touch(t, filepath.Join(dir, "01 - new name.new.png"))
	touch(t, filepath.Join(dir, "01 - new name.diff.png"))

	target, err := Approve(filepath.Join(dir, "01 - new name.new.png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "01 - new name.png"), target)
	assert.FileExists(t, target)
	assert.NoFileExists(t, filepath.Join(dir, "01 - old.png"))
	assert.NoFileExists(t, filepath.Join(dir, "01 - new name.new.png"))
	assert.NoFileExists(t, filepath.Join(dir, "01 - new name.diff.png"))
}

func TestApproveRejectsBaselinePath(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "01 - a.png"))
	_, err := Approve(filepath.Join(dir, "01 - a.png"))
	assert.Error(t, err)
	_, err = Approve(filepath.Join(dir, "02 - gone.new.png"))
	assert.Error(t, err)
}

func TestPending(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b", "01 - x.new.png"))
	touch(t, filepath.Join(root, "a", "c", "02 - y.new.png"))
	touch(t, filepath.Join(root, "a", "01 - z.png"))

	got, err := Pending(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a", "c", "02 - y.new.png"),
		filepath.Join(root, "b", "01 - x.new.png"),
	}, got)

	none, err := Pending(filepath.Join(root, "nope"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSessionFinishReportsExtraneousAndLeftovers(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "suite", "case")
	img := checker(8, 8, white, black)

	rec := NewEngine(root, ModeRecord, nil)
	s := rec.NewSession("suite::case")
	_, err := s.Snapshot("one", img)
	require.NoError(t, err)
	_, err = s.Snapshot("two", img)
	require.NoError(t, err)
	issues, err := s.Finish()
	require.NoError(t, err)
	assert.Empty(t, issues)

	touch(t, filepath.Join(dir, "03 - three.new.png"))

	check := NewEngine(root, ModeCheck, nil)
	s = check.NewSession("suite::case")
	out, err := s.Snapshot("one", img)
	require.NoError(t, err)
	assert.Equal(t, Pass, out.Status)

	issues, err = s.Finish()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"extraneous snapshot: " + filepath.Join(dir, "02 - two.png"),
		"unexpected unconfirmed snapshot: " + filepath.Join(dir, "03 - three.new.png"),
	}, issues)
}

func TestSessionFinishIgnoresOwnUnconfirmedFiles(t *testing.T) {
	root := t.TempDir()
	s := NewEngine(root, ModeCheck, nil).NewSession("fresh")
	out, err := s.Snapshot("first", checker(4, 4, white, black))
	require.NoError(t, err)
	require.Equal(t, Fail, out.Status)

	issues, err := s.Finish()
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Len(t, s.Outcomes(), 1)
}

func TestSessionErroredStepKeepsNumbering(t *testing.T) {
	root := t.TempDir()
	img := checker(8, 8, white, black)

	rec := NewEngine(root, ModeRecord, nil).NewSession("suite::steps")
	_, err := rec.Snapshot("one", img)
	require.NoError(t, err)
	_, err = rec.Snapshot("two", img)
	require.NoError(t, err)

	s := NewEngine(root, ModeCheck, nil).NewSession("suite::steps")
	_, err = s.Snapshot("bad/desc", img)
	require.Error(t, err)
	out, err := s.Snapshot("two", img)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Key.Step)
	assert.Equal(t, Pass, out.Status)

	issues, err := s.Finish()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"extraneous snapshot: " + filepath.Join(root, "suite", "steps", "01 - one.png"),
	}, issues)
}

func TestSessionReportsLeftoverFromEarlierRun(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "suite", "leftover")
	img := checker(8, 8, white, black)

	_, err := NewEngine(root, ModeRecord, nil).NewSession("suite::leftover").Snapshot("one", img)
	require.NoError(t, err)
	touch(t, filepath.Join(dir, "01 - one.new.png"))

	s := NewEngine(root, ModeCheck, nil).NewSession("suite::leftover")
	out, err := s.Snapshot("one", img)
	require.NoError(t, err)
	assert.Equal(t, Pass, out.Status)
	assert.NoFileExists(t, filepath.Join(dir, "01 - one.new.png"))

	issues, err := s.Finish()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"unexpected unconfirmed snapshot: " + filepath.Join(dir, "01 - one.new.png"),
	}, issues)
}
