package fixtures

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/deskrig/internal/geometry"
)

const repoFixtures = "../../fixtures/panels"

func TestRepoFixturesMatchKnownWorkAreas(t *testing.T) {
	monitor := geometry.Rect{Width: 1600, Height: 900}
	tests := []struct {
		fixture string
		want    string
	}{
		{"none", "[(0, 0, 1600, 900)]"},
		{"top26", "[(0, 27, 1600, 873)]"},
		{"top50", "[(0, 51, 1600, 849)]"},
		{"top50-bottom25", "[(0, 51, 1600, 823)]"},
		{"left26-bottom48", "[(27, 0, 1573, 851)]"},
		{"right26-bottom48", "[(0, 0, 1573, 851)]"},
		{"middle-bottom48", "[(0, 0, 1600, 851)]"},
	}

	names, err := List(repoFixtures)
	require.NoError(t, err)
	require.Len(t, names, len(tests))

	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			f, err := Load(repoFixtures, tt.fixture)
			require.NoError(t, err)
			got, err := f.Oracle(monitor)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepoFixtureFiles(t *testing.T) {
	f, err := Load(repoFixtures, "top50-bottom25")
	require.NoError(t, err)
	files, err := f.Files()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "bottom", files[0].Rel)
	assert.Equal(t, "top", files[1].Rel)

	none, err := Load(repoFixtures, "none")
	require.NoError(t, err)
	files, err = none.Files()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func writeFixture(t *testing.T, root, name, manifest string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0644))
}

func TestList(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "b", "panels: []\n")
	writeFixture(t, root, "a", "panels: []\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not-a-fixture"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), nil, 0644))

	names, err := List(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	names, err = List(filepath.Join(root, "missing"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLoadErrors(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "bad-edge", "panels:\n  - edge: diagonal\n    thickness: 3\n")
	writeFixture(t, root, "unknown-key", "panels: []\ncolour: red\n")
	writeFixture(t, root, "negative", "panels:\n  - edge: top\n    thickness: -1\n")

	_, err := Load(root, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = Load(root, "../escape")
	assert.ErrorContains(t, err, "invalid fixture name")

	_, err = Load(root, "bad-edge")
	assert.ErrorContains(t, err, "unknown panel edge")

	_, err = Load(root, "unknown-key")
	assert.ErrorContains(t, err, "colour")

	_, err = Load(root, "negative")
	assert.ErrorContains(t, err, "thickness")
}

func TestOracleRejectsOversizedPanels(t *testing.T) {
	f := &Fixture{Name: "huge", Panels: []geometry.Panel{{Edge: geometry.EdgeTop, Thickness: 500}, {Edge: geometry.EdgeBottom, Thickness: 500}}}
	_, err := f.Oracle(geometry.Rect{Width: 1600, Height: 900})
	assert.ErrorIs(t, err, geometry.ErrReservationExceedsMonitor)
}
