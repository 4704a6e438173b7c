// Package fixtures loads named panel configurations used by geometry checks.
//
// A fixture is a directory <root>/<name> holding panels.yaml, which describes
// the panels for the work-area oracle, and a files/ tree that is copied
// verbatim into the window manager's config dir.
package fixtures

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/deskrig/internal/geometry"
)

const (
	ManifestName = "panels.yaml"
	FilesDir     = "files"
)

// ErrNotFound is returned for an unknown fixture name.
var ErrNotFound = errors.New("fixture not found")

type manifest struct {
	Description string           `yaml:"description,omitempty"`
	Panels      []geometry.Panel `yaml:"panels"`
}

// Fixture is one loaded panel configuration.
type Fixture struct {
	Name        string
	Dir         string
	Description string
	Panels      []geometry.Panel
}

// File is a fixture file to install, relative to the WM config dir.
type File struct {
	Rel  string
	Path string
	Mode fs.FileMode
}

// List returns the fixture names under root, sorted. A missing root has no
// fixtures.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), ManifestName)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Load reads the named fixture from root.
func Load(root, name string) (*Fixture, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid fixture name %q", name)
	}
	dir := filepath.Join(root, name)
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q in %s", ErrNotFound, name, root)
	}
	if err != nil {
		return nil, err
	}

	var m manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", filepath.Join(dir, ManifestName), err)
	}
	for i, p := range m.Panels {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: panels[%d]: %w", filepath.Join(dir, ManifestName), i, err)
		}
	}
	return &Fixture{Name: name, Dir: dir, Description: m.Description, Panels: m.Panels}, nil
}

// Files lists the regular files under the fixture's files/ tree, sorted by
// relative path.
func (f *Fixture) Files() ([]File, error) {
	base := filepath.Join(f.Dir, FilesDir)
	var out []File
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == base {
				return fs.SkipAll
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		out = append(out, File{Rel: filepath.ToSlash(rel), Path: path, Mode: info.Mode().Perm()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WorkArea computes the expected work area of monitor with this fixture's
// panels.
func (f *Fixture) WorkArea(monitor geometry.Rect) (geometry.Rect, error) {
	area, err := geometry.WorkArea(monitor, f.Panels)
	if err != nil {
		return geometry.Rect{}, fmt.Errorf("fixture %s: %w", f.Name, err)
	}
	return area, nil
}

// Oracle returns the expected `deskrig workarea` line for a single monitor.
func (f *Fixture) Oracle(monitor geometry.Rect) (string, error) {
	area, err := f.WorkArea(monitor)
	if err != nil {
		return "", err
	}
	return geometry.FormatRects([]geometry.Rect{area}), nil
}
