package snapshot

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	pngSuffix        = ".png"
	unconfirmedInfix = ".new"
	diffInfix        = ".diff"
)

// Key identifies one snapshot of a test case.
type Key struct {
	Test        string
	Step        int
	Description string
}

func (k Key) validate() error {
	if strings.TrimSpace(k.Test) == "" {
		return errors.New("snapshot key has empty test name")
	}
	if k.Step < 1 {
		return fmt.Errorf("snapshot step must be >= 1, got %d", k.Step)
	}
	return ValidateDescription(k.Description)
}

func (k Key) stem() string {
	return fmt.Sprintf("%02d - %s", k.Step, k.Description)
}

// BaselineName is the confirmed file name, e.g. "01 - initial.png".
func (k Key) BaselineName() string { return k.stem() + pngSuffix }

// UnconfirmedName is the file written for inspection on failure.
func (k Key) UnconfirmedName() string { return k.stem() + unconfirmedInfix + pngSuffix }

// DiffName is the file holding the highlighted pixel differences.
func (k Key) DiffName() string { return k.stem() + diffInfix + pngSuffix }

// ValidateDescription restricts descriptions to characters that are safe in
// file names on every platform the suite runs on.
func ValidateDescription(desc string) error {
	if strings.TrimSpace(desc) == "" {
		return errors.New("snapshot description is empty")
	}
	for _, c := range desc {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == ' ', c == '-', c == '_':
		default:
			return fmt.Errorf("disallowed char %q in snapshot description %q", c, desc)
		}
	}
	return nil
}

// TestDir maps a test name like "window::pattern" to its directory under root.
func TestDir(root, test string) string {
	return filepath.Join(root, filepath.Join(strings.Split(test, "::")...))
}

// File is one snapshot file discovered on disk.
type File struct {
	Name        string
	Step        int
	Description string
}

// StepFiles groups the files that belong to one step.
type StepFiles struct {
	Confirmed   *File
	Unconfirmed *File
}

// Discover lists the snapshot files in dir keyed by step. Diff images are
// skipped. A missing directory yields an empty map.
func Discover(dir string) (map[int]*StepFiles, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[int]*StepFiles{}, nil
		}
		return nil, err
	}

	out := make(map[int]*StepFiles)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		stem, ok := strings.CutSuffix(name, pngSuffix)
		if !ok || strings.HasSuffix(stem, diffInfix) {
			continue
		}
		stepStr, desc, ok := strings.Cut(stem, " - ")
		if !ok {
			return nil, fmt.Errorf("invalid snapshot name: %q", filepath.Join(dir, name))
		}
		step, err := strconv.Atoi(stepStr)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot name: %q", filepath.Join(dir, name))
		}

		files := out[step]
		if files == nil {
			files = &StepFiles{}
			out[step] = files
		}
		if d, unconfirmed := strings.CutSuffix(desc, unconfirmedInfix); unconfirmed {
			if files.Unconfirmed != nil {
				return nil, fmt.Errorf("duplicate unconfirmed files: %q, %q", files.Unconfirmed.Name, name)
			}
			files.Unconfirmed = &File{Name: name, Step: step, Description: d}
			continue
		}
		if files.Confirmed != nil {
			return nil, fmt.Errorf("duplicate confirmed files: %q, %q", files.Confirmed.Name, name)
		}
		files.Confirmed = &File{Name: name, Step: step, Description: desc}
	}
	return out, nil
}

// Pending returns every unconfirmed snapshot under root, sorted.
func Pending(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), unconfirmedInfix+pngSuffix) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Approve promotes an unconfirmed snapshot to a baseline. Any existing
// baseline for the same step is replaced and the matching diff image removed.
func Approve(path string) (string, error) {
	stem, ok := strings.CutSuffix(path, unconfirmedInfix+pngSuffix)
	if !ok {
		return "", fmt.Errorf("expected a path that ends with %q, got %q", unconfirmedInfix+pngSuffix, path)
	}
	if _, err := os.Stat(path); err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	stepPrefix, _, _ := strings.Cut(filepath.Base(stem), " - ")
	existing, err := Discover(dir)
	if err != nil {
		return "", err
	}
	if step, err := strconv.Atoi(stepPrefix); err == nil {
		if files := existing[step]; files != nil && files.Confirmed != nil {
			if err := os.Remove(filepath.Join(dir, files.Confirmed.Name)); err != nil {
				return "", err
			}
		}
	}

	target := stem + pngSuffix
	if err := os.Rename(path, target); err != nil {
		return "", err
	}
	if err := removeIfExists(stem + diffInfix + pngSuffix); err != nil {
		return "", err
	}
	return target, nil
}

func loadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %q: %w", path, err)
	}
	return img, nil
}

func savePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to save image %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
