// Package snapshot compares captured images against stored baselines.
//
// Baselines live under a root directory, one sub-directory per test
// ("window::pattern" maps to "window/pattern"), named "NN - description.png".
// A failed comparison leaves "NN - description.new.png" (the fresh capture)
// and, when sizes match, "NN - description.diff.png" next to the baseline.
// Baselines are only written in record mode for missing files or by Approve.
package snapshot

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/1broseidon/deskrig/internal/runerr"
)

// Mode selects how a missing baseline is handled.
type Mode string

const (
	// ModeCheck fails when a baseline is missing.
	ModeCheck Mode = "check"
	// ModeRecord writes missing baselines and passes.
	ModeRecord Mode = "record"
)

// ParseMode parses a configured mode. Empty means ModeCheck.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeCheck:
		return ModeCheck, nil
	case ModeRecord:
		return ModeRecord, nil
	default:
		return "", fmt.Errorf("unknown snapshot mode %q (want check or record)", s)
	}
}

// Status is the outcome of one evaluation.
type Status int

const (
	Pass Status = iota
	Fail
)

func (s Status) String() string {
	if s == Pass {
		return "pass"
	}
	return "fail"
}

// Outcome reports the result of evaluating one snapshot.
type Outcome struct {
	Key      Key
	Status   Status
	Reason   string
	Missing  bool // no baseline existed
	Created  bool // baseline written in record mode
	Baseline string
	NewPath  string
	DiffPath string
	// Leftover is an unconfirmed capture from an earlier run found in
	// check mode. It is replaced or removed by this evaluation.
	Leftover string
}

// Err converts a failed outcome to a classified error.
func (o Outcome) Err() error {
	if o.Status == Pass {
		return nil
	}
	kind := runerr.KindTestFailure
	if o.Missing {
		kind = runerr.KindBaselineMissing
	}
	err := runerr.Errorf(kind, "%s: %s", o.Baseline, o.Reason)
	if o.NewPath != "" {
		err = runerr.Attr(err, "new", o.NewPath)
	}
	if o.DiffPath != "" {
		err = runerr.Attr(err, "diff", o.DiffPath)
	}
	return runerr.Attr(err, "test", o.Key.Test)
}

// Engine evaluates captures against baselines under Dir.
type Engine struct {
	Dir    string
	Mode   Mode
	Logger *slog.Logger
}

// NewEngine creates an engine rooted at dir.
func NewEngine(dir string, mode Mode, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if mode == "" {
		mode = ModeCheck
	}
	return &Engine{Dir: dir, Mode: mode, Logger: logger}
}

// Evaluate compares fresh against the baseline for key. The returned error
// is reserved for I/O and naming problems; comparison failures are reported
// through Outcome.
func (e *Engine) Evaluate(key Key, fresh image.Image) (Outcome, error) {
	if err := key.validate(); err != nil {
		return Outcome{}, err
	}

	dir := TestDir(e.Dir, key.Test)
	out := Outcome{Key: key, Baseline: filepath.Join(dir, key.BaselineName())}
	newPath := filepath.Join(dir, key.UnconfirmedName())
	diffPath := filepath.Join(dir, key.DiffName())
	if e.Mode == ModeCheck {
		if _, err := os.Stat(newPath); err == nil {
			out.Leftover = newPath
		}
	}

	baseline, err := loadPNG(out.Baseline)
	if errors.Is(err, fs.ErrNotExist) {
		out.Missing = true
		if e.Mode == ModeRecord {
			if err := savePNG(out.Baseline, Canonical(fresh)); err != nil {
				return Outcome{}, err
			}
			if err := e.clean(newPath, diffPath); err != nil {
				return Outcome{}, err
			}
			out.Created = true
			out.Status = Pass
			out.Reason = "baseline created"
			e.Logger.Info("baseline created", "test", key.Test, "path", out.Baseline)
			return out, nil
		}
		if err := savePNG(newPath, Canonical(fresh)); err != nil {
			return Outcome{}, err
		}
		out.Status = Fail
		out.Reason = "missing snapshot"
		out.NewPath = newPath
		return out, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	diff := Compare(baseline, fresh)
	if diff.Equal {
		if err := e.clean(newPath, diffPath); err != nil {
			return Outcome{}, err
		}
		out.Status = Pass
		return out, nil
	}

	if err := savePNG(newPath, Canonical(fresh)); err != nil {
		return Outcome{}, err
	}
	out.Status = Fail
	out.NewPath = newPath
	if !diff.SameSize {
		if err := removeIfExists(diffPath); err != nil {
			return Outcome{}, err
		}
		out.Reason = fmt.Sprintf("snapshot size mismatch: baseline %dx%d, actual %dx%d",
			diff.BaselineSize.X, diff.BaselineSize.Y, diff.ActualSize.X, diff.ActualSize.Y)
	} else {
		if err := savePNG(diffPath, diff.Visualization); err != nil {
			return Outcome{}, err
		}
		out.DiffPath = diffPath
		out.Reason = fmt.Sprintf("snapshot content mismatch: %dx%d, %d pixels differ",
			diff.ActualSize.X, diff.ActualSize.Y, diff.DifferentPx)
	}
	e.Logger.Debug("snapshot mismatch", "test", key.Test, "step", key.Step, "reason", out.Reason)
	return out, nil
}

func (e *Engine) clean(paths ...string) error {
	for _, p := range paths {
		if err := removeIfExists(p); err != nil {
			return err
		}
	}
	return nil
}

// Session evaluates the ordered snapshots of a single test run and detects
// files on disk that the run did not produce.
type Session struct {
	engine   *Engine
	test     string
	step     int
	byStep   map[int]Outcome
	outcomes []Outcome
}

// NewSession starts a snapshot session for test.
func (e *Engine) NewSession(test string) *Session {
	return &Session{engine: e, test: test, byStep: make(map[int]Outcome)}
}

// Snapshot evaluates the next capture in sequence. A step that fails with
// an error still consumes its number.
func (s *Session) Snapshot(description string, img image.Image) (Outcome, error) {
	s.step++
	out, err := s.engine.Evaluate(Key{Test: s.test, Step: s.step, Description: description}, img)
	if err != nil {
		return Outcome{}, err
	}
	s.byStep[s.step] = out
	s.outcomes = append(s.outcomes, out)
	return out, nil
}

// Outcomes returns the outcomes evaluated so far.
func (s *Session) Outcomes() []Outcome {
	return append([]Outcome(nil), s.outcomes...)
}

// Finish reports baselines that no snapshot of this run matched and, in
// check mode, unconfirmed files left over from earlier runs.
func (s *Session) Finish() ([]string, error) {
	dir := TestDir(s.engine.Dir, s.test)
	files, err := Discover(dir)
	if err != nil {
		return nil, err
	}

	steps := make([]int, 0, len(files))
	for step := range files {
		steps = append(steps, step)
	}
	sort.Ints(steps)

	wrote := make(map[string]bool)
	for _, o := range s.outcomes {
		if o.NewPath != "" {
			wrote[filepath.Base(o.NewPath)] = true
		}
	}

	var issues []string
	for _, o := range s.outcomes {
		if o.Leftover != "" {
			issues = append(issues, fmt.Sprintf("unexpected unconfirmed snapshot: %s", o.Leftover))
		}
	}
	for _, step := range steps {
		f := files[step]
		if f.Confirmed != nil {
			o, seen := s.byStep[step]
			if !seen {
				issues = append(issues, fmt.Sprintf("extraneous snapshot: %s", filepath.Join(dir, f.Confirmed.Name)))
			} else if want := o.Key.BaselineName(); f.Confirmed.Name != want {
				issues = append(issues, fmt.Sprintf("extraneous snapshot: %s (replaced by %q)", filepath.Join(dir, f.Confirmed.Name), want))
			}
		}
		if f.Unconfirmed != nil && s.engine.Mode == ModeCheck && !wrote[f.Unconfirmed.Name] {
			issues = append(issues, fmt.Sprintf("unexpected unconfirmed snapshot: %s", filepath.Join(dir, f.Unconfirmed.Name)))
		}
	}
	return issues, nil
}
