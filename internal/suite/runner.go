package suite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/1broseidon/deskrig/internal/platform"
	"github.com/1broseidon/deskrig/internal/runerr"
	"github.com/1broseidon/deskrig/internal/snapshot"
)

// ErrNoTests is returned when a filter matches no registered test.
var ErrNoTests = errors.New("no tests match")

// CaseResult is the outcome of one test case.
type CaseResult struct {
	Name     string
	Fails    []string
	Duration time.Duration
}

// Passed reports whether the case had no failures.
func (r CaseResult) Passed() bool { return len(r.Fails) == 0 }

// Result aggregates a suite run.
type Result struct {
	Total  int
	Failed int
	Cases  []CaseResult
}

// Fails returns every failure message in run order.
func (r Result) Fails() []string {
	var out []string
	for _, c := range r.Cases {
		out = append(out, c.Fails...)
	}
	return out
}

// Err returns a KindTestFailure error when any case failed.
func (r Result) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return runerr.Errorf(runerr.KindTestFailure, "%d of %d tests failed", r.Failed, r.Total)
}

// ExitCode is 0 when every case passed.
func (r Result) ExitCode() int {
	return runerr.ExitCode(r.Err())
}

// Runner executes test cases sequentially against one display.
type Runner struct {
	Registry *Registry
	Engine   *snapshot.Engine
	Display  platform.Backend
	Out      io.Writer
	Logger   *slog.Logger

	// Sleep and Now default to the real clock.
	Sleep func(time.Duration)
	Now   func() time.Time
}

// Run executes every test whose name contains filter. A test returning an
// error is recorded as failed and the run continues.
func (r *Runner) Run(ctx context.Context, filter string) (Result, error) {
	names := r.Registry.Match(filter)
	if len(names) == 0 {
		return Result{}, fmt.Errorf("%w %q; available tests:\n    %s",
			ErrNoTests, filter, strings.Join(r.Registry.Names(), "\n    "))
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := r.Out
	if out == nil {
		out = io.Discard
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}

	var res Result
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		fmt.Fprintf(out, "running test: %s\n", name)

		tc := &Context{
			ctx:     ctx,
			name:    name,
			display: r.Display,
			session: r.Engine.NewSession(name),
			logger:  logger.With("test", name),
			sleep:   sleep,
			now:     now,
		}
		started := now()
		fails := r.runCase(tc)
		cr := CaseResult{Name: name, Fails: fails, Duration: now().Sub(started)}

		res.Total++
		if !cr.Passed() {
			res.Failed++
			for _, f := range fails {
				fmt.Fprintln(out, f)
			}
		}
		res.Cases = append(res.Cases, cr)
	}
	return res, nil
}

func (r *Runner) runCase(tc *Context) (fails []string) {
	defer func() {
		if tc.display != nil {
			tc.closeWindows()
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			fails = append(tc.fails, fmt.Sprintf("test %q panicked: %v", tc.name, p))
		}
	}()

	if err := r.Registry.get(tc.name)(tc); err != nil {
		return append(tc.fails, fmt.Sprintf("test %q failed: %v", tc.name, err))
	}
	issues, err := tc.session.Finish()
	if err != nil {
		return append(tc.fails, fmt.Sprintf("test %q: %v", tc.name, err))
	}
	for _, issue := range issues {
		tc.fails = append(tc.fails, fmt.Sprintf("%s: %s", tc.name, issue))
	}
	return tc.fails
}
