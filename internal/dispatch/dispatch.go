// Package dispatch builds the test binary, ships it into a provisioned
// environment and runs the snapshot suite and the work-area geometry checks
// there. Results and failure artifacts are brought back to the host.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/1broseidon/deskrig/internal/config"
	"github.com/1broseidon/deskrig/internal/env"
	"github.com/1broseidon/deskrig/internal/fixtures"
	"github.com/1broseidon/deskrig/internal/orchestrator"
	"github.com/1broseidon/deskrig/internal/runerr"
	"github.com/1broseidon/deskrig/internal/snapshot"
)

const (
	// RunLogName is the suite output log inside the artifacts dir.
	RunLogName = "run.log"

	// GeometryDir holds geometry mismatch reports inside the artifacts dir.
	GeometryDir = "geometry"
)

// SuiteResult is the captured outcome of `deskrig test` in the environment.
type SuiteResult struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

func (r SuiteResult) Passed() bool { return r.ExitCode == 0 }

// GeometryResult is the outcome of one geometry check.
type GeometryResult struct {
	Check    string
	Fixture  string
	Expected string
	Actual   string
	Passed   bool

	// Report is the host path of the mismatch report, if one was written.
	Report string
}

// RunResult aggregates a full run.
type RunResult struct {
	ID           string
	Binary       string
	Suite        *SuiteResult
	Geometry     []GeometryResult
	Unconfirmed  []string
	ArtifactsDir string
}

// RunOptions selects what Run does.
type RunOptions struct {
	// Filter selects tests by substring; empty runs the full suite.
	Filter string
	Record bool

	SkipGeometry bool

	// Keep leaves a freshly created environment running afterwards.
	Keep bool
}

// Options configures a Dispatcher.
type Options struct {
	Logger *slog.Logger

	// Out receives progress lines.
	Out io.Writer

	// Sleep waits between work-area polls.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Dispatcher runs tests inside environments provided by an orchestrator.
type Dispatcher struct {
	cfg    *config.Config
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
	out    io.Writer
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(cfg *config.Config, orch *orchestrator.Orchestrator, opts Options) *Dispatcher {
	d := &Dispatcher{cfg: cfg, orch: orch, logger: opts.Logger, out: opts.Out, sleep: opts.Sleep}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.out == nil {
		d.out = io.Discard
	}
	if d.sleep == nil {
		d.sleep = sleepCtx
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Dispatcher) artifactsDir() string { return d.cfg.Path(d.cfg.ArtifactsDir) }

// Build compiles the test binary for the session's target platform.
func (d *Dispatcher) Build(ctx context.Context, s *orchestrator.Session) (string, error) {
	fmt.Fprintf(d.out, "building %s for %s (%s builder)\n", d.cfg.Build.Package, s.Target, s.Builder.Name())
	binary, err := s.Builder.Build(ctx, s.Target, d.cfg.Build.Package)
	if err != nil {
		if runerr.KindOf(err) == runerr.KindUnknown {
			err = runerr.Wrap(err, runerr.KindBuild, "build test binary")
		}
		return "", err
	}
	return binary, nil
}

// Transfer places the binary inside the environment and returns its path
// there. Environments without the mounted work tree also receive the
// snapshot baselines.
func (d *Dispatcher) Transfer(ctx context.Context, s *orchestrator.Session, binary string) (string, error) {
	if d.cfg.Runtime.Backend == config.BackendLocal {
		return binary, nil
	}
	if err := s.Runtime.CopyIn(ctx, binary, d.cfg.Runtime.Binary); err != nil {
		return "", runerr.Wrap(err, runerr.KindProvisioning, "transfer test binary")
	}
	if !s.Mounted {
		baselines := d.cfg.Path(d.cfg.Snapshots.Dir)
		if _, err := os.Stat(baselines); err == nil {
			if err := s.Runtime.CopyIn(ctx, baselines, d.remotePath(s, d.cfg.Snapshots.Dir)); err != nil {
				return "", runerr.Wrap(err, runerr.KindProvisioning, "transfer snapshot baselines")
			}
		}
	}
	return d.cfg.Runtime.Binary, nil
}

func (d *Dispatcher) remotePath(s *orchestrator.Session, rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return strings.TrimSuffix(s.Workdir, "/") + "/" + filepath.ToSlash(rel)
}

// SuiteArgv is the command line that runs the suite inside the environment.
func (d *Dispatcher) SuiteArgv(binary, filter string, record bool) []string {
	argv := []string{binary, "test", "--snapshots", d.cfg.Snapshots.Dir}
	if record || d.cfg.Snapshots.Mode == snapshot.ModeRecord {
		argv = append(argv, "--record")
	}
	if filter != "" {
		argv = append(argv, filter)
	}
	return argv
}

// RunSuite executes the suite in the environment. A non-zero exit is a
// failed run; the output is kept in run.log either way.
func (d *Dispatcher) RunSuite(ctx context.Context, s *orchestrator.Session, binary, filter string, record bool) (SuiteResult, error) {
	argv := d.SuiteArgv(binary, filter, record)
	d.logger.Info("running test suite", "session", s.ID, "argv", strings.Join(argv, " "))

	started := time.Now()
	res, err := s.Runtime.Exec(ctx, env.ExecRequest{Argv: argv, Dir: s.Workdir})
	sr := SuiteResult{
		Argv:     argv,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: time.Since(started),
	}
	if err != nil {
		return sr, runerr.Wrap(err, runerr.KindProvisioning, "run test suite")
	}
	io.WriteString(d.out, sr.Stdout)
	if logErr := d.writeRunLog(s, sr); logErr != nil {
		d.logger.Warn("failed to write run log", "error", logErr)
	}
	if sr.ExitCode != 0 {
		err := runerr.Errorf(runerr.KindTestFailure, "test suite failed (exit %d)", sr.ExitCode)
		return sr, runerr.Attr(err, "exit_code", sr.ExitCode)
	}
	return sr, nil
}

func (d *Dispatcher) writeRunLog(s *orchestrator.Session, sr SuiteResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "session: %s\n", s.ID)
	fmt.Fprintf(&b, "command: %s\n", strings.Join(sr.Argv, " "))
	fmt.Fprintf(&b, "exit: %d\n", sr.ExitCode)
	fmt.Fprintf(&b, "duration: %s\n", sr.Duration.Round(time.Millisecond))
	b.WriteString("\n--- stdout ---\n")
	b.WriteString(sr.Stdout)
	b.WriteString("\n--- stderr ---\n")
	b.WriteString(sr.Stderr)

	dir := d.artifactsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, RunLogName), []byte(b.String()), 0644)
}

// RunGeometryChecks swaps each check's panel fixture into the window
// manager's config, restarts the panel (or the whole environment) and
// compares `deskrig workarea` with the expected literal. The first mismatch
// aborts the remaining checks.
func (d *Dispatcher) RunGeometryChecks(ctx context.Context, s *orchestrator.Session, binary string, checks []config.GeometryCheck) ([]GeometryResult, error) {
	var results []GeometryResult
	for _, check := range checks {
		res, err := d.runGeometryCheck(ctx, s, binary, check)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if !res.Passed {
			report, werr := d.writeGeometryReport(res)
			if werr != nil {
				d.logger.Warn("failed to write geometry report", "check", check.Name, "error", werr)
			}
			results[len(results)-1].Report = report
			fmt.Fprintf(d.out, "geometry %s: FAIL\n", check.Name)
			err := runerr.Errorf(runerr.KindGeometryMismatch, "geometry check %q failed", check.Name)
			err = runerr.Attr(err, "expected", res.Expected)
			return results, runerr.Attr(err, "actual", res.Actual)
		}
		fmt.Fprintf(d.out, "geometry %s: ok %s\n", check.Name, res.Actual)
	}
	return results, nil
}

func (d *Dispatcher) runGeometryCheck(ctx context.Context, s *orchestrator.Session, binary string, check config.GeometryCheck) (GeometryResult, error) {
	fx, err := fixtures.Load(d.cfg.Path(d.cfg.FixturesDir), check.Fixture)
	if err != nil {
		return GeometryResult{}, runerr.Wrapf(err, runerr.KindConfig, "geometry check %q", check.Name)
	}
	expected := check.Expected
	if expected == "" {
		if expected, err = fx.Oracle(d.cfg.Monitor); err != nil {
			return GeometryResult{}, runerr.Wrapf(err, runerr.KindConfig, "geometry check %q", check.Name)
		}
	}
	res := GeometryResult{Check: check.Name, Fixture: fx.Name, Expected: expected}
	d.logger.Info("geometry check", "check", check.Name, "fixture", fx.Name, "expected", expected, "restart", check.Restart)

	if check.Restart {
		if err := d.orch.Recreate(ctx, s); err != nil {
			return res, err
		}
		if _, err := d.orch.WaitReady(ctx, s); err != nil {
			return res, err
		}
		if !s.Mounted {
			if _, err := d.Transfer(ctx, s, binary); err != nil {
				return res, err
			}
		}
	}
	if err := d.installFixture(ctx, s, fx); err != nil {
		return res, err
	}
	if err := d.exec(ctx, s, d.cfg.PanelRestart); err != nil {
		return res, runerr.Wrap(err, runerr.KindProvisioning, "restart panel")
	}
	if _, err := d.orch.WaitReady(ctx, s); err != nil {
		return res, err
	}

	actual, err := d.pollWorkArea(ctx, s, binary, expected)
	if err != nil {
		return res, err
	}
	res.Actual = actual
	res.Passed = actual == expected
	return res, nil
}

func (d *Dispatcher) installFixture(ctx context.Context, s *orchestrator.Session, fx *fixtures.Fixture) error {
	dir := d.cfg.WMConfigDir
	if err := d.exec(ctx, s, []string{"rm", "-rf", dir}); err != nil {
		return runerr.Wrap(err, runerr.KindProvisioning, "clear panel config")
	}
	if err := d.exec(ctx, s, []string{"mkdir", "-p", dir}); err != nil {
		return runerr.Wrap(err, runerr.KindProvisioning, "create panel config dir")
	}
	files, err := fx.Files()
	if err != nil {
		return runerr.Wrapf(err, runerr.KindConfig, "fixture %s", fx.Name)
	}
	if len(files) == 0 {
		return nil
	}
	if err := s.Runtime.CopyIn(ctx, filepath.Join(fx.Dir, fixtures.FilesDir), dir); err != nil {
		return runerr.Wrapf(err, runerr.KindProvisioning, "install fixture %s", fx.Name)
	}
	return nil
}

// pollWorkArea queries the work area until it matches expected or the
// readiness budget runs out. Panels reserve their struts asynchronously
// after start.
func (d *Dispatcher) pollWorkArea(ctx context.Context, s *orchestrator.Session, binary, expected string) (string, error) {
	attempts := max(d.cfg.Readiness.Attempts, 1)
	var actual string
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := s.Runtime.Exec(ctx, env.ExecRequest{Argv: []string{binary, "workarea"}, Dir: s.Workdir})
		if err == nil {
			err = res.Check([]string{binary, "workarea"})
		}
		if err == nil {
			actual, lastErr = strings.TrimSpace(res.Stdout), nil
			if actual == expected {
				return actual, nil
			}
		} else {
			lastErr = err
		}
		d.logger.Debug("work area not settled", "attempt", attempt, "actual", actual, "error", err)
		if attempt == attempts {
			break
		}
		if err := d.sleep(ctx, d.cfg.Readiness.Interval); err != nil {
			return actual, runerr.Wrap(err, runerr.KindReadiness, "query work area")
		}
	}
	if lastErr != nil && actual == "" {
		return "", runerr.Wrap(lastErr, runerr.KindTestFailure, "query work area")
	}
	return actual, nil
}

func (d *Dispatcher) exec(ctx context.Context, s *orchestrator.Session, argv []string) error {
	res, err := s.Runtime.Exec(ctx, env.ExecRequest{Argv: argv})
	if err != nil {
		return err
	}
	return res.Check(argv)
}

func (d *Dispatcher) writeGeometryReport(res GeometryResult) (string, error) {
	dir := filepath.Join(d.artifactsDir(), GeometryDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, res.Check+".txt")
	body := fmt.Sprintf("check: %s\nfixture: %s\nexpected: %s\nactual: %s\n", res.Check, res.Fixture, res.Expected, res.Actual)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// CollectArtifacts copies failure artifacts out of the environment and
// records the unconfirmed snapshots left on the host.
func (d *Dispatcher) CollectArtifacts(ctx context.Context, s *orchestrator.Session, res *RunResult) error {
	type copyOut struct{ src, dst string }
	var copies []copyOut
	if !s.Mounted {
		copies = append(copies, copyOut{d.remotePath(s, d.cfg.Snapshots.Dir), d.cfg.Path(d.cfg.Snapshots.Dir)})
	}
	for _, g := range res.Geometry {
		if !g.Passed {
			copies = append(copies, copyOut{d.cfg.WMConfigDir, filepath.Join(d.artifactsDir(), GeometryDir, g.Check+"-panels")})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for _, c := range copies {
		g.Go(func() error {
			if err := s.Runtime.CopyOut(gctx, c.src, c.dst); err != nil {
				return fmt.Errorf("collect %s: %w", c.src, err)
			}
			return nil
		})
	}
	copyErr := g.Wait()

	pending, err := snapshot.Pending(d.cfg.Path(d.cfg.Snapshots.Dir))
	res.Unconfirmed = pending
	return errors.Join(copyErr, err)
}

// Run provisions an environment, builds and ships the test binary, runs the
// suite and the geometry checks and collects artifacts. An environment this
// run created is torn down afterwards unless opts.Keep is set; one that was
// already running is left as found.
func (d *Dispatcher) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	s, err := d.orch.Provision(ctx)
	if err != nil {
		return nil, err
	}
	res := &RunResult{ID: s.ID, ArtifactsDir: d.artifactsDir()}
	defer func() {
		if opts.Keep || s.RuntimeReused {
			d.orch.Release(s)
			return
		}
		if err := d.orch.Teardown(context.WithoutCancel(ctx), s); err != nil {
			d.logger.Warn("teardown failed", "session", s.ID, "error", err)
		}
	}()

	binary, err := d.Build(ctx, s)
	if err != nil {
		return res, err
	}
	res.Binary = binary

	if _, err := d.orch.WaitReady(ctx, s); err != nil {
		return res, err
	}
	remote, err := d.Transfer(ctx, s, binary)
	if err != nil {
		return res, err
	}

	suite, suiteErr := d.RunSuite(ctx, s, remote, opts.Filter, opts.Record)
	res.Suite = &suite
	if runerr.KindOf(suiteErr).Fatal() {
		return res, suiteErr
	}

	var geoErr error
	if !opts.SkipGeometry && len(d.cfg.GeometryChecks) > 0 {
		res.Geometry, geoErr = d.RunGeometryChecks(ctx, s, remote, d.cfg.GeometryChecks)
	}

	if err := d.CollectArtifacts(ctx, s, res); err != nil {
		d.logger.Warn("artifact collection incomplete", "session", s.ID, "error", err)
	}
	return res, runerr.Join(suiteErr, geoErr)
}
