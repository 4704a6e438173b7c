package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/1broseidon/deskrig/internal/cases"
	"github.com/1broseidon/deskrig/internal/geometry"
	"github.com/1broseidon/deskrig/internal/platform"
	"github.com/1broseidon/deskrig/internal/readiness"
	"github.com/1broseidon/deskrig/internal/report"
	"github.com/1broseidon/deskrig/internal/runerr"
	"github.com/1broseidon/deskrig/internal/snapshot"
	"github.com/1broseidon/deskrig/internal/suite"
)

// These commands run inside the desktop environment against its display.

var (
	openDisplayFn = platform.Open

	// Nil sleeps fall back to the real clock.
	readySleepFn func(ctx context.Context, d time.Duration) error
	suiteSleepFn func(time.Duration)
)

func newRegistry() *suite.Registry {
	reg := suite.NewRegistry()
	cases.Register(reg)
	return reg
}

func openDisplay(display string, logger *slog.Logger) (platform.Backend, error) {
	backend, err := openDisplayFn(display, logger)
	if err != nil {
		return nil, runerr.Wrap(err, runerr.KindReadiness, "open display")
	}
	return backend, nil
}

func runTest(args []string) int {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	record := fs.Bool("record", false, "Write missing baselines instead of failing")
	dir := fs.String("snapshots", "tests/snapshots", "Snapshot directory")
	display := fs.String("display", "", "X display (default: $DISPLAY)")
	verbose := fs.Bool("verbose", false, "Log at debug level")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: deskrig test [--record] [--snapshots DIR] [filter]")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Run every registered test whose name contains filter.")
		fmt.Fprintln(stderr, "")
		fs.PrintDefaults()
	}
	if rc, ok := parseFlags(fs, args); !ok {
		return rc
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return runerr.ExitUsage
	}

	logger := newLogger(*verbose)
	mode := snapshot.ModeCheck
	if *record {
		mode = snapshot.ModeRecord
	}

	backend, err := openDisplay(*display, logger)
	if err != nil {
		return fail(err)
	}
	defer backend.Disconnect()

	ctx, cancel := signalContext()
	defer cancel()

	runner := &suite.Runner{
		Registry: newRegistry(),
		Engine:   snapshot.NewEngine(*dir, mode, logger),
		Display:  backend,
		Out:      stdout,
		Logger:   logger,
		Sleep:    suiteSleepFn,
	}
	res, err := runner.Run(ctx, fs.Arg(0))
	if errors.Is(err, suite.ErrNoTests) {
		fmt.Fprintln(stderr, err)
		return runerr.ExitUsage
	}
	if err != nil {
		return fail(err)
	}
	report.New(stdout).Tests(res)
	return res.ExitCode()
}

func runList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: deskrig list")
	}
	if rc, ok := parseFlags(fs, args); !ok {
		return rc
	}
	for _, name := range newRegistry().Names() {
		fmt.Fprintln(stdout, name)
	}
	return runerr.ExitOK
}

func runWorkarea(args []string) int {
	fs := flag.NewFlagSet("workarea", flag.ContinueOnError)
	display := fs.String("display", "", "X display (default: $DISPLAY)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: deskrig workarea [--display :N]")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Print the usable area of every monitor on one line, e.g. [(0, 27, 1600, 873)].")
	}
	if rc, ok := parseFlags(fs, args); !ok {
		return rc
	}

	backend, err := openDisplay(*display, newLogger(false))
	if err != nil {
		return fail(err)
	}
	defer backend.Disconnect()

	monitors, err := backend.Monitors()
	if err != nil {
		return fail(err)
	}
	areas := make([]geometry.Rect, 0, len(monitors))
	for _, m := range monitors {
		areas = append(areas, m.Usable)
	}
	fmt.Fprintln(stdout, geometry.FormatRects(areas))
	return runerr.ExitOK
}

func runApprove(args []string) int {
	fs := flag.NewFlagSet("approve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: deskrig approve <file.new.png>")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Promote an unconfirmed snapshot to the baseline for its step.")
	}
	if rc, ok := parseFlags(fs, args); !ok {
		return rc
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return runerr.ExitUsage
	}
	baseline, err := snapshot.Approve(fs.Arg(0))
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "approved: %s\n", baseline)
	return runerr.ExitOK
}

func runReady(args []string) int {
	fs := flag.NewFlagSet("ready", flag.ContinueOnError)
	attempts := fs.Int("attempts", readiness.DefaultAttempts, "Maximum probe attempts")
	interval := fs.Duration("interval", readiness.DefaultInterval, "Delay between attempts")
	display := fs.String("display", "", "X display (default: $DISPLAY)")
	verbose := fs.Bool("verbose", false, "Log at debug level")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: deskrig ready [--attempts N] [--interval D]")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Click the screen until a window has focus, restarting the window manager")
		fmt.Fprintln(stderr, "when it is not running.")
		fmt.Fprintln(stderr, "")
		fs.PrintDefaults()
	}
	if rc, ok := parseFlags(fs, args); !ok {
		return rc
	}
	if *attempts <= 0 || *interval <= 0 {
		fmt.Fprintln(stderr, "--attempts and --interval must be positive")
		return runerr.ExitUsage
	}

	logger := newLogger(*verbose)
	backend, err := openDisplay(*display, logger)
	if err != nil {
		return fail(err)
	}
	defer backend.Disconnect()

	ctx, cancel := signalContext()
	defer cancel()

	mon := readiness.New(&readiness.DisplayProbe{Display: backend}, readiness.Config{
		Attempts: *attempts,
		Interval: *interval,
		Logger:   logger,
		Sleep:    readySleepFn,
	})
	res, err := mon.Wait(ctx)
	if err != nil {
		return fail(runerr.Attr(runerr.Wrap(err, runerr.KindReadiness, "display not ready"), "attempts", res.Attempts))
	}
	fmt.Fprintf(stdout, "ready: active window %s after %d attempt(s)\n", res.ActiveWindow, res.Attempts)
	return runerr.ExitOK
}
