// Package readiness gates a freshly started desktop environment until it
// accepts input and reports an active window.
//
// There is no direct "ready" signal from the window manager, so the monitor
// runs a bounded loop of behavioural probes. Each attempt synthesizes an input
// event (errors ignored), asks for the active window (success means Ready)
// and, when no window manager is running, tries to start one. Exhausting the
// attempt budget yields ErrTimeout.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultAttempts = 20
	DefaultInterval = 300 * time.Millisecond
)

// ErrTimeout is returned when the environment never became ready.
var ErrTimeout = errors.New("environment did not become ready")

// State is a readiness monitor state.
type State int

const (
	Starting State = iota
	Polling
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Polling:
		return "polling"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Probe is the black-box view of the environment used by the monitor.
type Probe interface {
	// SynthesizeInput injects an input event, e.g. a mouse click.
	SynthesizeInput(ctx context.Context) error
	// ActiveWindow returns the focused window. An error means none.
	ActiveWindow(ctx context.Context) (string, error)
	// WindowManagerRunning reports whether the window manager process is up.
	WindowManagerRunning(ctx context.Context) (bool, error)
	// StartWindowManager attempts to (re)start the window manager.
	StartWindowManager(ctx context.Context) error
}

// Config controls the polling loop.
type Config struct {
	Attempts int
	Interval time.Duration
	Logger   *slog.Logger

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Result describes how a Wait call ended.
type Result struct {
	State        State
	Attempts     int
	ActiveWindow string
	WMRestarts   int
	Elapsed      time.Duration
}

// Monitor runs the readiness state machine against a Probe.
type Monitor struct {
	probe    Probe
	attempts int
	interval time.Duration
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	state State
}

// New creates a monitor. Zero config values fall back to the defaults.
func New(probe Probe, cfg Config) *Monitor {
	m := &Monitor{
		probe:    probe,
		attempts: cfg.Attempts,
		interval: cfg.Interval,
		logger:   cfg.Logger,
		sleep:    cfg.Sleep,
		state:    Starting,
	}
	if m.attempts <= 0 {
		m.attempts = DefaultAttempts
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.sleep == nil {
		m.sleep = sleepCtx
	}
	return m
}

// State returns the current state.
func (m *Monitor) State() State {
	return m.state
}

// Wait polls until the environment is ready or the attempt budget runs out.
// Context cancellation also ends the loop as Failed.
func (m *Monitor) Wait(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{}
	m.state = Polling

	for attempt := 1; attempt <= m.attempts; attempt++ {
		res.Attempts = attempt

		if err := m.probe.SynthesizeInput(ctx); err != nil {
			m.logger.Debug("input synthesis failed", "attempt", attempt, "error", err)
		}

		id, err := m.probe.ActiveWindow(ctx)
		if err == nil {
			m.state = Ready
			res.State = Ready
			res.ActiveWindow = id
			res.Elapsed = time.Since(start)
			m.logger.Info("environment ready", "attempts", attempt, "active_window", id, "elapsed", res.Elapsed)
			return res, nil
		}
		m.logger.Debug("no active window", "attempt", attempt, "error", err)

		running, err := m.probe.WindowManagerRunning(ctx)
		if err != nil {
			m.logger.Debug("window manager check failed", "attempt", attempt, "error", err)
		}
		if !running {
			res.WMRestarts++
			if err := m.probe.StartWindowManager(ctx); err != nil {
				m.logger.Warn("failed to start window manager", "attempt", attempt, "error", err)
			} else {
				m.logger.Debug("window manager started", "attempt", attempt)
			}
		}

		if attempt == m.attempts {
			break
		}
		if err := m.sleep(ctx, m.interval); err != nil {
			m.state = Failed
			res.State = Failed
			res.Elapsed = time.Since(start)
			return res, fmt.Errorf("readiness polling interrupted after %d attempts: %w", attempt, err)
		}
	}

	m.state = Failed
	res.State = Failed
	res.Elapsed = time.Since(start)
	return res, fmt.Errorf("%w after %d attempts (%s interval)", ErrTimeout, m.attempts, m.interval)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
