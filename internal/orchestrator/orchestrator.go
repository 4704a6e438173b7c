// Package orchestrator provisions the isolated desktop environment, gates it
// on readiness and tears it down again.
//
// A Session is the explicit handle for one provisioned environment. Access
// to an environment name is serialized by an exclusive lock file, so two
// invocations never share a container concurrently.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/1broseidon/deskrig/internal/config"
	"github.com/1broseidon/deskrig/internal/env"
	"github.com/1broseidon/deskrig/internal/readiness"
	"github.com/1broseidon/deskrig/internal/runerr"
	"github.com/1broseidon/deskrig/internal/runtimepath"
)

// Session is one provisioned environment.
type Session struct {
	ID      string
	Runtime env.Runtime
	Builder env.BuildBackend
	Target  env.Target
	Config  *config.Config

	// Workdir is the directory inside the environment that holds the work
	// tree. Mounted reports whether it is the host repo itself.
	Workdir string
	Mounted bool

	Started time.Time

	// RuntimeReused reports whether the environment was already running
	// when the session was provisioned. Recreate does not change it.
	RuntimeReused bool
	BuilderReused bool
	Ready         readiness.Result

	lock *runtimepath.Lock
}

// Options overrides the pieces New would otherwise derive from config.
type Options struct {
	Runtime env.Runtime
	Builder env.BuildBackend
	Logger  *slog.Logger

	LockPath  string
	StatePath string

	// Sleep is handed to the readiness monitor.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Orchestrator owns the environment lifecycle for one config.
type Orchestrator struct {
	cfg       *config.Config
	runtime   env.Runtime
	builder   env.BuildBackend
	target    env.Target
	logger    *slog.Logger
	lockPath  string
	statePath string
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator. The runtime and build backends are chosen
// from cfg unless opts supplies them.
func New(cfg *config.Config, opts Options) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:       cfg,
		runtime:   opts.Runtime,
		builder:   opts.Builder,
		target:    env.Target{OS: cfg.Build.OS, Arch: cfg.Build.Arch},
		logger:    opts.Logger,
		lockPath:  opts.LockPath,
		statePath: opts.StatePath,
		sleep:     opts.Sleep,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.runtime == nil {
		rt, err := NewRuntime(cfg, o.logger)
		if err != nil {
			return nil, err
		}
		o.runtime = rt
	}
	if o.builder == nil {
		o.builder = NewBuilder(cfg, o.logger)
	}
	var err error
	if o.lockPath == "" {
		if o.lockPath, err = runtimepath.LockPath(cfg.Runtime.Name); err != nil {
			return nil, runerr.Wrap(err, runerr.KindProvisioning, "resolve lock path")
		}
	}
	if o.statePath == "" {
		if o.statePath, err = runtimepath.StatePath(cfg.Runtime.Name); err != nil {
			return nil, runerr.Wrap(err, runerr.KindProvisioning, "resolve state path")
		}
	}
	return o, nil
}

// NewRuntime builds the runtime backend named by cfg.Runtime.Backend.
func NewRuntime(cfg *config.Config, logger *slog.Logger) (env.Runtime, error) {
	rc := cfg.Runtime
	switch rc.Backend {
	case config.BackendDocker:
		var dockerfile string
		if rc.Dockerfile != "" {
			dockerfile = cfg.Path(rc.Dockerfile)
		}
		return env.NewDockerRuntime(env.DockerOptions{
			Name:        rc.Name,
			Image:       rc.Image,
			Display:     rc.Display,
			Publish:     rc.Publish,
			Mount:       cfg.RepoDir,
			Workdir:     rc.Workdir,
			Dockerfile:  dockerfile,
			ExecTimeout: rc.ExecTimeout,
			API:         env.NewDockerClient(env.DockerSocketFromEnv()),
			Logger:      logger,
		}), nil
	case config.BackendSSH:
		return env.NewSSHRuntime(env.SSHOptions{
			Host:        rc.SSH.Host,
			Port:        rc.SSH.Port,
			User:        rc.SSH.User,
			KeyFile:     rc.SSH.KeyFile,
			KnownHosts:  rc.SSH.KnownHosts,
			Insecure:    rc.SSH.InsecureIgnoreHostKey,
			Display:     rc.Display,
			Workdir:     rc.Workdir,
			ExecTimeout: rc.ExecTimeout,
			Logger:      logger,
		}), nil
	case config.BackendLocal:
		return &env.LocalRuntime{
			Display:     rc.Display,
			Workdir:     cfg.RepoDir,
			ExecTimeout: rc.ExecTimeout,
			Logger:      logger,
		}, nil
	default:
		return nil, runerr.Errorf(runerr.KindConfig, "unknown runtime backend %q", rc.Backend)
	}
}

// NewBuilder picks the native builder when the host OS matches the target
// OS and the container builder otherwise.
func NewBuilder(cfg *config.Config, logger *slog.Logger) env.BuildBackend {
	opts := env.BuildOptions{RepoDir: cfg.RepoDir, Output: cfg.Build.Output, Logger: logger}
	return env.SelectBuilder(
		env.HostTarget(),
		env.Target{OS: cfg.Build.OS, Arch: cfg.Build.Arch},
		env.NewNativeBuilder(opts),
		env.NewContainerBuilder(opts, cfg.Build.BuilderImage),
	)
}

// Runtime returns the runtime backend.
func (o *Orchestrator) Runtime() env.Runtime { return o.runtime }

// Builder returns the build backend.
func (o *Orchestrator) Builder() env.BuildBackend { return o.builder }

func (o *Orchestrator) workdir() (string, bool) {
	switch o.cfg.Runtime.Backend {
	case config.BackendLocal:
		return o.cfg.RepoDir, true
	case config.BackendDocker:
		return o.cfg.Runtime.Workdir, true
	default:
		return o.cfg.Runtime.Workdir, false
	}
}

// Provision locks the environment name, then prepares the build toolchain
// and brings up the runtime concurrently. Both reuse what already exists.
func (o *Orchestrator) Provision(ctx context.Context) (*Session, error) {
	lock, err := runtimepath.Acquire(o.lockPath)
	if err != nil {
		return nil, runerr.Wrap(err, runerr.KindProvisioning, "lock environment")
	}

	s := &Session{
		ID:      uuid.New().String(),
		Runtime: o.runtime,
		Builder: o.builder,
		Target:  o.target,
		Config:  o.cfg,
		Started: time.Now(),
		lock:    lock,
	}
	s.Workdir, s.Mounted = o.workdir()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reused, err := o.builder.Prepare(gctx)
		if err != nil {
			return runerr.Wrapf(err, runerr.KindBuild, "prepare %s builder", o.builder.Name())
		}
		s.BuilderReused = reused
		return nil
	})
	g.Go(func() error {
		reused, err := o.runtime.Ensure(gctx)
		if err != nil {
			return runerr.Attr(runerr.Wrapf(err, runerr.KindProvisioning, "start %s environment", o.runtime.Name()),
				"name", o.cfg.Runtime.Name)
		}
		s.RuntimeReused = reused
		return nil
	})
	if err := g.Wait(); err != nil {
		lock.Release()
		return nil, err
	}

	o.logger.Info("environment provisioned",
		"session", s.ID,
		"backend", o.runtime.Name(),
		"name", o.cfg.Runtime.Name,
		"runtime_reused", s.RuntimeReused,
		"builder", o.builder.Name(),
		"builder_reused", s.BuilderReused,
	)
	if err := o.writeState(s); err != nil {
		o.logger.Warn("failed to write session state", "error", err)
	}
	return s, nil
}

// WaitReady blocks until the environment accepts input and has an active
// window. Exhaustion is fatal.
func (o *Orchestrator) WaitReady(ctx context.Context, s *Session) (readiness.Result, error) {
	probe := readiness.NewExecProbe(env.RunFunc(s.Runtime), o.cfg.Readiness.Commands)
	m := readiness.New(probe, readiness.Config{
		Attempts: o.cfg.Readiness.Attempts,
		Interval: o.cfg.Readiness.Interval,
		Logger:   o.logger.With("session", s.ID),
		Sleep:    o.sleep,
	})
	res, err := m.Wait(ctx)
	s.Ready = res
	if err != nil {
		err = runerr.Wrap(err, runerr.KindReadiness, "environment not ready")
		return res, runerr.Attr(err, "attempts", res.Attempts)
	}
	return res, nil
}

// Recreate destroys and restarts the runtime while keeping the session and
// its lock.
func (o *Orchestrator) Recreate(ctx context.Context, s *Session) error {
	o.logger.Info("recreating environment", "session", s.ID, "name", o.cfg.Runtime.Name)
	if err := s.Runtime.Remove(ctx); err != nil {
		return runerr.Wrap(err, runerr.KindProvisioning, "remove environment")
	}
	if _, err := s.Runtime.Ensure(ctx); err != nil {
		return runerr.Wrap(err, runerr.KindProvisioning, "recreate environment")
	}
	return nil
}

// Teardown forcibly removes the environment. It is idempotent; a nil
// session locks the environment name for the duration of the removal.
func (o *Orchestrator) Teardown(ctx context.Context, s *Session) error {
	var lock *runtimepath.Lock
	if s == nil {
		var err error
		if lock, err = runtimepath.Acquire(o.lockPath); err != nil {
			return runerr.Wrap(err, runerr.KindProvisioning, "lock environment")
		}
	} else {
		lock = s.lock
		s.lock = nil
	}
	defer lock.Release()

	if err := o.runtime.Remove(ctx); err != nil {
		return runerr.Wrap(err, runerr.KindProvisioning, "remove environment")
	}
	if err := os.Remove(o.statePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.logger.Warn("failed to remove session state", "path", o.statePath, "error", err)
	}
	o.logger.Info("environment removed", "name", o.cfg.Runtime.Name)
	return nil
}

// Release ends a session without removing the environment.
func (o *Orchestrator) Release(s *Session) error {
	if s == nil {
		return nil
	}
	err := s.lock.Release()
	s.lock = nil
	return err
}

// StateFile is the persisted record of the last provisioned session.
type StateFile struct {
	ID            string    `json:"id"`
	Backend       string    `json:"backend"`
	Name          string    `json:"name"`
	Target        string    `json:"target"`
	Started       time.Time `json:"started"`
	RuntimeReused bool      `json:"runtime_reused"`
	BuilderReused bool      `json:"builder_reused"`
}

func (o *Orchestrator) writeState(s *Session) error {
	data, err := json.MarshalIndent(StateFile{
		ID:            s.ID,
		Backend:       s.Runtime.Name(),
		Name:          o.cfg.Runtime.Name,
		Target:        s.Target.String(),
		Started:       s.Started,
		RuntimeReused: s.RuntimeReused,
		BuilderReused: s.BuilderReused,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(o.statePath), 0700); err != nil {
		return err
	}
	tmp := o.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, o.statePath)
}

func (o *Orchestrator) readState() (*StateFile, error) {
	data, err := os.ReadFile(o.statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var st StateFile
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse %s: %w", o.statePath, err)
	}
	return &st, nil
}

// Status describes the environment without changing it.
type Status struct {
	Name    string
	Backend string
	State   env.State
	Builder string
	Target  env.Target

	// Locked is true while another invocation holds the environment.
	Locked bool
	Last   *StateFile
}

// Status reports the runtime and builder state.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	st := Status{
		Name:    o.cfg.Runtime.Name,
		Backend: o.runtime.Name(),
		Builder: o.builder.Name(),
		Target:  o.target,
	}
	state, err := o.runtime.State(ctx)
	if err != nil {
		return st, runerr.Wrap(err, runerr.KindProvisioning, "query environment state")
	}
	st.State = state

	lock, err := runtimepath.TryLock(o.lockPath)
	switch {
	case errors.Is(err, runtimepath.ErrLocked):
		st.Locked = true
	case err != nil:
		return st, runerr.Wrap(err, runerr.KindProvisioning, "check environment lock")
	default:
		lock.Release()
	}

	if st.Last, err = o.readState(); err != nil {
		o.logger.Warn("ignoring unreadable session state", "error", err)
	}
	return st, nil
}
