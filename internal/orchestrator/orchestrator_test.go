package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/deskrig/internal/config"
	"github.com/1broseidon/deskrig/internal/env"
	"github.com/1broseidon/deskrig/internal/readiness"
	"github.com/1broseidon/deskrig/internal/runerr"
	"github.com/1broseidon/deskrig/internal/runtimepath"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestOrchestrator(t *testing.T, rt *env.FakeRuntime, b *env.FakeBuilder) (*Orchestrator, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RepoDir = t.TempDir()
	cfg.Readiness.Attempts = 3
	dir := t.TempDir()
	o, err := New(cfg, Options{
		Runtime:   rt,
		Builder:   b,
		LockPath:  filepath.Join(dir, "env.lock"),
		StatePath: filepath.Join(dir, "env.json"),
		Sleep:     noSleep,
	})
	require.NoError(t, err)
	return o, cfg
}

func TestProvisionCreatesThenReuses(t *testing.T) {
	rt := &env.FakeRuntime{}
	b := &env.FakeBuilder{Reused: true}
	o, _ := newTestOrchestrator(t, rt, b)
	ctx := context.Background()

	s, err := o.Provision(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.RuntimeReused)
	assert.True(t, s.BuilderReused)
	assert.Equal(t, "/work", s.Workdir)
	assert.True(t, s.Mounted)
	assert.Equal(t, env.Target{OS: "linux", Arch: "amd64"}, s.Target)
	require.NoError(t, o.Release(s))

	s2, err := o.Provision(ctx)
	require.NoError(t, err)
	defer o.Release(s2)
	assert.True(t, s2.RuntimeReused)
	assert.NotEqual(t, s.ID, s2.ID)
	assert.Equal(t, 2, b.Prepares)
}

func TestProvisionHoldsLock(t *testing.T) {
	o, _ := newTestOrchestrator(t, &env.FakeRuntime{}, &env.FakeBuilder{})
	s, err := o.Provision(context.Background())
	require.NoError(t, err)

	_, err = runtimepath.TryLock(o.lockPath)
	assert.ErrorIs(t, err, runtimepath.ErrLocked)

	st, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Locked)
	require.NotNil(t, st.Last)
	assert.Equal(t, s.ID, st.Last.ID)

	require.NoError(t, o.Release(s))
	lock, err := runtimepath.TryLock(o.lockPath)
	require.NoError(t, err)
	lock.Release()
}

func TestProvisionFailures(t *testing.T) {
	tests := []struct {
		name    string
		runtime *env.FakeRuntime
		builder *env.FakeBuilder
		kind    runerr.Kind
	}{
		{
			name:    "runtime",
			runtime: &env.FakeRuntime{EnsureErr: errors.New("port is already allocated")},
			builder: &env.FakeBuilder{},
			kind:    runerr.KindProvisioning,
		},
		{
			name:    "builder",
			runtime: &env.FakeRuntime{},
			builder: &env.FakeBuilder{PrepareErr: errors.New("pull access denied")},
			kind:    runerr.KindBuild,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newTestOrchestrator(t, tt.runtime, tt.builder)
			_, err := o.Provision(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.kind, runerr.KindOf(err))
			assert.True(t, runerr.KindOf(err).Fatal())

			lock, err := runtimepath.TryLock(o.lockPath)
			require.NoError(t, err, "a failed provision must release the lock")
			lock.Release()
		})
	}
}

func TestWaitReady(t *testing.T) {
	rt := &env.FakeRuntime{Handle: func(req env.ExecRequest) (env.ExecResult, error) {
		if strings.Join(req.Argv, " ") == "xdotool getactivewindow" {
			return env.ExecResult{Stdout: "0x1200007\n"}, nil
		}
		return env.ExecResult{}, nil
	}}
	o, _ := newTestOrchestrator(t, rt, &env.FakeBuilder{})
	s, err := o.Provision(context.Background())
	require.NoError(t, err)
	defer o.Release(s)

	res, err := o.WaitReady(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, readiness.Ready, res.State)
	assert.Equal(t, "0x1200007", s.Ready.ActiveWindow)
	assert.Equal(t, []string{"xdotool", "click", "1"}, rt.ExecArgv()[0])
}

func TestWaitReadyExhaustionIsFatal(t *testing.T) {
	rt := &env.FakeRuntime{Handle: func(req env.ExecRequest) (env.ExecResult, error) {
		return env.ExecResult{ExitCode: 1}, nil
	}}
	o, _ := newTestOrchestrator(t, rt, &env.FakeBuilder{})
	s, err := o.Provision(context.Background())
	require.NoError(t, err)
	defer o.Release(s)

	res, err := o.WaitReady(context.Background(), s)
	require.Error(t, err)
	assert.ErrorIs(t, err, readiness.ErrTimeout)
	assert.Equal(t, runerr.ExitReadiness, runerr.ExitCode(err))
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, res.WMRestarts)
	attempts, ok := runerr.GetAttr(err, "attempts")
	require.True(t, ok)
	assert.Equal(t, 3, attempts)
}

func TestTeardownIsIdempotent(t *testing.T) {
	rt := &env.FakeRuntime{}
	o, _ := newTestOrchestrator(t, rt, &env.FakeBuilder{})
	ctx := context.Background()

	s, err := o.Provision(ctx)
	require.NoError(t, err)
	require.NoError(t, o.Teardown(ctx, s))
	require.NoError(t, o.Teardown(ctx, s))
	require.NoError(t, o.Teardown(ctx, nil))
	assert.Equal(t, 3, rt.Removes)

	st, err := o.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.StateMissing, st.State)
	assert.False(t, st.Locked)
	assert.Nil(t, st.Last)
}

func TestRecreateKeepsSession(t *testing.T) {
	rt := &env.FakeRuntime{}
	o, _ := newTestOrchestrator(t, rt, &env.FakeBuilder{})
	ctx := context.Background()

	s, err := o.Provision(ctx)
	require.NoError(t, err)
	defer o.Release(s)
	id := s.ID

	require.NoError(t, o.Recreate(ctx, s))
	assert.Equal(t, id, s.ID)
	assert.Equal(t, 1, rt.Removes)
	assert.Equal(t, 2, rt.Ensures)
	assert.False(t, s.RuntimeReused)
}

func TestRecreateKeepsProvisionedReuseState(t *testing.T) {
	rt := &env.FakeRuntime{Current: env.StateRunning}
	o, _ := newTestOrchestrator(t, rt, &env.FakeBuilder{})
	ctx := context.Background()

	s, err := o.Provision(ctx)
	require.NoError(t, err)
	defer o.Release(s)
	require.True(t, s.RuntimeReused)

	require.NoError(t, o.Recreate(ctx, s))
	assert.True(t, s.RuntimeReused)
}

func TestNewRuntimeByBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RepoDir = "/home/me/repo"

	tests := []struct {
		backend string
		want    string
	}{
		{config.BackendDocker, "docker"},
		{config.BackendSSH, "ssh"},
		{config.BackendLocal, "local"},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg.Runtime.Backend = tt.backend
			rt, err := NewRuntime(cfg, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rt.Name())
		})
	}

	cfg.Runtime.Backend = "vagrant"
	_, err := NewRuntime(cfg, nil)
	assert.True(t, runerr.Is(err, runerr.KindConfig))
}

func TestLocalBackendUsesRepoAsWorkdir(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Runtime.Backend = config.BackendLocal
	cfg.RepoDir = t.TempDir()
	dir := t.TempDir()
	o, err := New(cfg, Options{
		Builder:   &env.FakeBuilder{},
		LockPath:  filepath.Join(dir, "env.lock"),
		StatePath: filepath.Join(dir, "env.json"),
	})
	require.NoError(t, err)

	s, err := o.Provision(context.Background())
	require.NoError(t, err)
	defer o.Release(s)
	assert.Equal(t, cfg.RepoDir, s.Workdir)
	assert.True(t, s.RuntimeReused)
}
