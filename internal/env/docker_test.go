package env

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls   []string
	respond func(cmd string) ExecResult
}

func (f *fakeRunner) run(_ context.Context, _ io.Reader, name string, args ...string) (ExecResult, error) {
	cmd := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, cmd)
	if f.respond == nil {
		return ExecResult{}, nil
	}
	return f.respond(cmd), nil
}

func newDocker(f *fakeRunner, api *DockerClient) *DockerRuntime {
	d := NewDockerRuntime(DockerOptions{
		Name:    "deskrig-env",
		Image:   "deskrig/desktop:latest",
		Display: ":99",
		Publish: []string{"5900:5900"},
		Mount:   "/home/me/repo",
		Workdir: "/work",
		API:     api,
	})
	d.run = f.run
	return d
}

func TestDockerEnsureReusesRunningContainer(t *testing.T) {
	f := &fakeRunner{respond: func(cmd string) ExecResult {
		if strings.HasPrefix(cmd, "docker inspect") {
			return ExecResult{Stdout: "true\n"}
		}
		return ExecResult{}
	}}
	reused, err := newDocker(f, nil).Ensure(context.Background())
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Len(t, f.calls, 1)
}

func TestDockerEnsureStartsStoppedContainer(t *testing.T) {
	f := &fakeRunner{respond: func(cmd string) ExecResult {
		if strings.HasPrefix(cmd, "docker inspect") {
			return ExecResult{Stdout: "false\n"}
		}
		return ExecResult{}
	}}
	reused, err := newDocker(f, nil).Ensure(context.Background())
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, "docker start deskrig-env", f.calls[1])
}

func TestDockerEnsureCreatesMissingContainer(t *testing.T) {
	f := &fakeRunner{respond: func(cmd string) ExecResult {
		switch {
		case strings.HasPrefix(cmd, "docker inspect"):
			return ExecResult{ExitCode: 1, Stderr: "Error: No such object: deskrig-env"}
		case strings.HasPrefix(cmd, "docker image inspect"):
			return ExecResult{ExitCode: 1, Stderr: "Error: No such image"}
		}
		return ExecResult{}
	}}
	reused, err := newDocker(f, nil).Ensure(context.Background())
	require.NoError(t, err)
	assert.False(t, reused)
	require.Len(t, f.calls, 4)
	assert.Equal(t, "docker pull deskrig/desktop:latest", f.calls[2])
	assert.Equal(t, "docker run --detach --name deskrig-env --env DISPLAY=:99 --publish 5900:5900 "+
		"--volume /home/me/repo:/work --workdir /work deskrig/desktop:latest", f.calls[3])
}

func TestDockerEnsureBuildsImageFromDockerfile(t *testing.T) {
	f := &fakeRunner{respond: func(cmd string) ExecResult {
		if strings.Contains(cmd, "inspect") {
			return ExecResult{ExitCode: 1, Stderr: "Error: No such object"}
		}
		return ExecResult{}
	}}
	d := newDocker(f, nil)
	d.opts.Dockerfile = "/home/me/repo/docker/Dockerfile"
	_, err := d.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "docker build --tag deskrig/desktop:latest --file /home/me/repo/docker/Dockerfile /home/me/repo/docker", f.calls[2])
}

func TestDockerEnsureReportsRunFailure(t *testing.T) {
	f := &fakeRunner{respond: func(cmd string) ExecResult {
		switch {
		case strings.HasPrefix(cmd, "docker inspect"):
			return ExecResult{ExitCode: 1, Stderr: "No such container"}
		case strings.HasPrefix(cmd, "docker run"):
			return ExecResult{ExitCode: 125, Stderr: "port is already allocated"}
		}
		return ExecResult{}
	}}
	_, err := newDocker(f, nil).Ensure(context.Background())
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 125, exitErr.Code)
	assert.Contains(t, err.Error(), "port is already allocated")
}

func TestDockerRemoveIsIdempotent(t *testing.T) {
	f := &fakeRunner{respond: func(string) ExecResult {
		return ExecResult{ExitCode: 1, Stderr: "Error response from daemon: No such container: deskrig-env"}
	}}
	require.NoError(t, newDocker(f, nil).Remove(context.Background()))
	assert.Equal(t, []string{"docker rm --force deskrig-env"}, f.calls)

	f.respond = func(string) ExecResult { return ExecResult{ExitCode: 1, Stderr: "permission denied"} }
	assert.Error(t, newDocker(f, nil).Remove(context.Background()))
}

func TestDockerExecAndCopy(t *testing.T) {
	f := &fakeRunner{}
	d := newDocker(f, nil)

	_, err := d.Exec(context.Background(), ExecRequest{Argv: []string{"deskrig", "test", "--record"}, Env: []string{"A=b"}, Dir: "/work"})
	require.NoError(t, err)
	assert.Equal(t, "docker exec --env DISPLAY=:99 --env A=b --workdir /work deskrig-env deskrig test --record", f.calls[0])

	dir := t.TempDir()
	require.NoError(t, d.CopyIn(context.Background(), dir, "/work/fixture"))
	assert.Equal(t, "docker exec --env DISPLAY=:99 deskrig-env mkdir -p /work/fixture", f.calls[1])
	assert.Equal(t, "docker cp "+dir+"/. deskrig-env:/work/fixture", f.calls[2])

	require.NoError(t, d.CopyOut(context.Background(), "/work/tests/snapshots", filepath.Join(dir, "out")))
	assert.Equal(t, "docker cp deskrig-env:/work/tests/snapshots/. "+filepath.Join(dir, "out"), f.calls[3])

	_, err = d.Exec(context.Background(), ExecRequest{})
	assert.Error(t, err)
}

// unixServer serves handler on a unix socket and returns its path.
func unixServer(t *testing.T, handler http.Handler) string {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "docker.sock")
	l, err := net.Listen("unix", sock)
	require.NoError(t, err)
	srv := httptest.NewUnstartedServer(handler)
	srv.Listener.Close()
	srv.Listener = l
	srv.Start()
	t.Cleanup(srv.Close)
	return sock
}

func TestDockerClientInspectContainer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/containers/deskrig-env/json", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"Id":"8dfafdbc3a40","Name":"/deskrig-env","Image":"sha256:abc","State":{"Status":"running","Running":true}}`)
	})
	mux.HandleFunc("/images/deskrig/desktop:latest/json", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"Id":"sha256:abc"}`)
	})
	mux.HandleFunc("/_ping", func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "OK") })
	client := NewDockerClient(unixServer(t, mux))
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))

	info, err := client.InspectContainer(ctx, "deskrig-env")
	require.NoError(t, err)
	assert.Equal(t, "deskrig-env", info.Name)
	assert.True(t, info.State.Running)

	_, err = client.InspectContainer(ctx, "other")
	assert.ErrorIs(t, err, ErrNoSuchObject)

	ok, err := client.ImageExists(ctx, "deskrig/desktop:latest")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.ImageExists(ctx, "missing:latest")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDockerStateUsesAPIWhenAvailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/containers/deskrig-env/json", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"Id":"1","Name":"/deskrig-env","State":{"Status":"exited","Running":false}}`)
	})
	f := &fakeRunner{}
	d := newDocker(f, NewDockerClient(unixServer(t, mux)))

	state, err := d.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateStopped, state)
	assert.Empty(t, f.calls, "CLI must not be used when the API answers")
}

func TestDockerStateFallsBackToCLI(t *testing.T) {
	f := &fakeRunner{respond: func(string) ExecResult { return ExecResult{Stdout: "true"} }}
	d := newDocker(f, NewDockerClient(filepath.Join(t.TempDir(), "absent.sock")))

	state, err := d.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, state)
	assert.Len(t, f.calls, 1)
}

func TestDockerSocketFromEnv(t *testing.T) {
	t.Setenv("DOCKER_HOST", "unix:///run/user/1000/docker.sock")
	assert.Equal(t, "/run/user/1000/docker.sock", DockerSocketFromEnv())
	t.Setenv("DOCKER_HOST", "tcp://10.0.0.1:2375")
	assert.Equal(t, DefaultDockerSocket, DockerSocketFromEnv())
}
