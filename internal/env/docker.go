package env

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// DockerOptions configures a DockerRuntime.
type DockerOptions struct {
	Name    string
	Image   string
	Display string
	Publish []string

	// Mount is the host work tree bind-mounted at Workdir. Empty disables
	// the mount.
	Mount   string
	Workdir string

	// Dockerfile builds Image when it is not present locally. Empty pulls
	// the image instead.
	Dockerfile  string
	ExecTimeout time.Duration

	// API answers state queries; nil falls back to the docker CLI.
	API    *DockerClient
	Logger *slog.Logger
}

// DockerRuntime runs the desktop in a long-lived docker container that is
// reused across invocations.
type DockerRuntime struct {
	opts DockerOptions
	run  commandRunner
}

var _ Runtime = (*DockerRuntime)(nil)

func NewDockerRuntime(opts DockerOptions) *DockerRuntime {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &DockerRuntime{opts: opts, run: runCommandFn}
}

func (d *DockerRuntime) Name() string { return "docker" }

func (d *DockerRuntime) docker(ctx context.Context, args ...string) (ExecResult, error) {
	d.opts.Logger.Debug("docker", "args", strings.Join(args, " "))
	return d.run(ctx, nil, "docker", args...)
}

func isNoSuchContainer(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "no such container") || strings.Contains(s, "no such object")
}

func (d *DockerRuntime) State(ctx context.Context) (State, error) {
	if d.opts.API != nil {
		info, err := d.opts.API.InspectContainer(ctx, d.opts.Name)
		switch {
		case errors.Is(err, ErrNoSuchObject):
			return StateMissing, nil
		case err == nil && info.State.Running:
			return StateRunning, nil
		case err == nil:
			return StateStopped, nil
		}
		d.opts.Logger.Debug("docker API unavailable, using CLI", "error", err)
	}

	res, err := d.docker(ctx, "inspect", "--format", "{{.State.Running}}", d.opts.Name)
	if err != nil {
		return StateUnknown, err
	}
	if res.ExitCode != 0 {
		if isNoSuchContainer(res.Stderr) {
			return StateMissing, nil
		}
		return StateUnknown, res.Check([]string{"docker", "inspect", d.opts.Name})
	}
	if strings.TrimSpace(res.Stdout) == "true" {
		return StateRunning, nil
	}
	return StateStopped, nil
}

// Ensure reuses a running container, starts a stopped one, or creates a new
// one from the image, building or pulling the image first if needed.
func (d *DockerRuntime) Ensure(ctx context.Context) (bool, error) {
	state, err := d.State(ctx)
	if err != nil {
		return false, err
	}
	switch state {
	case StateRunning:
		d.opts.Logger.Info("reusing running container", "name", d.opts.Name)
		return true, nil
	case StateStopped:
		d.opts.Logger.Info("starting stopped container", "name", d.opts.Name)
		res, err := d.docker(ctx, "start", d.opts.Name)
		if err != nil {
			return false, err
		}
		return true, res.Check([]string{"docker", "start", d.opts.Name})
	}

	if err := d.ensureImage(ctx); err != nil {
		return false, err
	}
	args := d.runArgs()
	d.opts.Logger.Info("creating container", "name", d.opts.Name, "image", d.opts.Image)
	res, err := d.docker(ctx, args...)
	if err != nil {
		return false, err
	}
	return false, res.Check(append([]string{"docker"}, args...))
}

func (d *DockerRuntime) runArgs() []string {
	args := []string{"run", "--detach", "--name", d.opts.Name, "--env", "DISPLAY=" + d.opts.Display}
	for _, p := range d.opts.Publish {
		args = append(args, "--publish", p)
	}
	if d.opts.Mount != "" {
		args = append(args, "--volume", d.opts.Mount+":"+d.opts.Workdir)
	}
	if d.opts.Workdir != "" {
		args = append(args, "--workdir", d.opts.Workdir)
	}
	return append(args, d.opts.Image)
}

func (d *DockerRuntime) imageExists(ctx context.Context) (bool, error) {
	if d.opts.API != nil {
		ok, err := d.opts.API.ImageExists(ctx, d.opts.Image)
		if err == nil {
			return ok, nil
		}
		d.opts.Logger.Debug("docker API unavailable, using CLI", "error", err)
	}
	res, err := d.docker(ctx, "image", "inspect", "--format", "{{.Id}}", d.opts.Image)
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

func (d *DockerRuntime) ensureImage(ctx context.Context) error {
	ok, err := d.imageExists(ctx)
	if err != nil || ok {
		return err
	}
	var args []string
	if d.opts.Dockerfile != "" {
		d.opts.Logger.Info("building desktop image", "image", d.opts.Image, "dockerfile", d.opts.Dockerfile)
		args = []string{"build", "--tag", d.opts.Image, "--file", d.opts.Dockerfile, filepath.Dir(d.opts.Dockerfile)}
	} else {
		d.opts.Logger.Info("pulling desktop image", "image", d.opts.Image)
		args = []string{"pull", d.opts.Image}
	}
	res, err := d.docker(ctx, args...)
	if err != nil {
		return err
	}
	return res.Check(append([]string{"docker"}, args...))
}

// Remove force-removes the container. A missing container is not an error.
func (d *DockerRuntime) Remove(ctx context.Context) error {
	res, err := d.docker(ctx, "rm", "--force", d.opts.Name)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 && !isNoSuchContainer(res.Stderr) {
		return res.Check([]string{"docker", "rm", "--force", d.opts.Name})
	}
	return nil
}

func (d *DockerRuntime) Exec(ctx context.Context, req ExecRequest) (ExecResult, error) {
	if len(req.Argv) == 0 {
		return ExecResult{}, fmt.Errorf("exec: empty command")
	}
	ctx, cancel := withTimeout(ctx, req.Timeout, d.opts.ExecTimeout)
	defer cancel()

	args := []string{"exec", "--env", "DISPLAY=" + d.opts.Display}
	for _, kv := range req.Env {
		args = append(args, "--env", kv)
	}
	if req.Dir != "" {
		args = append(args, "--workdir", req.Dir)
	}
	args = append(args, d.opts.Name)
	args = append(args, req.Argv...)
	return d.docker(ctx, args...)
}

func (d *DockerRuntime) mkdir(ctx context.Context, dir string) error {
	argv := []string{"mkdir", "-p", dir}
	res, err := d.Exec(ctx, ExecRequest{Argv: argv})
	if err != nil {
		return err
	}
	return res.Check(argv)
}

func (d *DockerRuntime) CopyIn(ctx context.Context, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	target := path.Dir(dst)
	from := src
	if info.IsDir() {
		target = dst
		from = strings.TrimSuffix(src, "/") + "/."
	}
	if err := d.mkdir(ctx, target); err != nil {
		return err
	}
	args := []string{"cp", from, d.opts.Name + ":" + dst}
	res, err := d.docker(ctx, args...)
	if err != nil {
		return err
	}
	return res.Check(append([]string{"docker"}, args...))
}

func (d *DockerRuntime) CopyOut(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	args := []string{"cp", d.opts.Name + ":" + strings.TrimSuffix(src, "/") + "/.", dst}
	res, err := d.docker(ctx, args...)
	if err != nil {
		return err
	}
	return res.Check(append([]string{"docker"}, args...))
}
