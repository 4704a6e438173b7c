package env

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/1broseidon/deskrig/internal/runerr"
)

// Target is a GOOS/GOARCH pair.
type Target struct {
	OS   string
	Arch string
}

func (t Target) String() string { return t.OS + "/" + t.Arch }

// HostTarget is the platform deskrig itself runs on.
func HostTarget() Target {
	return Target{OS: goruntime.GOOS, Arch: goruntime.GOARCH}
}

// BuildBackend compiles the test binary for a target platform.
type BuildBackend interface {
	Name() string

	// Prepare makes the toolchain available. reused is true when nothing
	// had to be fetched.
	Prepare(ctx context.Context) (reused bool, err error)

	// Build compiles pkg for target and returns the host path of the
	// binary. Compiler output is carried verbatim in the error.
	Build(ctx context.Context, target Target, pkg string) (string, error)
}

// BuildOptions is shared by both builders.
type BuildOptions struct {
	// RepoDir is the module root on the host.
	RepoDir string

	// Output is the binary path, relative to RepoDir or absolute inside it.
	Output string

	Logger *slog.Logger
}

func (o BuildOptions) outputPath() string {
	if filepath.IsAbs(o.Output) {
		return o.Output
	}
	return filepath.Join(o.RepoDir, o.Output)
}

func (o BuildOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func buildFailure(target Target, res ExecResult) error {
	output := strings.TrimRight(res.Stderr+res.Stdout, "\n")
	return runerr.Errorf(runerr.KindBuild, "build for %s failed (exit %d):\n%s", target, res.ExitCode, output)
}

// NativeBuilder runs the host Go toolchain.
type NativeBuilder struct {
	opts BuildOptions
	run  commandRunner
}

func NewNativeBuilder(opts BuildOptions) *NativeBuilder {
	return &NativeBuilder{opts: opts, run: runCommandFn}
}

func (b *NativeBuilder) Name() string { return "native" }

func (b *NativeBuilder) Prepare(ctx context.Context) (bool, error) {
	res, err := b.run(ctx, nil, "go", "version")
	if err != nil {
		return false, runerr.Wrap(err, runerr.KindBuild, "go toolchain not available")
	}
	if err := res.Check([]string{"go", "version"}); err != nil {
		return false, runerr.Wrap(err, runerr.KindBuild, "go toolchain not available")
	}
	return true, nil
}

func (b *NativeBuilder) Build(ctx context.Context, target Target, pkg string) (string, error) {
	out := b.opts.outputPath()
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", runerr.Wrap(err, runerr.KindBuild, "create output dir")
	}
	args := []string{
		"GOOS=" + target.OS, "GOARCH=" + target.Arch, "CGO_ENABLED=0",
		"go", "build", "-C", b.opts.RepoDir, "-o", out, pkg,
	}
	b.opts.logger().Info("building test binary", "builder", b.Name(), "target", target.String(), "package", pkg)
	res, err := b.run(ctx, nil, "env", args...)
	if err != nil {
		return "", runerr.Wrap(err, runerr.KindBuild, "run go build")
	}
	if res.ExitCode != 0 {
		return "", buildFailure(target, res)
	}
	return out, nil
}

// ContainerBuilder compiles inside a Go toolchain image, for hosts whose OS
// differs from the target's.
type ContainerBuilder struct {
	opts  BuildOptions
	Image string
	run   commandRunner
}

func NewContainerBuilder(opts BuildOptions, image string) *ContainerBuilder {
	return &ContainerBuilder{opts: opts, Image: image, run: runCommandFn}
}

func (b *ContainerBuilder) Name() string { return "container" }

// Prepare pulls the builder image unless it is already present.
func (b *ContainerBuilder) Prepare(ctx context.Context) (bool, error) {
	res, err := b.run(ctx, nil, "docker", "image", "inspect", "--format", "{{.Id}}", b.Image)
	if err != nil {
		return false, runerr.Wrap(err, runerr.KindBuild, "inspect builder image")
	}
	if res.ExitCode == 0 {
		return true, nil
	}
	b.opts.logger().Info("pulling builder image", "image", b.Image)
	res, err = b.run(ctx, nil, "docker", "pull", b.Image)
	if err != nil {
		return false, runerr.Wrap(err, runerr.KindBuild, "pull builder image")
	}
	if err := res.Check([]string{"docker", "pull", b.Image}); err != nil {
		return false, runerr.Wrap(err, runerr.KindBuild, "pull builder image")
	}
	return false, nil
}

func (b *ContainerBuilder) Build(ctx context.Context, target Target, pkg string) (string, error) {
	out := b.opts.outputPath()
	rel, err := filepath.Rel(b.opts.RepoDir, out)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", runerr.Errorf(runerr.KindBuild, "build output %s must be inside %s", out, b.opts.RepoDir)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", runerr.Wrap(err, runerr.KindBuild, "create output dir")
	}

	args := []string{
		"run", "--rm",
		"--volume", b.opts.RepoDir + ":/src",
		"--volume", "deskrig-gocache:/root/.cache/go-build",
		"--volume", "deskrig-gomod:/go/pkg/mod",
		"--workdir", "/src",
		"--env", "GOOS=" + target.OS,
		"--env", "GOARCH=" + target.Arch,
		"--env", "CGO_ENABLED=0",
		b.Image,
		"go", "build", "-o", "/src/" + filepath.ToSlash(rel), pkg,
	}
	b.opts.logger().Info("building test binary", "builder", b.Name(), "image", b.Image, "target", target.String(), "package", pkg)
	res, err := b.run(ctx, nil, "docker", args...)
	if err != nil {
		return "", runerr.Wrap(err, runerr.KindBuild, "run builder container")
	}
	if res.ExitCode != 0 {
		return "", buildFailure(target, res)
	}
	return out, nil
}

// SelectBuilder picks the native builder when host and target share an OS,
// and the container builder otherwise.
func SelectBuilder(host, target Target, native, container BuildBackend) BuildBackend {
	if host.OS == target.OS {
		return native
	}
	return container
}
