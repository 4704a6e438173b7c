package config

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/1broseidon/deskrig/internal/geometry"
	"github.com/1broseidon/deskrig/internal/readiness"
	"github.com/1broseidon/deskrig/internal/snapshot"
)

// Runtime backends.
const (
	BackendDocker = "docker"
	BackendSSH    = "ssh"
	BackendLocal  = "local"
)

// RuntimeConfig describes the isolated desktop environment.
type RuntimeConfig struct {
	// Backend is one of docker, ssh, local.
	Backend string `yaml:"backend"`

	// Name identifies the environment (container name for docker).
	Name  string `yaml:"name"`
	Image string `yaml:"image"`

	// Dockerfile builds image when it is missing; otherwise it is pulled.
	Dockerfile string   `yaml:"dockerfile,omitempty"`
	Display    string   `yaml:"display"`
	Publish    []string `yaml:"publish,omitempty"`

	// Workdir is where the work tree is mounted inside the environment.
	Workdir string `yaml:"workdir"`

	// Binary is where the test binary is placed inside the environment.
	Binary string `yaml:"binary"`

	// ExecTimeout bounds every command run inside the environment.
	ExecTimeout time.Duration `yaml:"exec_timeout"`
	SSH         SSHConfig     `yaml:"ssh,omitempty"`
}

// SSHConfig configures the ssh runtime backend.
type SSHConfig struct {
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	User       string `yaml:"user,omitempty"`
	KeyFile    string `yaml:"key_file,omitempty"`
	KnownHosts string `yaml:"known_hosts,omitempty"`

	// InsecureIgnoreHostKey skips host key verification when no
	// known_hosts file is configured.
	InsecureIgnoreHostKey bool `yaml:"insecure_ignore_host_key,omitempty"`
}

// BuildConfig configures how the test binary is compiled.
type BuildConfig struct {
	OS           string `yaml:"os"`
	Arch         string `yaml:"arch"`
	Package      string `yaml:"package"`
	BuilderImage string `yaml:"builder_image"`

	// Output is the host path of the built binary, relative to the repo dir.
	Output string `yaml:"output"`
}

// ReadinessConfig tunes the readiness monitor.
type ReadinessConfig struct {
	Attempts int                `yaml:"attempts"`
	Interval time.Duration      `yaml:"interval"`
	Commands readiness.Commands `yaml:"commands"`
}

// SnapshotsConfig configures the snapshot engine inside the environment.
type SnapshotsConfig struct {
	Mode snapshot.Mode `yaml:"mode"`

	// Dir is relative to runtime.workdir.
	Dir string `yaml:"dir"`
}

// GeometryCheck swaps a panel fixture in and compares the reported work area.
type GeometryCheck struct {
	Name    string `yaml:"name"`
	Fixture string `yaml:"fixture"`

	// Expected is the literal `deskrig workarea` output. When empty the value
	// is computed from the fixture's panels.
	Expected string `yaml:"expected,omitempty"`

	// Restart recreates the environment instead of restarting the panel.
	Restart bool `yaml:"restart,omitempty"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

type Config struct {
	Runtime        RuntimeConfig   `yaml:"runtime"`
	Build          BuildConfig     `yaml:"build"`
	Readiness      ReadinessConfig `yaml:"readiness"`
	Snapshots      SnapshotsConfig `yaml:"snapshots"`
	ArtifactsDir   string          `yaml:"artifacts_dir"`
	FixturesDir    string          `yaml:"fixtures_dir"`
	WMConfigDir    string          `yaml:"wm_config_dir"`
	PanelRestart   []string        `yaml:"panel_restart"`
	GeometryChecks []GeometryCheck `yaml:"geometry_checks,omitempty"`
	Monitor        geometry.Rect   `yaml:"monitor"`
	Logging        LoggingConfig   `yaml:"logging"`

	// RepoDir anchors relative host paths. Set by the loader.
	RepoDir string `yaml:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Backend:     BackendDocker,
			Name:        "deskrig-env",
			Image:       "deskrig/desktop:latest",
			Display:     ":99",
			Publish:     []string{"5900:5900"},
			Workdir:     "/work",
			Binary:      "/usr/local/bin/deskrig",
			ExecTimeout: 10 * time.Minute,
			SSH:         SSHConfig{Port: 22},
		},
		Build: BuildConfig{
			OS:           "linux",
			Arch:         "amd64",
			Package:      "./cmd/deskrig",
			BuilderImage: "golang:1.24-bookworm",
			Output:       ".deskrig/bin/deskrig",
		},
		Readiness: ReadinessConfig{
			Attempts: readiness.DefaultAttempts,
			Interval: readiness.DefaultInterval,
			Commands: readiness.DefaultCommands(),
		},
		Snapshots: SnapshotsConfig{
			Mode: snapshot.ModeCheck,
			Dir:  "tests/snapshots",
		},
		ArtifactsDir: "tests/snapshots",
		FixturesDir:  "fixtures/panels",
		WMConfigDir:  "/root/.config/lxpanel/default/panels",
		PanelRestart: []string{"sh", "-c", "pkill -x lxpanel; lxpanel >/dev/null 2>&1 &"},
		Monitor:      geometry.Rect{Width: 1600, Height: 900},
		Logging:      LoggingConfig{Level: "info"},
	}
}

var containerNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

func (c *Config) Validate() error {
	switch c.Runtime.Backend {
	case BackendDocker:
		if !containerNameRe.MatchString(c.Runtime.Name) {
			return &ValidationError{Path: "runtime.name", Err: fmt.Errorf("runtime.name %q is not a valid container name", c.Runtime.Name)}
		}
		if strings.TrimSpace(c.Runtime.Image) == "" {
			return &ValidationError{Path: "runtime.image", Err: fmt.Errorf("runtime.image is required for the docker backend")}
		}
	case BackendSSH:
		if strings.TrimSpace(c.Runtime.SSH.Host) == "" {
			return &ValidationError{Path: "runtime.ssh.host", Err: fmt.Errorf("runtime.ssh.host is required for the ssh backend")}
		}
		if c.Runtime.SSH.Port < 1 || c.Runtime.SSH.Port > 65535 {
			return &ValidationError{Path: "runtime.ssh.port", Err: fmt.Errorf("runtime.ssh.port must be between 1 and 65535")}
		}
		if strings.TrimSpace(c.Runtime.SSH.KnownHosts) == "" && !c.Runtime.SSH.InsecureIgnoreHostKey {
			return &ValidationError{Path: "runtime.ssh.known_hosts", Err: fmt.Errorf("runtime.ssh.known_hosts is required unless runtime.ssh.insecure_ignore_host_key is set")}
		}
	case BackendLocal:
	default:
		return &ValidationError{Path: "runtime.backend", Err: fmt.Errorf("runtime.backend must be one of: docker, ssh, local")}
	}
	if strings.TrimSpace(c.Runtime.Name) == "" {
		return &ValidationError{Path: "runtime.name", Err: fmt.Errorf("runtime.name is required")}
	}
	if !strings.HasPrefix(c.Runtime.Display, ":") {
		return &ValidationError{Path: "runtime.display", Err: fmt.Errorf("runtime.display must look like :N")}
	}
	if !filepath.IsAbs(c.Runtime.Workdir) {
		return &ValidationError{Path: "runtime.workdir", Err: fmt.Errorf("runtime.workdir must be absolute")}
	}
	if !filepath.IsAbs(c.Runtime.Binary) {
		return &ValidationError{Path: "runtime.binary", Err: fmt.Errorf("runtime.binary must be absolute")}
	}
	if c.Runtime.ExecTimeout <= 0 {
		return &ValidationError{Path: "runtime.exec_timeout", Err: fmt.Errorf("runtime.exec_timeout must be > 0")}
	}

	if c.Build.OS == "" || c.Build.Arch == "" {
		return &ValidationError{Path: "build", Err: fmt.Errorf("build.os and build.arch are required")}
	}
	if strings.TrimSpace(c.Build.Package) == "" {
		return &ValidationError{Path: "build.package", Err: fmt.Errorf("build.package is required")}
	}
	if strings.TrimSpace(c.Build.Output) == "" {
		return &ValidationError{Path: "build.output", Err: fmt.Errorf("build.output is required")}
	}

	if c.Readiness.Attempts < 1 {
		return &ValidationError{Path: "readiness.attempts", Err: fmt.Errorf("readiness.attempts must be >= 1")}
	}
	if c.Readiness.Interval <= 0 {
		return &ValidationError{Path: "readiness.interval", Err: fmt.Errorf("readiness.interval must be > 0")}
	}
	if len(c.Readiness.Commands.ActiveWindow) == 0 {
		return &ValidationError{Path: "readiness.commands.active_window", Err: fmt.Errorf("active_window command must not be empty")}
	}

	if _, err := snapshot.ParseMode(string(c.Snapshots.Mode)); err != nil {
		return &ValidationError{Path: "snapshots.mode", Err: err}
	}
	if strings.TrimSpace(c.Snapshots.Dir) == "" || filepath.IsAbs(c.Snapshots.Dir) {
		return &ValidationError{Path: "snapshots.dir", Err: fmt.Errorf("snapshots.dir must be a relative path")}
	}
	if strings.TrimSpace(c.ArtifactsDir) == "" {
		return &ValidationError{Path: "artifacts_dir", Err: fmt.Errorf("artifacts_dir is required")}
	}
	if strings.TrimSpace(c.FixturesDir) == "" {
		return &ValidationError{Path: "fixtures_dir", Err: fmt.Errorf("fixtures_dir is required")}
	}

	if c.Monitor.Width <= 0 || c.Monitor.Height <= 0 {
		return &ValidationError{Path: "monitor", Err: fmt.Errorf("monitor width and height must be > 0")}
	}

	seen := make(map[string]struct{}, len(c.GeometryChecks))
	for i, check := range c.GeometryChecks {
		path := fmt.Sprintf("geometry_checks[%d]", i)
		if strings.TrimSpace(check.Name) == "" {
			return &ValidationError{Path: "geometry_checks", Err: fmt.Errorf("%s: name is required", path)}
		}
		if _, dup := seen[check.Name]; dup {
			return &ValidationError{Path: "geometry_checks", Err: fmt.Errorf("duplicate geometry check %q", check.Name)}
		}
		seen[check.Name] = struct{}{}
		if strings.TrimSpace(check.Fixture) == "" {
			return &ValidationError{Path: "geometry_checks", Err: fmt.Errorf("%s (%s): fixture is required", path, check.Name)}
		}
		if check.Expected != "" {
			if _, err := geometry.ParseRects(check.Expected); err != nil {
				return &ValidationError{Path: "geometry_checks", Err: fmt.Errorf("%s (%s): expected: %w", path, check.Name, err)}
			}
		}
	}
	if len(c.GeometryChecks) > 0 {
		if strings.TrimSpace(c.WMConfigDir) == "" {
			return &ValidationError{Path: "wm_config_dir", Err: fmt.Errorf("wm_config_dir is required when geometry_checks are configured")}
		}
		if len(c.PanelRestart) == 0 {
			return &ValidationError{Path: "panel_restart", Err: fmt.Errorf("panel_restart is required when geometry_checks are configured")}
		}
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return &ValidationError{Path: "logging.level", Err: err}
	}
	return nil
}

// Path resolves a host path relative to RepoDir.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.RepoDir == "" {
		return p
	}
	return filepath.Join(c.RepoDir, p)
}

// RemotePath resolves a path relative to the environment's workdir.
func (c *Config) RemotePath(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return strings.TrimSuffix(c.Runtime.Workdir, "/") + "/" + p
}

// ParseLevel maps a logging.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
}

// Logger returns a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
