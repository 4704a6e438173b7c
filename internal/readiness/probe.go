package readiness

import (
	"context"
	"errors"
	"strings"
)

// RunFunc executes argv in the target environment and returns its stdout.
// A non-zero exit must be reported as an error.
type RunFunc func(ctx context.Context, argv ...string) (string, error)

// Commands lists the probe commands run inside the environment.
type Commands struct {
	Input        []string `yaml:"input"`
	ActiveWindow []string `yaml:"active_window"`
	WMCheck      []string `yaml:"wm_check"`
	WMStart      []string `yaml:"wm_start"`
}

// DefaultCommands probes an openbox session with xdotool.
func DefaultCommands() Commands {
	return Commands{
		Input:        []string{"xdotool", "click", "1"},
		ActiveWindow: []string{"xdotool", "getactivewindow"},
		WMCheck:      []string{"pgrep", "-x", "openbox"},
		WMStart:      []string{"sh", "-c", "openbox >/dev/null 2>&1 &"},
	}
}

// ExecProbe implements Probe by running commands through a RunFunc, which
// is how the host probes a container or remote machine.
type ExecProbe struct {
	Run      RunFunc
	Commands Commands
}

// NewExecProbe creates a probe. Empty command lists use DefaultCommands.
func NewExecProbe(run RunFunc, cmds Commands) *ExecProbe {
	def := DefaultCommands()
	if len(cmds.Input) == 0 {
		cmds.Input = def.Input
	}
	if len(cmds.ActiveWindow) == 0 {
		cmds.ActiveWindow = def.ActiveWindow
	}
	if len(cmds.WMCheck) == 0 {
		cmds.WMCheck = def.WMCheck
	}
	if len(cmds.WMStart) == 0 {
		cmds.WMStart = def.WMStart
	}
	return &ExecProbe{Run: run, Commands: cmds}
}

func (p *ExecProbe) SynthesizeInput(ctx context.Context) error {
	_, err := p.Run(ctx, p.Commands.Input...)
	return err
}

func (p *ExecProbe) ActiveWindow(ctx context.Context) (string, error) {
	out, err := p.Run(ctx, p.Commands.ActiveWindow...)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(out)
	if id == "" {
		return "", errors.New("no active window reported")
	}
	return id, nil
}

// WindowManagerRunning treats a failing check command (pgrep exits 1 when
// nothing matches) as "not running".
func (p *ExecProbe) WindowManagerRunning(ctx context.Context) (bool, error) {
	if _, err := p.Run(ctx, p.Commands.WMCheck...); err != nil {
		return false, nil
	}
	return true, nil
}

func (p *ExecProbe) StartWindowManager(ctx context.Context) error {
	_, err := p.Run(ctx, p.Commands.WMStart...)
	return err
}
