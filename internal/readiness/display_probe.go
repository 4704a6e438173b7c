package readiness

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
)

// Display is the subset of an in-process display connection the probe needs.
type Display interface {
	ClickCenter() error
	ActiveWindow() (uint32, error)
	WindowManagerRunning() (bool, error)
}

// DisplayProbe implements Probe inside the environment using a direct
// display connection. The window manager is started in its own session and
// outlives the probe's context.
type DisplayProbe struct {
	Display Display
	WMStart []string
}

func (p *DisplayProbe) SynthesizeInput(context.Context) error {
	return p.Display.ClickCenter()
}

func (p *DisplayProbe) ActiveWindow(context.Context) (string, error) {
	id, err := p.Display.ActiveWindow()
	if err != nil {
		return "", err
	}
	if id == 0 {
		return "", fmt.Errorf("no active window")
	}
	return fmt.Sprintf("0x%x", id), nil
}

func (p *DisplayProbe) WindowManagerRunning(context.Context) (bool, error) {
	return p.Display.WindowManagerRunning()
}

func (p *DisplayProbe) StartWindowManager(context.Context) error {
	argv := p.WMStart
	if len(argv) == 0 {
		argv = []string{"openbox"}
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", argv[0], err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
