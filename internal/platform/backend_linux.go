//go:build linux

package platform

import (
	"fmt"
	"image"
	"log/slog"
	"sort"
	"sync"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/deskrig/internal/geometry"
	"github.com/1broseidon/deskrig/internal/x11"
)

// LinuxBackend wraps an X11 connection behind the platform Backend interface.
type LinuxBackend struct {
	conn *x11.Connection

	mu      sync.Mutex
	windows map[WindowID]*x11.TestWindow
}

var _ Backend = (*LinuxBackend)(nil)

// NewLinuxBackend creates a Linux platform backend from an existing X11 connection.
func NewLinuxBackend(conn *x11.Connection) *LinuxBackend {
	return &LinuxBackend{conn: conn, windows: make(map[WindowID]*x11.TestWindow)}
}

// Open connects to display (empty uses $DISPLAY).
func Open(display string, logger *slog.Logger) (Backend, error) {
	conn, err := x11.NewConnection(display)
	if err != nil {
		return nil, err
	}
	conn.Logger = logger
	return NewLinuxBackend(conn), nil
}

// Disconnect destroys remaining test windows and closes the connection.
func (b *LinuxBackend) Disconnect() {
	if b == nil || b.conn == nil {
		return
	}
	b.mu.Lock()
	for id, w := range b.windows {
		b.conn.DestroyWindow(w)
		delete(b.windows, id)
	}
	b.mu.Unlock()
	b.conn.Close()
}

// Monitors returns all active monitors with their live work areas.
func (b *LinuxBackend) Monitors() ([]Monitor, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}

	monitors, err := conn.GetMonitors()
	if err != nil {
		return nil, err
	}
	areas, err := conn.WorkAreas()
	if err != nil {
		return nil, err
	}
	if len(areas) != len(monitors) {
		return nil, fmt.Errorf("monitor list changed while reading work areas")
	}

	out := make([]Monitor, 0, len(monitors))
	for i, m := range monitors {
		out = append(out, Monitor{ID: m.ID, Name: m.Name, Bounds: m.Bounds, Usable: areas[i]})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ActiveWindow returns the currently active/focused window ID.
func (b *LinuxBackend) ActiveWindow() (uint32, error) {
	conn, err := b.connection()
	if err != nil {
		return 0, err
	}
	wid, err := conn.GetActiveWindow()
	if err != nil {
		return 0, err
	}
	return uint32(wid), nil
}

// WindowManagerRunning reports whether an EWMH window manager is active.
func (b *LinuxBackend) WindowManagerRunning() (bool, error) {
	conn, err := b.connection()
	if err != nil {
		return false, err
	}
	return conn.WindowManagerRunning()
}

// Click synthesizes a left click at root coordinates.
func (b *LinuxBackend) Click(x, y int) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	return conn.Click(x, y, x11.ButtonLeft)
}

// ClickCenter clicks the middle of the first monitor.
func (b *LinuxBackend) ClickCenter() error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	monitors, err := conn.GetMonitors()
	if err != nil {
		return err
	}
	m := monitors[0].Bounds
	return conn.Click(m.X+m.Width/2, m.Y+m.Height/2, x11.ButtonLeft)
}

// OpenWindow creates a window that displays img.
func (b *LinuxBackend) OpenWindow(title string, bounds geometry.Rect, img image.Image) (WindowID, error) {
	conn, err := b.connection()
	if err != nil {
		return 0, err
	}
	w, err := conn.CreateWindow(title, bounds, img)
	if err != nil {
		return 0, err
	}
	id := WindowID(w.ID())
	b.mu.Lock()
	b.windows[id] = w
	b.mu.Unlock()
	return id, nil
}

// WindowBounds returns the window's inner geometry in root coordinates.
func (b *LinuxBackend) WindowBounds(id WindowID) (geometry.Rect, error) {
	conn, err := b.connection()
	if err != nil {
		return geometry.Rect{}, err
	}
	return conn.WindowBounds(xproto.Window(id))
}

// Focus activates a window through the window manager.
func (b *LinuxBackend) Focus(id WindowID) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	return conn.FocusWindow(xproto.Window(id))
}

// Capture reads the window contents.
func (b *LinuxBackend) Capture(id WindowID) (image.Image, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}
	return conn.CaptureWindow(xproto.Window(id))
}

// CloseWindow destroys a window opened with OpenWindow.
func (b *LinuxBackend) CloseWindow(id WindowID) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	b.mu.Lock()
	w, ok := b.windows[id]
	delete(b.windows, id)
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("window 0x%x was not opened by this backend", uint32(id))
	}
	conn.DestroyWindow(w)
	return nil
}

func (b *LinuxBackend) connection() (*x11.Connection, error) {
	if b == nil || b.conn == nil {
		return nil, fmt.Errorf("x11 backend connection is nil")
	}
	return b.conn, nil
}
