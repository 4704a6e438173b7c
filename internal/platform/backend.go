// Package platform exposes the display operations test cases and the
// readiness probe need, independent of the window system.
package platform

import (
	"image"

	"github.com/1broseidon/deskrig/internal/geometry"
)

// WindowID is a platform-neutral window identifier.
type WindowID uint32

// Monitor describes a physical display and its usable work area.
type Monitor struct {
	ID     int
	Name   string
	Bounds geometry.Rect
	Usable geometry.Rect
}

// Backend abstracts window-system operations across platforms.
type Backend interface {
	Monitors() ([]Monitor, error)
	ActiveWindow() (uint32, error)
	WindowManagerRunning() (bool, error)
	Click(x, y int) error
	ClickCenter() error
	OpenWindow(title string, bounds geometry.Rect, img image.Image) (WindowID, error)
	WindowBounds(id WindowID) (geometry.Rect, error)
	Focus(id WindowID) error
	Capture(id WindowID) (image.Image, error)
	CloseWindow(id WindowID) error
	Disconnect()
}
