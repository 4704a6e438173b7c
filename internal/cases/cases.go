// Package cases holds the built-in UI regression tests.
package cases

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/1broseidon/deskrig/internal/geometry"
	"github.com/1broseidon/deskrig/internal/platform"
	"github.com/1broseidon/deskrig/internal/suite"
)

const focusTimeout = 2 * time.Second

// Register adds every built-in test to reg.
func Register(reg *suite.Registry) {
	reg.Add("window::pattern", windowPattern)
	reg.Add("window::focus", windowFocus)
	reg.Add("geometry::work_area", workAreaWithinMonitor)
}

// Checkerboard returns a w x h image of size-pixel squares.
func Checkerboard(w, h, size int, a, b color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/size+y/size)%2 == 0 {
				img.SetNRGBA(x, y, a)
			} else {
				img.SetNRGBA(x, y, b)
			}
		}
	}
	return img
}

var (
	colorInk    = color.NRGBA{R: 32, G: 32, B: 48, A: 255}
	colorPaper  = color.NRGBA{R: 240, G: 240, B: 232, A: 255}
	colorAccent = color.NRGBA{R: 0, G: 120, B: 215, A: 255}
)

func windowPattern(c *suite.Context) error {
	img := Checkerboard(160, 120, 8, colorInk, colorPaper)
	id, err := c.OpenWindow("deskrig pattern", geometry.Rect{X: 200, Y: 200, Width: 160, Height: 120}, img)
	if err != nil {
		return err
	}
	if err := c.SnapshotWindow(id, "checkerboard"); err != nil {
		return err
	}

	accent := Checkerboard(160, 120, 20, colorAccent, colorPaper)
	id2, err := c.OpenWindow("deskrig accent", geometry.Rect{X: 400, Y: 200, Width: 160, Height: 120}, accent)
	if err != nil {
		return err
	}
	return c.SnapshotWindow(id2, "accent squares")
}

func windowFocus(c *suite.Context) error {
	first, err := c.OpenWindow("deskrig focus one", geometry.Rect{X: 100, Y: 100, Width: 120, Height: 90}, Checkerboard(120, 90, 10, colorInk, colorPaper))
	if err != nil {
		return err
	}
	second, err := c.OpenWindow("deskrig focus two", geometry.Rect{X: 300, Y: 100, Width: 120, Height: 90}, Checkerboard(120, 90, 10, colorAccent, colorPaper))
	if err != nil {
		return err
	}

	for _, id := range []platform.WindowID{first, second, first} {
		if err := c.Display().Focus(id); err != nil {
			return fmt.Errorf("focus 0x%x: %w", uint32(id), err)
		}
		err := c.WaitFor(focusTimeout, func() (bool, error) {
			active, err := c.Display().ActiveWindow()
			if err != nil {
				return false, nil
			}
			return active == uint32(id), nil
		})
		if err != nil {
			active, _ := c.Display().ActiveWindow()
			c.Failf("window 0x%x never became active (active is 0x%x)", uint32(id), active)
		}
	}
	return nil
}

func workAreaWithinMonitor(c *suite.Context) error {
	if c.Display() == nil {
		return fmt.Errorf("no display available")
	}
	monitors, err := c.Display().Monitors()
	if err != nil {
		return err
	}
	if len(monitors) == 0 {
		c.Failf("no monitors reported")
		return nil
	}
	for _, m := range monitors {
		if !m.Bounds.Contains(m.Usable) {
			c.Failf("monitor %s: work area %s is not inside %s", m.Name, m.Usable, m.Bounds)
		}
		if m.Usable.Width <= 0 || m.Usable.Height <= 0 {
			c.Failf("monitor %s: empty work area %s", m.Name, m.Usable)
		}
	}
	return nil
}
