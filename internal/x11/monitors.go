package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"

	"github.com/1broseidon/deskrig/internal/geometry"
)

// Monitor represents a physical display
type Monitor struct {
	ID     int
	Name   string
	Bounds geometry.Rect
}

// GetMonitors retrieves all active monitors using XRandR
func (c *Connection) GetMonitors() ([]Monitor, error) {
	if err := randr.Init(c.XUtil.Conn()); err != nil {
		return nil, fmt.Errorf("randr init failed: %w", err)
	}

	resources, err := randr.GetScreenResources(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var monitors []Monitor
	for i, crtc := range resources.Crtcs {
		crtcInfo, err := randr.GetCrtcInfo(c.XUtil.Conn(), crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}

		// Skip disabled CRTCs
		if crtcInfo.Width == 0 || crtcInfo.Height == 0 || len(crtcInfo.Outputs) == 0 {
			continue
		}

		outputName := fmt.Sprintf("Monitor%d", i)
		outputInfo, err := randr.GetOutputInfo(c.XUtil.Conn(), crtcInfo.Outputs[0], resources.ConfigTimestamp).Reply()
		if err == nil {
			outputName = string(outputInfo.Name)
		}

		monitors = append(monitors, Monitor{
			ID:   i,
			Name: outputName,
			Bounds: geometry.Rect{
				X:      int(crtcInfo.X),
				Y:      int(crtcInfo.Y),
				Width:  int(crtcInfo.Width),
				Height: int(crtcInfo.Height),
			},
		})
	}

	// Xvfb without RandR outputs still has a usable root window.
	if len(monitors) == 0 {
		root, err := c.rootGeometry()
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, Monitor{ID: 0, Name: "screen", Bounds: root})
	}

	return monitors, nil
}

func (c *Connection) rootGeometry() (geometry.Rect, error) {
	geom, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(c.Root)).Reply()
	if err != nil {
		return geometry.Rect{}, fmt.Errorf("failed to get root geometry: %w", err)
	}
	return geometry.Rect{Width: int(geom.Width), Height: int(geom.Height)}, nil
}

// WorkAreas returns the usable area of every monitor after subtracting the
// struts of dock windows.
func (c *Connection) WorkAreas() ([]geometry.Rect, error) {
	monitors, err := c.GetMonitors()
	if err != nil {
		return nil, err
	}
	struts, err := c.dockStruts()
	if err != nil {
		return nil, err
	}
	root, err := c.rootGeometry()
	if err != nil {
		return nil, err
	}

	areas := make([]geometry.Rect, 0, len(monitors))
	for _, m := range monitors {
		res := ReservationsForMonitor(m.Bounds, root, struts)
		area, err := res.Apply(m.Bounds)
		if err != nil {
			return nil, fmt.Errorf("monitor %s: %w", m.Name, err)
		}
		areas = append(areas, area)
	}
	return areas, nil
}

// dockStruts collects the partial struts of all dock windows.
func (c *Connection) dockStruts() ([]*ewmh.WmStrutPartial, error) {
	root, err := c.rootGeometry()
	if err != nil {
		return nil, err
	}

	clients, err := ewmh.ClientListGet(c.XUtil)
	if err != nil {
		// A window manager without _NET_CLIENT_LIST has no managed docks.
		return nil, nil
	}

	var struts []*ewmh.WmStrutPartial
	for _, windowID := range clients {
		if !c.isDock(windowID) {
			continue
		}

		if sp, err := ewmh.WmStrutPartialGet(c.XUtil, windowID); err == nil {
			struts = append(struts, sp)
			continue
		}

		// Some docks only set _NET_WM_STRUT (no partial ranges).
		if s, err := ewmh.WmStrutGet(c.XUtil, windowID); err == nil {
			struts = append(struts, &ewmh.WmStrutPartial{
				Left:         s.Left,
				Right:        s.Right,
				Top:          s.Top,
				Bottom:       s.Bottom,
				LeftStartY:   0,
				LeftEndY:     uint(root.Height - 1),
				RightStartY:  0,
				RightEndY:    uint(root.Height - 1),
				TopStartX:    0,
				TopEndX:      uint(root.Width - 1),
				BottomStartX: 0,
				BottomEndX:   uint(root.Width - 1),
			})
		}
	}
	return struts, nil
}

func (c *Connection) isDock(windowID xproto.Window) bool {
	types, err := ewmh.WmWindowTypeGet(c.XUtil, windowID)
	if err != nil {
		return false
	}
	for _, t := range types {
		if t == "_NET_WM_WINDOW_TYPE_DOCK" {
			return true
		}
	}
	return false
}

// ReservationsForMonitor converts root-relative struts into the space they
// reserve on one monitor. For each edge the largest overlap wins.
func ReservationsForMonitor(monitor, root geometry.Rect, struts []*ewmh.WmStrutPartial) geometry.Reservations {
	var acc geometry.Reservations
	for _, sp := range struts {
		// Top strut: y=[0,Top), x=[TopStartX,TopEndX]
		if sp.Top > 0 {
			r := spanRect(int(sp.TopStartX), 0, int(sp.TopEndX)+1, int(sp.Top))
			acc.Top = max(acc.Top, monitor.Intersect(r).Height)
		}

		// Bottom strut: y=[rootHeight-Bottom,rootHeight), x=[BottomStartX,BottomEndX]
		if sp.Bottom > 0 {
			r := spanRect(int(sp.BottomStartX), root.Height-int(sp.Bottom), int(sp.BottomEndX)+1, root.Height)
			acc.Bottom = max(acc.Bottom, monitor.Intersect(r).Height)
		}

		// Left strut: x=[0,Left), y=[LeftStartY,LeftEndY]
		if sp.Left > 0 {
			r := spanRect(0, int(sp.LeftStartY), int(sp.Left), int(sp.LeftEndY)+1)
			acc.Left = max(acc.Left, monitor.Intersect(r).Width)
		}

		// Right strut: x=[rootWidth-Right,rootWidth), y=[RightStartY,RightEndY]
		if sp.Right > 0 {
			r := spanRect(root.Width-int(sp.Right), int(sp.RightStartY), root.Width, int(sp.RightEndY)+1)
			acc.Right = max(acc.Right, monitor.Intersect(r).Width)
		}
	}
	return acc
}

func spanRect(x1, y1, x2, y2 int) geometry.Rect {
	return geometry.Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}
