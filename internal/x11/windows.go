package x11

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xgraphics"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/1broseidon/deskrig/internal/geometry"
)

// GetActiveWindow returns the window in _NET_ACTIVE_WINDOW.
func (c *Connection) GetActiveWindow() (xproto.Window, error) {
	return ewmh.ActiveWindowGet(c.XUtil)
}

// WindowManagerRunning reports whether an EWMH compliant window manager owns
// the root window. The check window must point at itself.
func (c *Connection) WindowManagerRunning() (bool, error) {
	check, err := ewmh.SupportingWmCheckGet(c.XUtil, c.Root)
	if err != nil || check == 0 {
		return false, nil
	}
	self, err := ewmh.SupportingWmCheckGet(c.XUtil, check)
	if err != nil {
		return false, nil
	}
	return self == check, nil
}

// WindowManagerName returns the _NET_WM_NAME of the supporting WM window.
func (c *Connection) WindowManagerName() (string, error) {
	check, err := ewmh.SupportingWmCheckGet(c.XUtil, c.Root)
	if err != nil {
		return "", fmt.Errorf("no window manager: %w", err)
	}
	return ewmh.WmNameGet(c.XUtil, check)
}

// FocusWindow activates and raises a window using _NET_ACTIVE_WINDOW.
// The client message is built by hand because the xgbutil ewmh request
// helpers panic on this library version.
func (c *Connection) FocusWindow(windowID xproto.Window) error {
	atomReply, err := xproto.InternAtom(c.XUtil.Conn(), false,
		uint16(len("_NET_ACTIVE_WINDOW")), "_NET_ACTIVE_WINDOW").Reply()
	if err != nil {
		return fmt.Errorf("failed to intern _NET_ACTIVE_WINDOW: %w", err)
	}

	const sourceIndication = 2 // pager/direct action
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: windowID,
		Type:   atomReply.Atom,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{sourceIndication, 0, 0, 0, 0}),
	}

	return xproto.SendEventChecked(
		c.XUtil.Conn(),
		false,
		c.Root,
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
		string(ev.Bytes()),
	).Check()
}

// TestWindow is a top-level window whose background is a fixed image.
type TestWindow struct {
	win   *xwindow.Window
	image *xgraphics.Image
}

// ID returns the X window id.
func (w *TestWindow) ID() xproto.Window {
	return w.win.Id
}

// CreateWindow maps a fixed-size window at bounds showing img as its
// background. The window manager may still move it to fit the work area.
func (c *Connection) CreateWindow(title string, bounds geometry.Rect, img image.Image) (*TestWindow, error) {
	win, err := xwindow.Generate(c.XUtil)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate window id: %w", err)
	}
	win.Create(c.Root, bounds.X, bounds.Y, bounds.Width, bounds.Height,
		xproto.CwBackPixel|xproto.CwEventMask,
		0xffffff, xproto.EventMaskExposure|xproto.EventMaskStructureNotify)

	if err := ewmh.WmNameSet(c.XUtil, win.Id, title); err != nil {
		win.Destroy()
		return nil, fmt.Errorf("failed to set window title: %w", err)
	}
	c.hintFailed("WM_NAME", win.Id, icccm.WmNameSet(c.XUtil, win.Id, title))
	c.hintFailed("WM_CLASS", win.Id, icccm.WmClassSet(c.XUtil, win.Id, &icccm.WmClass{Instance: "deskrig", Class: "Deskrig"}))
	c.hintFailed("WM_NORMAL_HINTS", win.Id, icccm.WmNormalHintsSet(c.XUtil, win.Id, &icccm.NormalHints{
		Flags:     icccm.SizeHintPPosition | icccm.SizeHintPMinSize | icccm.SizeHintPMaxSize,
		X:         bounds.X,
		Y:         bounds.Y,
		MinWidth:  uint(bounds.Width),
		MinHeight: uint(bounds.Height),
		MaxWidth:  uint(bounds.Width),
		MaxHeight: uint(bounds.Height),
	}))

	ximg := xgraphics.NewConvert(c.XUtil, img)
	if err := ximg.XSurfaceSet(win.Id); err != nil {
		win.Destroy()
		return nil, fmt.Errorf("failed to create window surface: %w", err)
	}
	ximg.XDraw()
	ximg.XPaint(win.Id)

	win.Map()
	c.Sync()
	return &TestWindow{win: win, image: ximg}, nil
}

// hintFailed logs a window property the window manager will not see.
func (c *Connection) hintFailed(hint string, win xproto.Window, err error) {
	if err != nil {
		c.logger().Debug("failed to set window hint", "hint", hint, "window", uint32(win), "error", err)
	}
}

// DestroyWindow unmaps and destroys a window created by CreateWindow.
func (c *Connection) DestroyWindow(w *TestWindow) {
	if w == nil {
		return
	}
	w.win.Destroy()
	if w.image != nil {
		w.image.Destroy()
	}
	c.Sync()
}

// CaptureWindow reads the current contents of a window. The window must be
// mapped and unobscured.
func (c *Connection) CaptureWindow(windowID xproto.Window) (image.Image, error) {
	img, err := xgraphics.NewDrawable(c.XUtil, xproto.Drawable(windowID))
	if err != nil {
		return nil, fmt.Errorf("failed to capture window 0x%x: %w", windowID, err)
	}
	return img, nil
}

// CaptureRoot reads the whole screen.
func (c *Connection) CaptureRoot() (image.Image, error) {
	return c.CaptureWindow(c.Root)
}

// WindowBounds returns a window's geometry in root coordinates.
func (c *Connection) WindowBounds(windowID xproto.Window) (geometry.Rect, error) {
	geom, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(windowID)).Reply()
	if err != nil {
		return geometry.Rect{}, err
	}

	translate, err := xproto.TranslateCoordinates(
		c.XUtil.Conn(),
		windowID,
		c.Root,
		0, 0,
	).Reply()
	if err != nil {
		return geometry.Rect{}, err
	}

	return geometry.Rect{
		X:      int(translate.DstX),
		Y:      int(translate.DstY),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}, nil
}
