package suite

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"time"

	"github.com/1broseidon/deskrig/internal/geometry"
	"github.com/1broseidon/deskrig/internal/platform"
	"github.com/1broseidon/deskrig/internal/snapshot"
)

const (
	captureInterval    = 30 * time.Millisecond
	captureMaxDuration = 2 * time.Second
	stationaryInterval = 200 * time.Millisecond
)

// Context is handed to each test case. It is not safe for concurrent use.
type Context struct {
	ctx     context.Context
	name    string
	display platform.Backend
	session *snapshot.Session
	logger  *slog.Logger
	sleep   func(time.Duration)
	now     func() time.Time

	fails   []string
	windows []platform.WindowID

	changeExpected   bool
	blinkingExpected bool
	last             map[platform.WindowID]image.Image
}

// Name returns the running test's name.
func (c *Context) Name() string { return c.name }

// Context returns the run's context.
func (c *Context) Context() context.Context { return c.ctx }

// Display returns the display backend. It is nil for tests run without a
// display connection.
func (c *Context) Display() platform.Backend { return c.display }

// Logger returns a logger tagged with the test name.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Failf records a failure and lets the test continue.
func (c *Context) Failf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Debug("check failed", "message", msg)
	c.fails = append(c.fails, fmt.Sprintf("%s: %s", c.name, msg))
}

// Sleep pauses the test.
func (c *Context) Sleep(d time.Duration) { c.sleep(d) }

// Snapshot compares img with the next baseline of this test. Mismatches
// are recorded as failures; only I/O errors are returned.
func (c *Context) Snapshot(description string, img image.Image) error {
	out, err := c.session.Snapshot(description, img)
	if err != nil {
		return err
	}
	if out.Created {
		c.logger.Info("snapshot recorded", "path", out.Baseline)
	}
	if out.Status == snapshot.Fail {
		c.fails = append(c.fails, out.Err().Error())
	}
	return nil
}

// OpenWindow opens a window that is closed when the test ends.
func (c *Context) OpenWindow(title string, bounds geometry.Rect, img image.Image) (platform.WindowID, error) {
	if c.display == nil {
		return 0, fmt.Errorf("no display available")
	}
	id, err := c.display.OpenWindow(title, bounds, img)
	if err != nil {
		return 0, err
	}
	c.windows = append(c.windows, id)
	return id, nil
}

// SetChangeExpected makes SnapshotWindow wait until the window differs
// from its previous capture before letting it settle.
func (c *Context) SetChangeExpected(v bool) { c.changeExpected = v }

// SetBlinkingExpected makes SnapshotWindow capture two alternating frames
// and interleave their rows, so a blinking caret snapshots the same way
// every run.
func (c *Context) SetBlinkingExpected(v bool) { c.blinkingExpected = v }

// CaptureStable captures a window until its contents stop changing. The
// last capture is returned if the window keeps changing past the deadline.
func (c *Context) CaptureStable(id platform.WindowID) (image.Image, error) {
	if c.display == nil {
		return nil, fmt.Errorf("no display available")
	}
	deadline := c.now().Add(captureMaxDuration)
	first, err := c.display.Capture(id)
	if err != nil {
		return nil, err
	}
	return c.settle(id, first, deadline)
}

// CaptureChanged waits for the window to differ from its previous capture
// and then captures it once it is stable. A window never captured before
// counts as changed.
func (c *Context) CaptureChanged(id platform.WindowID) (image.Image, error) {
	if c.display == nil {
		return nil, fmt.Errorf("no display available")
	}
	prev := c.last[id]
	deadline := c.now().Add(captureMaxDuration)
	for {
		img, err := c.display.Capture(id)
		if err != nil {
			return nil, err
		}
		if prev == nil || !snapshot.Compare(prev, img).Equal {
			return c.settle(id, img, c.now().Add(captureMaxDuration))
		}
		if c.now().After(deadline) {
			return nil, fmt.Errorf("expected window 0x%x to change, but its contents stayed the same", uint32(id))
		}
		c.sleep(captureInterval)
	}
}

// CaptureBlinking collects two distinct frames of a window and returns
// them interleaved: even rows from one, odd rows from the other, ordered by
// pixel data. A window that shows a single frame is recorded as a failure
// and returned as is.
func (c *Context) CaptureBlinking(id platform.WindowID) (image.Image, error) {
	if c.display == nil {
		return nil, fmt.Errorf("no display available")
	}
	deadline := c.now().Add(captureMaxDuration)
	var frames []*image.NRGBA
	for {
		img, err := c.display.Capture(id)
		if err != nil {
			return nil, err
		}
		frame := snapshot.Canonical(img)
		if !slices.ContainsFunc(frames, func(f *image.NRGBA) bool { return snapshot.Compare(f, frame).Equal }) {
			frames = append(frames, frame)
		}
		if len(frames) == 2 || c.now().After(deadline) {
			break
		}
		c.sleep(captureInterval)
	}
	if len(frames) < 2 {
		c.Failf("expected window 0x%x to blink", uint32(id))
		c.remember(id, frames[0])
		return frames[0], nil
	}

	a, b := frames[0], frames[1]
	if !a.Rect.Eq(b.Rect) {
		return nil, fmt.Errorf("window 0x%x changed size while blinking", uint32(id))
	}
	if bytes.Compare(a.Pix, b.Pix) > 0 {
		a, b = b, a
	}
	out := image.NewNRGBA(a.Rect)
	rowLen := 4 * a.Rect.Dx()
	for y := 0; y < a.Rect.Dy(); y++ {
		src := a
		if y%2 == 0 {
			src = b
		}
		so := src.PixOffset(0, y)
		oo := out.PixOffset(0, y)
		copy(out.Pix[oo:oo+rowLen], src.Pix[so:so+rowLen])
	}
	c.remember(id, out)
	return out, nil
}

func (c *Context) settle(id platform.WindowID, last image.Image, deadline time.Time) (image.Image, error) {
	stableSince := c.now()
	for {
		if c.now().Sub(stableSince) >= stationaryInterval {
			break
		}
		if c.now().After(deadline) {
			c.logger.Warn("window contents kept changing", "window", uint32(id))
			break
		}
		c.sleep(captureInterval)
		next, err := c.display.Capture(id)
		if err != nil {
			return nil, err
		}
		if !snapshot.Compare(last, next).Equal {
			stableSince = c.now()
		}
		last = next
	}
	c.remember(id, last)
	return last, nil
}

func (c *Context) remember(id platform.WindowID, img image.Image) {
	if c.last == nil {
		c.last = make(map[platform.WindowID]image.Image)
	}
	c.last[id] = img
}

// SnapshotWindow captures a window and compares it. The capture mode
// follows SetBlinkingExpected and SetChangeExpected; by default the window
// only has to be stable.
func (c *Context) SnapshotWindow(id platform.WindowID, description string) error {
	var img image.Image
	var err error
	switch {
	case c.blinkingExpected:
		img, err = c.CaptureBlinking(id)
	case c.changeExpected:
		img, err = c.CaptureChanged(id)
	default:
		img, err = c.CaptureStable(id)
	}
	if err != nil {
		return err
	}
	return c.Snapshot(description, img)
}

// WaitFor polls cond until it returns true or timeout elapses.
func (c *Context) WaitFor(timeout time.Duration, cond func() (bool, error)) error {
	deadline := c.now().Add(timeout)
	for {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if c.now().After(deadline) {
			return fmt.Errorf("condition not met after %s", timeout)
		}
		if err := c.ctx.Err(); err != nil {
			return err
		}
		c.sleep(captureInterval)
	}
}

func (c *Context) closeWindows() {
	for i := len(c.windows) - 1; i >= 0; i-- {
		if err := c.display.CloseWindow(c.windows[i]); err != nil {
			c.logger.Warn("failed to close window", "window", uint32(c.windows[i]), "error", err)
		}
	}
	c.windows = nil
}
