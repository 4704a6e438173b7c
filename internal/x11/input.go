package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgb/xtest"
)

// Mouse buttons as used by XTEST.
const (
	ButtonLeft   byte = 1
	ButtonMiddle byte = 2
	ButtonRight  byte = 3
)

func (c *Connection) initXTest() error {
	if c.xtestReady {
		return nil
	}
	if err := xtest.Init(c.XUtil.Conn()); err != nil {
		return fmt.Errorf("xtest init failed: %w", err)
	}
	c.xtestReady = true
	return nil
}

// MovePointer warps the pointer to root coordinates (x, y).
func (c *Connection) MovePointer(x, y int) error {
	if err := c.initXTest(); err != nil {
		return err
	}
	return c.fakeInput(xproto.MotionNotify, 0, x, y)
}

// Click moves the pointer to (x, y) and presses and releases button.
func (c *Connection) Click(x, y int, button byte) error {
	if err := c.MovePointer(x, y); err != nil {
		return err
	}
	if err := c.fakeInput(xproto.ButtonPress, button, 0, 0); err != nil {
		return err
	}
	if err := c.fakeInput(xproto.ButtonRelease, button, 0, 0); err != nil {
		return err
	}
	c.Sync()
	return nil
}

func (c *Connection) fakeInput(eventType, detail byte, x, y int) error {
	err := xtest.FakeInputChecked(c.XUtil.Conn(), eventType, detail, 0, c.Root, int16(x), int16(y), 0).Check()
	if err != nil {
		return fmt.Errorf("xtest fake input (type %d): %w", eventType, err)
	}
	return nil
}
