package platform

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/1broseidon/deskrig/internal/geometry"
)

// Fake is an in-memory Backend for tests. Windows render their image
// exactly; Clicks are recorded.
type Fake struct {
	mu sync.Mutex

	MonitorList []Monitor
	Active      uint32
	WMRunning   bool
	Clicks      [][2]int

	// Mutate, when set, alters every captured image.
	Mutate func(img *image.NRGBA)

	nextID  WindowID
	windows map[WindowID]fakeWindow
}

type fakeWindow struct {
	title  string
	bounds geometry.Rect
	img    image.Image
}

var _ Backend = (*Fake)(nil)

// NewFake returns a fake with a single 1600x900 monitor.
func NewFake() *Fake {
	full := geometry.Rect{Width: 1600, Height: 900}
	return &Fake{
		MonitorList: []Monitor{{ID: 0, Name: "fake", Bounds: full, Usable: full}},
		WMRunning:   true,
		nextID:      0x400000,
		windows:     make(map[WindowID]fakeWindow),
	}
}

func (f *Fake) Monitors() ([]Monitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Monitor(nil), f.MonitorList...), nil
}

func (f *Fake) ActiveWindow() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Active == 0 {
		return 0, fmt.Errorf("no active window")
	}
	return f.Active, nil
}

func (f *Fake) WindowManagerRunning() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.WMRunning, nil
}

func (f *Fake) Click(x, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Clicks = append(f.Clicks, [2]int{x, y})
	return nil
}

func (f *Fake) ClickCenter() error {
	m := f.MonitorList[0].Bounds
	return f.Click(m.X+m.Width/2, m.Y+m.Height/2)
}

func (f *Fake) OpenWindow(title string, bounds geometry.Rect, img image.Image) (WindowID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.windows[f.nextID] = fakeWindow{title: title, bounds: bounds, img: img}
	f.Active = uint32(f.nextID)
	return f.nextID, nil
}

func (f *Fake) WindowBounds(id WindowID) (geometry.Rect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[id]
	if !ok {
		return geometry.Rect{}, fmt.Errorf("unknown window 0x%x", uint32(id))
	}
	return w.bounds, nil
}

func (f *Fake) Focus(id WindowID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.windows[id]; !ok {
		return fmt.Errorf("unknown window 0x%x", uint32(id))
	}
	f.Active = uint32(id)
	return nil
}

func (f *Fake) Capture(id WindowID) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[id]
	if !ok {
		return nil, fmt.Errorf("unknown window 0x%x", uint32(id))
	}
	b := w.img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), w.img, b.Min, draw.Src)
	if f.Mutate != nil {
		f.Mutate(out)
	}
	return out, nil
}

func (f *Fake) CloseWindow(id WindowID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.windows[id]; !ok {
		return fmt.Errorf("unknown window 0x%x", uint32(id))
	}
	delete(f.windows, id)
	if f.Active == uint32(id) {
		f.Active = 0
	}
	return nil
}

// OpenWindows returns the number of windows currently open.
func (f *Fake) OpenWindows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.windows)
}

func (f *Fake) Disconnect() {}
