package geometry

import (
	"errors"
	"fmt"
	"strings"
)

// ErrReservationExceedsMonitor is returned when panels reserve more space than
// the monitor has. The result is never clamped.
var ErrReservationExceedsMonitor = errors.New("reserved panel space exceeds monitor size")

// Rect describes a rectangular region in screen coordinates.
type Rect struct {
	X      int `yaml:"x" json:"x"`
	Y      int `yaml:"y" json:"y"`
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Right returns the exclusive right edge.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Contains reports whether inner lies fully within r.
func (r Rect) Contains(inner Rect) bool {
	return inner.Width >= 0 && inner.Height >= 0 &&
		inner.X >= r.X && inner.Y >= r.Y &&
		inner.Right() <= r.Right() && inner.Bottom() <= r.Bottom()
}

// Intersects reports whether r and o share a non-empty area.
func (r Rect) Intersects(o Rect) bool {
	return max(r.X, o.X) < min(r.Right(), o.Right()) &&
		max(r.Y, o.Y) < min(r.Bottom(), o.Bottom())
}

// Intersect returns the overlap of r and o, or the zero Rect if they do not
// overlap.
func (r Rect) Intersect(o Rect) Rect {
	x1, y1 := max(r.X, o.X), max(r.Y, o.Y)
	x2, y2 := min(r.Right(), o.Right()), min(r.Bottom(), o.Bottom())
	if x2 <= x1 || y2 <= y1 {
		return Rect{}
	}
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", r.X, r.Y, r.Width, r.Height)
}

// Edge is the screen edge a panel is docked to.
type Edge string

const (
	EdgeTop    Edge = "top"
	EdgeBottom Edge = "bottom"
	EdgeLeft   Edge = "left"
	EdgeRight  Edge = "right"
	// EdgeNone covers floating and middle panels. They never reserve space.
	EdgeNone Edge = "none"
)

// ParseEdge parses an edge name. The empty string is treated as EdgeNone.
func ParseEdge(s string) (Edge, error) {
	switch e := Edge(strings.ToLower(strings.TrimSpace(s))); e {
	case EdgeTop, EdgeBottom, EdgeLeft, EdgeRight, EdgeNone:
		return e, nil
	case "":
		return EdgeNone, nil
	default:
		return "", fmt.Errorf("unknown panel edge %q (expected top, bottom, left, right or none)", s)
	}
}

// Panel is a docked desktop element such as a taskbar.
type Panel struct {
	Edge      Edge `yaml:"edge" json:"edge"`
	Thickness int  `yaml:"thickness" json:"thickness"`
	Length    int  `yaml:"length,omitempty" json:"length,omitempty"`
	Autohide  bool `yaml:"autohide,omitempty" json:"autohide,omitempty"`
}

// Validate checks the panel attributes.
func (p Panel) Validate() error {
	if _, err := ParseEdge(string(p.Edge)); err != nil {
		return err
	}
	if p.Thickness < 0 {
		return fmt.Errorf("panel thickness must be >= 0, got %d", p.Thickness)
	}
	if p.Length < 0 {
		return fmt.Errorf("panel length must be >= 0, got %d", p.Length)
	}
	return nil
}

// Reservations holds the space reserved along each monitor edge.
type Reservations struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

// IsZero reports whether nothing is reserved.
func (r Reservations) IsZero() bool {
	return r.Left == 0 && r.Right == 0 && r.Top == 0 && r.Bottom == 0
}

// borderAllowance is the extra pixel the window manager reserves beyond a
// panel's configured thickness. It matches observed behaviour and must stay 1.
// It has only been verified against the openbox + lxpanel environment.
const borderAllowance = 1

// ReservationsFor computes per-edge reservations for the given panels: the
// thickest panel on an edge plus borderAllowance. Panels with EdgeNone are
// ignored.
func ReservationsFor(panels []Panel) (Reservations, error) {
	thickest := map[Edge]int{}
	for i, p := range panels {
		if err := p.Validate(); err != nil {
			return Reservations{}, fmt.Errorf("panel %d: %w", i, err)
		}
		edge, _ := ParseEdge(string(p.Edge))
		if edge == EdgeNone {
			continue
		}
		reserved := p.Thickness + borderAllowance
		if reserved > thickest[edge] {
			thickest[edge] = reserved
		}
	}
	return Reservations{
		Left:   thickest[EdgeLeft],
		Right:  thickest[EdgeRight],
		Top:    thickest[EdgeTop],
		Bottom: thickest[EdgeBottom],
	}, nil
}

// Apply subtracts the reservations from the monitor bounds.
func (r Reservations) Apply(monitor Rect) (Rect, error) {
	if r.Left < 0 || r.Right < 0 || r.Top < 0 || r.Bottom < 0 {
		return Rect{}, fmt.Errorf("negative reservation %+v", r)
	}
	area := Rect{
		X:      monitor.X + r.Left,
		Y:      monitor.Y + r.Top,
		Width:  monitor.Width - r.Left - r.Right,
		Height: monitor.Height - r.Top - r.Bottom,
	}
	if area.Width < 0 || area.Height < 0 {
		return Rect{}, fmt.Errorf("%w: monitor %s, reserved left=%d right=%d top=%d bottom=%d",
			ErrReservationExceedsMonitor, monitor, r.Left, r.Right, r.Top, r.Bottom)
	}
	return area, nil
}

// WorkArea returns the usable rectangle of monitor after subtracting the space
// reserved by edge-docked panels.
func WorkArea(monitor Rect, panels []Panel) (Rect, error) {
	if monitor.Width < 0 || monitor.Height < 0 {
		return Rect{}, fmt.Errorf("invalid monitor geometry %s", monitor)
	}
	res, err := ReservationsFor(panels)
	if err != nil {
		return Rect{}, err
	}
	return res.Apply(monitor)
}
