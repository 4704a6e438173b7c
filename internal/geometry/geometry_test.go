package geometry

import (
	"errors"
	"testing"
)

var monitor1600 = Rect{X: 0, Y: 0, Width: 1600, Height: 900}

func TestWorkArea_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		panels []Panel
		want   Rect
	}{
		{
			name: "no panels",
			want: Rect{X: 0, Y: 0, Width: 1600, Height: 900},
		},
		{
			name:   "default top panel",
			panels: []Panel{{Edge: EdgeTop, Thickness: 26}},
			want:   Rect{X: 0, Y: 27, Width: 1600, Height: 873},
		},
		{
			name:   "top50",
			panels: []Panel{{Edge: EdgeTop, Thickness: 50}},
			want:   Rect{X: 0, Y: 51, Width: 1600, Height: 849},
		},
		{
			name:   "top50-bottom25",
			panels: []Panel{{Edge: EdgeTop, Thickness: 50}, {Edge: EdgeBottom, Thickness: 25}},
			want:   Rect{X: 0, Y: 51, Width: 1600, Height: 823},
		},
		{
			name:   "left26-bottom48",
			panels: []Panel{{Edge: EdgeLeft, Thickness: 26}, {Edge: EdgeBottom, Thickness: 48}},
			want:   Rect{X: 27, Y: 0, Width: 1573, Height: 851},
		},
		{
			name:   "right26-bottom48",
			panels: []Panel{{Edge: EdgeRight, Thickness: 26}, {Edge: EdgeBottom, Thickness: 48}},
			want:   Rect{X: 0, Y: 0, Width: 1573, Height: 851},
		},
		{
			name:   "middle vertical panel and bottom48",
			panels: []Panel{{Edge: EdgeNone, Thickness: 26, Length: 600}, {Edge: EdgeBottom, Thickness: 48}},
			want:   Rect{X: 0, Y: 0, Width: 1600, Height: 851},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WorkArea(monitor1600, tt.panels)
			if err != nil {
				t.Fatalf("WorkArea() error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("WorkArea() = %s, want %s", got, tt.want)
			}
			if !monitor1600.Contains(got) {
				t.Fatalf("work area %s not contained in monitor %s", got, monitor1600)
			}
		})
	}
}

func TestWorkArea_ThickestPanelPerEdgeWins(t *testing.T) {
	panels := []Panel{
		{Edge: EdgeTop, Thickness: 20},
		{Edge: EdgeTop, Thickness: 40},
		{Edge: EdgeTop, Thickness: 30},
	}
	got, err := WorkArea(monitor1600, panels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Y != 41 || got.Height != 859 {
		t.Fatalf("expected y=41 height=859, got %s", got)
	}
}

func TestWorkArea_SinglePanelReservesThicknessPlusOne(t *testing.T) {
	for _, edge := range []Edge{EdgeTop, EdgeBottom, EdgeLeft, EdgeRight} {
		for _, thickness := range []int{0, 1, 26, 100} {
			res, err := ReservationsFor([]Panel{{Edge: edge, Thickness: thickness}})
			if err != nil {
				t.Fatalf("ReservationsFor(%s, %d) error: %v", edge, thickness, err)
			}
			var got int
			switch edge {
			case EdgeTop:
				got = res.Top
			case EdgeBottom:
				got = res.Bottom
			case EdgeLeft:
				got = res.Left
			case EdgeRight:
				got = res.Right
			}
			if got != thickness+1 {
				t.Fatalf("edge %s thickness %d reserved %d, want %d", edge, thickness, got, thickness+1)
			}
		}
	}
}

func TestWorkArea_NonEdgePanelsNeverChangeResult(t *testing.T) {
	base := []Panel{{Edge: EdgeLeft, Thickness: 26}, {Edge: EdgeBottom, Thickness: 48}}
	want, err := WorkArea(monitor1600, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	floating := []Panel{
		{Edge: EdgeNone, Thickness: 500},
		{Edge: EdgeNone, Thickness: 2000, Length: 2000},
		{Edge: "", Thickness: 70},
	}
	for i := range floating {
		panels := append(append([]Panel{}, base...), floating[:i+1]...)
		got, err := WorkArea(monitor1600, panels)
		if err != nil {
			t.Fatalf("unexpected error with %d floating panels: %v", i+1, err)
		}
		if got != want {
			t.Fatalf("floating panels changed work area: got %s, want %s", got, want)
		}
	}
}

func TestWorkArea_OffsetMonitor(t *testing.T) {
	mon := Rect{X: 1600, Y: 100, Width: 1280, Height: 1024}
	got, err := WorkArea(mon, []Panel{{Edge: EdgeLeft, Thickness: 9}, {Edge: EdgeTop, Thickness: 19}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Rect{X: 1610, Y: 120, Width: 1270, Height: 1004}
	if got != want {
		t.Fatalf("WorkArea() = %s, want %s", got, want)
	}
}

func TestWorkArea_RejectsOversizedReservation(t *testing.T) {
	_, err := WorkArea(Rect{Width: 100, Height: 100}, []Panel{
		{Edge: EdgeTop, Thickness: 60},
		{Edge: EdgeBottom, Thickness: 60},
	})
	if !errors.Is(err, ErrReservationExceedsMonitor) {
		t.Fatalf("expected ErrReservationExceedsMonitor, got %v", err)
	}
}

func TestWorkArea_ExactFitIsAllowed(t *testing.T) {
	got, err := WorkArea(Rect{Width: 100, Height: 100}, []Panel{{Edge: EdgeLeft, Thickness: 99}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Width != 0 || got.X != 100 {
		t.Fatalf("expected zero-width area at x=100, got %s", got)
	}
}

func TestWorkArea_InvalidPanel(t *testing.T) {
	tests := []struct {
		name  string
		panel Panel
	}{
		{name: "negative thickness", panel: Panel{Edge: EdgeTop, Thickness: -1}},
		{name: "unknown edge", panel: Panel{Edge: "diagonal", Thickness: 10}},
		{name: "negative length", panel: Panel{Edge: EdgeTop, Thickness: 10, Length: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := WorkArea(monitor1600, []Panel{tt.panel}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseEdge(t *testing.T) {
	for in, want := range map[string]Edge{"top": EdgeTop, " Bottom ": EdgeBottom, "": EdgeNone, "none": EdgeNone} {
		got, err := ParseEdge(in)
		if err != nil {
			t.Fatalf("ParseEdge(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseEdge(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRectContainsAndIntersects(t *testing.T) {
	outer := Rect{X: 0, Y: 0, Width: 100, Height: 100}
	if !outer.Contains(Rect{X: 10, Y: 10, Width: 90, Height: 90}) {
		t.Fatal("expected containment")
	}
	if outer.Contains(Rect{X: 10, Y: 10, Width: 91, Height: 90}) {
		t.Fatal("expected overflow to be rejected")
	}
	if outer.Intersects(Rect{X: 100, Y: 0, Width: 10, Height: 10}) {
		t.Fatal("touching rects must not intersect")
	}
	if !outer.Intersects(Rect{X: 99, Y: 99, Width: 10, Height: 10}) {
		t.Fatal("expected overlap")
	}
}

func TestRectIntersect(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 1600, Height: 900}
	strut := Rect{X: 0, Y: 0, Width: 1600, Height: 27}
	if got := a.Intersect(strut); got != strut {
		t.Fatalf("Intersect() = %s, want %s", got, strut)
	}
	second := Rect{X: 1600, Y: 0, Width: 1280, Height: 1024}
	if got := second.Intersect(strut); got != (Rect{}) {
		t.Fatalf("Intersect() = %s, want zero", got)
	}
}
