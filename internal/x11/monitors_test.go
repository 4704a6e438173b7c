package x11

import (
	"testing"

	"github.com/BurntSushi/xgbutil/ewmh"

	"github.com/1broseidon/deskrig/internal/geometry"
)

func TestReservationsForMonitor(t *testing.T) {
	root := geometry.Rect{Width: 2880, Height: 1024}
	left := geometry.Rect{X: 0, Y: 0, Width: 1600, Height: 900}
	right := geometry.Rect{X: 1600, Y: 0, Width: 1280, Height: 1024}

	// lxpanel on the left monitor: 27px top strut spanning x=[0,1599].
	topPanel := &ewmh.WmStrutPartial{Top: 27, TopStartX: 0, TopEndX: 1599}
	// Bottom panel on the right monitor only.
	bottomPanel := &ewmh.WmStrutPartial{Bottom: 49, BottomStartX: 1600, BottomEndX: 2879}

	tests := []struct {
		name    string
		monitor geometry.Rect
		struts  []*ewmh.WmStrutPartial
		want    geometry.Reservations
	}{
		{name: "no struts", monitor: left, want: geometry.Reservations{}},
		{name: "top on left", monitor: left, struts: []*ewmh.WmStrutPartial{topPanel, bottomPanel}, want: geometry.Reservations{Top: 27}},
		{name: "bottom on right", monitor: right, struts: []*ewmh.WmStrutPartial{topPanel, bottomPanel}, want: geometry.Reservations{Bottom: 49}},
		{
			name:    "largest strut per edge wins",
			monitor: left,
			struts: []*ewmh.WmStrutPartial{
				topPanel,
				{Top: 51, TopStartX: 0, TopEndX: 799},
				{Left: 27, LeftStartY: 0, LeftEndY: 899},
			},
			want: geometry.Reservations{Top: 51, Left: 27},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReservationsForMonitor(tt.monitor, root, tt.struts)
			if got != tt.want {
				t.Fatalf("ReservationsForMonitor() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestReservationsForMonitorMatchesOracle(t *testing.T) {
	monitor := geometry.Rect{Width: 1600, Height: 900}
	struts := []*ewmh.WmStrutPartial{
		{Left: 27, LeftStartY: 0, LeftEndY: 899},
		{Bottom: 49, BottomStartX: 0, BottomEndX: 1599},
	}
	live, err := ReservationsForMonitor(monitor, monitor, struts).Apply(monitor)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	oracle, err := geometry.WorkArea(monitor, []geometry.Panel{
		{Edge: geometry.EdgeLeft, Thickness: 26},
		{Edge: geometry.EdgeBottom, Thickness: 48},
	})
	if err != nil {
		t.Fatalf("WorkArea() error: %v", err)
	}
	if live != oracle {
		t.Fatalf("live %s != oracle %s", live, oracle)
	}
}
