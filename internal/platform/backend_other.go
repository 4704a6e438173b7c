//go:build !linux

package platform

import (
	"fmt"
	"log/slog"
	"runtime"
)

// Open is only implemented for X11. Other hosts act as controllers and run
// the suite inside a Linux runtime.
func Open(string, *slog.Logger) (Backend, error) {
	return nil, fmt.Errorf("no display backend for %s; run the suite inside a linux runtime", runtime.GOOS)
}
