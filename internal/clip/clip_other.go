//go:build !darwin && !linux && !windows

package clip

import (
	"errors"
	"runtime"
)

// New returns a headless backend; there is no clipboard support on this
// platform.
func New() Backend {
	return NewHeadless(errors.New("clipboard not supported on " + runtime.GOOS))
}
