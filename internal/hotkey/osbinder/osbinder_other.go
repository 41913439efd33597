//go:build !darwin && !linux && !windows

package osbinder

import (
	"errors"
	"runtime"

	hk "go.klb.dev/clipcue/internal/hotkey"
	"go.klb.dev/clipcue/internal/shortcut"
)

// RunOnMainThread runs fn directly; there is no main-thread requirement here.
func RunOnMainThread(fn func()) { fn() }

type unsupportedBinder struct{}

// New returns a Binder that always fails: global shortcuts are not
// available on this platform.
func New() hk.Binder { return unsupportedBinder{} }

func (unsupportedBinder) Bind(shortcut.Shortcut) (hk.Binding, error) {
	return nil, errors.New("global shortcuts are not supported on " + runtime.GOOS)
}
