//go:build darwin || linux || windows

// Package osbinder registers shortcuts with the operating system through
// golang.design/x/hotkey.
//
// It lives apart from package hotkey because the X11 backend connects to
// the display in an init function and panics when there is none. Only the
// clipcued binary imports it.
package osbinder

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.design/x/hotkey"
	"golang.design/x/hotkey/mainthread"

	hk "go.klb.dev/clipcue/internal/hotkey"
	"go.klb.dev/clipcue/internal/shortcut"
)

// RunOnMainThread runs fn on the process main thread. macOS delivers
// hotkey events only to the main run loop, so main must call this first.
func RunOnMainThread(fn func()) {
	mainthread.Init(fn)
}

// New returns a Binder that registers shortcuts with the OS.
func New() hk.Binder {
	return systemBinder{}
}

type systemBinder struct{}

func (systemBinder) Bind(sc shortcut.Shortcut) (hk.Binding, error) {
	mods, key, err := translate(sc)
	if err != nil {
		return nil, err
	}

	reg := hotkey.New(mods, key)
	if err := reg.Register(); err != nil {
		return nil, err
	}

	b := &systemBinding{
		sc:     sc,
		reg:    reg,
		events: make(chan hk.Event, 8),
		done:   make(chan struct{}),
	}
	go b.pump()
	return b, nil
}

type systemBinding struct {
	sc     shortcut.Shortcut
	reg    *hotkey.Hotkey
	events chan hk.Event
	done   chan struct{}
	once   sync.Once
}

func (b *systemBinding) Events() <-chan hk.Event { return b.events }

func (b *systemBinding) pump() {
	defer close(b.events)
	for {
		select {
		case <-b.done:
			return
		case _, ok := <-b.reg.Keydown():
			if !ok {
				return
			}
			b.deliver(hk.Event{Shortcut: b.sc, State: hk.Pressed})
		case _, ok := <-b.reg.Keyup():
			if !ok {
				return
			}
			b.deliver(hk.Event{Shortcut: b.sc, State: hk.Released})
		}
	}
}

func (b *systemBinding) deliver(ev hk.Event) {
	select {
	case b.events <- ev:
	case <-b.done:
	default:
		slog.Warn("hotkey event dropped, listener busy", "shortcut", b.sc.String(), "state", ev.State)
	}
}

func (b *systemBinding) Unregister() error {
	var err error
	b.once.Do(func() {
		close(b.done)
		err = b.reg.Unregister()
	})
	return err
}

func translate(sc shortcut.Shortcut) ([]hotkey.Modifier, hotkey.Key, error) {
	key, ok := keyMap[sc.Key()]
	if !ok {
		return nil, 0, fmt.Errorf("key %q has no OS key code", sc.Key())
	}
	var mods []hotkey.Modifier
	for _, m := range []shortcut.Modifier{shortcut.ModCtrl, shortcut.ModShift, shortcut.ModAlt, shortcut.ModSuper} {
		if sc.Has(m) {
			mods = append(mods, modifierMap[m])
		}
	}
	return mods, key, nil
}

// modifierMap lives in the per-OS modifiers_*.go files.

var keyMap = map[shortcut.Key]hotkey.Key{
	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,

	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,

	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,

	"space":  hotkey.KeySpace,
	"return": hotkey.KeyReturn,
	"tab":    hotkey.KeyTab,
	"escape": hotkey.KeyEscape,
}
