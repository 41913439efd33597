//go:build linux

package osbinder

import (
	"golang.design/x/hotkey"

	"go.klb.dev/clipcue/internal/shortcut"
)

// X11: Alt is Mod1, Super is Mod4.
var modifierMap = map[shortcut.Modifier]hotkey.Modifier{
	shortcut.ModCtrl:  hotkey.ModCtrl,
	shortcut.ModShift: hotkey.ModShift,
	shortcut.ModAlt:   hotkey.Mod1,
	shortcut.ModSuper: hotkey.Mod4,
}
