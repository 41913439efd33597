//go:build windows

package osbinder

import (
	"golang.design/x/hotkey"

	"go.klb.dev/clipcue/internal/shortcut"
)

var modifierMap = map[shortcut.Modifier]hotkey.Modifier{
	shortcut.ModCtrl:  hotkey.ModCtrl,
	shortcut.ModShift: hotkey.ModShift,
	shortcut.ModAlt:   hotkey.ModAlt,
	shortcut.ModSuper: hotkey.ModWin,
}
