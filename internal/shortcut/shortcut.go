// Package shortcut defines the keyboard combination clipcue binds globally.
//
// A Shortcut is an immutable value: a set of modifiers plus exactly one
// primary key. Two shortcuts match only when both parts are identical.
package shortcut

import (
	"errors"
	"fmt"
	"strings"
)

// Default is the combination bound when none is configured.
const Default = "ctrl+shift+f"

// Modifier is a bit in a modifier set.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModShift
	ModAlt
	ModSuper
)

// modifierOrder is the canonical rendering order.
var modifierOrder = []struct {
	mod  Modifier
	name string
}{
	{ModCtrl, "ctrl"},
	{ModShift, "shift"},
	{ModAlt, "alt"},
	{ModSuper, "super"},
}

var modifierNames = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"shift":   ModShift,
	"alt":     ModAlt,
	"option":  ModAlt,
	"super":   ModSuper,
	"cmd":     ModSuper,
	"win":     ModSuper,
	"meta":    ModSuper,
}

// Key is a primary (non-modifier) key name in canonical lower case.
type Key string

// Keys lists every primary key clipcue knows how to bind.
var Keys = func() map[Key]struct{} {
	m := make(map[Key]struct{})
	for c := 'a'; c <= 'z'; c++ {
		m[Key(string(c))] = struct{}{}
	}
	for c := '0'; c <= '9'; c++ {
		m[Key(string(c))] = struct{}{}
	}
	for i := 1; i <= 12; i++ {
		m[Key(fmt.Sprintf("f%d", i))] = struct{}{}
	}
	for _, k := range []Key{"space", "return", "tab", "escape"} {
		m[k] = struct{}{}
	}
	return m
}()

var keyAliases = map[string]Key{
	"enter": "return",
	"esc":   "escape",
}

var (
	ErrEmpty     = errors.New("shortcut: empty combination")
	ErrNoKey     = errors.New("shortcut: no primary key")
	ErrMultiKeys = errors.New("shortcut: more than one primary key")
)

// Shortcut is a modifier set and one primary key. The zero value is invalid.
type Shortcut struct {
	mods Modifier
	key  Key
}

// New builds a Shortcut from a key and modifiers. Unknown keys are rejected.
func New(key Key, mods ...Modifier) (Shortcut, error) {
	if _, ok := Keys[key]; !ok {
		return Shortcut{}, fmt.Errorf("shortcut: unknown key %q", key)
	}
	var set Modifier
	for _, m := range mods {
		set |= m
	}
	return Shortcut{mods: set, key: key}, nil
}

// MustParse is Parse that panics on error. Intended for constants and tests.
func MustParse(s string) Shortcut {
	sc, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sc
}

// Parse parses a combination such as "ctrl+shift+f". Tokens are
// case-insensitive; the primary key must be the last token.
func Parse(s string) (Shortcut, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Shortcut{}, ErrEmpty
	}

	parts := strings.Split(strings.ToLower(s), "+")
	if countKeys(parts) > 1 {
		return Shortcut{}, fmt.Errorf("%w: %q", ErrMultiKeys, s)
	}

	var (
		sc     Shortcut
		hasKey bool
	)
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if mod, ok := modifierNames[part]; ok {
			if hasKey {
				return Shortcut{}, fmt.Errorf("shortcut %q: modifier %q after key", s, part)
			}
			sc.mods |= mod
			continue
		}

		key := Key(part)
		if alias, ok := keyAliases[part]; ok {
			key = alias
		}
		if _, ok := Keys[key]; !ok {
			return Shortcut{}, fmt.Errorf("shortcut %q: unknown key %q", s, part)
		}
		if i != len(parts)-1 {
			return Shortcut{}, fmt.Errorf("shortcut %q: key %q must come last", s, part)
		}
		sc.key = key
		hasKey = true
	}

	if !hasKey {
		return Shortcut{}, fmt.Errorf("%w: %q", ErrNoKey, s)
	}
	return sc, nil
}

// countKeys counts the tokens that name a known primary key.
func countKeys(parts []string) int {
	n := 0
	for _, part := range parts {
		part = strings.TrimSpace(part)
		key := Key(part)
		if alias, ok := keyAliases[part]; ok {
			key = alias
		}
		if _, ok := Keys[key]; ok {
			n++
		}
	}
	return n
}

// Key returns the primary key.
func (s Shortcut) Key() Key { return s.key }

// Modifiers returns the modifier set.
func (s Shortcut) Modifiers() Modifier { return s.mods }

// Has reports whether m is part of the modifier set.
func (s Shortcut) Has(m Modifier) bool { return s.mods&m != 0 }

// IsZero reports whether s is the zero value.
func (s Shortcut) IsZero() bool { return s.key == "" }

// Equal reports an exact match: same modifiers and same key.
func (s Shortcut) Equal(o Shortcut) bool {
	return s.mods == o.mods && s.key == o.key
}

// String renders the canonical form, e.g. "ctrl+shift+f".
func (s Shortcut) String() string {
	if s.IsZero() {
		return ""
	}
	var b strings.Builder
	for _, m := range modifierOrder {
		if s.mods&m.mod != 0 {
			b.WriteString(m.name)
			b.WriteByte('+')
		}
	}
	b.WriteString(string(s.key))
	return b.String()
}
