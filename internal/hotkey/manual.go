package hotkey

import (
	"sync"

	"go.klb.dev/clipcue/internal/shortcut"
)

// NewManualBinder returns a Binder that never talks to the OS. Its bindings
// produce no events of their own; presses arrive only through
// Listener.OnEvent, for example from an IPC TRIGGER on a headless host.
func NewManualBinder() Binder { return manualBinder{} }

type manualBinder struct{}

func (manualBinder) Bind(shortcut.Shortcut) (Binding, error) {
	return &manualBinding{events: make(chan Event)}, nil
}

type manualBinding struct {
	events chan Event
	once   sync.Once
}

func (b *manualBinding) Events() <-chan Event { return b.events }

func (b *manualBinding) Unregister() error {
	b.once.Do(func() { close(b.events) })
	return nil
}
