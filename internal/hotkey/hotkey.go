// Package hotkey binds one global shortcut and turns its OS events into
// handler invocations.
//
// The OS side is hidden behind Binder so the filtering in Listener can be
// driven by synthetic events. The real binder lives in package osbinder;
// this package never links the OS hotkey library.
package hotkey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.klb.dev/clipcue/internal/shortcut"
)

// State is the key transition carried by an Event.
type State int

const (
	Pressed State = iota
	Released
)

func (s State) String() string {
	switch s {
	case Pressed:
		return "pressed"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event is a raw shortcut event as delivered by a Binding.
type Event struct {
	Shortcut shortcut.Shortcut
	State    State
}

// Binding is a live OS registration. Events is closed when the binding is
// unregistered.
type Binding interface {
	Events() <-chan Event
	Unregister() error
}

// Binder registers shortcuts with the operating system.
type Binder interface {
	Bind(sc shortcut.Shortcut) (Binding, error)
}

// Handler is invoked once per accepted press.
type Handler interface {
	Trigger()
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func()

func (f HandlerFunc) Trigger() { f() }

// ErrAlreadyRegistered is returned when Register is called twice.
var ErrAlreadyRegistered = errors.New("hotkey: shortcut already registered")

// RegistrationError reports that the OS refused a shortcut, either because
// another process owns it or because permission was denied.
type RegistrationError struct {
	Shortcut shortcut.Shortcut
	Err      error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("hotkey: register %s: %v", e.Shortcut, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// Listener owns one registered shortcut for the life of the process.
type Listener struct {
	binder  Binder
	handler Handler
	log     *slog.Logger

	mu       sync.Mutex
	shortcut shortcut.Shortcut
	binding  Binding

	// serialises handler runs between the OS pump and injected events
	runMu sync.Mutex
}

// New returns an unregistered Listener that calls h for every accepted press.
func New(b Binder, h Handler) *Listener {
	return &Listener{
		binder:  b,
		handler: h,
		log:     slog.With("component", "hotkey"),
	}
}

// Register binds sc with the OS. It may be called once; a failure is
// returned as *RegistrationError and is meant to abort startup.
func (l *Listener) Register(sc shortcut.Shortcut) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.binding != nil {
		return ErrAlreadyRegistered
	}

	b, err := l.binder.Bind(sc)
	if err != nil {
		l.log.Error("shortcut registration failed", "shortcut", sc.String(), "err", err)
		return &RegistrationError{Shortcut: sc, Err: err}
	}

	l.shortcut = sc
	l.binding = b
	l.log.Info("global shortcut registered", "shortcut", sc.String())
	return nil
}

// Shortcut returns the registered shortcut, or the zero value before Register.
func (l *Listener) Shortcut() shortcut.Shortcut {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shortcut
}

// Registered reports whether Register has succeeded.
func (l *Listener) Registered() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.binding != nil
}

// OnEvent runs the handler when ev is a press of the registered shortcut and
// ignores everything else. It reports whether the handler ran.
func (l *Listener) OnEvent(ev Event) bool {
	return l.OnEventFunc(ev, l.handler.Trigger)
}

// OnEventFunc applies the same filter as OnEvent but runs fn instead of the
// handler, serialised with every other run. Callers that need the outcome
// of their own press capture it in fn.
func (l *Listener) OnEventFunc(ev Event, fn func()) bool {
	registered := l.Shortcut()
	if registered.IsZero() || ev.State != Pressed || !ev.Shortcut.Equal(registered) {
		return false
	}

	l.runMu.Lock()
	defer l.runMu.Unlock()

	l.log.Info("shortcut triggered", "shortcut", registered.String())
	fn()
	return true
}

// Run feeds the binding's events through OnEvent until ctx is done or the
// binding closes its stream.
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	b := l.binding
	l.mu.Unlock()
	if b == nil {
		return errors.New("hotkey: Run before Register")
	}

	events := b.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			l.OnEvent(ev)
		}
	}
}

// Close releases the OS registration.
func (l *Listener) Close() error {
	l.mu.Lock()
	b := l.binding
	l.binding = nil
	l.shortcut = shortcut.Shortcut{}
	l.mu.Unlock()

	if b == nil {
		return nil
	}
	return b.Unregister()
}
