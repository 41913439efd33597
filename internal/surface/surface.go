// Package surface tracks the interface surfaces attached to the daemon.
//
// A surface is anything that can display a capture: a terminal watcher on
// the IPC socket, a browser page on the WebSocket endpoint. Surfaces are
// addressed by label and looked up at dispatch time, never cached, because
// they come and go independently of the daemon.
package surface

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"go.klb.dev/clipcue/internal/message"
)

var (
	// ErrOutboxFull is returned when a surface is not keeping up.
	ErrOutboxFull = errors.New("surface: outbox full")
	// ErrDetached is returned for deliveries to a surface that has gone away.
	ErrDetached = errors.New("surface: detached")
)

// Surface is an attached interface surface. Emit and Focus must not block.
type Surface interface {
	ID() string
	Label() string
	Info() message.SurfaceInfo
	// Emit delivers a named event with a text payload.
	Emit(event, payload string) error
	// Focus asks the surface to take input focus.
	Focus() error
}

// Registry maps labels to attached surfaces. The most recently attached
// surface for a label is the one Lookup returns.
type Registry struct {
	mu       sync.RWMutex
	surfaces map[string]Surface   // id → surface
	byLabel  map[string][]Surface // label → attach order, newest last
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		surfaces: make(map[string]Surface),
		byLabel:  make(map[string][]Surface),
	}
}

// Attach makes s addressable under its label.
func (r *Registry) Attach(s Surface) {
	r.mu.Lock()
	if old, ok := r.surfaces[s.ID()]; ok {
		r.removeLocked(old)
	}
	r.surfaces[s.ID()] = s
	r.byLabel[s.Label()] = append(r.byLabel[s.Label()], s)
	total := len(r.surfaces)
	r.mu.Unlock()

	slog.Info("surface attached",
		"surface", s.ID(),
		"label", s.Label(),
		"total", total,
	)
}

// Detach removes s. Detaching an unknown surface is a no-op.
func (r *Registry) Detach(s Surface) {
	r.mu.Lock()
	cur, ok := r.surfaces[s.ID()]
	if ok && cur == s {
		r.removeLocked(s)
	}
	total := len(r.surfaces)
	r.mu.Unlock()

	if ok {
		slog.Info("surface detached",
			"surface", s.ID(),
			"label", s.Label(),
			"total", total,
		)
	}
}

// Lookup returns the active surface for label, if any.
func (r *Registry) Lookup(label string) (Surface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byLabel[label]
	if len(list) == 0 {
		return nil, false
	}
	return list[len(list)-1], true
}

// List returns a snapshot of all attached surfaces, sorted by label then
// connection time. Active marks the surface Lookup would return.
func (r *Registry) List() []message.SurfaceInfo {
	r.mu.RLock()
	out := make([]message.SurfaceInfo, 0, len(r.surfaces))
	for label, list := range r.byLabel {
		for i, s := range list {
			info := s.Info()
			info.Label = label
			info.Active = i == len(list)-1
			out = append(out, info)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Must be called with r.mu held.
func (r *Registry) removeLocked(s Surface) {
	delete(r.surfaces, s.ID())
	list := r.byLabel[s.Label()]
	for i, cur := range list {
		if cur == s {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.byLabel, s.Label())
	} else {
		r.byLabel[s.Label()] = list
	}
}
