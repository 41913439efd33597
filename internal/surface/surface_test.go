package surface

import (
	"errors"
	"testing"
	"time"

	"go.klb.dev/clipcue/internal/message"
)

type stubSurface struct {
	id, label string
	at        time.Time
}

func (s *stubSurface) ID() string             { return s.id }
func (s *stubSurface) Label() string          { return s.label }
func (s *stubSurface) Emit(_, _ string) error { return nil }
func (s *stubSurface) Focus() error           { return nil }
func (s *stubSurface) Info() message.SurfaceInfo {
	return message.SurfaceInfo{ID: s.id, Label: s.label, ConnectedAt: s.at}
}

func TestLookupAbsent(t *testing.T) {
	r := NewRegistry()
	if s, ok := r.Lookup("main"); ok || s != nil {
		t.Fatalf("Lookup on empty registry = %v, %v", s, ok)
	}
}

func TestNewestSurfaceWins(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	first := &stubSurface{id: "a", label: "main", at: now}
	second := &stubSurface{id: "b", label: "main", at: now.Add(time.Second)}
	other := &stubSurface{id: "c", label: "side", at: now}

	r.Attach(first)
	r.Attach(other)
	r.Attach(second)

	if s, _ := r.Lookup("main"); s != second {
		t.Fatalf("Lookup(main) = %v, want newest", s)
	}

	r.Detach(second)
	if s, _ := r.Lookup("main"); s != first {
		t.Fatalf("after detaching newest, Lookup(main) = %v, want first", s)
	}

	r.Detach(first)
	if _, ok := r.Lookup("main"); ok {
		t.Fatal("Lookup(main) found a surface after all detached")
	}
	if s, _ := r.Lookup("side"); s != other {
		t.Fatal("unrelated label affected by detach")
	}
}

func TestDetachUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Attach(&stubSurface{id: "a", label: "main"})
	r.Detach(&stubSurface{id: "a", label: "main"}) // same id, different surface
	if _, ok := r.Lookup("main"); !ok {
		t.Fatal("detaching a different surface with the same id removed the attached one")
	}
}

func TestList(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.Attach(&stubSurface{id: "b", label: "main", at: now.Add(time.Second)})
	r.Attach(&stubSurface{id: "a", label: "main", at: now})
	r.Attach(&stubSurface{id: "c", label: "aux", at: now})

	got := r.List()
	if len(got) != 3 {
		t.Fatalf("List returned %d entries", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "a" || got[2].ID != "b" {
		t.Errorf("order = %s,%s,%s", got[0].ID, got[1].ID, got[2].ID)
	}
	// "a" attached last, so it is the active main surface.
	if got[1].Active != true || got[2].Active != false {
		t.Errorf("active flags = %v,%v", got[1].Active, got[2].Active)
	}
}

func TestOutbox(t *testing.T) {
	o := NewOutbox(1)
	if err := o.Put(&message.Message{Type: message.TypeFocus}); err != nil {
		t.Fatal(err)
	}
	if err := o.Put(&message.Message{Type: message.TypeFocus}); !errors.Is(err, ErrOutboxFull) {
		t.Fatalf("err = %v, want ErrOutboxFull", err)
	}

	o.Close()
	o.Close()
	if err := o.Put(&message.Message{Type: message.TypeFocus}); !errors.Is(err, ErrDetached) {
		t.Fatalf("err = %v, want ErrDetached", err)
	}

	n := 0
	for range o.C() {
		n++
	}
	if n != 1 {
		t.Errorf("drained %d messages, want 1", n)
	}
}
