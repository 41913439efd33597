package sockpeer

import (
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"go.klb.dev/clipcue/internal/crypto"
	"go.klb.dev/clipcue/internal/message"
	"go.klb.dev/clipcue/internal/surface"
	"go.klb.dev/clipcue/internal/wire"
)

var _ surface.Surface = (*Peer)(nil)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readType(t *testing.T, c *wire.Conn, want message.Type) *message.Message {
	t.Helper()
	c.SetReadDeadline(2 * time.Second)
	msg, err := c.ReadMsg()
	if err != nil {
		t.Fatalf("read %s: %v", want, err)
	}
	if msg.Type != want {
		t.Fatalf("got %s, want %s", msg.Type, want)
	}
	return msg
}

// attach starts a peer on one end of a pipe and returns the client end after
// ATTACHED has been read.
func attach(t *testing.T, reg *surface.Registry, token string, key *crypto.Key, label string) (*Peer, *wire.Conn, chan struct{}) {
	t.Helper()
	a, b := net.Pipe()
	server := wire.New(a, key)
	client := wire.New(b, key)

	p, err := New(server, reg, token, &message.Message{Type: message.TypeAttach, Label: label, Token: token})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		p.Serve()
		close(done)
	}()

	got := readType(t, client, message.TypeAttached)
	if got.Label != p.Label() {
		t.Fatalf("ATTACHED label = %q, want %q", got.Label, p.Label())
	}
	waitFor(t, "registry attach", func() bool {
		s, ok := reg.Lookup(p.Label())
		return ok && s == p
	})
	return p, client, done
}

func TestAttachEmitFocus(t *testing.T) {
	reg := surface.NewRegistry()
	p, client, done := attach(t, reg, "", nil, "")

	if p.Label() != message.DefaultLabel {
		t.Fatalf("empty ATTACH label resolved to %q", p.Label())
	}

	if err := p.Emit(message.EventClipboardCaptured, "Design Notes 42"); err != nil {
		t.Fatal(err)
	}
	if err := p.Focus(); err != nil {
		t.Fatal(err)
	}

	ev := readType(t, client, message.TypeEvent)
	if ev.Event != message.EventClipboardCaptured || ev.Payload != "Design Notes 42" {
		t.Errorf("EVENT = %+v", ev)
	}
	readType(t, client, message.TypeFocus)

	if info := p.Info(); info.Delivered != 1 || info.Transport != "ipc" {
		t.Errorf("Info = %+v", info)
	}

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after client closed")
	}
	if _, ok := reg.Lookup(message.DefaultLabel); ok {
		t.Error("surface still registered after disconnect")
	}
	if err := p.Emit(message.EventClipboardCaptured, "late"); !errors.Is(err, surface.ErrDetached) {
		t.Errorf("Emit after detach err = %v, want ErrDetached", err)
	}
}

func TestEncryptedAttach(t *testing.T) {
	key, err := crypto.DeriveKey("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	reg := surface.NewRegistry()
	p, client, _ := attach(t, reg, "s3cret", key, "notes")
	defer client.Close()

	if err := p.Emit(message.EventClipboardCaptured, "hidden"); err != nil {
		t.Fatal(err)
	}
	if ev := readType(t, client, message.TypeEvent); ev.Payload != "hidden" {
		t.Errorf("payload = %q", ev.Payload)
	}
}

func TestOversizedEmitKeepsSession(t *testing.T) {
	reg := surface.NewRegistry()
	p, client, done := attach(t, reg, "", nil, "main")
	defer client.Close()

	huge := strings.Repeat("x", wire.MaxMessageSize)
	if err := p.Emit(message.EventClipboardCaptured, huge); !errors.Is(err, wire.ErrTooLarge) {
		t.Fatalf("Emit err = %v, want wire.ErrTooLarge", err)
	}
	if d := p.Info().Delivered; d != 0 {
		t.Errorf("Delivered = %d after refused emit, want 0", d)
	}

	if err := p.Emit(message.EventClipboardCaptured, "after"); err != nil {
		t.Fatal(err)
	}
	if ev := readType(t, client, message.TypeEvent); ev.Payload != "after" {
		t.Errorf("payload = %q, want after", ev.Payload)
	}
	select {
	case <-done:
		t.Fatal("session ended after an oversized emit")
	default:
	}
	if s, ok := reg.Lookup("main"); !ok || s != p {
		t.Error("surface detached after an oversized emit")
	}
}

func TestAuthFailure(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	client := wire.New(b, nil)

	reply := make(chan *message.Message, 1)
	go func() {
		msg, err := client.ReadMsg()
		if err == nil {
			reply <- msg
		}
		close(reply)
	}()

	reg := surface.NewRegistry()
	_, err := New(wire.New(a, nil), reg, "right", &message.Message{Type: message.TypeAttach, Token: "wrong"})
	if err == nil {
		t.Fatal("New accepted a bad token")
	}

	select {
	case msg := <-reply:
		if msg == nil || msg.Type != message.TypeError || msg.Error != message.ErrAuthFailed {
			t.Fatalf("reply = %+v, want ERROR auth_failed", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply to bad token")
	}
	if len(reg.List()) != 0 {
		t.Error("rejected peer was registered")
	}
}

func TestNewRejectsNonAttach(t *testing.T) {
	a, _ := net.Pipe()
	defer a.Close()
	if _, err := New(wire.New(a, nil), surface.NewRegistry(), "", &message.Message{Type: message.TypeStatus}); err == nil {
		t.Fatal("New accepted a STATUS as first message")
	}
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		want, got string
		ok        bool
	}{
		{"", "", true},
		{"", "anything", true},
		{"tok", "tok", true},
		{"tok", "", false},
		{"tok", "tok2", false},
	}
	for _, tt := range tests {
		if got := Authorize(tt.want, tt.got); got != tt.ok {
			t.Errorf("Authorize(%q, %q) = %v, want %v", tt.want, tt.got, got, tt.ok)
		}
	}
}

func TestClientPingGetsPong(t *testing.T) {
	reg := surface.NewRegistry()
	_, client, _ := attach(t, reg, "", nil, "main")
	defer client.Close()

	if err := client.WriteMsg(&message.Message{Type: message.TypePing}); err != nil {
		t.Fatal(err)
	}
	readType(t, client, message.TypePong)
}

func TestPongTimeoutCloses(t *testing.T) {
	a, b := net.Pipe()
	client := wire.New(b, nil)
	defer client.Close()

	reg := surface.NewRegistry()
	p, err := New(wire.New(a, nil), reg, "", &message.Message{Type: message.TypeAttach})
	if err != nil {
		t.Fatal(err)
	}
	p.pingInterval = 20 * time.Millisecond
	p.pongDeadline = 20 * time.Millisecond

	done := make(chan struct{})
	go func() {
		p.Serve()
		close(done)
	}()

	readType(t, client, message.TypeAttached)
	readType(t, client, message.TypePing)
	// No PONG.

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after pong timeout")
	}
	if _, ok := reg.Lookup(message.DefaultLabel); ok {
		t.Error("timed-out surface still registered")
	}
}
