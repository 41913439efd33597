package daemon

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.klb.dev/clipcue/internal/capture"
	"go.klb.dev/clipcue/internal/clip"
	"go.klb.dev/clipcue/internal/crypto"
	"go.klb.dev/clipcue/internal/hotkey"
	"go.klb.dev/clipcue/internal/ipc"
	"go.klb.dev/clipcue/internal/message"
	"go.klb.dev/clipcue/internal/shortcut"
	"go.klb.dev/clipcue/internal/surface"
	"go.klb.dev/clipcue/internal/surfaceclient"
	"go.klb.dev/clipcue/internal/wire"
)

type textBackend struct {
	mu   sync.Mutex
	text string
}

func (b *textBackend) Name() string { return "test" }

func (b *textBackend) Acquire() (clip.Lease, error) {
	b.mu.Lock()
	return textLease{b}, nil
}

type textLease struct{ b *textBackend }

func (l textLease) Text() (string, error) { return l.b.text, nil }
func (l textLease) Release()              { l.b.mu.Unlock() }

// seqBackend hands out a different text on every read.
type seqBackend struct {
	mu sync.Mutex
	n  int
}

func (b *seqBackend) Name() string { return "seq" }

func (b *seqBackend) Acquire() (clip.Lease, error) {
	b.mu.Lock()
	return seqLease{b}, nil
}

type seqLease struct{ b *seqBackend }

func (l seqLease) Text() (string, error) {
	l.b.n++
	return fmt.Sprintf("capture %d", l.b.n), nil
}
func (l seqLease) Release() { l.b.mu.Unlock() }

func start(t *testing.T, backend clip.Backend, token string) *Daemon {
	t.Helper()
	key, err := crypto.ForToken(token)
	if err != nil {
		t.Fatal(err)
	}
	d := New(surface.NewRegistry(), backend, hotkey.NewManualBinder(), message.DefaultLabel, token, key)
	if err := d.Register(shortcut.MustParse(shortcut.Default)); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func startDaemon(t *testing.T, text, token string) *Daemon {
	t.Helper()
	return start(t, &textBackend{text: text}, token)
}

// roundTrip sends one request over a pipe served by handleConn.
func roundTrip(t *testing.T, d *Daemon, req *message.Message) *message.Message {
	t.Helper()
	a, b := net.Pipe()
	go d.handleConn(a)

	c := wire.New(b, d.key)
	defer c.Close()
	if err := c.WriteMsg(req); err != nil {
		t.Fatal(err)
	}
	c.SetReadDeadline(2 * time.Second)
	reply, err := c.ReadMsg()
	if err != nil {
		t.Fatal(err)
	}
	return reply
}

func TestTriggerWithoutSurface(t *testing.T) {
	d := startDaemon(t, "Design Notes 42", "")
	reply := roundTrip(t, d, &message.Message{Type: message.TypeTrigger})
	if reply.Type != message.TypeOK || reply.Payload != "surface_absent" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestTriggerEmptyClipboard(t *testing.T) {
	d := startDaemon(t, "  \n", "")
	reply := roundTrip(t, d, &message.Message{Type: message.TypeTrigger})
	if reply.Type != message.TypeOK || reply.Payload != "empty" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestTriggerNoShortcut(t *testing.T) {
	d := New(surface.NewRegistry(), &textBackend{}, hotkey.NewManualBinder(), message.DefaultLabel, "", nil)
	reply := roundTrip(t, d, &message.Message{Type: message.TypeTrigger})
	if reply.Type != message.TypeError || reply.Error != ErrNoShortcut.Error() {
		t.Fatalf("reply = %+v", reply)
	}
	if st := d.Status(); st.Shortcut != "" {
		t.Errorf("unregistered status shortcut = %q", st.Shortcut)
	}
}

func TestConcurrentTriggersGetTheirOwnResult(t *testing.T) {
	d := start(t, &seqBackend{}, "")

	const n = 16
	results := make(chan capture.Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := d.Trigger()
			if err != nil {
				t.Error(err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for res := range results {
		if res.Outcome != capture.SurfaceAbsent {
			t.Errorf("outcome = %s", res.Outcome)
		}
		if seen[res.Text] {
			t.Errorf("two triggers returned %q", res.Text)
		}
		seen[res.Text] = true
	}
	if len(seen) != n {
		t.Errorf("got %d distinct results, want %d", len(seen), n)
	}
}

func TestTriggerDeliversToAttachedSurface(t *testing.T) {
	d := startDaemon(t, " Design Notes 42 \n", "tok")

	a, b := net.Pipe()
	go d.handleConn(a)
	sess, err := surfaceclient.Attach(context.Background(), b, d.key, "", "tok")
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := d.reg.Lookup(message.DefaultLabel); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("surface never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	reply := roundTrip(t, d, &message.Message{Type: message.TypeTrigger, Token: "tok"})
	if reply.Type != message.TypeOK || reply.Payload != "dispatched" {
		t.Fatalf("reply = %+v", reply)
	}

	var got []*message.Message
	for len(got) < 2 {
		select {
		case m := <-sess.Messages():
			got = append(got, m)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d messages, want 2", len(got))
		}
	}
	if got[0].Type != message.TypeEvent || got[0].Payload != "Design Notes 42" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Type != message.TypeFocus {
		t.Errorf("second = %s, want FOCUS", got[1].Type)
	}
}

func TestRequestTokenChecked(t *testing.T) {
	d := startDaemon(t, "x", "tok")
	reply := roundTrip(t, d, &message.Message{Type: message.TypeStatus, Token: "nope"})
	if reply.Type != message.TypeError || reply.Error != message.ErrAuthFailed {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestWrongKeyGetsNoReply(t *testing.T) {
	d := startDaemon(t, "x", "tok")
	other, err := crypto.DeriveKey("other")
	if err != nil {
		t.Fatal(err)
	}

	a, b := net.Pipe()
	go d.handleConn(a)
	c := wire.New(b, other)
	defer c.Close()
	if err := c.WriteMsg(&message.Message{Type: message.TypeStatus, Token: "tok"}); err != nil {
		t.Fatal(err)
	}
	c.SetReadDeadline(2 * time.Second)
	if _, err := c.ReadMsg(); err == nil {
		t.Fatal("daemon answered a request sealed with the wrong key")
	}
}

func TestStatus(t *testing.T) {
	d := startDaemon(t, "x", "")
	reply := roundTrip(t, d, &message.Message{Type: message.TypeStatus})
	if reply.Type != message.TypeStatusResponse {
		t.Fatalf("reply = %+v", reply)
	}
	if reply.Shortcut != "ctrl+shift+f" || reply.Backend != "test" || reply.LabelOf() != message.DefaultLabel {
		t.Errorf("status = %+v", reply)
	}
}

func TestRunServesSocketUntilCancelled(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "d.sock")
	cfg := Config{
		Shortcut: shortcut.MustParse(shortcut.Default),
		Label:    message.DefaultLabel,
		Socket:   sock,
		Headless: true,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, hotkey.NewManualBinder(), &textBackend{text: "hi"}) }()

	deadline := time.Now().Add(2 * time.Second)
	for !ipc.IsRunning(sock) {
		if time.Now().After(deadline) {
			t.Fatal("socket never came up")
		}
		time.Sleep(10 * time.Millisecond)
	}

	conn, err := ipc.Dial(context.Background(), sock)
	if err != nil {
		t.Fatal(err)
	}
	c := wire.New(conn, nil)
	if err := c.WriteMsg(&message.Message{Type: message.TypeTrigger}); err != nil {
		t.Fatal(err)
	}
	c.SetReadDeadline(2 * time.Second)
	reply, err := c.ReadMsg()
	c.Close()
	if err != nil {
		t.Fatal(err)
	}
	if reply.Type != message.TypeOK || reply.Payload != "surface_absent" {
		t.Errorf("reply = %+v", reply)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
