package ipc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSocketPathPrecedence(t *testing.T) {
	t.Setenv("CLIPCUE_SOCKET", "/custom/cue.sock")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := SocketPath(); got != "/custom/cue.sock" {
		t.Errorf("SocketPath() = %q with CLIPCUE_SOCKET set", got)
	}

	t.Setenv("CLIPCUE_SOCKET", "")
	if got := SocketPath(); got != "/run/user/1000/clipcue.sock" {
		t.Errorf("SocketPath() = %q with XDG_RUNTIME_DIR set", got)
	}

	t.Setenv("XDG_RUNTIME_DIR", "")
	if got := filepath.Base(SocketPath()); got != "clipcue.sock" {
		t.Errorf("fallback socket name = %q", got)
	}
}

func TestListenDial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.sock")
	if IsRunning(path) {
		t.Fatal("IsRunning before Listen")
	}

	ln, err := Listen(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
			select {
			case <-accepted:
			default:
				close(accepted)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	c.Close()
	<-accepted

	if !IsRunning(path) {
		t.Error("IsRunning = false while listening")
	}
	if _, err := Listen(path); !errors.Is(err, ErrDaemonRunning) {
		t.Errorf("second Listen err = %v, want ErrDaemonRunning", err)
	}
}

func TestListenReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.sock")
	ln, err := Listen(path)
	if err != nil {
		t.Fatal(err)
	}
	// Closing a unix listener removes the file; leave a plain file behind
	// to stand in for a crashed daemon's socket.
	ln.Close()
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	ln, err = Listen(path)
	if err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	ln.Close()
}

func TestDialNoDaemon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.sock")
	if _, err := Dial(context.Background(), path); err == nil {
		t.Fatal("Dial succeeded with no daemon")
	}
}
