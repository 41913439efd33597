package cli

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
	"time"

	"go.klb.dev/clipcue/internal/hotkey"
	"go.klb.dev/clipcue/internal/ipc"
)

// isolate keeps the command away from the user's config and environment.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CLIPCUE_SOCKET", filepath.Join(t.TempDir(), "c.sock"))
}

func TestForwardedArgs(t *testing.T) {
	cmd := NewRunCmd("run", "test", nil)
	if err := cmd.ParseFlags([]string{"--shortcut=ctrl+alt+k", "--ws-tls", "--token", "s3cret", "--headless=false"}); err != nil {
		t.Fatal(err)
	}
	got := forwardedArgs(cmd)
	want := []string{"--shortcut=ctrl+alt+k", "--ws-tls=true", "--token=s3cret"}
	if !slices.Equal(got, want) {
		t.Errorf("forwardedArgs = %q, want %q", got, want)
	}
}

func TestForwardedArgsNoneSet(t *testing.T) {
	cmd := NewRunCmd("run", "test", nil)
	if err := cmd.ParseFlags(nil); err != nil {
		t.Fatal(err)
	}
	if got := forwardedArgs(cmd); len(got) != 0 {
		t.Errorf("forwardedArgs = %q, want none", got)
	}
}

func TestCheckDisplay(t *testing.T) {
	env := func(display string) func(string) string {
		return func(k string) string {
			if k == "DISPLAY" {
				return display
			}
			return ""
		}
	}
	tests := []struct {
		goos, display string
		want          error
	}{
		{"linux", "", ErrNoDisplay},
		{"linux", ":0", nil},
		{"darwin", "", nil},
		{"windows", "", nil},
	}
	for _, tt := range tests {
		if got := checkDisplay(tt.goos, env(tt.display)); !errors.Is(got, tt.want) {
			t.Errorf("checkDisplay(%s, %q) = %v, want %v", tt.goos, tt.display, got, tt.want)
		}
	}
}

func TestRunWithoutDisplayIsRegistrationError(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("X11 display check applies to linux only")
	}
	isolate(t)
	t.Setenv("DISPLAY", "")

	cmd := NewRunCmd("run", "test", nil)
	cmd.SetArgs([]string{"--ws-addr="})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	var re *hotkey.RegistrationError
	if !errors.As(err, &re) || !errors.Is(err, ErrNoDisplay) {
		t.Fatalf("err = %v, want RegistrationError wrapping ErrNoDisplay", err)
	}
	if re.Shortcut.String() != "ctrl+shift+f" {
		t.Errorf("shortcut = %s", re.Shortcut)
	}
}

func TestHeadlessRunsInProcess(t *testing.T) {
	isolate(t)
	sock := ipc.SocketPath()

	cmd := NewRunCmd("run", "test", func() hotkey.Binder {
		t.Error("system binder built for a headless run")
		return hotkey.NewManualBinder()
	})
	cmd.SetArgs([]string{"--headless", "--ws-addr="})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !ipc.IsRunning(sock) {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("headless daemon never opened its socket")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
