// Package ipc locates and opens the local socket the clipcue daemon serves
// surfaces and one-shot commands on.
//
// The socket carries newline-delimited message.Message JSON framed by the
// wire package. Unix domain sockets are used on every platform; Windows 10
// 1803 and later support AF_UNIX natively.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

const socketName = "clipcue.sock"

// SocketPath returns the path of the IPC socket.
//
//   - $CLIPCUE_SOCKET if set
//   - $XDG_RUNTIME_DIR/clipcue.sock on Linux sessions that have one
//   - $TMPDIR/clipcue.sock otherwise
func SocketPath() string {
	if s := os.Getenv("CLIPCUE_SOCKET"); s != "" {
		return s
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, socketName)
	}
	return filepath.Join(os.TempDir(), socketName)
}

// ErrDaemonRunning is returned by Listen when another daemon already answers
// on the socket.
var ErrDaemonRunning = errors.New("ipc: daemon already running")

// IsRunning reports whether a daemon appears to be listening at path. It does
// a cheap dial-and-close; no data is exchanged.
func IsRunning(path string) bool {
	c, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen creates the socket at path, removing a stale file left by a crashed
// run. It refuses to steal a socket a live daemon is still serving.
func Listen(path string) (net.Listener, error) {
	if IsRunning(path) {
		return nil, fmt.Errorf("%w at %s", ErrDaemonRunning, path)
	}
	_ = os.Remove(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ipc: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen %s: %w", path, err)
	}
	_ = os.Chmod(path, 0o600)
	return ln, nil
}

// Dial connects to the daemon at path.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w (is `clipcue run` running?)", path, err)
	}
	return c, nil
}
