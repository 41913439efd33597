// Package daemon wires the shortcut listener, the capture handler and the
// surface registry together and serves the IPC socket and the WebSocket
// endpoint.
//
// The OS binder is passed in, so this package runs the same with a manual
// binder on a headless host as with the real one under clipcued.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.klb.dev/clipcue/internal/capture"
	"go.klb.dev/clipcue/internal/clip"
	"go.klb.dev/clipcue/internal/crypto"
	"go.klb.dev/clipcue/internal/hotkey"
	"go.klb.dev/clipcue/internal/ipc"
	"go.klb.dev/clipcue/internal/message"
	"go.klb.dev/clipcue/internal/shortcut"
	"go.klb.dev/clipcue/internal/sockpeer"
	"go.klb.dev/clipcue/internal/surface"
	"go.klb.dev/clipcue/internal/tlsconf"
	"go.klb.dev/clipcue/internal/wire"
	"go.klb.dev/clipcue/internal/wspeer"
)

const requestTimeout = 10 * time.Second

// ErrNoShortcut is answered to TRIGGER before a shortcut is registered.
var ErrNoShortcut = errors.New("no shortcut registered")

// Config is everything Run needs besides the binder and clipboard.
type Config struct {
	Shortcut shortcut.Shortcut
	Label    string
	Token    string
	// Socket is the IPC socket path; empty means ipc.SocketPath().
	Socket string
	// WSAddr is the WebSocket listen address; empty disables it.
	WSAddr   string
	WSTLS    bool
	Headless bool
	Version  string
}

// Daemon answers IPC requests on behalf of one listener.
type Daemon struct {
	reg      *surface.Registry
	backend  clip.Backend
	capture  *capture.Handler
	listener *hotkey.Listener
	label    string
	token    string
	key      *crypto.Key
}

// New builds an unregistered Daemon. Presses from binder run the capture
// handler directly.
func New(reg *surface.Registry, backend clip.Backend, binder hotkey.Binder, label, token string, key *crypto.Key) *Daemon {
	h := capture.New(backend, reg, capture.WithLabel(label))
	return &Daemon{
		reg:      reg,
		backend:  backend,
		capture:  h,
		listener: hotkey.New(binder, h),
		label:    h.Label(),
		token:    token,
		key:      key,
	}
}

// Register binds the shortcut. Failure is fatal for the daemon.
func (d *Daemon) Register(sc shortcut.Shortcut) error { return d.listener.Register(sc) }

// Close releases the shortcut.
func (d *Daemon) Close() error { return d.listener.Close() }

// Trigger injects a press of the registered shortcut and returns the
// result of that press.
func (d *Daemon) Trigger() (capture.Result, error) {
	if !d.listener.Registered() {
		return capture.Result{}, ErrNoShortcut
	}
	press := hotkey.Event{Shortcut: d.listener.Shortcut(), State: hotkey.Pressed}

	var res capture.Result
	if !d.listener.OnEventFunc(press, func() { res = d.capture.Capture() }) {
		return capture.Result{}, ErrNoShortcut
	}
	return res, nil
}

// Status builds the STATUS_RESPONSE message.
func (d *Daemon) Status() *message.Message {
	resp := &message.Message{
		Type:     message.TypeStatusResponse,
		Label:    d.label,
		Backend:  d.backend.Name(),
		Surfaces: d.reg.List(),
	}
	if d.listener.Registered() {
		resp.Shortcut = d.listener.Shortcut().String()
	}
	return resp
}

// ServeIPC accepts connections until ctx is done.
func (d *Daemon) ServeIPC(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				slog.Error("ipc accept failed", "err", err)
			}
			return
		}
		go d.handleConn(conn)
	}
}

// handleConn reads the first message and either hands the connection to a
// surface peer (ATTACH) or answers a one-shot request and closes.
func (d *Daemon) handleConn(conn net.Conn) {
	wc := wire.New(conn, d.key)

	wc.SetReadDeadline(requestTimeout)
	msg, err := wc.ReadMsg()
	if err != nil {
		slog.Debug("ipc: first message unreadable", "err", err)
		_ = wc.Close()
		return
	}
	wc.SetReadDeadline(0)

	if msg.Type == message.TypeAttach {
		p, err := sockpeer.New(wc, d.reg, d.token, msg)
		if err != nil {
			slog.Warn("ipc: surface rejected", "err", err)
			_ = wc.Close()
			return
		}
		p.Serve()
		return
	}

	defer wc.Close()
	if !sockpeer.Authorize(d.token, msg.Token) {
		slog.Warn("ipc: request rejected", "type", msg.Type, "reason", message.ErrAuthFailed)
		_ = wc.WriteMsg(&message.Message{Type: message.TypeError, Error: message.ErrAuthFailed})
		return
	}

	switch msg.Type {
	case message.TypeTrigger:
		res, err := d.Trigger()
		if err != nil {
			_ = wc.WriteMsg(&message.Message{Type: message.TypeError, Error: err.Error()})
			return
		}
		slog.Debug("ipc: trigger handled", "outcome", res.Outcome.String())
		_ = wc.WriteMsg(&message.Message{Type: message.TypeOK, Payload: res.Outcome.String()})

	case message.TypeStatus:
		_ = wc.WriteMsg(d.Status())

	case message.TypePing:
		_ = wc.WriteMsg(&message.Message{Type: message.TypePong})

	default:
		_ = wc.WriteMsg(&message.Message{Type: message.TypeError, Error: "unexpected message type " + string(msg.Type)})
	}
}

// Run registers cfg.Shortcut through binder, serves both surface
// transports and blocks until ctx is done or the binding closes.
func Run(ctx context.Context, cfg Config, binder hotkey.Binder, backend clip.Backend) error {
	key, err := crypto.ForToken(cfg.Token)
	if err != nil {
		return err
	}

	reg := surface.NewRegistry()
	d := New(reg, backend, binder, cfg.Label, cfg.Token, key)

	slog.Info("clipcue starting",
		"version", cfg.Version,
		"shortcut", cfg.Shortcut.String(),
		"surface", d.label,
		"clipboard", backend.Name(),
		"headless", cfg.Headless,
		"encrypted", key != nil,
	)

	if err := d.Register(cfg.Shortcut); err != nil {
		return err
	}
	defer d.Close()

	sock := cfg.Socket
	if sock == "" {
		sock = ipc.SocketPath()
	}
	ln, err := ipc.Listen(sock)
	if err != nil {
		return err
	}
	slog.Info("IPC socket listening", "path", sock)
	go d.ServeIPC(ctx, ln)

	if cfg.WSAddr != "" {
		stop, err := serveWS(cfg, reg)
		if err != nil {
			return err
		}
		defer stop()
	}

	err = d.listener.Run(ctx)
	slog.Info("clipcue stopping")
	return err
}

func serveWS(cfg Config, reg *surface.Registry) (stop func(), err error) {
	srv := &http.Server{
		Addr:              cfg.WSAddr,
		Handler:           wspeer.NewMux(reg, cfg.Token),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.WSTLS {
		if srv.TLSConfig, err = tlsconf.ServerConfig(cfg.Token); err != nil {
			return nil, fmt.Errorf("--ws-tls: %w", err)
		}
	}
	go func() {
		slog.Info("WebSocket surfaces listening", "addr", cfg.WSAddr, "tls", cfg.WSTLS)
		var err error
		if cfg.WSTLS {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("WebSocket server failed", "addr", cfg.WSAddr, "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
