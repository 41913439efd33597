// Package wspeer attaches interface surfaces over WebSocket, so a browser
// page or any other WebSocket client can receive captures.
//
// A client connects to /surface?label=<label>&token=<token>. From then on
// the server sends the same JSON messages an IPC surface receives, one per
// text frame: EVENT for each capture and FOCUS right after it.
package wspeer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"go.klb.dev/clipcue/internal/message"
	"go.klb.dev/clipcue/internal/sockpeer"
	"go.klb.dev/clipcue/internal/surface"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	outboxSize     = 64
)

var seq atomic.Uint64

// Handler upgrades surface connections and attaches them to a registry.
type Handler struct {
	reg      *surface.Registry
	token    string
	upgrader websocket.Upgrader
}

// NewHandler returns a Handler attaching to reg. A non-empty token must be
// presented as the token query parameter or a bearer Authorization header.
func NewHandler(reg *surface.Registry, token string) *Handler {
	h := &Handler{reg: reg, token: token}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// NewMux serves the surface endpoint and a JSON listing of attached surfaces.
func NewMux(reg *surface.Registry, token string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/surface", NewHandler(reg, token))
	mux.HandleFunc("/surfaces", func(w http.ResponseWriter, r *http.Request) {
		if !sockpeer.Authorize(token, tokenFrom(r)) {
			http.Error(w, message.ErrAuthFailed, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reg.List())
	})
	return mux
}

// Without a token only local pages may attach. With one, the token is the gate.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.token != "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return u.Scheme == "file"
}

func tokenFrom(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if auth, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return auth
	}
	return ""
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !sockpeer.Authorize(h.token, tokenFrom(r)) {
		slog.Warn("websocket surface rejected", "remote", r.RemoteAddr, "reason", message.ErrAuthFailed)
		http.Error(w, message.ErrAuthFailed, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "err", err)
		return
	}

	label := r.URL.Query().Get("label")
	if label == "" {
		label = message.DefaultLabel
	}
	p := newPeer(conn, label)
	p.serve(h.reg)
}

// Peer is one surface attached over WebSocket.
type Peer struct {
	id    string
	label string
	addr  string
	conn  *websocket.Conn
	out   *surface.Outbox
	log   *slog.Logger

	connectedAt time.Time
	lastSeen    atomic.Int64
	delivered   atomic.Int64
}

func newPeer(conn *websocket.Conn, label string) *Peer {
	now := time.Now()
	id := fmt.Sprintf("ws-%d", seq.Add(1))
	p := &Peer{
		id:          id,
		label:       label,
		addr:        remoteAddr(conn.RemoteAddr()),
		conn:        conn,
		out:         surface.NewOutbox(outboxSize),
		log:         slog.With("surface", id),
		connectedAt: now,
	}
	p.lastSeen.Store(now.UnixNano())
	return p
}

func (p *Peer) ID() string    { return p.id }
func (p *Peer) Label() string { return p.label }

func (p *Peer) Info() message.SurfaceInfo {
	return message.SurfaceInfo{
		ID:          p.id,
		Label:       p.label,
		Transport:   "websocket",
		Addr:        p.addr,
		ConnectedAt: p.connectedAt,
		LastSeen:    time.Unix(0, p.lastSeen.Load()),
		Delivered:   p.delivered.Load(),
	}
}

// Emit queues an EVENT frame.
func (p *Peer) Emit(event, payload string) error {
	if err := p.out.Put(message.NewEvent(event, payload)); err != nil {
		p.log.Warn("event dropped", "event", event, "err", err)
		return err
	}
	p.delivered.Add(1)
	return nil
}

// Focus queues a FOCUS frame.
func (p *Peer) Focus() error {
	return p.out.Put(&message.Message{Type: message.TypeFocus})
}

func (p *Peer) touch() { p.lastSeen.Store(time.Now().UnixNano()) }

func (p *Peer) serve(reg *surface.Registry) {
	// ATTACHED goes out before the peer is addressable so it is always the
	// first frame the client sees.
	_ = p.out.Put(&message.Message{Type: message.TypeAttached, Label: p.label})
	go p.writePump()

	reg.Attach(p)
	defer func() {
		reg.Detach(p)
		p.out.Close()
	}()
	p.readPump()
}

// readPump keeps the read side alive so control frames are processed, and
// answers application-level PINGs.
func (p *Peer) readPump() {
	defer p.conn.Close()
	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.touch()
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.log.Info("websocket closed", "err", err)
			}
			return
		}
		p.touch()
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := message.Decode(data)
		if err != nil {
			p.log.Warn("bad frame", "err", err)
			continue
		}
		switch msg.Type {
		case message.TypePing:
			_ = p.out.Put(&message.Message{Type: message.TypePong})
		case message.TypePong:
		default:
			p.log.Warn("unexpected message type", "type", msg.Type)
		}
	}
}

// writePump is the only goroutine writing to conn.
func (p *Peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.out.C():
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteJSON(msg); err != nil {
				p.log.Error("write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func remoteAddr(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
