// Package sockpeer adapts an IPC socket connection into a surface.Surface.
package sockpeer

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"go.klb.dev/clipcue/internal/message"
	"go.klb.dev/clipcue/internal/surface"
	"go.klb.dev/clipcue/internal/wire"
)

const (
	pingInterval = 15 * time.Second
	pongDeadline = 10 * time.Second
	outboxSize   = 64
)

var seq atomic.Uint64

// Peer is one surface attached over the IPC socket.
type Peer struct {
	id     string
	label  string
	conn   *wire.Conn
	reg    *surface.Registry
	out    *surface.Outbox
	pongCh chan struct{}
	log    *slog.Logger

	connectedAt time.Time
	lastSeen    atomic.Int64 // UnixNano
	delivered   atomic.Int64

	// overridable in tests
	pingInterval time.Duration
	pongDeadline time.Duration
}

// Authorize checks an ATTACH token against the daemon token. An empty daemon
// token accepts everything.
func Authorize(want, got string) bool {
	if want == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// New creates a Peer for conn from its ATTACH message. It replies with
// ERROR auth_failed and returns an error when the token does not match.
func New(conn *wire.Conn, reg *surface.Registry, token string, attach *message.Message) (*Peer, error) {
	if attach.Type != message.TypeAttach {
		return nil, fmt.Errorf("sockpeer: first message is %s, want %s", attach.Type, message.TypeAttach)
	}
	if !Authorize(token, attach.Token) {
		_ = conn.WriteMsg(&message.Message{Type: message.TypeError, Error: message.ErrAuthFailed})
		return nil, errors.New("sockpeer: auth failed")
	}

	now := time.Now()
	id := fmt.Sprintf("ipc-%d", seq.Add(1))
	p := &Peer{
		id:           id,
		label:        attach.LabelOf(),
		conn:         conn,
		reg:          reg,
		out:          surface.NewOutbox(outboxSize),
		pongCh:       make(chan struct{}, 1),
		log:          slog.With("surface", id),
		connectedAt:  now,
		pingInterval: pingInterval,
		pongDeadline: pongDeadline,
	}
	p.lastSeen.Store(now.UnixNano())
	return p, nil
}

func (p *Peer) ID() string    { return p.id }
func (p *Peer) Label() string { return p.label }

func (p *Peer) Info() message.SurfaceInfo {
	return message.SurfaceInfo{
		ID:          p.id,
		Label:       p.label,
		Transport:   "ipc",
		Addr:        addrString(p.conn.RemoteAddr()),
		ConnectedAt: p.connectedAt,
		LastSeen:    time.Unix(0, p.lastSeen.Load()),
		Delivered:   p.delivered.Load(),
	}
}

// Emit queues an EVENT for the writer. An event too large for one wire
// line is refused with wire.ErrTooLarge and the session stays up.
func (p *Peer) Emit(event, payload string) error {
	msg := message.NewEvent(event, payload)
	if err := p.conn.Check(msg); err != nil {
		p.log.Warn("event dropped", "event", event, "bytes", len(payload), "err", err)
		return err
	}
	if err := p.out.Put(msg); err != nil {
		p.log.Warn("event dropped", "event", event, "err", err)
		return err
	}
	p.delivered.Add(1)
	return nil
}

// Focus queues a FOCUS request for the writer.
func (p *Peer) Focus() error {
	return p.out.Put(&message.Message{Type: message.TypeFocus})
}

func (p *Peer) notifyAlive() {
	p.lastSeen.Store(time.Now().UnixNano())
	select {
	case p.pongCh <- struct{}{}:
	default:
	}
}

// Serve confirms the attach, registers the peer and runs the read, write and
// ping loops until the connection ends.
func (p *Peer) Serve() {
	defer p.conn.Close()

	if err := p.conn.WriteMsg(&message.Message{Type: message.TypeAttached, Label: p.label}); err != nil {
		p.log.Warn("attach reply failed", "err", err)
		return
	}

	p.reg.Attach(p)
	done := make(chan struct{})
	defer func() {
		p.reg.Detach(p)
		p.out.Close()
		close(done)
	}()

	// Writer
	go func() {
		for msg := range p.out.C() {
			if err := p.conn.WriteMsg(msg); err != nil {
				if errors.Is(err, wire.ErrTooLarge) {
					p.log.Warn("message skipped", "type", msg.Type, "err", err)
					continue
				}
				p.log.Error("write failed", "err", err)
				p.conn.Close()
				return
			}
		}
	}()

	// Ping loop
	go func() {
		ticker := time.NewTicker(p.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			_ = p.out.Put(&message.Message{Type: message.TypePing})
			select {
			case <-done:
				return
			case <-p.pongCh:
			case <-time.After(p.pongDeadline):
				p.log.Warn("pong timeout, closing")
				p.conn.Close()
				return
			}
		}
	}()

	// Reader
	for {
		msg, err := p.conn.ReadMsg()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
				p.log.Info("connection closed", "err", err)
			}
			return
		}

		p.notifyAlive()

		switch msg.Type {
		case message.TypePong:
			// handled by notifyAlive
		case message.TypePing:
			_ = p.out.Put(&message.Message{Type: message.TypePong})
		default:
			p.log.Warn("unexpected message type", "type", msg.Type)
		}
	}
}

func addrString(a net.Addr) string {
	if a == nil || a.String() == "" {
		return "local"
	}
	return a.String()
}
