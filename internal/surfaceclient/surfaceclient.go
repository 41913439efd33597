// Package surfaceclient is the attaching side of the surface protocol, used
// by `clipcue watch` and usable by any Go program that wants captures.
package surfaceclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go.klb.dev/clipcue/internal/crypto"
	"go.klb.dev/clipcue/internal/message"
	"go.klb.dev/clipcue/internal/wire"
)

const handshakeTimeout = 10 * time.Second

// ErrAuthFailed is returned by Attach when the daemon rejects the token.
var ErrAuthFailed = errors.New("surfaceclient: daemon rejected token")

// transport is one framed message connection.
type transport interface {
	read() (*message.Message, error)
	write(*message.Message) error
	close() error
	setDeadline(time.Time)
}

type wireTransport struct{ c *wire.Conn }

func (t wireTransport) read() (*message.Message, error) { return t.c.ReadMsg() }
func (t wireTransport) write(m *message.Message) error  { return t.c.WriteMsg(m) }
func (t wireTransport) close() error                    { return t.c.Close() }
func (t wireTransport) setDeadline(d time.Time) {
	_ = t.c.Underlying().SetReadDeadline(d)
}

type wsTransport struct{ c *websocket.Conn }

func (t wsTransport) read() (*message.Message, error) {
	_, data, err := t.c.ReadMessage()
	if err != nil {
		return nil, err
	}
	return message.Decode(data)
}
func (t wsTransport) write(m *message.Message) error {
	_ = t.c.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	return t.c.WriteJSON(m)
}
func (t wsTransport) close() error { return t.c.Close() }
func (t wsTransport) setDeadline(d time.Time) {
	_ = t.c.SetReadDeadline(d)
}

// Session is an attached surface. Messages yields EVENT and FOCUS messages
// in the order the daemon sent them.
type Session struct {
	label string
	t     transport
	msgs  chan *message.Message
	done  chan struct{}
	once  sync.Once

	mu  sync.Mutex
	err error
}

// Attach sends ATTACH over conn, an IPC socket connection, and waits for the
// daemon to confirm. key must match the daemon's token-derived key, or be
// nil when the daemon runs without a token.
func Attach(ctx context.Context, conn net.Conn, key *crypto.Key, label, token string) (*Session, error) {
	t := wireTransport{c: wire.New(conn, key)}
	if err := t.write(&message.Message{Type: message.TypeAttach, Label: label, Token: token}); err != nil {
		_ = t.close()
		return nil, fmt.Errorf("surfaceclient: attach: %w", err)
	}
	return handshake(ctx, t)
}

// AttachWS dials the daemon's WebSocket endpoint at addr (host:port). A
// non-nil tlsCfg switches to wss.
func AttachWS(ctx context.Context, addr, label, token string, tlsCfg *tls.Config) (*Session, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/surface"}
	if tlsCfg != nil {
		u.Scheme = "wss"
	}
	q := u.Query()
	if label != "" {
		q.Set("label", label)
	}
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		TLSClientConfig:  tlsCfg,
	}
	c, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrAuthFailed
		}
		return nil, fmt.Errorf("surfaceclient: dial %s: %w", addr, err)
	}
	return handshake(ctx, wsTransport{c: c})
}

func handshake(ctx context.Context, t transport) (*Session, error) {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.setDeadline(deadline)
	reply, err := t.read()
	if err != nil {
		_ = t.close()
		return nil, fmt.Errorf("surfaceclient: attach reply: %w", err)
	}
	t.setDeadline(time.Time{})

	switch reply.Type {
	case message.TypeAttached:
	case message.TypeError:
		_ = t.close()
		if reply.Error == message.ErrAuthFailed {
			return nil, ErrAuthFailed
		}
		return nil, fmt.Errorf("surfaceclient: daemon error: %s", reply.Error)
	default:
		_ = t.close()
		return nil, fmt.Errorf("surfaceclient: unexpected reply %s", reply.Type)
	}

	s := &Session{
		label: reply.LabelOf(),
		t:     t,
		msgs:  make(chan *message.Message, 16),
		done:  make(chan struct{}),
	}
	go s.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// Label is the label the daemon attached the session under.
func (s *Session) Label() string { return s.label }

// Messages is closed when the connection ends; Err then reports why.
func (s *Session) Messages() <-chan *message.Message { return s.msgs }

// Err returns the error that ended the session, nil after a clean Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close detaches from the daemon.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.t.close()
	})
	return err
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Session) readLoop() {
	defer close(s.msgs)
	for {
		msg, err := s.t.read()
		if err != nil {
			select {
			case <-s.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					s.fail(err)
				}
			}
			return
		}
		switch msg.Type {
		case message.TypePing:
			if err := s.t.write(&message.Message{Type: message.TypePong}); err != nil {
				s.fail(err)
				return
			}
		case message.TypePong:
		default:
			select {
			case s.msgs <- msg:
			case <-s.done:
				return
			}
		}
	}
}
