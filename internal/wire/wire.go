// Package wire carries clipcue messages over a stream connection, one
// message per line.
//
// Without a key a line is the JSON encoding of the message. With a key
// the JSON is sealed and the sealed bytes are base64 encoded, so a
// line never contains a raw newline either way.
//
// Both directions enforce the same ceiling: a line, newline included,
// may not exceed MaxMessageSize. Writers check before sending so an
// oversized capture is refused locally instead of tearing down the
// peer's reader.
package wire

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"time"

	"go.klb.dev/clipcue/internal/crypto"
	"go.klb.dev/clipcue/internal/message"
)

const (
	// MaxMessageSize bounds a single line on the wire, newline included.
	MaxMessageSize = 4 << 20

	writeTimeout = 5 * time.Second
	readBuffer   = 64 << 10
)

// ErrTooLarge is returned when a line would exceed MaxMessageSize, on
// either side of the connection.
var ErrTooLarge = errors.New("wire: message exceeds size limit")

var b64 = base64.StdEncoding

// Conn frames messages over a net.Conn.
type Conn struct {
	conn net.Conn
	br   *bufio.Reader
	key  *crypto.Key
}

// New wraps conn. A nil key leaves lines in the clear.
func New(conn net.Conn, key *crypto.Key) *Conn {
	return &Conn{conn: conn, br: bufio.NewReaderSize(conn, readBuffer), key: key}
}

// Underlying returns the wrapped connection.
func (c *Conn) Underlying() net.Conn { return c.conn }

// SetReadDeadline arms a read deadline d from now; zero clears it.
func (c *Conn) SetReadDeadline(d time.Duration) { _ = c.conn.SetReadDeadline(after(d)) }

// SetWriteDeadline arms a write deadline d from now; zero clears it.
func (c *Conn) SetWriteDeadline(d time.Duration) { _ = c.conn.SetWriteDeadline(after(d)) }

func after(d time.Duration) time.Time {
	if d == 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

func (c *Conn) Close() error         { return c.conn.Close() }
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// lineLen is the on-wire length of a line carrying n bytes of JSON.
func (c *Conn) lineLen(n int) int {
	if c.key != nil {
		n = b64.EncodedLen(n + crypto.Overhead)
	}
	return n + 1
}

// Check reports ErrTooLarge if msg would not fit in one line. It does
// not touch the connection.
func (c *Conn) Check(msg *message.Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("wire: encode: %w", err)
	}
	if c.lineLen(len(raw)) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, c.lineLen(len(raw)))
	}
	return nil
}

// WriteMsg sends msg as one line. Nothing is written when the line
// would exceed MaxMessageSize.
func (c *Conn) WriteMsg(msg *message.Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("wire: encode: %w", err)
	}
	if n := c.lineLen(len(raw)); n > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}
	line, err := c.seal(raw)
	if err != nil {
		return err
	}

	c.SetWriteDeadline(writeTimeout)
	defer c.SetWriteDeadline(0)
	_, err = c.conn.Write(line)
	return err
}

func (c *Conn) seal(raw []byte) ([]byte, error) {
	if c.key == nil {
		return append(raw, '\n'), nil
	}
	sealed, err := c.key.Seal(raw)
	if err != nil {
		return nil, fmt.Errorf("wire: seal: %w", err)
	}
	line := make([]byte, b64.EncodedLen(len(sealed))+1)
	b64.Encode(line, sealed)
	line[len(line)-1] = '\n'
	return line, nil
}

func (c *Conn) open(line []byte) ([]byte, error) {
	if c.key == nil {
		return line, nil
	}
	sealed := make([]byte, b64.DecodedLen(len(line)))
	n, err := b64.Decode(sealed, line)
	if err != nil {
		return nil, fmt.Errorf("wire: base64: %w", err)
	}
	raw, err := c.key.Open(sealed[:n])
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}
	return raw, nil
}

// ReadMsg reads and decodes the next line. A line longer than
// MaxMessageSize fails with ErrTooLarge without being buffered whole.
func (c *Conn) ReadMsg() (*message.Message, error) {
	line, err := c.readLine()
	if err != nil {
		return nil, err
	}
	raw, err := c.open(line)
	if err != nil {
		return nil, err
	}
	return message.Decode(raw)
}

func (c *Conn) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := c.br.ReadSlice('\n')
		if len(line)+len(chunk) > MaxMessageSize {
			return nil, ErrTooLarge
		}
		line = append(line, chunk...)
		if err == nil {
			return line[:len(line)-1], nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return nil, err
		}
	}
}
