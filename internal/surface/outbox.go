package surface

import (
	"sync"

	"go.klb.dev/clipcue/internal/message"
)

// Outbox is the bounded queue between the capture path and a surface's
// writer goroutine. Put never blocks.
type Outbox struct {
	mu     sync.Mutex
	ch     chan *message.Message
	closed bool
}

// NewOutbox returns an Outbox holding up to size undelivered messages.
func NewOutbox(size int) *Outbox {
	return &Outbox{ch: make(chan *message.Message, size)}
}

// Put queues msg. It fails with ErrDetached after Close and ErrOutboxFull
// when the writer has fallen behind.
func (o *Outbox) Put(msg *message.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrDetached
	}
	select {
	case o.ch <- msg:
		return nil
	default:
		return ErrOutboxFull
	}
}

// C is drained by the surface's writer. It is closed by Close.
func (o *Outbox) C() <-chan *message.Message { return o.ch }

// Close stops further Puts and closes C. It is safe to call more than once.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}
