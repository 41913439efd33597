// Package clip gives scoped, text-only access to the system clipboard.
// Build constraints select the implementation:
//
//	system.go      darwin, linux, windows via golang.design/x/clipboard
//	clip_other.go  every other platform; always headless
//	headless.go    no-op backend used when no display is available
package clip

import (
	"errors"
	"fmt"
)

// ErrNoText is returned by Lease.Text when the clipboard holds no text.
var ErrNoText = errors.New("clipboard holds no text")

// AccessError reports that the clipboard could not be acquired.
type AccessError struct {
	Backend string
	Err     error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("clipboard %s unavailable: %v", e.Backend, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// Backend is a source of clipboard leases.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Acquire takes exclusive use of the clipboard until the lease is
	// released. Failures are *AccessError.
	Acquire() (Lease, error)
}

// Lease is one scoped borrowing of the clipboard. Release must be called
// exactly once, whatever Text returned.
type Lease interface {
	Text() (string, error)
	Release()
}

// ReadText acquires b, reads its text and releases it. Acquisition failures
// are *AccessError; read failures are returned as the lease reported them.
func ReadText(b Backend) (string, error) {
	lease, err := b.Acquire()
	if err != nil {
		return "", err
	}
	defer lease.Release()

	return lease.Text()
}
