package clip

import "errors"

var errNoDisplay = errors.New("no display server")

// headlessBackend is used where no display server is available (containers,
// CI, SSH sessions). Every Acquire fails, so captures abort cleanly.
type headlessBackend struct {
	reason error
}

// NewHeadless returns a backend whose Acquire always fails with reason, or
// with a generic "no display server" error when reason is nil.
func NewHeadless(reason error) Backend {
	if reason == nil {
		reason = errNoDisplay
	}
	return &headlessBackend{reason: reason}
}

func (b *headlessBackend) Name() string { return "headless (no-op)" }

func (b *headlessBackend) Acquire() (Lease, error) {
	return nil, &AccessError{Backend: b.Name(), Err: b.reason}
}
