//go:build darwin || linux || windows

package clip

import (
	"log/slog"
	"sync"

	"golang.design/x/clipboard"
)

// systemBackend reads the OS clipboard through golang.design/x/clipboard.
// clipboard.Init runs on first Acquire rather than in New so that CLI
// sub-commands that never touch the clipboard don't fail on headless hosts.
type systemBackend struct {
	init func() error
	read func() []byte

	mu sync.Mutex
}

// New returns the system clipboard backend.
func New() Backend {
	return &systemBackend{
		init: sync.OnceValue(func() error {
			err := clipboard.Init()
			if err != nil {
				slog.Warn("clipboard init failed", "err", err)
			}
			return err
		}),
		read: func() []byte { return clipboard.Read(clipboard.FmtText) },
	}
}

func (b *systemBackend) Name() string { return "system clipboard" }

func (b *systemBackend) Acquire() (Lease, error) {
	if err := b.init(); err != nil {
		return nil, &AccessError{Backend: b.Name(), Err: err}
	}
	b.mu.Lock()
	return &systemLease{b: b}, nil
}

type systemLease struct {
	b    *systemBackend
	once sync.Once
}

func (l *systemLease) Text() (string, error) {
	data := l.b.read()
	if data == nil {
		return "", ErrNoText
	}
	return string(data), nil
}

func (l *systemLease) Release() {
	l.once.Do(l.b.mu.Unlock)
}
