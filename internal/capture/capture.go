// Package capture reads the clipboard when the shortcut fires and hands the
// text to the interface surface.
//
// Every step is best-effort. A failed step ends the current capture and
// leaves the handler ready for the next one; nothing is retried and nothing
// carries over between captures.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"go.klb.dev/clipcue/internal/clip"
	"go.klb.dev/clipcue/internal/message"
	"go.klb.dev/clipcue/internal/surface"
)

// Outcome tags where a capture ended.
type Outcome int

const (
	// Dispatched: the text was handed to the surface. Emit and focus
	// errors, if any, are in Result.
	Dispatched Outcome = iota
	// AccessFailed: the clipboard could not be acquired.
	AccessFailed
	// ReadFailed: the clipboard was acquired but held no readable text.
	ReadFailed
	// Empty: the text was empty after trimming.
	Empty
	// SurfaceAbsent: no surface is attached under the target label.
	SurfaceAbsent
)

var outcomeNames = map[Outcome]string{
	Dispatched:    "dispatched",
	AccessFailed:  "access_failed",
	ReadFailed:    "read_failed",
	Empty:         "empty",
	SurfaceAbsent: "surface_absent",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result describes one capture.
type Result struct {
	Outcome Outcome
	// Text is the trimmed clipboard text, set once it has been read.
	Text string
	// Chars is the rune count of Text.
	Chars int
	// Err is the clipboard error for AccessFailed and ReadFailed.
	Err error
	// EmitErr and FocusErr are the ignored delivery failures.
	EmitErr  error
	FocusErr error
}

// Resolver finds the surface for a label at dispatch time.
type Resolver interface {
	Lookup(label string) (surface.Surface, bool)
}

// Handler is the capture-and-dispatch step run for each accepted press.
type Handler struct {
	clipboard clip.Backend
	surfaces  Resolver
	label     string
	event     string
	log       *slog.Logger
}

// Option customises a Handler.
type Option func(*Handler)

// WithLabel sets the target surface label. Default message.DefaultLabel.
func WithLabel(label string) Option {
	return func(h *Handler) {
		if label != "" {
			h.label = label
		}
	}
}

// WithLogger sets the logger. Default slog.Default with component=capture.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// New returns a Handler reading from cb and delivering through surfaces.
func New(cb clip.Backend, surfaces Resolver, opts ...Option) *Handler {
	h := &Handler{
		clipboard: cb,
		surfaces:  surfaces,
		label:     message.DefaultLabel,
		event:     message.EventClipboardCaptured,
		log:       slog.With("component", "capture"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Label returns the target surface label.
func (h *Handler) Label() string { return h.label }

// Trigger implements hotkey.Handler.
func (h *Handler) Trigger() {
	h.Capture()
}

// Capture reads the clipboard and, if it holds non-blank text, emits it to
// the target surface and asks that surface for focus.
func (h *Handler) Capture() Result {
	h.log.Info("reading clipboard")

	raw, err := clip.ReadText(h.clipboard)
	if err != nil {
		var ae *clip.AccessError
		if errors.As(err, &ae) {
			h.log.Warn("clipboard access failed", "err", err)
			return Result{Outcome: AccessFailed, Err: err}
		}
		h.log.Debug("clipboard read failed", "err", err)
		return Result{Outcome: ReadFailed, Err: err}
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		h.log.Info("clipboard empty")
		return Result{Outcome: Empty}
	}

	res := Result{Text: text, Chars: utf8.RuneCountInString(text)}
	h.log.Info("text captured", "chars", res.Chars, "surface", h.label)

	s, ok := h.surfaces.Lookup(h.label)
	if !ok {
		h.log.Info("surface not attached, capture dropped", "surface", h.label)
		res.Outcome = SurfaceAbsent
		return res
	}

	res.Outcome = Dispatched
	if err := s.Emit(h.event, text); err != nil {
		res.EmitErr = err
		h.log.Debug("emit failed", "surface", s.ID(), "err", err)
	}
	if err := s.Focus(); err != nil {
		res.FocusErr = err
		h.log.Debug("focus request failed", "surface", s.ID(), "err", err)
	}
	return res
}
