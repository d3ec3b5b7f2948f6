package audio

import (
	"context"
	"errors"
)

// ErrSourceClosed is returned by Open on a source that can't be reopened.
var ErrSourceClosed = errors.New("audio source closed")

// FrameSource is a caller-owned audio stream the energy tick reads from.
//
// Open acquires whatever the source needs (device handles, stream graph nodes) and must
// release everything it acquired before returning an error. Close releases what Open
// acquired and is safe to call on a source that was never opened.
type FrameSource interface {
	Open(ctx context.Context) error
	Latest() (Frame, bool)
	Close() error
}

// WindowSource adapts a Window that is filled elsewhere (a network reader, a test) into
// a FrameSource with nothing to acquire.
type WindowSource struct {
	*Window
}

// NewWindowSource wraps w.
func NewWindowSource(w *Window) *WindowSource {
	return &WindowSource{Window: w}
}

func (s *WindowSource) Open(ctx context.Context) error {
	return ctx.Err()
}

func (s *WindowSource) Close() error {
	return nil
}
