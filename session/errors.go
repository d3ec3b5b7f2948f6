package session

import (
	"errors"
	"fmt"
)

var (
	// ErrAudioUnavailable matches every *AudioError.
	ErrAudioUnavailable = errors.New("audio unavailable")

	ErrNotFound       = errors.New("session not found")
	ErrAlreadyRunning = errors.New("session already running")
	ErrNotRunning     = errors.New("session not running")
)

// AudioError reports that the session could not acquire its audio source. Energy
// scoring stays disabled until RetryAudio succeeds.
type AudioError struct {
	SessionID string
	Err       error
}

func (e *AudioError) Error() string {
	return fmt.Sprintf("session %s: audio unavailable: %v", e.SessionID, e.Err)
}

func (e *AudioError) Unwrap() error {
	return e.Err
}

func (e *AudioError) Is(target error) bool {
	return target == ErrAudioUnavailable
}
