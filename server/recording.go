package libaserv

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bosley/coach/audio"
	"github.com/google/uuid"
)

// transmissions shorter than this are not kept
const minRecording = time.Second

// recording is one transmission written to <dir>/<YYYYMMDD>/<session>/audio_<HHMMSS>.wav.
type recording struct {
	rec       *audio.Recorder
	sessionID uuid.UUID
	started   time.Time
	failed    bool
}

func startRecording(dir string, sessionID uuid.UUID, now time.Time) (*recording, error) {
	sessionDir := filepath.Join(dir, now.Format("20060102"), sessionID.String())
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	filename := fmt.Sprintf("audio_%s.wav", now.Format("150405"))
	rec, err := audio.NewRecorder(filepath.Join(sessionDir, filename), audio.DefaultSampleRate)
	if err != nil {
		return nil, err
	}
	return &recording{rec: rec, sessionID: sessionID, started: now}, nil
}

func (r *recording) write(pcm []byte) {
	if r.failed {
		return
	}
	if _, err := r.rec.Write(pcm); err != nil {
		// One failure is enough to stop trying for the rest of the transmission.
		r.failed = true
		slog.Error("Failed to write chunk data to file", "error", err, "sessionID", r.sessionID)
	}
}

// finish keeps the recording unless it is too short.
func (r *recording) finish(now time.Time) {
	duration := now.Sub(r.started)
	if duration < minRecording {
		slog.Debug("Dropping short transmission", "duration", duration.Seconds(), "sessionID", r.sessionID)
		r.discard()
		return
	}

	if err := r.rec.Close(); err != nil {
		slog.Error("Failed to finalize recording", "error", err, "sessionID", r.sessionID)
		return
	}
	slog.Info("Saved recording", "file", r.rec.Name(), "duration", duration.Seconds(), "sessionID", r.sessionID)
}

// abort handles a connection that dropped mid transmission. Long enough recordings
// are kept with an .incomplete suffix.
func (r *recording) abort(now time.Time) {
	duration := now.Sub(r.started)
	if duration < minRecording {
		slog.Debug("Dropping incomplete short transmission", "duration", duration.Seconds(), "sessionID", r.sessionID)
		r.discard()
		return
	}

	slog.Info("Saving incomplete transmission", "duration", duration.Seconds(), "sessionID", r.sessionID)
	if err := r.rec.Close(); err != nil {
		slog.Error("Failed to finalize recording", "error", err, "sessionID", r.sessionID)
	}
	if err := os.Rename(r.rec.Name(), r.rec.Name()+".incomplete"); err != nil {
		slog.Error("Failed to rename incomplete recording", "error", err, "sessionID", r.sessionID)
	}
}

func (r *recording) discard() {
	r.rec.Close()
	os.Remove(r.rec.Name())
}
