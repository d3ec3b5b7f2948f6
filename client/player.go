package libascli

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bosley/coach/audio"
	"github.com/gordonklaus/portaudio"
)

// PlayClip plays clip through the default output device. It returns when the clip has
// played out or ctx is cancelled.
func PlayClip(ctx context.Context, clip *audio.Clip) error {
	if clip == nil || len(clip.Samples) == 0 {
		return fmt.Errorf("clip has no samples")
	}

	// Initialize PortAudio
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	var (
		pos      int
		doneOnce sync.Once
	)
	done := make(chan struct{})

	stream, err := portaudio.OpenDefaultStream(
		0,
		channels,
		float64(clip.SampleRate),
		framesPerBuffer,
		func(out []int16) {
			n := copy16(out, clip.Samples[pos:])
			pos += n
			// Fill remaining buffer with silence if needed
			for i := n; i < len(out); i++ {
				out[i] = 0
			}
			if pos >= len(clip.Samples) {
				doneOnce.Do(func() { close(done) })
			}
		},
	)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	slog.Debug("Playing clip", "duration", clip.Duration().Seconds(), "sampleRate", clip.SampleRate)

	select {
	case <-ctx.Done():
	case <-done:
	}

	return stream.Stop()
}

// copy16 converts normalized samples into out and returns how many were written.
func copy16(out []int16, samples []float64) int {
	n := len(samples)
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		v := samples[i]
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = int16(v * 32767)
	}
	return n
}
