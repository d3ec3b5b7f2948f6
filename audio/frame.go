package audio

import (
	"math"
	"sync"
)

const (
	// DefaultFrameSize is the number of samples analysed per tick.
	DefaultFrameSize = 2048

	// DefaultSampleRate matches the rate the microphone is captured at.
	DefaultSampleRate = 44100
)

// Frame is a window of normalized samples in [-1, 1] plus the rate they were captured at.
type Frame struct {
	Samples    []float64
	SampleRate int
}

// Len returns the number of samples in the frame.
func (f Frame) Len() int {
	return len(f.Samples)
}

// Int16ToFloat normalizes signed 16-bit samples into [-1, 1].
func Int16ToFloat(in []int16) []float64 {
	out := make([]float64, len(in))
	for i, s := range in {
		out[i] = float64(s) / 32768.0
	}
	return out
}

// DecodePCM16LE converts little-endian 16-bit signed PCM bytes into normalized samples.
// A trailing odd byte is ignored.
func DecodePCM16LE(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float64(sample) / 32768.0
	}
	return out
}

// Window keeps the most recent samples written to it. Writers are capture callbacks or
// network readers; the reader is the energy tick, which only ever wants the latest frame.
type Window struct {
	mu         sync.Mutex
	buf        []float64
	size       int
	sampleRate int
	written    int64
}

// NewWindow creates a window holding up to size samples captured at sampleRate.
func NewWindow(size, sampleRate int) *Window {
	if size <= 0 {
		size = DefaultFrameSize
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Window{
		buf:        make([]float64, 0, size),
		size:       size,
		sampleRate: sampleRate,
	}
}

// Write appends samples, discarding the oldest ones once the window is full.
func (w *Window) Write(samples []float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(samples) >= w.size {
		w.buf = append(w.buf[:0], samples[len(samples)-w.size:]...)
	} else {
		w.buf = append(w.buf, samples...)
		if excess := len(w.buf) - w.size; excess > 0 {
			copy(w.buf, w.buf[excess:])
			w.buf = w.buf[:w.size]
		}
	}
	w.written += int64(len(samples))
}

// WriteInt16 is Write for raw capture buffers.
func (w *Window) WriteInt16(samples []int16) {
	w.Write(Int16ToFloat(samples))
}

// Latest returns a copy of the buffered samples. ok is false until anything was written.
func (w *Window) Latest() (Frame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) == 0 {
		return Frame{SampleRate: w.sampleRate}, false
	}
	out := make([]float64, len(w.buf))
	copy(out, w.buf)
	return Frame{Samples: out, SampleRate: w.sampleRate}, true
}

// Written reports the total number of samples ever written.
func (w *Window) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Reset empties the window.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = w.buf[:0]
	w.written = 0
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
