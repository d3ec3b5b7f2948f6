package audio

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/youpy/go-wav"
)

func writeTestWAV(t *testing.T, path string, samples []int16, sampleRate int) {
	t.Helper()

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create wav: %v", err)
	}
	defer file.Close()

	writer := wav.NewWriter(file, uint32(len(samples)), 1, uint32(sampleRate), 16)
	out := make([]wav.Sample, len(samples))
	for i, s := range samples {
		out[i].Values[0] = int(s)
	}
	if err := writer.WriteSamples(out); err != nil {
		t.Fatalf("failed to write samples: %v", err)
	}
}

func TestLoadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	samples := make([]int16, 8000)
	for i := range samples {
		samples[i] = int16(16384 * math.Sin(2*math.Pi*200*float64(i)/8000))
	}
	writeTestWAV(t, path, samples, 8000)

	clip, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV failed: %v", err)
	}
	if clip.SampleRate != 8000 {
		t.Errorf("expected sample rate 8000, got %d", clip.SampleRate)
	}
	if len(clip.Samples) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(clip.Samples))
	}
	if d := clip.Duration(); d != time.Second {
		t.Errorf("expected 1s clip, got %v", d)
	}
	for i := 0; i < 100; i++ {
		want := float64(samples[i]) / 32768.0
		if math.Abs(clip.Samples[i]-want) > 1e-6 {
			t.Fatalf("sample %d: expected %.5f, got %.5f", i, want, clip.Samples[i])
		}
	}
}

func TestLoadWAVMissingFile(t *testing.T) {
	if _, err := LoadWAV(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestClipFrameAt(t *testing.T) {
	clip := &Clip{Samples: make([]float64, 1000), SampleRate: 1000}
	for i := range clip.Samples {
		clip.Samples[i] = float64(i)
	}

	tests := []struct {
		name  string
		at    time.Duration
		size  int
		len   int
		first float64
	}{
		{"start", 0, 100, 0, 0},
		{"partial", 50 * time.Millisecond, 100, 50, 0},
		{"full", 500 * time.Millisecond, 100, 100, 400},
		{"past end", 2 * time.Second, 100, 100, 900},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := clip.FrameAt(tt.at, tt.size)
			if f.Len() != tt.len {
				t.Fatalf("expected %d samples, got %d", tt.len, f.Len())
			}
			if tt.len > 0 && f.Samples[0] != tt.first {
				t.Errorf("expected first sample %.0f, got %.0f", tt.first, f.Samples[0])
			}
		})
	}
}

func TestClipSourcePlaysInRealTime(t *testing.T) {
	clip := &Clip{Samples: make([]float64, 1000), SampleRate: 1000}
	for i := range clip.Samples {
		clip.Samples[i] = 0.5
	}

	now := time.Unix(0, 0)
	src := NewClipSource(clip, 100, false)
	src.now = func() time.Time { return now }

	if _, ok := src.Latest(); ok {
		t.Fatal("expected no frame before Open")
	}
	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	now = now.Add(500 * time.Millisecond)
	f, ok := src.Latest()
	if !ok || f.Len() != 100 || f.Samples[0] != 0.5 {
		t.Fatalf("expected a 100 sample frame of the clip, got ok=%v len=%d", ok, f.Len())
	}

	now = now.Add(time.Second)
	f, _ = src.Latest()
	if RMS(f.Samples) != 0 {
		t.Error("expected silence after the clip ended")
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestRecorderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.wav")
	rec, err := NewRecorder(path, 16000)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}

	pcm := make([]byte, 3200)
	for i := 0; i < len(pcm)/2; i++ {
		s := int16(8192)
		pcm[i*2] = byte(s & 0xFF)
		pcm[i*2+1] = byte((s >> 8) & 0xFF)
	}
	if _, err := rec.Write(pcm); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	clip, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV failed: %v", err)
	}
	if clip.SampleRate != 16000 || len(clip.Samples) != 1600 {
		t.Fatalf("expected 1600 samples at 16kHz, got %d at %d", len(clip.Samples), clip.SampleRate)
	}
	if math.Abs(clip.Samples[10]-0.25) > 1e-6 {
		t.Errorf("expected sample value 0.25, got %.5f", clip.Samples[10])
	}
}
