package audio

import (
	"math"
	"testing"
)

func sine(freq, amplitude float64, n, sampleRate int) Frame {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return Frame{Samples: samples, SampleRate: sampleRate}
}

func constant(v float64, n int) Frame {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = v
	}
	return Frame{Samples: samples, SampleRate: DefaultSampleRate}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float64
		expected float64
	}{
		{"empty", nil, 0},
		{"silence", []float64{0, 0, 0, 0}, 0},
		{"full scale", []float64{1, -1, 1, -1}, 1},
		{"half", []float64{0.5, -0.5}, 0.5},
		{"nan treated as zero", []float64{math.NaN(), 1}, math.Sqrt(0.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RMS(tt.samples); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected RMS %.4f, got %.4f", tt.expected, got)
			}
		})
	}
}

func TestVolumeDBClamped(t *testing.T) {
	x := NewExtractor(DefaultExtractorConfig())

	if got := x.VolumeDB(0); got != -60 {
		t.Errorf("expected silence to clamp at -60 dB, got %.2f", got)
	}
	if got := x.VolumeDB(2); got != 0 {
		t.Errorf("expected over-range RMS to clamp at 0 dB, got %.2f", got)
	}
	if got := x.VolumeDB(0.1); math.Abs(got-(-20)) > 0.01 {
		t.Errorf("expected 0.1 RMS to be -20 dB, got %.2f", got)
	}
}

func TestPitchOfSine(t *testing.T) {
	x := NewExtractor(DefaultExtractorConfig())

	for _, freq := range []float64{100, 150, 200, 250} {
		f := sine(freq, 0.5, DefaultFrameSize, DefaultSampleRate)
		got := x.Pitch(f)
		if math.Abs(got-freq) > freq*0.02 {
			t.Errorf("expected pitch near %.0f Hz, got %.2f", freq, got)
		}
	}
}

func TestPitchOutOfRangeOrNoise(t *testing.T) {
	x := NewExtractor(DefaultExtractorConfig())

	if got := x.Pitch(constant(0, DefaultFrameSize)); got != 0 {
		t.Errorf("expected 0 Hz for silence, got %.2f", got)
	}
	if got := x.Pitch(Frame{Samples: []float64{0.1, 0.2}, SampleRate: DefaultSampleRate}); got != 0 {
		t.Errorf("expected 0 Hz for a frame shorter than the lag range, got %.2f", got)
	}

	// Deterministic pseudo-noise; a linear congruential sequence has no stable period in range.
	noise := make([]float64, DefaultFrameSize)
	seed := uint32(12345)
	for i := range noise {
		seed = seed*1664525 + 1013904223
		noise[i] = float64(int32(seed))/float64(math.MaxInt32)*0.5
	}
	if got := x.Pitch(Frame{Samples: noise, SampleRate: DefaultSampleRate}); got != 0 {
		t.Errorf("expected 0 Hz for noise, got %.2f", got)
	}
}

func TestAnalyzeVoiceActivityGates(t *testing.T) {
	x := NewExtractor(DefaultExtractorConfig())

	tests := []struct {
		name      string
		frame     Frame
		active    bool
		wantPitch bool
	}{
		{"silence", constant(0, DefaultFrameSize), false, false},
		{"quiet hum below rms gate", sine(200, 0.02, DefaultFrameSize, DefaultSampleRate), false, true},
		{"speech level tone", sine(200, 0.3, DefaultFrameSize, DefaultSampleRate), true, true},
		{"hum below pitch gate", sine(200, 0.002, DefaultFrameSize, DefaultSampleRate), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feat := x.Analyze(tt.frame)
			if feat.VoiceActive != tt.active {
				t.Errorf("expected active=%v, got %v (rms=%.4f db=%.2f)", tt.active, feat.VoiceActive, feat.RMS, feat.VolumeDB)
			}
			if (feat.PitchHz > 0) != tt.wantPitch {
				t.Errorf("expected pitch computed=%v, got %.2f Hz at %.2f dB", tt.wantPitch, feat.PitchHz, feat.VolumeDB)
			}
		})
	}
}
