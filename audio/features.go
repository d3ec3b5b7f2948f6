package audio

import (
	"math"
)

// ExtractorConfig holds the feature extraction thresholds.
type ExtractorConfig struct {
	MinPitchHz     float64 `yaml:"min_pitch_hz"`
	MaxPitchHz     float64 `yaml:"max_pitch_hz"`
	MinCorrelation float64 `yaml:"min_correlation"`
	PitchGateDB    float64 `yaml:"pitch_gate_db"`
	VADRMS         float64 `yaml:"vad_rms"`
	VADDB          float64 `yaml:"vad_db"`
	FloorDB        float64 `yaml:"floor_db"`
}

// DefaultExtractorConfig returns the thresholds the scores were tuned against.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		MinPitchHz:     80,
		MaxPitchHz:     300,
		MinCorrelation: 0.5,
		PitchGateDB:    -50,
		VADRMS:         0.02,
		VADDB:          -45,
		FloorDB:        -60,
	}
}

const (
	epsilon = 1e-10

	// A later lag only wins over an earlier local peak when it is clearly better.
	octaveTolerance = 0.9
)

// Features is the per-frame analysis result.
type Features struct {
	PitchHz     float64
	VolumeDB    float64
	RMS         float64
	VoiceActive bool
}

// Extractor computes pitch, volume and voice activity for one frame at a time.
// It keeps no state between frames.
type Extractor struct {
	config ExtractorConfig
}

// NewExtractor creates an extractor. Zero fields in cfg fall back to defaults.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	def := DefaultExtractorConfig()
	if cfg.MinPitchHz <= 0 {
		cfg.MinPitchHz = def.MinPitchHz
	}
	if cfg.MaxPitchHz <= cfg.MinPitchHz {
		cfg.MaxPitchHz = def.MaxPitchHz
	}
	if cfg.MinCorrelation <= 0 {
		cfg.MinCorrelation = def.MinCorrelation
	}
	if cfg.PitchGateDB == 0 {
		cfg.PitchGateDB = def.PitchGateDB
	}
	if cfg.VADRMS <= 0 {
		cfg.VADRMS = def.VADRMS
	}
	if cfg.VADDB == 0 {
		cfg.VADDB = def.VADDB
	}
	if cfg.FloorDB >= 0 {
		cfg.FloorDB = def.FloorDB
	}
	return &Extractor{config: cfg}
}

// Analyze computes the features of f.
func (x *Extractor) Analyze(f Frame) Features {
	rms := RMS(f.Samples)
	db := x.VolumeDB(rms)

	feat := Features{
		RMS:      rms,
		VolumeDB: db,
		// Both gates must pass; a single RMS gate lets steady background noise through.
		VoiceActive: rms > x.config.VADRMS && db > x.config.VADDB,
	}

	if db > x.config.PitchGateDB {
		feat.PitchHz = x.Pitch(f)
	}

	return feat
}

// RMS returns the root-mean-square amplitude of samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		s = finite(s)
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// VolumeDB converts an RMS amplitude to decibels clamped to [FloorDB, 0].
func (x *Extractor) VolumeDB(rms float64) float64 {
	db := 20 * math.Log10(rms+epsilon)
	if math.IsNaN(db) || db < x.config.FloorDB {
		return x.config.FloorDB
	}
	if db > 0 {
		return 0
	}
	return db
}

// Pitch estimates the fundamental frequency of f using normalized autocorrelation.
// It returns 0 when no lag in the configured range correlates well enough.
func (x *Extractor) Pitch(f Frame) float64 {
	if f.SampleRate <= 0 {
		return 0
	}

	minLag := int(math.Floor(float64(f.SampleRate) / x.config.MaxPitchHz))
	maxLag := int(math.Ceil(float64(f.SampleRate) / x.config.MinPitchHz))
	if minLag < 1 {
		minLag = 1
	}
	n := len(f.Samples)
	if maxLag >= n-1 {
		maxLag = n - 2
	}
	if maxLag <= minLag {
		return 0
	}

	samples := make([]float64, n)
	for i, s := range f.Samples {
		samples[i] = finite(s)
	}

	corr := make([]float64, maxLag+2)
	best := 0.0
	for lag := minLag; lag <= maxLag+1 && lag < n; lag++ {
		corr[lag] = normalizedCorrelation(samples, lag)
		if lag <= maxLag && corr[lag] > best {
			best = corr[lag]
		}
	}

	if best < x.config.MinCorrelation {
		return 0
	}

	for lag := minLag; lag <= maxLag; lag++ {
		c := corr[lag]
		if c < best*octaveTolerance {
			continue
		}
		left := lag == minLag || c >= corr[lag-1]
		right := c >= corr[lag+1]
		if left && right {
			return float64(f.SampleRate) / float64(lag)
		}
	}

	return 0
}

func normalizedCorrelation(samples []float64, lag int) float64 {
	var cross, e0, e1 float64
	for i := 0; i+lag < len(samples); i++ {
		a, b := samples[i], samples[i+lag]
		cross += a * b
		e0 += a * a
		e1 += b * b
	}
	denom := math.Sqrt(e0 * e1)
	if denom < epsilon {
		return 0
	}
	return cross / denom
}
