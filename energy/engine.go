// Package energy scores how energetic the rep sounds from live voice features.
package energy

import (
	"log/slog"
	"math"
	"time"

	"github.com/bosley/coach/audio"
)

// Level buckets the smoothed score.
type Level string

const (
	LevelLow  Level = "low"
	LevelGood Level = "good"
	LevelHigh Level = "high"
)

// Config holds the tunable constants of the energy score. The values were chosen
// empirically; they are exposed so they can be tuned without touching the engine.
type Config struct {
	TickInterval      time.Duration `yaml:"tick_interval"`
	CalibrationWindow time.Duration `yaml:"calibration_window"`
	InitialScore      float64       `yaml:"initial_score"`
	SilenceDecay      float64       `yaml:"silence_decay"`
	Smoothing         float64       `yaml:"smoothing"` // weight kept from the previous score
	PitchHistory      int           `yaml:"pitch_history"`
	VolumeHistory     int           `yaml:"volume_history"`
	ActivityHistory   int           `yaml:"activity_history"`
	SpeechLevelDB     float64       `yaml:"speech_level_db"`
	MinBaselineStd    float64       `yaml:"min_baseline_std"`
	NominalWPM        float64       `yaml:"nominal_wpm"`
	LowThreshold      float64       `yaml:"low_threshold"`
	HighThreshold     float64       `yaml:"high_threshold"`
	Weights           Weights       `yaml:"weights"`
}

// Weights combine the four factors into the raw score.
type Weights struct {
	Pace           float64 `yaml:"pace"`
	PitchVariation float64 `yaml:"pitch_variation"`
	Volume         float64 `yaml:"volume"`
	SpeakingRatio  float64 `yaml:"speaking_ratio"`
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		TickInterval:      500 * time.Millisecond,
		CalibrationWindow: 5 * time.Second,
		InitialScore:      50,
		SilenceDecay:      5,
		Smoothing:         0.7,
		PitchHistory:      100,
		VolumeHistory:     100,
		ActivityHistory:   200,
		SpeechLevelDB:     -45,
		MinBaselineStd:    5,
		NominalWPM:        170,
		LowThreshold:      40,
		HighThreshold:     70,
		Weights: Weights{
			Pace:           0.30,
			PitchVariation: 0.30,
			Volume:         0.20,
			SpeakingRatio:  0.20,
		},
	}
}

// Factors are the four components of the score, each in [0,100].
type Factors struct {
	VolumeLevel    float64 `json:"volumeLevel"`
	PitchVariation float64 `json:"pitchVariation"`
	SpeakingPace   float64 `json:"speakingPace"`
	SpeakingRatio  float64 `json:"speakingRatio"`
}

// Reading is what a tick emits.
type Reading struct {
	Score      float64       `json:"score"`
	Level      Level         `json:"level"`
	Factors    Factors       `json:"factors"`
	Voice      bool          `json:"voiceActive"`
	PitchHz    float64       `json:"pitchHz"`
	VolumeDB   float64       `json:"volumeDb"`
	PaceSource PaceSource    `json:"paceSource,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Engine turns a stream of frames into a smoothed energy score. It is not safe for
// concurrent use; a session drives it from a single timer goroutine.
type Engine struct {
	config    Config
	extractor *audio.Extractor
	pace      PaceEstimator
	fallback  ActivityPace

	calibrator *Calibrator
	smoothed   float64
	pitches    *history
	volumes    *history
	activity   *history
	disabled   error
	ticks      int
}

// NewEngine creates an engine. pace may be nil, in which case speaking pace always
// comes from voice activity.
func NewEngine(cfg Config, extractor *audio.Extractor, pace PaceEstimator) *Engine {
	cfg = withDefaults(cfg)
	if extractor == nil {
		extractor = audio.NewExtractor(audio.DefaultExtractorConfig())
	}
	e := &Engine{
		config:     cfg,
		extractor:  extractor,
		pace:       pace,
		fallback:   ActivityPace{NominalWPM: cfg.NominalWPM},
		calibrator: NewCalibrator(cfg.CalibrationWindow),
	}
	e.Reset()
	return e
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.CalibrationWindow < 0 {
		cfg.CalibrationWindow = def.CalibrationWindow
	}
	if cfg.InitialScore <= 0 || cfg.InitialScore > 100 {
		cfg.InitialScore = def.InitialScore
	}
	if cfg.SilenceDecay <= 0 {
		cfg.SilenceDecay = def.SilenceDecay
	}
	if cfg.Smoothing <= 0 || cfg.Smoothing >= 1 {
		cfg.Smoothing = def.Smoothing
	}
	if cfg.PitchHistory <= 0 {
		cfg.PitchHistory = def.PitchHistory
	}
	if cfg.VolumeHistory <= 0 {
		cfg.VolumeHistory = def.VolumeHistory
	}
	if cfg.ActivityHistory <= 0 {
		cfg.ActivityHistory = def.ActivityHistory
	}
	if cfg.SpeechLevelDB == 0 {
		cfg.SpeechLevelDB = def.SpeechLevelDB
	}
	if cfg.MinBaselineStd <= 0 {
		cfg.MinBaselineStd = def.MinBaselineStd
	}
	if cfg.NominalWPM <= 0 {
		cfg.NominalWPM = def.NominalWPM
	}
	if cfg.LowThreshold <= 0 {
		cfg.LowThreshold = def.LowThreshold
	}
	if cfg.HighThreshold <= cfg.LowThreshold {
		cfg.HighThreshold = def.HighThreshold
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	return cfg
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Tick analyses one frame taken elapsed into the session. ok is false when nothing is
// emitted: during calibration and while the engine is disabled.
func (e *Engine) Tick(frame audio.Frame, elapsed time.Duration) (Reading, bool) {
	if e.disabled != nil {
		return Reading{}, false
	}

	feat := e.extractor.Analyze(frame)
	e.ticks++

	if e.calibrator.Observe(feat.VolumeDB, elapsed) {
		if e.ticks%10 == 0 {
			slog.Debug("Calibrating volume baseline",
				"volumeDb", feat.VolumeDB,
				"samples", e.calibrator.Baseline().SampleCount)
		}
		return Reading{}, false
	}

	e.volumes.push(feat.VolumeDB)
	e.activity.push(feat.VolumeDB)

	reading := Reading{
		Voice:    feat.VoiceActive,
		PitchHz:  feat.PitchHz,
		VolumeDB: feat.VolumeDB,
		Elapsed:  elapsed,
	}

	if !feat.VoiceActive {
		// Energy visibly drains while the rep is silent.
		e.smoothed = math.Max(0, e.smoothed-e.config.SilenceDecay)
		reading.Score = e.smoothed
		reading.Level = e.level(e.smoothed)
		return reading, true
	}

	if feat.PitchHz > 0 {
		e.pitches.push(feat.PitchHz)
	}

	ratio := e.speakingRatio()
	wpm, source := e.estimatePace(elapsed, ratio/100)

	factors := Factors{
		VolumeLevel:    e.volumeLevel(feat.VolumeDB),
		PitchVariation: pitchVariationScore(e.pitches.values()),
		SpeakingPace:   clamp(PaceScore(wpm), 0, 100),
		SpeakingRatio:  ratio,
	}

	w := e.config.Weights
	raw := w.Pace*factors.SpeakingPace +
		w.PitchVariation*factors.PitchVariation +
		w.Volume*factors.VolumeLevel +
		w.SpeakingRatio*factors.SpeakingRatio

	e.smoothed = clamp(e.config.Smoothing*e.smoothed+(1-e.config.Smoothing)*raw, 0, 100)

	reading.Score = e.smoothed
	reading.Level = e.level(e.smoothed)
	reading.Factors = factors
	reading.PaceSource = source

	if e.ticks%10 == 0 {
		slog.Debug("Energy tick",
			"score", reading.Score,
			"raw", raw,
			"wpm", wpm,
			"paceSource", source,
			"pitchHz", feat.PitchHz)
	}

	return reading, true
}

func (e *Engine) estimatePace(elapsed time.Duration, activeShare float64) (float64, PaceSource) {
	if e.pace != nil {
		if wpm, ok := e.pace.EstimateWPM(elapsed); ok {
			return wpm, PaceFromTranscript
		}
	}
	return e.fallback.EstimateWPM(activeShare), PaceFromActivity
}

func (e *Engine) volumeLevel(db float64) float64 {
	b := e.calibrator.Baseline()

	relative := 50.0
	if b.SampleCount > 0 {
		relative = 50 + 25*(db-b.VolumeMean)/math.Max(b.VolumeStd, e.config.MinBaselineStd)
	}

	lo, hi := e.volumes.minMax()
	if b.SampleCount > 0 {
		lo = math.Min(lo, b.VolumeMin)
		hi = math.Max(hi, b.VolumeMax)
	}
	position := 50.0
	if hi-lo > 1e-9 {
		position = (db - lo) / (hi - lo) * 100
	}

	return clamp(0.7*clamp(relative, 0, 100)+0.3*clamp(position, 0, 100), 0, 100)
}

// pitchVariationScore maps the coefficient of variation of recent pitch onto 0-100:
// monotone below 10%, a healthy range up to 30%, highly dynamic above.
func pitchVariationScore(pitches []float64) float64 {
	if len(pitches) < 2 {
		return 50
	}
	mean, std := meanStd(pitches)
	if mean <= 0 {
		return 50
	}

	cv := std / mean * 100
	switch {
	case cv < 10:
		return cv / 10 * 30
	case cv <= 30:
		return 30 + (cv-10)/20*45
	default:
		return clamp(75+(cv-30)/30*25, 0, 100)
	}
}

func (e *Engine) speakingRatio() float64 {
	vals := e.activity.values()
	if len(vals) == 0 {
		return 0
	}
	above := 0
	for _, v := range vals {
		if v > e.config.SpeechLevelDB {
			above++
		}
	}
	return float64(above) / float64(len(vals)) * 100
}

func (e *Engine) level(score float64) Level {
	switch {
	case score < e.config.LowThreshold:
		return LevelLow
	case score >= e.config.HighThreshold:
		return LevelHigh
	default:
		return LevelGood
	}
}

// Score returns the current smoothed score.
func (e *Engine) Score() float64 {
	return e.smoothed
}

// Baseline returns the learned loudness baseline.
func (e *Engine) Baseline() Baseline {
	return e.calibrator.Baseline()
}

// Calibrating reports whether a tick at elapsed would still be calibrating.
func (e *Engine) Calibrating(elapsed time.Duration) bool {
	return e.calibrator.Calibrating(elapsed)
}

// Disable stops the engine from emitting after an audio failure.
func (e *Engine) Disable(err error) {
	if err == nil {
		return
	}
	e.disabled = err
}

// Enable clears a previous Disable, e.g. after audio was reacquired.
func (e *Engine) Enable() {
	e.disabled = nil
}

// Active reports whether the engine is emitting scores.
func (e *Engine) Active() bool {
	return e.disabled == nil
}

// Err returns the error the engine was disabled with.
func (e *Engine) Err() error {
	return e.disabled
}

// Reset returns the engine to its initial state.
func (e *Engine) Reset() {
	e.smoothed = e.config.InitialScore
	e.pitches = newHistory(e.config.PitchHistory)
	e.volumes = newHistory(e.config.VolumeHistory)
	e.activity = newHistory(e.config.ActivityHistory)
	e.calibrator.Reset()
	e.disabled = nil
	e.ticks = 0
}

// history is a fixed capacity FIFO of samples.
type history struct {
	buf []float64
	max int
}

func newHistory(max int) *history {
	return &history{buf: make([]float64, 0, max), max: max}
}

func (h *history) push(v float64) {
	if len(h.buf) >= h.max {
		copy(h.buf, h.buf[1:])
		h.buf = h.buf[:len(h.buf)-1]
	}
	h.buf = append(h.buf, v)
}

func (h *history) values() []float64 {
	return h.buf
}

func (h *history) minMax() (float64, float64) {
	if len(h.buf) == 0 {
		return 0, 0
	}
	lo, hi := h.buf[0], h.buf[0]
	for _, v := range h.buf[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func meanStd(vals []float64) (float64, float64) {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(vals)))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}
