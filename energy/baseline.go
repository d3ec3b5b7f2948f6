package energy

import (
	"math"
	"time"
)

// Baseline is the per-session loudness reference learned during calibration.
type Baseline struct {
	VolumeMean  float64 `json:"volumeMean"`
	VolumeStd   float64 `json:"volumeStd"`
	VolumeMin   float64 `json:"volumeMin"`
	VolumeMax   float64 `json:"volumeMax"`
	SampleCount int     `json:"sampleCount"`
}

// Calibrator learns a Baseline from the volume samples observed during the first
// window of a session and freezes it afterwards. Levels are relative to the speaker's
// own microphone.
type Calibrator struct {
	window   time.Duration
	baseline Baseline
	history  []float64
	frozen   bool
}

// NewCalibrator creates a calibrator that learns for window of session time.
func NewCalibrator(window time.Duration) *Calibrator {
	return &Calibrator{window: window}
}

// Calibrating reports whether elapsed session time is still inside the window.
func (c *Calibrator) Calibrating(elapsed time.Duration) bool {
	return !c.frozen && elapsed < c.window
}

// Observe feeds one volume sample. It returns false, ignoring the sample, once the
// window has passed; the first such call freezes the baseline.
func (c *Calibrator) Observe(volumeDB float64, elapsed time.Duration) bool {
	if !c.Calibrating(elapsed) {
		c.frozen = true
		return false
	}
	if math.IsNaN(volumeDB) || math.IsInf(volumeDB, 0) {
		return true
	}

	b := &c.baseline
	b.SampleCount++
	if b.SampleCount == 1 {
		b.VolumeMin = volumeDB
		b.VolumeMax = volumeDB
	}
	b.VolumeMean += (volumeDB - b.VolumeMean) / float64(b.SampleCount)
	b.VolumeMin = math.Min(b.VolumeMin, volumeDB)
	b.VolumeMax = math.Max(b.VolumeMax, volumeDB)

	c.history = append(c.history, volumeDB)
	var sq float64
	for _, v := range c.history {
		d := v - b.VolumeMean
		sq += d * d
	}
	b.VolumeStd = math.Sqrt(sq / float64(len(c.history)))

	return true
}

// Freeze stops calibration early.
func (c *Calibrator) Freeze() {
	c.frozen = true
}

// Frozen reports whether the baseline stopped changing.
func (c *Calibrator) Frozen() bool {
	return c.frozen
}

// Baseline returns the current baseline.
func (c *Calibrator) Baseline() Baseline {
	return c.baseline
}

// Reset forgets everything learned.
func (c *Calibrator) Reset() {
	c.baseline = Baseline{}
	c.history = nil
	c.frozen = false
}
