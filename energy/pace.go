package energy

import (
	"time"

	"github.com/bosley/coach/transcript"
)

// PaceSource names the strategy a pace reading came from.
type PaceSource string

const (
	PaceFromTranscript PaceSource = "transcript"
	PaceFromActivity   PaceSource = "activity"
)

// PaceEstimator is the primary, text-based speaking pace signal. ok is false when the
// estimator has nothing to go on, which selects the activity fallback.
type PaceEstimator interface {
	EstimateWPM(elapsed time.Duration) (wpm float64, ok bool)
}

// TranscriptPace counts the rep's words over a rolling window of the transcript.
type TranscriptPace struct {
	Log    *transcript.Log
	Start  time.Time
	Window time.Duration

	// MinSpan avoids extrapolating a rate from the first second or two of a session.
	MinSpan time.Duration
}

// NewTranscriptPace creates a 15 second rolling estimator over log.
func NewTranscriptPace(log *transcript.Log, start time.Time) *TranscriptPace {
	return &TranscriptPace{Log: log, Start: start, Window: 15 * time.Second, MinSpan: 3 * time.Second}
}

func (p *TranscriptPace) EstimateWPM(elapsed time.Duration) (float64, bool) {
	if p == nil || p.Log == nil {
		return 0, false
	}

	span := p.Window
	if elapsed < span {
		span = elapsed
	}
	if span < p.MinSpan || span <= 0 {
		return 0, false
	}

	now := p.Start.Add(elapsed)
	words := 0
	repLines := 0
	for _, e := range p.Log.Between(now.Add(-span), now) {
		if e.Speaker != transcript.Rep {
			continue
		}
		repLines++
		words += transcript.WordCount(e.Text)
	}
	if repLines == 0 {
		return 0, false
	}

	return float64(words) / span.Minutes(), true
}

// ActivityPace is the secondary strategy: it assumes a rep who is voicing the whole
// window talks at NominalWPM and scales by the share of active frames.
type ActivityPace struct {
	NominalWPM float64
}

// EstimateWPM maps an active-frame share in [0,1] to words per minute.
func (p ActivityPace) EstimateWPM(activeShare float64) float64 {
	return clamp(activeShare, 0, 1) * p.NominalWPM
}

// PaceScore maps words per minute onto 0-100 around the ideal 140-160 WPM band.
func PaceScore(wpm float64) float64 {
	switch {
	case wpm <= 0:
		return 0
	case wpm < 100:
		// Steep penalty: 0 WPM -> 0, 100 WPM -> 30.
		return wpm / 100 * 30
	case wpm < 140:
		return 30 + (wpm-100)/40*40
	case wpm <= 160:
		return 70 + (wpm-140)/20*15
	case wpm <= 180:
		return 85 - (wpm-160)/20*15
	default:
		return 40
	}
}
