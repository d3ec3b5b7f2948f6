// Package sentiment scores how the conversation is going from what both parties say.
package sentiment

import (
	"log/slog"
	"math"
	"time"

	"github.com/bosley/coach/textsignal"
	"github.com/bosley/coach/transcript"
)

// Level buckets the smoothed score.
type Level string

const (
	LevelLow      Level = "low"
	LevelBuilding Level = "building"
	LevelPositive Level = "positive"
)

// Factors are the four components of the score, each in [0,100].
type Factors struct {
	TranscriptSentiment float64 `json:"transcriptSentiment"`
	BuyingSignals       float64 `json:"buyingSignals"`
	ObjectionResolution float64 `json:"objectionResolution"`
	PositiveLanguage    float64 `json:"positiveLanguage"`
}

// Reading is what an update emits.
type Reading struct {
	Score      float64           `json:"score"`
	Level      Level             `json:"level"`
	Factors    Factors           `json:"factors"`
	Objections []ObjectionReport `json:"objections,omitempty"`
	Elapsed    time.Duration     `json:"elapsed"`
}

// Engine recomputes the sentiment score from the whole transcript on every update and
// smooths the result. It is not safe for concurrent use; a session serializes updates.
type Engine struct {
	config   Config
	lib      *textsignal.Library
	starting float64
	smoothed float64
	updates  int
}

// NewEngine creates an engine that starts at starting, the persona's opening sentiment.
// lib may be nil to use the built-in phrase tables.
func NewEngine(cfg Config, lib *textsignal.Library, starting float64) *Engine {
	if lib == nil {
		lib = textsignal.Default()
	}
	e := &Engine{
		config:   withDefaults(cfg),
		lib:      lib,
		starting: clamp(starting, 0, 100),
	}
	e.Reset()
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Update scores entries, the full transcript so far, elapsed into the session.
func (e *Engine) Update(entries []transcript.Entry, elapsed time.Duration) Reading {
	if len(entries) == 0 {
		e.smoothed = e.starting
		return Reading{
			Score:   e.starting,
			Level:   e.level(e.starting),
			Factors: Factors{TranscriptSentiment: 50, BuyingSignals: 0, ObjectionResolution: 50, PositiveLanguage: 50},
			Elapsed: elapsed,
		}
	}

	reports := e.analyzeObjections(entries)
	factors := Factors{
		TranscriptSentiment: e.transcriptSentiment(entries, reports),
		BuyingSignals:       e.buyingSignals(entries),
		ObjectionResolution: objectionResolution(reports),
		PositiveLanguage:    e.positiveLanguage(entries),
	}

	w := e.config.Weights
	combined := w.TranscriptSentiment*factors.TranscriptSentiment +
		w.BuyingSignals*factors.BuyingSignals +
		w.PositiveLanguage*factors.PositiveLanguage +
		w.ObjectionResolution*factors.ObjectionResolution

	// Centred on neutral so that the ramp scales evidence, not the midpoint itself.
	raw := combined - 50
	ramp := e.config.Ramp.Factor(elapsed)
	final := e.starting + raw*ramp

	if factors.BuyingSignals > 50 {
		final += (factors.BuyingSignals - 50) / 50 * e.config.BuyingBonus
	}
	if factors.ObjectionResolution < 50 {
		final -= (50 - factors.ObjectionResolution) / 50 * e.config.UnresolvedPenalty
	}
	final = clamp(final, 0, 100)

	e.smoothed = clamp((1-e.config.Smoothing)*e.smoothed+e.config.Smoothing*final, 0, 100)
	e.updates++

	if e.updates%10 == 0 {
		slog.Debug("Sentiment update",
			"score", e.smoothed,
			"final", final,
			"ramp", ramp,
			"entries", len(entries),
			"objections", len(reports))
	}

	return Reading{
		Score:      e.smoothed,
		Level:      e.level(e.smoothed),
		Factors:    factors,
		Objections: reports,
		Elapsed:    elapsed,
	}
}

// transcriptSentiment is the windowed, recent-weighted score less objection penalties.
func (e *Engine) transcriptSentiment(entries []transcript.Entry, reports []ObjectionReport) float64 {
	early, middle, recent := e.config.Windows.Split(len(entries))

	es := e.windowScore(entries[early.From:early.To])
	ms := e.windowScore(entries[middle.From:middle.To])
	rs := e.windowScore(entries[recent.From:recent.To])

	b := e.config.Windows
	base := b.EarlyWeight*es + b.MiddleWeight*ms + b.RecentWeight*rs

	var penalty float64
	for _, r := range reports {
		penalty += r.Penalty
	}

	return clamp(base+e.config.Progression.Modifier(es, ms, rs)-penalty, 0, 100)
}

func (e *Engine) windowScore(entries []transcript.Entry) float64 {
	var pos, neg float64
	for _, en := range entries {
		p, n := e.lib.Score(en.Speaker, en.Text, e.lib.Windows)
		pos += p
		neg += n
	}
	if pos+neg == 0 {
		return 50
	}
	return pos / (pos + neg) * 100
}

func (e *Engine) buyingSignals(entries []transcript.Entry) float64 {
	var points float64
	for i, en := range entries {
		if en.Speaker != transcript.Counterpart {
			continue
		}
		p, _ := e.lib.Score(en.Speaker, en.Text, e.lib.Buying)
		points += p * e.config.Recency.Multiplier(i, len(entries))
	}
	return clamp(points/e.config.BuyingSaturation*100, 0, 100)
}

func (e *Engine) positiveLanguage(entries []transcript.Entry) float64 {
	var net float64
	for _, en := range entries {
		p, n := e.lib.Score(en.Speaker, en.Text, e.lib.Language)
		net += p - n
	}
	return clamp(50+net, 0, 100)
}

func (e *Engine) level(score float64) Level {
	switch {
	case score < e.config.LowThreshold:
		return LevelLow
	case score < e.config.PositiveThreshold:
		return LevelBuilding
	default:
		return LevelPositive
	}
}

// Score returns the current smoothed score.
func (e *Engine) Score() float64 {
	return e.smoothed
}

// Starting returns the score an empty conversation reports.
func (e *Engine) Starting() float64 {
	return e.starting
}

// Reset returns the engine to its starting score.
func (e *Engine) Reset() {
	e.smoothed = e.starting
	e.updates = 0
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}
