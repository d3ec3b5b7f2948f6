package sentiment

import (
	"math"
	"time"

	"github.com/bosley/coach/textsignal"
)

// Config holds the tunable constants of the sentiment score. The window shares,
// recency boosts and smoothing were chosen empirically and are kept overridable.
type Config struct {
	Windows     Windows            `yaml:"windows"`
	Progression Progression        `yaml:"progression"`
	Recency     textsignal.Recency `yaml:"recency"`
	Ramp        Ramp               `yaml:"ramp"`
	Weights     Weights            `yaml:"weights"`
	Penalties   Penalties          `yaml:"penalties"`

	// Smoothing is the weight of the new value in the exponential average.
	Smoothing         float64       `yaml:"smoothing"`
	BuyingSaturation  float64       `yaml:"buying_saturation"`
	BuyingBonus       float64       `yaml:"buying_bonus"`
	UnresolvedPenalty float64       `yaml:"unresolved_penalty"`
	LowThreshold      float64       `yaml:"low_threshold"`
	PositiveThreshold float64       `yaml:"positive_threshold"`
	FallbackInterval  time.Duration `yaml:"fallback_interval"`
}

// Weights combine the four factors.
type Weights struct {
	TranscriptSentiment float64 `yaml:"transcript_sentiment"`
	BuyingSignals       float64 `yaml:"buying_signals"`
	PositiveLanguage    float64 `yaml:"positive_language"`
	ObjectionResolution float64 `yaml:"objection_resolution"`
}

// Penalties are the base objection penalties by severity, and the share of each that
// remains after the objection was handled.
type Penalties struct {
	Critical float64 `yaml:"critical"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
	Low      float64 `yaml:"low"`

	Resolved  float64 `yaml:"resolved"`
	Excellent float64 `yaml:"excellent"`
	Good      float64 `yaml:"good"`
	Adequate  float64 `yaml:"adequate"`
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Windows: Windows{
			EarlyShare:   0.30,
			RecentShare:  0.35,
			EarlyWeight:  0.15,
			MiddleWeight: 0.25,
			RecentWeight: 0.60,
		},
		Progression: Progression{
			MaxGain:        15,
			GainRate:       0.3,
			MaxLoss:        10,
			LossRate:       0.2,
			MomentumJump:   10,
			MomentumRate:   0.2,
			MaxMomentumAdd: 8,
		},
		Recency: textsignal.DefaultRecency(),
		Ramp: Ramp{
			{At: 0, Factor: 0.2},
			{At: 10 * time.Second, Factor: 0.35},
			{At: 30 * time.Second, Factor: 0.6},
			{At: 90 * time.Second, Factor: 1.0},
		},
		Weights: Weights{
			TranscriptSentiment: 0.45,
			BuyingSignals:       0.30,
			PositiveLanguage:    0.15,
			ObjectionResolution: 0.10,
		},
		Penalties: Penalties{
			Critical:  22,
			High:      16,
			Medium:    10,
			Low:       5,
			Resolved:  0.3,
			Excellent: 0.4,
			Good:      0.5,
			Adequate:  0.7,
		},
		Smoothing:         0.2,
		BuyingSaturation:  54,
		BuyingBonus:       7.5,
		UnresolvedPenalty: 5,
		LowThreshold:      30,
		PositiveThreshold: 60,
		FallbackInterval:  2 * time.Second,
	}
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Windows.EarlyShare <= 0 || cfg.Windows.RecentShare <= 0 || cfg.Windows.EarlyShare+cfg.Windows.RecentShare > 1 {
		cfg.Windows = def.Windows
	}
	if cfg.Progression == (Progression{}) {
		cfg.Progression = def.Progression
	}
	if cfg.Recency == (textsignal.Recency{}) {
		cfg.Recency = def.Recency
	}
	if len(cfg.Ramp) == 0 {
		cfg.Ramp = def.Ramp
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	if cfg.Penalties == (Penalties{}) {
		cfg.Penalties = def.Penalties
	}
	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		cfg.Smoothing = def.Smoothing
	}
	if cfg.BuyingSaturation <= 0 {
		cfg.BuyingSaturation = def.BuyingSaturation
	}
	if cfg.BuyingBonus <= 0 {
		cfg.BuyingBonus = def.BuyingBonus
	}
	if cfg.UnresolvedPenalty <= 0 {
		cfg.UnresolvedPenalty = def.UnresolvedPenalty
	}
	if cfg.LowThreshold <= 0 {
		cfg.LowThreshold = def.LowThreshold
	}
	if cfg.PositiveThreshold <= cfg.LowThreshold {
		cfg.PositiveThreshold = def.PositiveThreshold
	}
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = def.FallbackInterval
	}
	return cfg
}

// Windows splits the utterance stream by index into early, middle and recent thirds
// (not equal thirds) and weights them toward the recent end.
type Windows struct {
	EarlyShare   float64 `yaml:"early_share"`
	RecentShare  float64 `yaml:"recent_share"`
	EarlyWeight  float64 `yaml:"early_weight"`
	MiddleWeight float64 `yaml:"middle_weight"`
	RecentWeight float64 `yaml:"recent_weight"`
}

// Span is a half open index range.
type Span struct {
	From, To int
}

// Split returns the three index ranges for n utterances. The recent window always
// holds at least the last utterance.
func (w Windows) Split(n int) (early, middle, recent Span) {
	if n <= 0 {
		return
	}
	e := int(math.Floor(float64(n) * w.EarlyShare))
	r := n - int(math.Ceil(float64(n)*w.RecentShare))
	if r < e {
		r = e
	}
	if r >= n {
		r = n - 1
	}
	if e > r {
		e = r
	}
	return Span{0, e}, Span{e, r}, Span{r, n}
}

// Progression rewards an improving trend across windows and penalizes a declining one.
type Progression struct {
	MaxGain        float64 `yaml:"max_gain"`
	GainRate       float64 `yaml:"gain_rate"`
	MaxLoss        float64 `yaml:"max_loss"`
	LossRate       float64 `yaml:"loss_rate"`
	MomentumJump   float64 `yaml:"momentum_jump"`
	MomentumRate   float64 `yaml:"momentum_rate"`
	MaxMomentumAdd float64 `yaml:"max_momentum_add"`
}

// Modifier returns the trend adjustment for the three window scores.
func (p Progression) Modifier(early, middle, recent float64) float64 {
	var mod float64
	switch overall := recent - early; {
	case overall > 0:
		mod = math.Min(p.MaxGain, overall*p.GainRate)
	case overall < 0:
		mod = math.Max(-p.MaxLoss, overall*p.LossRate)
	}
	if jump := recent - middle; jump > p.MomentumJump {
		mod += math.Min(p.MaxMomentumAdd, jump*p.MomentumRate)
	}
	return mod
}

// RampPoint is one knee of the confidence ramp.
type RampPoint struct {
	At     time.Duration `yaml:"at"`
	Factor float64       `yaml:"factor"`
}

// Ramp is a piecewise linear confidence curve over session time, sorted by At.
type Ramp []RampPoint

// Factor interpolates the ramp at elapsed. Beyond the last point the last factor holds.
func (r Ramp) Factor(elapsed time.Duration) float64 {
	if len(r) == 0 {
		return 1
	}
	if elapsed <= r[0].At {
		return r[0].Factor
	}
	for i := 1; i < len(r); i++ {
		if elapsed <= r[i].At {
			a, b := r[i-1], r[i]
			t := float64(elapsed-a.At) / float64(b.At-a.At)
			return a.Factor + t*(b.Factor-a.Factor)
		}
	}
	return r[len(r)-1].Factor
}
