// Package textsignal holds the phrase tables the sentiment engine scores utterances
// against. Rules are plain data so they can be tuned without touching control flow.
package textsignal

import (
	"regexp"
	"strings"

	"github.com/bosley/coach/transcript"
)

// Category classifies a phrase by what it says about the conversation.
type Category string

const (
	StrongBuying     Category = "strong_buying"
	ModerateBuying   Category = "moderate_buying"
	Engagement       Category = "engagement"
	Rapport          Category = "rapport"
	SoftPositive     Category = "soft_positive"
	StrongNegative   Category = "strong_negative"
	ModerateNegative Category = "moderate_negative"
	Hesitation       Category = "hesitation"

	RepRapport          Category = "rep_rapport"
	RepStrongNegative   Category = "rep_strong_negative"
	RepModerateNegative Category = "rep_moderate_negative"
)

// Rule binds a category to the speaker it applies to and the patterns that detect it.
type Rule struct {
	Category Category
	Speaker  transcript.Speaker
	Patterns []*regexp.Regexp
}

// Weights assign a signed score to each category at one use site.
type Weights map[Category]float64

// Severity grades how damaging an objection is.
type Severity string

const (
	Critical Severity = "critical"
	High     Severity = "high"
	Medium   Severity = "medium"
	Low      Severity = "low"
)

// Objection is a counterpart objection pattern.
type Objection struct {
	Name     string
	Severity Severity
	Pattern  *regexp.Regexp
}

// Technique is a recognised way of handling an objection.
type Technique string

const (
	Empathy  Technique = "empathy"
	Evidence Technique = "evidence"
	Question Technique = "clarifying_question"
	Reframe  Technique = "reframe"
)

// Library is the full set of text rules.
type Library struct {
	Rules       []Rule
	Objections  []Objection
	Techniques  map[Technique][]*regexp.Regexp
	Resolutions []*regexp.Regexp

	// Windows weights the per-window transcript sentiment. Language weights the
	// simpler two-sided positive language factor.
	Windows  Weights
	Language Weights

	// Buying weights counterpart buying interest for the buying signals factor.
	Buying Weights
}

// Hit is one category match inside an utterance.
type Hit struct {
	Category Category
	Count    int
}

// Match returns the categories of speaker's rules that text triggers. Each matching
// pattern counts once.
func (l *Library) Match(speaker transcript.Speaker, text string) []Hit {
	text = Normalize(text)
	if text == "" {
		return nil
	}

	var hits []Hit
	for _, r := range l.Rules {
		if r.Speaker != speaker {
			continue
		}
		n := 0
		for _, p := range r.Patterns {
			if p.MatchString(text) {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, Hit{Category: r.Category, Count: n})
		}
	}
	return hits
}

// Score splits the weighted hits of text into a positive and a negative magnitude.
func (l *Library) Score(speaker transcript.Speaker, text string, w Weights) (pos, neg float64) {
	for _, h := range l.Match(speaker, text) {
		v := w[h.Category] * float64(h.Count)
		if v > 0 {
			pos += v
		} else {
			neg -= v
		}
	}
	return pos, neg
}

// DetectObjections returns every objection pattern text matches.
func (l *Library) DetectObjections(text string) []Objection {
	text = Normalize(text)
	if text == "" {
		return nil
	}

	var out []Objection
	for _, o := range l.Objections {
		if o.Pattern.MatchString(text) {
			out = append(out, o)
		}
	}
	return out
}

// DetectTechniques returns the handling techniques text uses.
func (l *Library) DetectTechniques(text string) []Technique {
	text = Normalize(text)
	if text == "" {
		return nil
	}

	var out []Technique
	for _, t := range techniqueOrder {
		for _, p := range l.Techniques[t] {
			if p.MatchString(text) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// Resolves reports whether a counterpart line signals that a concern was put to rest.
func (l *Library) Resolves(text string) bool {
	text = Normalize(text)
	for _, p := range l.Resolutions {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

var techniqueOrder = []Technique{Empathy, Evidence, Question, Reframe}

// Recency configures how much later utterances count over earlier ones.
type Recency struct {
	RecentShare float64 `yaml:"recent_share"`
	RecentBoost float64 `yaml:"recent_boost"`
	LatestShare float64 `yaml:"latest_share"`
	LatestBoost float64 `yaml:"latest_boost"`
}

// DefaultRecency boosts the last 40% of a conversation by 1.2 and the last 15% by 1.5.
func DefaultRecency() Recency {
	return Recency{RecentShare: 0.40, RecentBoost: 1.2, LatestShare: 0.15, LatestBoost: 1.5}
}

// Multiplier returns the boost for the utterance at index of total.
func (r Recency) Multiplier(index, total int) float64 {
	if total <= 0 || index < 0 {
		return 1
	}
	// Position of the utterance's end, so the final line is always fully recent.
	pos := float64(index+1) / float64(total)
	switch {
	case pos > 1-r.LatestShare:
		return r.LatestBoost
	case pos > 1-r.RecentShare:
		return r.RecentBoost
	default:
		return 1
	}
}

var apostrophes = strings.NewReplacer("\u2019", "'", "\u2018", "'")

// Normalize lower-cases text, trims it and folds typographic apostrophes.
func Normalize(text string) string {
	return apostrophes.Replace(strings.ToLower(strings.TrimSpace(text)))
}

// Phrases compiles exprs into whole-word matchers. Either end of an expression may be
// punctuation.
func Phrases(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?:^|\W)(?:` + e + `)(?:\W|$)`)
	}
	return out
}

// MatchAny reports whether any of ps matches text, which should already be normalized.
func MatchAny(ps []*regexp.Regexp, text string) bool {
	if text == "" {
		return false
	}
	for _, p := range ps {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
