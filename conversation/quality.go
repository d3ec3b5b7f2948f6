package conversation

import (
	"math"
	"regexp"
	"strings"

	"github.com/bosley/coach/textsignal"
	"github.com/bosley/coach/transcript"
)

// QualityReport scores a finished conversation. Each area is out of 25.
type QualityReport struct {
	Discovery   float64  `json:"discovery"`
	Value       float64  `json:"value"`
	Objections  float64  `json:"objections"`
	Cta         float64  `json:"cta"`
	Total       float64  `json:"total"`
	Suggestions []string `json:"suggestions,omitempty"`
}

const (
	areaMax        = 25
	suggestBelow   = 15
	questionPoints = 4
	phrasePoints   = 3
)

var (
	valuePhrases = textsignal.Phrases(
		`save`, `protect`, `prevent`, `guarantee`, `warranty`, `peace of mind`, `safe(?:ty)?`,
		`family`, `long[- ]term`, `value`, `benefit`, `investment`, `free`, `local`,
	)
	handlingPhrases = textsignal.Phrases(
		`i understand`, `i hear you`, `that makes sense`, `fair (?:point|question|concern)`,
		`a lot of (?:people|homeowners|folks)`, `what if`, `for example`, `compared to`,
		`financing`, `no obligation`, `guarantee`,
	)
)

// AnalyzeQuality scores discovery, value, objection handling and the ask over the whole
// conversation. It is meant for feedback afterwards and never drives transitions.
func AnalyzeQuality(turns []transcript.Turn) QualityReport {
	var (
		questions, discoveryHits, valueHits, ctaHits int
		objections, handled                          int
		confirmedAfterAsk                            bool
		asked                                        bool
	)

	for i, t := range turns {
		rep := textsignal.Normalize(t.Rep)
		cp := textsignal.Normalize(t.Counterpart)

		questions += strings.Count(rep, "?")
		discoveryHits += count(discoveryPhrases, rep)
		valueHits += count(valuePhrases, rep)

		if textsignal.MatchAny(ctaPhrases, rep) {
			ctaHits++
			asked = true
		}
		if asked && textsignal.MatchAny(confirmPhrases, cp) {
			confirmedAfterAsk = true
		}

		if textsignal.MatchAny(objectionPhrases, cp) {
			objections++
			if i+1 < len(turns) && textsignal.MatchAny(handlingPhrases, textsignal.Normalize(turns[i+1].Rep)) {
				handled++
			}
		}
	}

	r := QualityReport{
		Discovery: capped(float64(questions*questionPoints + discoveryHits*phrasePoints)),
		Value:     capped(float64(valueHits * 5)),
		Cta:       capped(float64(ctaHits * 10)),
	}
	if confirmedAfterAsk {
		r.Cta = capped(r.Cta + 5)
	}
	if objections == 0 {
		r.Objections = areaMax
	} else {
		r.Objections = math.Round(float64(handled) / float64(objections) * areaMax)
	}
	r.Total = r.Discovery + r.Value + r.Objections + r.Cta

	if r.Discovery < suggestBelow {
		r.Suggestions = append(r.Suggestions, "Ask more open questions about the homeowner's situation before pitching.")
	}
	if r.Value < suggestBelow {
		r.Suggestions = append(r.Suggestions, "Tie the offer to concrete outcomes such as savings or protection.")
	}
	if r.Objections < suggestBelow {
		r.Suggestions = append(r.Suggestions, "Acknowledge objections and answer them with evidence before moving on.")
	}
	if r.Cta < suggestBelow {
		r.Suggestions = append(r.Suggestions, "Make a clear ask, for example offering a specific inspection time.")
	}
	return r
}

func count(ps []*regexp.Regexp, text string) int {
	n := 0
	for _, p := range ps {
		if text != "" && p.MatchString(text) {
			n++
		}
	}
	return n
}

func capped(v float64) float64 {
	return math.Min(areaMax, math.Max(0, v))
}
