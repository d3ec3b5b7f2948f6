package sentiment

import (
	"github.com/bosley/coach/textsignal"
	"github.com/bosley/coach/transcript"
)

// Handling grades how well the rep responded to an objection.
type Handling string

const (
	Unhandled Handling = "unhandled"
	Adequate  Handling = "adequate"
	Good      Handling = "good"
	Excellent Handling = "excellent"
	Resolved  Handling = "resolved"
)

// ObjectionReport describes one detected objection and what it cost the score.
type ObjectionReport struct {
	Name       string                 `json:"name"`
	Severity   textsignal.Severity    `json:"severity"`
	Index      int                    `json:"index"`
	Handling   Handling               `json:"handling"`
	Techniques []textsignal.Technique `json:"techniques,omitempty"`
	Penalty    float64                `json:"penalty"`
}

// analyzeObjections finds every counterpart objection and grades the rep's follow-up.
// The follow-up of an objection runs until the counterpart raises the next one.
func (e *Engine) analyzeObjections(entries []transcript.Entry) []ObjectionReport {
	var reports []ObjectionReport
	n := len(entries)

	for i, en := range entries {
		if en.Speaker != transcript.Counterpart {
			continue
		}
		for _, o := range e.lib.DetectObjections(en.Text) {
			handling, techniques := e.grade(entries[i+1:])
			base := e.basePenalty(o.Severity)
			reports = append(reports, ObjectionReport{
				Name:       o.Name,
				Severity:   o.Severity,
				Index:      i,
				Handling:   handling,
				Techniques: techniques,
				Penalty:    e.Penalty(base, e.config.Recency.Multiplier(i, n), handling),
			})
		}
	}
	return reports
}

func (e *Engine) grade(after []transcript.Entry) (Handling, []textsignal.Technique) {
	seen := map[textsignal.Technique]bool{}
	var used []textsignal.Technique
	repSpoke := false

	for _, en := range after {
		switch en.Speaker {
		case transcript.Rep:
			repSpoke = true
			for _, t := range e.lib.DetectTechniques(en.Text) {
				if !seen[t] {
					seen[t] = true
					used = append(used, t)
				}
			}
		case transcript.Counterpart:
			if !repSpoke {
				continue
			}
			if e.lib.Resolves(en.Text) {
				return Resolved, used
			}
			if len(e.lib.DetectObjections(en.Text)) > 0 {
				return byTechniques(len(used)), used
			}
		}
	}
	return byTechniques(len(used)), used
}

func byTechniques(n int) Handling {
	switch {
	case n >= 3:
		return Excellent
	case n == 2:
		return Good
	case n == 1:
		return Adequate
	default:
		return Unhandled
	}
}

func (e *Engine) basePenalty(s textsignal.Severity) float64 {
	p := e.config.Penalties
	switch s {
	case textsignal.Critical:
		return p.Critical
	case textsignal.High:
		return p.High
	case textsignal.Medium:
		return p.Medium
	default:
		return p.Low
	}
}

// Penalty scales a base penalty by recency and recovers part of it by handling grade.
// Better handling never costs more than worse handling.
func (e *Engine) Penalty(base, recency float64, h Handling) float64 {
	p := e.config.Penalties
	remaining := 1.0
	switch h {
	case Resolved:
		remaining = p.Resolved
	case Excellent:
		remaining = p.Excellent
	case Good:
		remaining = p.Good
	case Adequate:
		remaining = p.Adequate
	}
	return base * recency * remaining
}

// objectionResolution is the share of detected objections that were resolved. Handling
// quality short of resolution already counts through Penalty.
func objectionResolution(reports []ObjectionReport) float64 {
	if len(reports) == 0 {
		return 50
	}
	resolved := 0
	for _, r := range reports {
		if r.Handling == Resolved {
			resolved++
		}
	}
	return clamp(float64(resolved)/float64(len(reports))*100, 0, 100)
}
