package persona

import (
	"fmt"
	"strings"

	"github.com/bosley/coach/textsignal"
	"github.com/bosley/coach/transcript"
)

const (
	MinTrust    = -10
	MaxTrust    = 10
	MinInterest = 0
	MaxInterest = 10

	// impatientAfter is the turn count past which the persona wants to wrap up.
	impatientAfter = 8

	// monologueWords is how long a rep turn can run before it reads as a lecture.
	monologueWords = 80
)

// State is the persona's evolving attitude during one conversation.
type State struct {
	Trust        int      `json:"trust"`
	Interest     int      `json:"interest"`
	TurnsElapsed int      `json:"turnsElapsed"`
	Log          []string `json:"log"`
}

// TurnEffect reports what one rep turn changed.
type TurnEffect struct {
	TrustDelta    int      `json:"trustDelta"`
	InterestDelta int      `json:"interestDelta"`
	Rules         []string `json:"rules,omitempty"`
}

// Simulator applies the persona's reaction rules to each rep turn. It is not safe for
// concurrent use.
type Simulator struct {
	persona     Persona
	state       State
	lastCounter string
	painPoints  [][]string
}

// New creates a simulator in the persona's initial state.
func New(p Persona) *Simulator {
	s := &Simulator{persona: p}
	for _, pp := range p.PainPoints {
		if kw := keywords(pp); len(kw) > 0 {
			s.painPoints = append(s.painPoints, kw)
		}
	}
	s.Reset()
	return s
}

// Reset returns the simulator to the persona's initial state.
func (s *Simulator) Reset() {
	s.state = State{
		Trust:    initialTrust(s.persona.Role),
		Interest: clampInt(2+len(s.persona.PainPoints), MinInterest, MaxInterest),
	}
	s.lastCounter = ""
}

func initialTrust(r Role) int {
	switch r {
	case RoleSkeptic:
		return -3
	case RoleBusy, RoleBudget:
		return -1
	case RoleFriendly:
		return 2
	default:
		return 0
	}
}

// Persona returns the definition the simulator runs.
func (s *Simulator) Persona() Persona {
	return s.persona
}

// State returns a copy of the current state.
func (s *Simulator) State() State {
	st := s.state
	st.Log = append([]string(nil), s.state.Log...)
	return st
}

// ObserveCounterpartTurn records the counterpart's latest line so the next rep turn
// can be judged against it.
func (s *Simulator) ObserveCounterpartTurn(text string) {
	s.lastCounter = text
}

type rule struct {
	name     string
	trust    int
	interest int
	applies  func(s *Simulator, rep string) bool
}

var (
	localPhrases      = textsignal.Phrases(`local(?:ly)?`, `in (?:the|your) (?:area|neighborhood)`, `neighbou?rs?`, `down the street`, `community`, `family[- ]owned`)
	guaranteePhrases  = textsignal.Phrases(`guarantee[ds]?`, `warrant(?:y|ies)`, `money[- ]back`)
	safetyPhrases     = textsignal.Phrases(`safe(?:ty|ly)?`, `family`, `kids`, `children`, `pets?`, `non[- ]toxic`, `health`)
	inspectionPhrases = textsignal.Phrases(`free (?:inspection|assessment|estimate|quote)`)
	pressurePhrases   = textsignal.Phrases(`today only`, `special deal`, `limited[- ]time`, `act now`, `won't last`, `sign today`, `expires? (?:today|tonight)`, `right now or`)
	preventPhrases    = textsignal.Phrases(`prevent(?:ion|ive|ative)?`, `before (?:it|they) (?:gets?|becomes?|spreads?)`, `stop (?:it|them) before`, `early`)
	genericPhrases    = textsignal.Phrases(`everyone needs`, `everybody needs`, `all your neighbou?rs`, `no[- ]brainer`, `every home needs`)
)

var rules = []rule{
	{name: "local reference", trust: 2, applies: func(_ *Simulator, rep string) bool { return textsignal.MatchAny(localPhrases, rep) }},
	{name: "guarantee", trust: 1, applies: func(_ *Simulator, rep string) bool { return textsignal.MatchAny(guaranteePhrases, rep) }},
	{name: "safety", trust: 1, applies: func(_ *Simulator, rep string) bool { return textsignal.MatchAny(safetyPhrases, rep) }},
	{name: "free inspection", trust: 1, applies: func(_ *Simulator, rep string) bool { return textsignal.MatchAny(inspectionPhrases, rep) }},
	{name: "high pressure", trust: -2, applies: func(_ *Simulator, rep string) bool { return textsignal.MatchAny(pressurePhrases, rep) }},
	{name: "ignored safety question", trust: -1, applies: func(s *Simulator, rep string) bool {
		cp := textsignal.Normalize(s.lastCounter)
		return strings.Contains(cp, "?") && textsignal.MatchAny(safetyPhrases, cp) && !textsignal.MatchAny(safetyPhrases, rep)
	}},
	{name: "monologue", trust: -1, applies: func(_ *Simulator, rep string) bool {
		return transcript.WordCount(rep) > monologueWords && !strings.Contains(rep, "?")
	}},
	{name: "pain point", interest: 2, applies: func(s *Simulator, rep string) bool { return s.matchesPainPoint(rep) }},
	{name: "prevention", interest: 1, applies: func(_ *Simulator, rep string) bool { return textsignal.MatchAny(preventPhrases, rep) }},
	{name: "generic pitch", interest: -1, applies: func(_ *Simulator, rep string) bool { return textsignal.MatchAny(genericPhrases, rep) }},
}

// ObserveRepTurn applies the reaction rules to text. Each rule fires at most once per
// turn, however many of its phrases appear.
func (s *Simulator) ObserveRepTurn(text string) TurnEffect {
	rep := textsignal.Normalize(text)
	s.state.TurnsElapsed++
	s.state.Log = append(s.state.Log, text)

	var eff TurnEffect
	for _, r := range rules {
		if rep == "" || !r.applies(s, rep) {
			continue
		}
		eff.TrustDelta += r.trust
		eff.InterestDelta += r.interest
		eff.Rules = append(eff.Rules, r.name)
	}

	before := s.state
	s.state.Trust = clampInt(s.state.Trust+eff.TrustDelta, MinTrust, MaxTrust)
	s.state.Interest = clampInt(s.state.Interest+eff.InterestDelta, MinInterest, MaxInterest)

	// Report what actually changed after clamping.
	eff.TrustDelta = s.state.Trust - before.Trust
	eff.InterestDelta = s.state.Interest - before.Interest
	s.lastCounter = ""
	return eff
}

func (s *Simulator) matchesPainPoint(rep string) bool {
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(rep, notWordRune) {
		words[stem(w)] = true
	}
	for _, kw := range s.painPoints {
		hits := 0
		for _, k := range kw {
			if words[k] {
				hits++
			}
		}
		// Half the keywords of a pain point, rounded up.
		if hits > 0 && hits*2 >= len(kw) {
			return true
		}
	}
	return false
}

// BehavioralDirective describes how the counterpart should act next, for whatever
// generates its replies.
func (s *Simulator) BehavioralDirective() string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s (%s). ", s.persona.Name, strings.ReplaceAll(string(s.persona.Role), "_", " "))
	b.WriteString(trustBucket(s.state.Trust))
	b.WriteString(", ")
	b.WriteString(interestBucket(s.state.Interest))
	b.WriteString(".")

	if s.state.TurnsElapsed > impatientAfter {
		b.WriteString(" GETTING IMPATIENT: push to wrap up the conversation.")
	}

	if mod := roleModifier(s.persona.Role); mod != "" {
		b.WriteString(" ")
		b.WriteString(mod)
	}

	if s.state.Trust < 0 && len(s.persona.Objections) > 0 {
		obj := s.persona.Objections[s.state.TurnsElapsed%len(s.persona.Objections)]
		fmt.Fprintf(&b, " If it fits, raise this concern: %q", obj)
	}

	if s.state.Trust > 3 && s.persona.HiddenGoal != "" {
		fmt.Fprintf(&b, " You may now reveal what you really want: %s", s.persona.HiddenGoal)
	}

	return b.String()
}

func trustBucket(t int) string {
	switch {
	case t <= -6:
		return "VERY SKEPTICAL"
	case t <= -2:
		return "SKEPTICAL"
	case t <= 1:
		return "NEUTRAL"
	case t <= 5:
		return "WARMING UP"
	default:
		return "TRUSTING"
	}
}

func interestBucket(i int) string {
	switch {
	case i <= 3:
		return "LOW INTEREST"
	case i <= 6:
		return "MODERATE INTEREST"
	default:
		return "HIGH INTEREST"
	}
}

func roleModifier(r Role) string {
	switch r {
	case RoleSkeptic:
		return "Demand proof before believing any claim."
	case RoleBusy:
		return "Keep answers short and mention that you are short on time."
	case RoleBudget:
		return "Keep steering back to what it costs."
	case RoleFriendly:
		return "Be warm, but do not commit without a reason."
	default:
		return "Think about how this affects your home."
	}
}

var (
	schedulingPhrases = textsignal.Phrases(`schedule[ds]?`, `appointment`, `book(?:ed)?`, `calendar`, `(?:mon|tues|wednes|thurs|fri|satur|sun)day`, `tomorrow`, `next week`, `come (?:by|out)`)
	budgetPhrases     = textsignal.Phrases(`budget`, `price[ds]?`, `cost[s]?`, `\$\d+`, `\d+ dollars`, `afford`, `payment`, `per month`, `financing`)
	roiPhrases        = textsignal.Phrases(`save`, `savings`, `worth it`, `pays? for itself`, `return`, `value`, `cheaper than`, `in the long run`, `repair costs?`)
)

// CheckSuccessCriteria reports whether the conversation in history satisfies the
// persona's requirements and the persona is both trusting and interested enough.
func (s *Simulator) CheckSuccessCriteria(history []transcript.Entry) bool {
	if s.state.Trust <= 0 || s.state.Interest <= 5 {
		return false
	}

	var all strings.Builder
	for _, e := range history {
		all.WriteString(textsignal.Normalize(e.Text))
		all.WriteString("\n")
	}
	text := all.String()

	c := s.persona.Success
	if c.RequiresScheduling && !textsignal.MatchAny(schedulingPhrases, text) {
		return false
	}
	if c.RequiresBudget && !textsignal.MatchAny(budgetPhrases, text) {
		return false
	}
	if c.RequiresROI && !textsignal.MatchAny(roiPhrases, text) {
		return false
	}
	if c.RequiresSafety && !textsignal.MatchAny(safetyPhrases, text) {
		return false
	}
	return true
}

var stopwords = map[string]bool{
	"the": true, "and": true, "with": true, "from": true, "that": true, "this": true,
	"they": true, "them": true, "have": true, "into": true, "about": true, "your": true,
}

// keywords extracts the significant words of a pain point phrase.
func keywords(phrase string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(textsignal.Normalize(phrase), notWordRune) {
		if len(w) < 4 || stopwords[w] {
			continue
		}
		out = append(out, stem(w))
	}
	return out
}

// stem folds simple plurals so "ant" and "ants" match.
func stem(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}

func notWordRune(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
