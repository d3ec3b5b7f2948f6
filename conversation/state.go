// Package conversation tracks the phase of a sales conversation and decides when it
// is over.
package conversation

import (
	"strings"

	"github.com/bosley/coach/textsignal"
)

// Phase is where the conversation currently is.
type Phase string

const (
	Opening    Phase = "opening"
	Discovery  Phase = "discovery"
	Value      Phase = "value"
	Objection  Phase = "objection"
	Cta        Phase = "cta"
	Scheduling Phase = "scheduling"
	Terminal   Phase = "terminal"
)

// Result is the outcome of a terminal conversation.
type Result string

const (
	None     Result = ""
	Rejected Result = "rejected"
	Advanced Result = "advanced"
	Closed   Result = "closed"
)

// State is the machine state. Result is set only when Phase is Terminal.
type State struct {
	Phase  Phase  `json:"phase"`
	Result Result `json:"result,omitempty"`
}

// Initial is the state every conversation starts in.
func Initial() State {
	return State{Phase: Opening}
}

// IsTerminal reports whether the conversation has ended.
func (s State) IsTerminal() bool {
	return s.Phase == Terminal
}

// signals is what one turn says, as far as transitions care.
type signals struct {
	cta       bool
	objection bool
	question  bool
	interest  bool
	confirm   bool
}

// Step returns the state that follows s after the rep said repText and the counterpart
// replied counterpartText. It is a pure function of its inputs and defined for any
// strings, including empty ones.
func Step(s State, repText, counterpartText string) State {
	rep := textsignal.Normalize(repText)
	cp := textsignal.Normalize(counterpartText)

	// Hard checks pre-empt the table, in this order.
	switch {
	case textsignal.MatchAny(rejectionPhrases, cp):
		return State{Phase: Terminal, Result: Rejected}
	case s.IsTerminal():
		return s
	case textsignal.MatchAny(advancementPhrases, cp):
		return State{Phase: Terminal, Result: Advanced}
	case textsignal.MatchAny(closePhrases, cp):
		return State{Phase: Terminal, Result: Closed}
	}

	sig := signals{
		cta:       textsignal.MatchAny(ctaPhrases, rep),
		objection: textsignal.MatchAny(objectionPhrases, cp),
		question:  textsignal.MatchAny(discoveryPhrases, rep) || strings.Contains(rep, "?"),
		interest:  textsignal.MatchAny(interestPhrases, cp),
		confirm:   textsignal.MatchAny(confirmPhrases, cp),
	}

	next, ok := transitions[s.Phase]
	if !ok {
		return Initial()
	}
	return next(sig)
}

type transition func(signals) State

func to(p Phase) State {
	return State{Phase: p}
}

var transitions = map[Phase]transition{
	Opening: func(s signals) State {
		switch {
		case s.objection:
			return to(Objection)
		case s.cta:
			return to(Cta)
		default:
			return to(Discovery)
		}
	},
	Discovery: func(s signals) State {
		switch {
		case s.objection:
			return to(Objection)
		case s.interest || s.question:
			return to(Value)
		case s.cta:
			return to(Cta)
		default:
			return to(Value)
		}
	},
	Value: func(s signals) State {
		switch {
		case s.objection:
			return to(Objection)
		case s.cta:
			return to(Cta)
		default:
			return to(Value)
		}
	},
	Objection: func(s signals) State {
		switch {
		case s.objection:
			return to(Objection)
		case s.cta:
			return to(Cta)
		default:
			return to(Value)
		}
	},
	Cta: func(s signals) State {
		switch {
		case s.objection:
			return to(Objection)
		case s.confirm || s.interest:
			return to(Scheduling)
		default:
			return to(Cta)
		}
	},
	Scheduling: func(s signals) State {
		switch {
		case s.objection:
			return to(Objection)
		case s.confirm:
			return State{Phase: Terminal, Result: Advanced}
		default:
			return to(Scheduling)
		}
	},
}

var (
	rejectionPhrases = textsignal.Phrases(
		`not interested`, `go away`, `get off my (?:property|porch|lawn)`, `stop calling`,
		`leave me alone`, `don't come back`, `i said no`, `no solicitors?`, `hang(?:ing)? up`,
	)
	advancementPhrases = textsignal.Phrases(
		`let's schedule`, `schedule (?:the|an|a) (?:inspection|appointment|visit|assessment)`,
		`book (?:the|an|a) (?:inspection|appointment|visit)`, `come (?:by|out) (?:on|next|this)`,
		`set up (?:a|an|the) (?:time|appointment|inspection)`,
	)
	closePhrases = textsignal.Phrases(
		`sign me up`, `where do i sign`, `i'll take it`, `let's do it`, `you've got a deal`, `it's a deal`,
	)
	ctaPhrases = textsignal.Phrases(
		`schedule`, `book`, `set up`, `free inspection`, `come (?:by|out)`, `does (?:\w+ )?work for you`,
		`would you like to`, `can i put you down`, `get you on the calendar`, `next step`, `sign up`,
	)
	objectionPhrases = textsignal.Phrases(
		`too expensive`, `can't afford`, `costs? too much`, `don't need`, `not right now`, `bad time`,
		`already have`, `don't trust`, `think about it`, `talk to my (?:wife|husband|spouse|partner)`,
		`not sure`, `sounds like a scam`, `no budget`,
	)
	discoveryPhrases = textsignal.Phrases(
		`what (?:kind|type|made|brings)`, `how (?:long|often|old|much)`, `have you (?:ever|noticed|had)`,
		`tell me about`, `do you (?:have|get|see|notice)`, `are you (?:seeing|having|dealing)`,
		`what's your`, `when did`,
	)
	interestPhrases = textsignal.Phrases(
		`tell me more`, `interesting`, `how does (?:that|it) work`, `what would`, `how much`,
		`that sounds (?:good|great|helpful)`, `we've had`, `we have (?:a|some)`, `really\?`,
		`i've noticed`, `go on`,
	)
	confirmPhrases = textsignal.Phrases(
		`yes`, `yeah`, `sure`, `okay`, `ok`, `sounds good`, `that works`, `works for me`,
		`let's do`, `i'm free`, `see you then`, `that's fine`, `perfect`,
	)
)

