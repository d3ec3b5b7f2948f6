package conversation

import "github.com/bosley/coach/textsignal"

// MaxTurns is the longest conversation allowed before it is called off.
const MaxTurns = 20

// Termination is the verdict of ShouldTerminate.
type Termination struct {
	Terminal bool   `json:"terminal"`
	Result   Result `json:"result,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

var (
	donePhrases = textsignal.Phrases(
		`i'm done`, `we're done`, `this conversation is over`, `i have to go`, `i need to go`,
		`gotta go`, `goodbye`, `bye`, `have a good (?:day|one|night)`, `please leave`,
	)
	wrapUpPhrases = textsignal.Phrases(
		`thanks for your time`, `thank you for your time`, `i'll let you go`, `have a great (?:day|evening)`,
		`i'll see you (?:then|on)`, `talk soon`, `i'll be in touch`, `take care`,
	)
)

// ShouldTerminate decides independently of Step whether the conversation must end now.
func ShouldTerminate(turnCount int, s State, lastCounterpart, lastRep string) Termination {
	if s.IsTerminal() {
		return Termination{Terminal: true, Result: s.Result, Reason: "conversation already ended"}
	}
	if turnCount > MaxTurns {
		return Termination{Terminal: true, Result: Rejected, Reason: "exceeded maximum length"}
	}
	if textsignal.MatchAny(donePhrases, textsignal.Normalize(lastCounterpart)) {
		return Termination{Terminal: true, Result: Rejected, Reason: "counterpart ended the conversation"}
	}
	if textsignal.MatchAny(wrapUpPhrases, textsignal.Normalize(lastRep)) {
		if s.Phase == Cta || s.Phase == Scheduling {
			return Termination{Terminal: true, Result: Advanced, Reason: "rep wrapped up after the ask"}
		}
		return Termination{Terminal: true, Result: Rejected, Reason: "rep wrapped up without an ask"}
	}
	return Termination{}
}
