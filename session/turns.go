package session

import (
	"github.com/bosley/coach/conversation"
	"github.com/bosley/coach/persona"
	"github.com/bosley/coach/transcript"
)

// turnTracker holds the per-turn conversation state: the phase machine, the turn
// count and the simulated counterpart.
type turnTracker struct {
	fsm   conversation.State
	turns int
	sim   *persona.Simulator
}

func newTurnTracker(p persona.Persona) *turnTracker {
	return &turnTracker{fsm: conversation.Initial(), sim: persona.New(p)}
}

// observe processes one exchange. history is the conversation before it.
func (t *turnTracker) observe(repText, counterpartText string, history []transcript.Entry) TurnResult {
	effect := t.sim.ObserveRepTurn(repText)
	t.sim.ObserveCounterpartTurn(counterpartText)

	t.turns++
	if !t.fsm.IsTerminal() {
		t.fsm = conversation.Step(t.fsm, repText, counterpartText)
	}

	term := conversation.ShouldTerminate(t.turns, t.fsm, counterpartText, repText)
	if term.Terminal && !t.fsm.IsTerminal() {
		t.fsm = conversation.State{Phase: conversation.Terminal, Result: term.Result}
	}
	if !term.Terminal && t.fsm.IsTerminal() {
		term = conversation.Termination{Terminal: true, Result: t.fsm.Result, Reason: "conversation reached a terminal phase"}
	}

	history = append(history[:len(history):len(history)],
		transcript.Entry{Speaker: transcript.Rep, Text: repText},
		transcript.Entry{Speaker: transcript.Counterpart, Text: counterpartText})

	return TurnResult{
		Turn:        t.turns,
		State:       t.fsm,
		Termination: term,
		Effect:      effect,
		Persona:     t.sim.State(),
		Directive:   t.sim.BehavioralDirective(),
		Success:     t.sim.CheckSuccessCriteria(history),
	}
}

func (t *turnTracker) reset() {
	t.fsm = conversation.Initial()
	t.turns = 0
	t.sim.Reset()
}
