package conversation

import (
	"testing"

	"github.com/bosley/coach/transcript"
)

var allPhases = []Phase{Opening, Discovery, Value, Objection, Cta, Scheduling, Terminal}

func TestHardRejectionFromAnyState(t *testing.T) {
	for _, p := range allPhases {
		for _, r := range []Result{None, Advanced, Closed} {
			s := State{Phase: p}
			if p == Terminal {
				s.Result = r
			}
			got := Step(s, "Can I tell you about our service?", "Not interested, go away.")
			if got != (State{Phase: Terminal, Result: Rejected}) {
				t.Errorf("from %+v: expected terminal/rejected, got %+v", s, got)
			}
		}
	}
}

func TestHardAdvancementAndClose(t *testing.T) {
	for _, p := range allPhases[:len(allPhases)-1] {
		s := State{Phase: p}
		if got := Step(s, "", "Okay, let's schedule the inspection."); got != (State{Phase: Terminal, Result: Advanced}) {
			t.Errorf("from %s: expected terminal/advanced, got %+v", p, got)
		}
		if got := Step(s, "", "Sign me up."); got != (State{Phase: Terminal, Result: Closed}) {
			t.Errorf("from %s: expected terminal/closed, got %+v", p, got)
		}
	}
}

func TestStepTransitions(t *testing.T) {
	tests := []struct {
		name string
		from Phase
		rep  string
		cp   string
		want State
	}{
		{"opening default", Opening, "Hi, I'm Sam with Acme Pest.", "Hello.", to(Discovery)},
		{"opening objection", Opening, "Hi there.", "We already have someone.", to(Objection)},
		{"opening ask", Opening, "Can I book you a free inspection?", "Hmm.", to(Cta)},
		{"discovery objection", Discovery, "How long have you lived here?", "It's too expensive probably.", to(Objection)},
		{"discovery question", Discovery, "Have you noticed any ants?", "A few.", to(Value)},
		{"discovery interest", Discovery, "We treat the perimeter.", "Tell me more.", to(Value)},
		{"discovery default", Discovery, "We're local.", "Okay.", to(Value)},
		{"value stays", Value, "It lasts all season.", "Uh huh.", to(Value)},
		{"value ask", Value, "Would you like to get on the schedule?", "Hmm.", to(Cta)},
		{"objection repeated", Objection, "I hear you.", "I don't trust these companies.", to(Objection)},
		{"objection recovered", Objection, "Our warranty covers it.", "Hm.", to(Value)},
		{"cta confirm", Cta, "Does Tuesday work for you?", "Yeah, probably.", to(Scheduling)},
		{"cta no answer", Cta, "Shall we?", "Hmm.", to(Cta)},
		{"cta objection", Cta, "Does Tuesday work?", "I need to talk to my wife.", to(Objection)},
		{"scheduling confirm", Scheduling, "Morning or afternoon?", "Morning works for me.", State{Phase: Terminal, Result: Advanced}},
		{"scheduling waits", Scheduling, "Which day?", "Hmm.", to(Scheduling)},
		{"scheduling hesitation", Scheduling, "Morning ok?", "Not sure yet.", to(Objection)},
		{"terminal stays", Terminal, "Hello?", "Sure.", State{Phase: Terminal}},
		{"empty input", Opening, "", "", to(Discovery)},
		{"unknown phase", Phase("bogus"), "", "", Initial()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Step(State{Phase: tt.from}, tt.rep, tt.cp); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestStepIsDeterministic(t *testing.T) {
	inputs := [][2]string{
		{"Can I set up a time?", "Maybe later."},
		{"", ""},
		{"What brings you here?", "Tell me more"},
	}
	for _, p := range allPhases {
		for _, in := range inputs {
			a := Step(State{Phase: p}, in[0], in[1])
			b := Step(State{Phase: p}, in[0], in[1])
			if a != b {
				t.Errorf("expected identical results, got %+v and %+v", a, b)
			}
		}
	}
}

func TestShouldTerminate(t *testing.T) {
	tests := []struct {
		name  string
		turns int
		state State
		cp    string
		rep   string
		want  Termination
	}{
		{"keeps going", 5, to(Value), "Tell me more.", "Sure.", Termination{}},
		{"at limit", 20, to(Value), "", "", Termination{}},
		{"too long", 21, to(Value), "", "", Termination{Terminal: true, Result: Rejected, Reason: "exceeded maximum length"}},
		{"counterpart done", 3, to(Discovery), "Sorry, I have to go.", "", Termination{Terminal: true, Result: Rejected, Reason: "counterpart ended the conversation"}},
		{"wrap up after ask", 8, to(Scheduling), "Okay.", "Thanks for your time, I'll see you then.", Termination{Terminal: true, Result: Advanced, Reason: "rep wrapped up after the ask"}},
		{"wrap up without ask", 4, to(Value), "Okay.", "Well, thanks for your time.", Termination{Terminal: true, Result: Rejected, Reason: "rep wrapped up without an ask"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldTerminate(tt.turns, tt.state, tt.cp, tt.rep); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestAnalyzeQuality(t *testing.T) {
	strong := []transcript.Turn{
		{Rep: "Hi! How long have you lived here? Have you noticed any pests?", Counterpart: "We've had ants."},
		{Rep: "What kind of ants? Do you see them in the kitchen?", Counterpart: "It sounds too expensive though."},
		{Rep: "I understand. Our guarantee protects your family and will save you money long-term.", Counterpart: "Okay."},
		{Rep: "Can I schedule a free inspection? Does Tuesday work for you?", Counterpart: "Yes, Tuesday is fine."},
	}
	weak := []transcript.Turn{
		{Rep: "We do pest control.", Counterpart: "We don't need it."},
		{Rep: "It's good.", Counterpart: "Not right now."},
	}

	s := AnalyzeQuality(strong)
	w := AnalyzeQuality(weak)

	if s.Total <= w.Total {
		t.Errorf("expected strong conversation %v to outscore weak %v", s.Total, w.Total)
	}
	for _, r := range []QualityReport{s, w} {
		for _, v := range []float64{r.Discovery, r.Value, r.Objections, r.Cta} {
			if v < 0 || v > 25 {
				t.Errorf("expected area score in [0,25], got %+v", r)
			}
		}
	}
	if s.Objections != 25 {
		t.Errorf("expected the handled objection to score 25, got %v", s.Objections)
	}
	if len(w.Suggestions) != 4 {
		t.Errorf("expected four suggestions for the weak conversation, got %v", w.Suggestions)
	}
	if got := AnalyzeQuality(nil); got.Objections != 25 || got.Total != 25 {
		t.Errorf("expected an empty conversation to score only the objection area, got %+v", got)
	}
}
