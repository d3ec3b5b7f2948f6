package persona

import (
	"strings"
	"testing"

	"github.com/bosley/coach/transcript"
)

func testPersona(role Role, painPoints ...string) Persona {
	return Persona{
		ID:         "test",
		Name:       "Test Person",
		Role:       role,
		Difficulty: Medium,
		PainPoints: painPoints,
		Objections: []string{"It's too expensive."},
		HiddenGoal: "Wants it done before summer.",
	}
}

func TestInitialState(t *testing.T) {
	tests := []struct {
		role       Role
		painPoints int
		trust      int
		interest   int
	}{
		{RoleHomeowner, 2, 0, 4},
		{RoleSkeptic, 1, -3, 3},
		{RoleBusy, 0, -1, 2},
		{RoleBudget, 3, -1, 5},
		{RoleFriendly, 12, 2, 10},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			p := testPersona(tt.role, make([]string, tt.painPoints)...)
			st := New(p).State()
			if st.Trust != tt.trust || st.Interest != tt.interest {
				t.Errorf("expected trust %d interest %d, got %+v", tt.trust, tt.interest, st)
			}
		})
	}
}

func TestHighPressureLowersTrustByTwo(t *testing.T) {
	sim := New(testPersona(RoleHomeowner))

	eff := sim.ObserveRepTurn("It's today only, special deal!")
	if eff.TrustDelta != -2 {
		t.Errorf("expected trust -2, got %+v", eff)
	}
	if sim.State().Trust != -2 {
		t.Errorf("expected trust -2, got %d", sim.State().Trust)
	}

	for i := 0; i < 10; i++ {
		sim.ObserveRepTurn("Today only, special deal.")
	}
	if sim.State().Trust != MinTrust {
		t.Errorf("expected trust to clamp at %d, got %d", MinTrust, sim.State().Trust)
	}
}

func TestRepTurnRules(t *testing.T) {
	tests := []struct {
		name       string
		painPoints []string
		lastCP     string
		rep        string
		trust      int
		interest   int
	}{
		{"local reference", nil, "", "We're a local company.", 2, 0},
		{"guarantee", nil, "", "Everything comes with a guarantee.", 1, 0},
		{"safety", nil, "", "It's safe for pets.", 1, 0},
		{"free inspection", nil, "", "We offer a free inspection.", 1, 0},
		{"stacked trust rules", nil, "", "Local team, free inspection, backed by our warranty.", 4, 0},
		{"ignored safety question", nil, "Is it safe for my kids?", "Our service runs monthly.", -1, 0},
		{"answered safety question", nil, "Is it safe for my kids?", "Yes, it's safe around children.", 1, 0},
		{"monologue", nil, "", strings.Repeat("word ", 81), -1, 0},
		{"long but asks", nil, "", strings.Repeat("word ", 81) + "right?", 0, 0},
		{"pain point", []string{"ants in the kitchen"}, "", "We handle ant problems in kitchens all the time", 0, 2},
		{"prevention", nil, "", "Treating now helps prevent an infestation.", 0, 1},
		{"generic pitch", nil, "", "Honestly everyone needs this.", 0, -1},
		{"empty turn", nil, "", "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := New(testPersona(RoleHomeowner, tt.painPoints...))
			before := sim.State()
			if tt.lastCP != "" {
				sim.ObserveCounterpartTurn(tt.lastCP)
			}
			eff := sim.ObserveRepTurn(tt.rep)
			after := sim.State()

			if eff.TrustDelta != tt.trust || after.Trust-before.Trust != tt.trust {
				t.Errorf("expected trust delta %d, got %+v (rules %v)", tt.trust, eff.TrustDelta, eff.Rules)
			}
			if eff.InterestDelta != tt.interest || after.Interest-before.Interest != tt.interest {
				t.Errorf("expected interest delta %d, got %+v (rules %v)", tt.interest, eff.InterestDelta, eff.Rules)
			}
			if after.TurnsElapsed != 1 || len(after.Log) != 1 {
				t.Errorf("expected one recorded turn, got %+v", after)
			}
		})
	}
}

func TestBehavioralDirective(t *testing.T) {
	sim := New(testPersona(RoleSkeptic))
	for i := 0; i < 3; i++ {
		sim.ObserveRepTurn("Today only!")
	}
	d := sim.BehavioralDirective()
	for _, want := range []string{"VERY SKEPTICAL", "LOW INTEREST", "Demand proof", "too expensive"} {
		if !strings.Contains(d, want) {
			t.Errorf("expected directive to contain %q, got %q", want, d)
		}
	}
	if strings.Contains(d, "IMPATIENT") {
		t.Errorf("expected no impatience after 3 turns, got %q", d)
	}

	friendly := New(testPersona(RoleFriendly, "a", "b", "c", "d", "e"))
	for i := 0; i < 9; i++ {
		friendly.ObserveRepTurn("We're local and it's guaranteed.")
	}
	d = friendly.BehavioralDirective()
	for _, want := range []string{"TRUSTING", "HIGH INTEREST", "GETTING IMPATIENT", "before summer"} {
		if !strings.Contains(d, want) {
			t.Errorf("expected directive to contain %q, got %q", want, d)
		}
	}
}

func TestCheckSuccessCriteria(t *testing.T) {
	p := testPersona(RoleHomeowner, "a", "b", "c", "d")
	p.Success = SuccessCriteria{RequiresScheduling: true, RequiresBudget: true}

	history := []transcript.Entry{
		{Speaker: transcript.Rep, Text: "The plan is $49 per month."},
		{Speaker: transcript.Counterpart, Text: "Okay, can you come by Tuesday?"},
	}

	sim := New(p)
	if sim.CheckSuccessCriteria(history) {
		t.Error("expected neutral trust to fail the gate")
	}

	sim.ObserveRepTurn("We're local.")
	if !sim.CheckSuccessCriteria(history) {
		t.Errorf("expected success with state %+v", sim.State())
	}
	if sim.CheckSuccessCriteria(history[:1]) {
		t.Error("expected missing scheduling to fail")
	}

	cold := New(testPersona(RoleFriendly))
	if cold.CheckSuccessCriteria(history) {
		t.Error("expected low interest to fail")
	}
}
