package textsignal

import (
	"regexp"

	"github.com/bosley/coach/transcript"
)

// Default returns the built-in library tuned for residential service sales calls.
func Default() *Library {
	return &Library{
		Rules:       defaultRules(),
		Objections:  defaultObjections(),
		Techniques:  defaultTechniques(),
		Resolutions: Phrases(`that makes sense`, `that helps`, `good to know`, `fair enough`, `i see`, `okay,? that works`, `that's reassuring`, `that sounds reasonable`, `i feel better`, `that answers (?:it|my question)`),
		Windows: Weights{
			StrongBuying:        18,
			ModerateBuying:      10,
			Engagement:          6,
			Rapport:             8,
			SoftPositive:        4,
			StrongNegative:      -15,
			ModerateNegative:    -8,
			Hesitation:          -4,
			RepRapport:          5,
			RepStrongNegative:   -25,
			RepModerateNegative: -15,
		},
		Language: Weights{
			StrongBuying:        18,
			ModerateBuying:      10,
			Engagement:          6,
			Rapport:             8,
			SoftPositive:        4,
			StrongNegative:      -18,
			ModerateNegative:    -10,
			Hesitation:          -4,
			RepRapport:          4,
			RepStrongNegative:   -20,
			RepModerateNegative: -12,
		},
		Buying: Weights{
			StrongBuying:   18,
			ModerateBuying: 10,
			Engagement:     6,
		},
	}
}

func defaultRules() []Rule {
	cp, rep := transcript.Counterpart, transcript.Rep
	return []Rule{
		{StrongBuying, cp, Phrases(
			`let's do it`, `sign me up`, `when can you start`, `how soon can you`,
			`let's schedule`, `i'm ready`, `sounds like a plan`, `where do i sign`,
			`book (?:it|me|the)`, `i'll take it`, `we want to move forward`,
		)},
		{ModerateBuying, cp, Phrases(
			`how much`, `what does it cost`, `what's the price`, `pricing`,
			`how long does it take`, `what would that look like`, `do you offer`,
			`is there a warranty`, `financing`, `payment plan`, `what's included`,
		)},
		{Engagement, cp, Phrases(
			`tell me more`, `go on`, `interesting`, `really\?`, `how does (?:that|it) work`,
			`what do you mean`, `can you explain`, `what about`, `i've been wondering`,
		)},
		{Rapport, cp, Phrases(
			`thank you`, `thanks`, `i appreciate`, `you're right`, `good point`,
			`that's helpful`, `nice to meet you`, `you seem to know`,
		)},
		{SoftPositive, cp, Phrases(
			`okay`, `sure`, `alright`, `sounds good`, `that's fine`, `makes sense`, `i guess`,
		)},
		{StrongNegative, cp, Phrases(
			`not interested`, `go away`, `stop calling`, `waste of (?:my )?time`,
			`leave me alone`, `scam`, `ridiculous`, `absolutely not`, `no way`,
		)},
		{ModerateNegative, cp, Phrases(
			`too expensive`, `can't afford`, `don't need`, `not right now`,
			`i'm busy`, `don't trust`, `already have`, `not sure about`, `sounds like a lot`,
		)},
		{Hesitation, cp, Phrases(
			`maybe`, `i don't know`, `let me think`, `i'll think about it`,
			`talk to my (?:wife|husband|spouse|partner)`, `not sure`, `hmm+`, `we'll see`,
		)},
		{RepRapport, rep, Phrases(
			`thank you`, `i appreciate`, `i understand`, `great question`,
			`happy to help`, `that's a fair`, `absolutely`, `i hear you`,
		)},
		{RepStrongNegative, rep, Phrases(
			`stupid`, `idiot`, `shut up`, `whatever`, `you're wrong`,
			`that's dumb`, `are you kidding`, `obviously`, `ridiculous`,
		)},
		{RepModerateNegative, rep, Phrases(
			`you have to`, `you need to decide`, `just trust me`, `calm down`,
			`listen to me`, `don't worry about it`, `to be honest`, `like i said`,
		)},
	}
}

func defaultObjections() []Objection {
	o := func(name string, sev Severity, expr string) Objection {
		return Objection{Name: name, Severity: sev, Pattern: Phrases(expr)[0]}
	}
	return []Objection{
		o("not_interested", Critical, `not interested|no thanks|don't want it`),
		o("distrust", Critical, `don't trust|sounds like a scam|scam`),
		o("price", High, `too expensive|can't afford|costs? too much|out of (?:my|our) budget`),
		o("competitor", High, `already have (?:a|someone|somebody)|another company|use someone else`),
		o("no_need", Medium, `don't need|doesn't need|we're fine|nothing wrong`),
		o("timing", Medium, `not right now|bad time|maybe later|next year|not a good time`),
		o("authority", Low, `talk to my (?:wife|husband|spouse|partner)|ask my|check with`),
		o("think", Low, `think about it|let me think|need some time`),
	}
}

func defaultTechniques() map[Technique][]*regexp.Regexp {
	return map[Technique][]*regexp.Regexp{
		Empathy: Phrases(
			`i understand`, `i hear you`, `that makes sense`, `totally get`,
			`i get (?:it|that)`, `that's a fair`, `a lot of (?:people|homeowners) feel`,
		),
		Evidence: Phrases(
			`for example`, `our customers`, `studies show`, `reviews?`, `guarantee`,
			`warranty`, `certified`, `licensed`, `years of experience`, `\d+%`,
		),
		Question: Phrases(
			`what (?:specifically|exactly)`, `can you tell me`, `what would`,
			`how (?:would|do) you`, `is it the`, `what's your biggest`,
		),
		Reframe: Phrases(
			`what if`, `think of it`, `in the long run`, `save you`,
			`actually costs? less`, `compared to`, `the real cost`, `investment`,
		),
	}
}
