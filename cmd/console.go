package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bosley/coach/conversation"
	"github.com/bosley/coach/energy"
	"github.com/bosley/coach/sentiment"
	"github.com/bosley/coach/session"
	"github.com/google/uuid"
)

// console prints score updates as they arrive.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *console) PublishEnergy(_ uuid.UUID, r energy.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "[%6.1fs] energy    %5.1f %-8s volume=%5.1f pitch=%5.1f pace=%5.1f (%s) ratio=%5.1f\n",
		r.Elapsed.Seconds(), r.Score, r.Level,
		r.Factors.VolumeLevel, r.Factors.PitchVariation, r.Factors.SpeakingPace, r.PaceSource, r.Factors.SpeakingRatio)
}

func (c *console) PublishSentiment(_ uuid.UUID, r sentiment.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "[%6.1fs] sentiment %5.1f %-8s transcript=%5.1f buying=%5.1f objections=%5.1f language=%5.1f\n",
		r.Elapsed.Seconds(), r.Score, r.Level,
		r.Factors.TranscriptSentiment, r.Factors.BuyingSignals, r.Factors.ObjectionResolution, r.Factors.PositiveLanguage)
}

func (c *console) turn(res session.TurnResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "turn %d: phase=%s trust=%d interest=%d", res.Turn, res.State.Phase, res.Persona.Trust, res.Persona.Interest)
	if len(res.Effect.Rules) > 0 {
		fmt.Fprintf(c.w, " rules=%s", strings.Join(res.Effect.Rules, ","))
	}
	fmt.Fprintln(c.w)
	if res.Termination.Terminal {
		fmt.Fprintf(c.w, "  conversation over: %s (%s)\n", res.Termination.Result, res.Termination.Reason)
	}
	fmt.Fprintf(c.w, "  directive: %s\n", res.Directive)
}

func (c *console) quality(q conversation.QualityReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "quality %.0f/100: discovery=%.0f value=%.0f objections=%.0f cta=%.0f\n",
		q.Total, q.Discovery, q.Value, q.Objections, q.Cta)
	for _, s := range q.Suggestions {
		fmt.Fprintf(c.w, "  - %s\n", s)
	}
}

// publishers fans updates out to several publishers.
type publishers []session.Publisher

func (p publishers) PublishEnergy(id uuid.UUID, r energy.Reading) {
	for _, pub := range p {
		pub.PublishEnergy(id, r)
	}
}

func (p publishers) PublishSentiment(id uuid.UUID, r sentiment.Reading) {
	for _, pub := range p {
		pub.PublishSentiment(id, r)
	}
}
