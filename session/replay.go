package session

import (
	"sort"
	"time"

	"github.com/bosley/coach/audio"
	"github.com/bosley/coach/conversation"
	"github.com/bosley/coach/energy"
	"github.com/bosley/coach/persona"
	"github.com/bosley/coach/sentiment"
	"github.com/bosley/coach/textsignal"
	"github.com/bosley/coach/transcript"
)

// Point is one simulated tick of a replay. Energy is nil while calibrating or when
// there is no audio; Sentiment is nil on ticks where nothing triggered an update.
type Point struct {
	Elapsed   time.Duration      `json:"elapsed"`
	Energy    *energy.Reading    `json:"energy,omitempty"`
	Sentiment *sentiment.Reading `json:"sentiment,omitempty"`
}

// Report is the outcome of a replay.
type Report struct {
	Timeline  []Point                    `json:"timeline"`
	Turns     []TurnResult               `json:"turns"`
	State     conversation.State         `json:"state"`
	Quality   conversation.QualityReport `json:"quality"`
	Energy    *energy.Reading            `json:"energy,omitempty"`
	Sentiment *sentiment.Reading         `json:"sentiment,omitempty"`
	Success   bool                       `json:"success"`
}

// Replay runs a recorded conversation through fresh engines on a simulated clock
// that starts at start and advances one energy tick at a time. clip and entries may
// each be empty.
func Replay(cfg Config, p persona.Persona, clip *audio.Clip, entries []transcript.Entry, start time.Time) Report {
	entries = append([]transcript.Entry(nil), entries...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })

	log := transcript.NewLog()
	en := energy.NewEngine(cfg.Energy, audio.NewExtractor(cfg.Extractor), energy.NewTranscriptPace(log, start))
	se := sentiment.NewEngine(cfg.Sentiment, textsignal.Default(), p.Sentiment())
	tick := en.Config().TickInterval
	fallback := se.Config().FallbackInterval

	var length time.Duration
	if clip != nil {
		length = clip.Duration()
	}
	if n := len(entries); n > 0 {
		if d := entries[n-1].Timestamp.Sub(start); d > length {
			length = d
		}
	}

	var rep Report
	next := 0
	var lastSentiment time.Duration

	for at := tick; at < length+tick; at += tick {
		appended := false
		for next < len(entries) && !entries[next].Timestamp.After(start.Add(at)) {
			log.Append(entries[next])
			next++
			appended = true
		}

		pt := Point{Elapsed: at}
		if clip != nil {
			if r, ok := en.Tick(clip.FrameAt(at, audio.DefaultFrameSize), at); ok {
				pt.Energy = &r
				rep.Energy = &r
			}
		}
		if appended || at-lastSentiment >= fallback {
			r := se.Update(log.Snapshot(), at)
			pt.Sentiment = &r
			rep.Sentiment = &r
			lastSentiment = at
		}
		rep.Timeline = append(rep.Timeline, pt)
	}

	if rep.Sentiment == nil {
		r := se.Update(log.Snapshot(), 0)
		rep.Sentiment = &r
	}

	turns := transcript.Turns(entries)
	conv := newTurnTracker(p)
	var history []transcript.Entry
	for _, t := range turns {
		res := conv.observe(t.Rep, t.Counterpart, history)
		rep.Turns = append(rep.Turns, res)
		rep.Success = res.Success
		if res.Termination.Terminal {
			break
		}
		history = append(history,
			transcript.Entry{Speaker: transcript.Rep, Text: t.Rep},
			transcript.Entry{Speaker: transcript.Counterpart, Text: t.Counterpart})
	}

	rep.State = conv.fsm
	rep.Quality = conversation.AnalyzeQuality(turns)
	return rep
}
