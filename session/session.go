// Package session runs the coaching engines for one conversation.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bosley/coach/audio"
	"github.com/bosley/coach/conversation"
	"github.com/bosley/coach/energy"
	"github.com/bosley/coach/persona"
	"github.com/bosley/coach/sentiment"
	"github.com/bosley/coach/textsignal"
	"github.com/bosley/coach/transcript"
	"github.com/google/uuid"
)

// Config bundles the engine tuning a session is built with.
type Config struct {
	Extractor audio.ExtractorConfig `yaml:"audio"`
	Energy    energy.Config         `yaml:"energy"`
	Sentiment sentiment.Config      `yaml:"sentiment"`
}

// DefaultConfig returns the production tuning of every engine.
func DefaultConfig() Config {
	return Config{
		Extractor: audio.DefaultExtractorConfig(),
		Energy:    energy.DefaultConfig(),
		Sentiment: sentiment.DefaultConfig(),
	}
}

// Publisher receives score updates as they are produced.
type Publisher interface {
	PublishEnergy(id uuid.UUID, r energy.Reading)
	PublishSentiment(id uuid.UUID, r sentiment.Reading)
}

// TurnResult is what processing one rep/counterpart exchange produced.
type TurnResult struct {
	Turn        int                      `json:"turn"`
	State       conversation.State       `json:"state"`
	Termination conversation.Termination `json:"termination"`
	Effect      persona.TurnEffect       `json:"effect"`
	Persona     persona.State            `json:"persona"`
	Directive   string                   `json:"directive"`
	Success     bool                     `json:"success"`
}

// Status is a point in time view of a session.
type Status struct {
	ID           uuid.UUID          `json:"id"`
	PersonaID    string             `json:"personaId"`
	Created      time.Time          `json:"created"`
	Started      time.Time          `json:"started,omitempty"`
	Running      bool               `json:"running"`
	EnergyActive bool               `json:"energyActive"`
	AudioError   string             `json:"audioError,omitempty"`
	Energy       *energy.Reading    `json:"energy,omitempty"`
	Sentiment    *sentiment.Reading `json:"sentiment,omitempty"`
	State        conversation.State `json:"state"`
	Turns        int                `json:"turns"`
	Entries      int                `json:"entries"`
}

// Summary is the final view of a session returned by Stop.
type Summary struct {
	Status
	Quality conversation.QualityReport `json:"quality"`
}

// Session owns one instance of every engine. The energy engine runs on its own timer
// goroutine and the sentiment engine on another; turn processing is synchronous.
type Session struct {
	id      uuid.UUID
	persona persona.Persona
	created time.Time
	source  audio.FrameSource
	pub     Publisher
	now     func() time.Time

	tick     time.Duration
	fallback time.Duration

	log       *transcript.Log
	pace      *energy.TranscriptPace
	energy    *energy.Engine
	sentiment *sentiment.Engine

	// guards everything below, but not the engines: each engine is only touched by
	// its own goroutine while the session runs.
	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	start         time.Time
	running       bool
	stopping      bool
	audioRunning  bool
	audioStarting bool
	audioErr      error
	lastEnergy    *energy.Reading
	lastSentiment *sentiment.Reading
	conv          *turnTracker
	wg            sync.WaitGroup
}

// New creates a stopped session for p. source may be nil for a text only session.
// pub may be nil.
func New(cfg Config, p persona.Persona, source audio.FrameSource, pub Publisher) *Session {
	log := transcript.NewLog()
	pace := energy.NewTranscriptPace(log, time.Time{})

	s := &Session{
		id:        uuid.New(),
		persona:   p,
		created:   time.Now(),
		source:    source,
		pub:       pub,
		now:       time.Now,
		log:       log,
		pace:      pace,
		energy:    energy.NewEngine(cfg.Energy, audio.NewExtractor(cfg.Extractor), pace),
		sentiment: sentiment.NewEngine(cfg.Sentiment, textsignal.Default(), p.Sentiment()),
		conv:      newTurnTracker(p),
	}
	s.tick = s.energy.Config().TickInterval
	s.fallback = s.sentiment.Config().FallbackInterval
	return s
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Persona() persona.Persona {
	return s.persona
}

// Transcript returns the session's transcript log.
func (s *Session) Transcript() *transcript.Log {
	return s.log
}

// Start begins scoring. If the audio source cannot be opened the session still scores
// text and Start returns an *AudioError; RetryAudio can reacquire audio later.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.stopping {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.start = s.now()
	s.pace.Start = s.start
	s.running = true
	sctx := s.ctx
	s.wg.Add(1)
	withAudio := s.claimAudioLocked()
	s.mu.Unlock()

	slog.Info("Session started", "sessionID", s.id, "persona", s.persona.ID)

	go s.sentimentLoop(sctx)

	if !withAudio {
		return nil
	}
	return s.startAudio(sctx)
}

// RetryAudio re-attempts audio acquisition after a failure. It is a no-op while audio
// is flowing or another attempt is in progress.
func (s *Session) RetryAudio(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if s.source == nil {
		s.mu.Unlock()
		return &AudioError{SessionID: s.id.String(), Err: fmt.Errorf("no audio source")}
	}
	if !s.claimAudioLocked() {
		s.mu.Unlock()
		return nil
	}
	sctx := s.ctx
	s.mu.Unlock()

	slog.Info("Retrying audio acquisition", "sessionID", s.id)
	return s.startAudio(sctx)
}

// claimAudioLocked reserves the right to launch the energy goroutine. At most one
// energy goroutine exists per run; the caller must hold s.mu and the session must be
// running, so the WaitGroup is never grown while Stop waits on it.
func (s *Session) claimAudioLocked() bool {
	if s.source == nil || !s.running || s.audioRunning || s.audioStarting {
		return false
	}
	s.audioStarting = true
	s.wg.Add(1)
	return true
}

// startAudio launches the claimed energy goroutine and waits until it has tried to
// open the source. The goroutine that opens the source is the one that closes it.
func (s *Session) startAudio(ctx context.Context) error {
	opened := make(chan error, 1)
	go s.energyLoop(ctx, opened)

	if err := <-opened; err != nil {
		slog.Error("Failed to acquire audio", "error", err, "sessionID", s.id)
		return err
	}
	return nil
}

func (s *Session) energyLoop(ctx context.Context, opened chan<- error) {
	defer s.wg.Done()

	if err := s.source.Open(ctx); err != nil {
		s.energy.Disable(err)
		audioErr := &AudioError{SessionID: s.id.String(), Err: err}
		s.mu.Lock()
		s.audioErr = audioErr
		s.audioStarting = false
		s.mu.Unlock()
		opened <- audioErr
		return
	}
	defer func() {
		if err := s.source.Close(); err != nil {
			slog.Error("Failed to release audio source", "error", err, "sessionID", s.id)
		}
		s.mu.Lock()
		s.audioRunning = false
		s.mu.Unlock()
	}()

	s.energy.Enable()
	s.mu.Lock()
	s.audioRunning = true
	s.audioStarting = false
	s.audioErr = nil
	s.mu.Unlock()
	opened <- nil

	timer := time.NewTimer(s.tick)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.tickEnergy()

		// Re-arm only after the tick completed so ticks never overlap.
		timer.Reset(s.tick)
	}
}

func (s *Session) tickEnergy() {
	frame, ok := s.source.Latest()
	if !ok {
		return
	}

	reading, ok := s.energy.Tick(frame, s.elapsed())
	if !ok {
		return
	}

	s.mu.Lock()
	s.lastEnergy = &reading
	s.mu.Unlock()

	if s.pub != nil {
		s.pub.PublishEnergy(s.id, reading)
	}
}

func (s *Session) sentimentLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.fallback)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.log.Updates():
			s.recomputeSentiment()
		case <-ticker.C:
			s.recomputeSentiment()
		}
	}
}

// recomputeSentiment is the single update path for both sentiment triggers.
func (s *Session) recomputeSentiment() {
	reading := s.sentiment.Update(s.log.Snapshot(), s.elapsed())

	s.mu.Lock()
	s.lastSentiment = &reading
	s.mu.Unlock()

	if s.pub != nil {
		s.pub.PublishSentiment(s.id, reading)
	}
}

func (s *Session) elapsed() time.Duration {
	s.mu.Lock()
	start := s.start
	s.mu.Unlock()

	if start.IsZero() {
		return 0
	}
	if d := s.now().Sub(start); d > 0 {
		return d
	}
	return 0
}

// Append adds a transcript entry. A zero timestamp means now.
func (s *Session) Append(e transcript.Entry) (transcript.Entry, error) {
	switch e.Speaker {
	case transcript.Rep, transcript.Counterpart:
	default:
		return transcript.Entry{}, fmt.Errorf("invalid speaker %q", e.Speaker)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	return s.log.Append(e), nil
}

// ObserveTurn processes one exchange: the rep said repText and the counterpart
// answered counterpartText. It advances the phase machine, applies the termination
// guard and updates the persona. The utterances are not appended to the transcript.
func (s *Session) ObserveTurn(repText, counterpartText string) TurnResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.conv.observe(repText, counterpartText, s.log.Snapshot())

	slog.Debug("Turn processed",
		"sessionID", s.id,
		"turn", res.Turn,
		"phase", res.State.Phase,
		"result", res.State.Result,
		"trust", res.Persona.Trust,
		"interest", res.Persona.Interest)

	if res.Termination.Terminal {
		slog.Info("Conversation terminal", "sessionID", s.id, "result", res.Termination.Result, "reason", res.Termination.Reason)
	}

	return res
}

// Quality scores the conversation so far.
func (s *Session) Quality() conversation.QualityReport {
	return conversation.AnalyzeQuality(transcript.Turns(s.log.Snapshot()))
}

// Status returns the current view of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	st := Status{
		ID:           s.id,
		PersonaID:    s.persona.ID,
		Created:      s.created,
		Started:      s.start,
		Running:      s.running,
		EnergyActive: s.audioRunning,
		Energy:       s.lastEnergy,
		Sentiment:    s.lastSentiment,
		State:        s.conv.fsm,
		Turns:        s.conv.turns,
		Entries:      s.log.Len(),
	}
	if s.audioErr != nil {
		st.AudioError = s.audioErr.Error()
	}
	return st
}

// AudioErr returns the last audio acquisition failure, if audio is not flowing.
func (s *Session) AudioErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioErr
}

// Stop halts both goroutines, releases the audio source, and resets every engine so
// the session can be started again from scratch. It returns the final view.
func (s *Session) Stop() Summary {
	s.mu.Lock()
	if !s.running {
		sum := Summary{Status: s.statusLocked()}
		s.mu.Unlock()
		return sum
	}
	s.cancel()
	s.running = false
	s.stopping = true
	s.mu.Unlock()

	s.wg.Wait()

	sum := Summary{Status: s.Status(), Quality: s.Quality()}

	s.energy.Reset()
	s.sentiment.Reset()
	s.log.Reset()

	s.mu.Lock()
	s.stopping = false
	s.start = time.Time{}
	s.lastEnergy = nil
	s.lastSentiment = nil
	s.audioErr = nil
	s.conv.reset()
	s.mu.Unlock()

	slog.Info("Session stopped", "sessionID", s.id, "turns", sum.Turns, "entries", sum.Entries)
	return sum
}
