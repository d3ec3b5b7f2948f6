package session

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bosley/coach/audio"
	"github.com/bosley/coach/conversation"
	"github.com/bosley/coach/energy"
	"github.com/bosley/coach/persona"
	"github.com/bosley/coach/sentiment"
	"github.com/bosley/coach/transcript"
	"github.com/google/uuid"
)

type fakeSource struct {
	mu      sync.Mutex
	openErr error
	frame   audio.Frame
	opened  int
	closed  int
}

func (f *fakeSource) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened++
	return nil
}

func (f *fakeSource) Latest() (audio.Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame, f.frame.Len() > 0
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSource) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

type recorder struct {
	energy    chan energy.Reading
	sentiment chan sentiment.Reading
}

func newRecorder() *recorder {
	return &recorder{
		energy:    make(chan energy.Reading, 1024),
		sentiment: make(chan sentiment.Reading, 1024),
	}
}

func (r *recorder) PublishEnergy(_ uuid.UUID, e energy.Reading) {
	select {
	case r.energy <- e:
	default:
	}
}

func (r *recorder) PublishSentiment(_ uuid.UUID, s sentiment.Reading) {
	select {
	case r.sentiment <- s:
	default:
	}
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Energy.TickInterval = 10 * time.Millisecond
	cfg.Energy.CalibrationWindow = 0
	cfg.Sentiment.FallbackInterval = 20 * time.Millisecond
	return cfg
}

func voiced() audio.Frame {
	samples := make([]float64, audio.DefaultFrameSize)
	for i := range samples {
		samples[i] = 0.3 * math.Sin(2*math.Pi*150*float64(i)/audio.DefaultSampleRate)
	}
	return audio.Frame{Samples: samples, SampleRate: audio.DefaultSampleRate}
}

func testPersona(t *testing.T) persona.Persona {
	t.Helper()
	c, err := persona.NewCatalog("")
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	p, err := c.Get("skeptic")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return p
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func TestSessionPublishesScores(t *testing.T) {
	src := &fakeSource{frame: voiced()}
	rec := newRecorder()
	s := New(fastConfig(), testPersona(t), src, rec)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	e := waitFor(t, rec.energy, "energy reading")
	if e.Score < 0 || e.Score > 100 || !e.Voice {
		t.Errorf("unexpected energy reading %+v", e)
	}

	if _, err := s.Append(transcript.Entry{Speaker: transcript.Counterpart, Text: "Sign me up!"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	r := waitFor(t, rec.sentiment, "sentiment reading")
	if r.Score < 0 || r.Score > 100 {
		t.Errorf("unexpected sentiment reading %+v", r)
	}

	st := s.Status()
	if !st.Running || !st.EnergyActive || st.PersonaID != "skeptic" {
		t.Errorf("unexpected status %+v", st)
	}

	sum := s.Stop()
	if sum.Entries != 1 || sum.Running {
		t.Errorf("unexpected summary %+v", sum.Status)
	}
	if opened, closed := src.counts(); opened != 1 || closed != 1 {
		t.Errorf("expected the source to be opened and closed once, got %d/%d", opened, closed)
	}

	after := s.Status()
	if after.Running || after.Entries != 0 || after.Energy != nil || after.State != conversation.Initial() {
		t.Errorf("expected Stop to reset the session, got %+v", after)
	}
}

func TestSessionEmptyTranscriptReportsStartingSentiment(t *testing.T) {
	rec := newRecorder()
	p := testPersona(t)
	s := New(fastConfig(), p, nil, rec)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	r := waitFor(t, rec.sentiment, "fallback sentiment reading")
	if r.Score != p.Sentiment() {
		t.Errorf("expected starting sentiment %v, got %v", p.Sentiment(), r.Score)
	}
	if s.Status().EnergyActive {
		t.Error("expected a text only session to have no energy")
	}
}

func TestSessionAudioFailureAndRetry(t *testing.T) {
	src := &fakeSource{openErr: errors.New("permission denied"), frame: voiced()}
	rec := newRecorder()
	s := New(fastConfig(), testPersona(t), src, rec)

	err := s.Start(context.Background())
	var audioErr *AudioError
	if !errors.As(err, &audioErr) || !errors.Is(err, ErrAudioUnavailable) {
		t.Fatalf("expected an AudioError, got %v", err)
	}
	defer s.Stop()

	st := s.Status()
	if !st.Running || st.EnergyActive || st.AudioError == "" {
		t.Errorf("expected a running session without energy, got %+v", st)
	}

	// Text scoring keeps working.
	waitFor(t, rec.sentiment, "sentiment reading")

	src.mu.Lock()
	src.openErr = nil
	src.mu.Unlock()

	if err := s.RetryAudio(context.Background()); err != nil {
		t.Fatalf("RetryAudio failed: %v", err)
	}
	waitFor(t, rec.energy, "energy reading after retry")
	if s.AudioErr() != nil {
		t.Errorf("expected the audio error to clear, got %v", s.AudioErr())
	}
}

func TestSessionRetryWhenStopped(t *testing.T) {
	s := New(fastConfig(), testPersona(t), &fakeSource{}, nil)
	if err := s.RetryAudio(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestSessionConcurrentRetryOpensOnce(t *testing.T) {
	src := &fakeSource{openErr: errors.New("device busy"), frame: voiced()}
	s := New(fastConfig(), testPersona(t), src, newRecorder())

	if err := s.Start(context.Background()); !errors.Is(err, ErrAudioUnavailable) {
		t.Fatalf("expected ErrAudioUnavailable, got %v", err)
	}

	src.mu.Lock()
	src.openErr = nil
	src.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.RetryAudio(context.Background()); err != nil {
				t.Errorf("RetryAudio failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if opened, _ := src.counts(); opened != 1 {
		t.Errorf("expected the source to be opened once, got %d", opened)
	}
	if s.AudioErr() != nil {
		t.Errorf("expected no audio error, got %v", s.AudioErr())
	}

	s.Stop()
	if opened, closed := src.counts(); opened != closed {
		t.Errorf("expected every open to be released, opened=%d closed=%d", opened, closed)
	}
}

func TestSessionRetryRacingStop(t *testing.T) {
	for i := 0; i < 20; i++ {
		src := &fakeSource{frame: voiced()}
		s := New(fastConfig(), testPersona(t), src, nil)
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.RetryAudio(context.Background())
				if err != nil && !errors.Is(err, ErrNotRunning) {
					t.Errorf("unexpected RetryAudio error: %v", err)
				}
			}()
		}
		s.Stop()
		wg.Wait()

		if opened, closed := src.counts(); opened != closed {
			t.Fatalf("run %d: opened=%d closed=%d", i, opened, closed)
		}
		if st := s.Status(); st.Running || st.EnergyActive {
			t.Fatalf("run %d: expected a stopped session, got %+v", i, st)
		}
	}
}

func TestSessionAppendValidatesSpeaker(t *testing.T) {
	s := New(fastConfig(), testPersona(t), nil, nil)
	if _, err := s.Append(transcript.Entry{Speaker: "narrator", Text: "x"}); err == nil {
		t.Error("expected an invalid speaker to fail")
	}
	got, err := s.Append(transcript.Entry{Speaker: transcript.Rep, Text: "Hi"})
	if err != nil || got.Timestamp.IsZero() {
		t.Errorf("expected a timestamped entry, got %+v, %v", got, err)
	}
}

func TestSessionObserveTurn(t *testing.T) {
	s := New(fastConfig(), testPersona(t), nil, nil)

	res := s.ObserveTurn("Hi, I'm with a local company. How long have you owned the house?", "About ten years.")
	if res.Turn != 1 || res.State.Phase != conversation.Discovery {
		t.Errorf("unexpected first turn %+v", res)
	}
	if res.Effect.TrustDelta != 2 {
		t.Errorf("expected the local reference to add trust, got %+v", res.Effect)
	}
	if res.Directive == "" {
		t.Error("expected a directive")
	}

	res = s.ObserveTurn("Can I book you a free inspection?", "Not interested, go away.")
	if res.State != (conversation.State{Phase: conversation.Terminal, Result: conversation.Rejected}) || !res.Termination.Terminal {
		t.Errorf("expected a rejected conversation, got %+v", res)
	}

	res = s.ObserveTurn("Please?", "No.")
	if res.State.Result != conversation.Rejected {
		t.Errorf("expected terminal states to stick, got %+v", res.State)
	}
}

func TestSessionTerminatesAfterMaxTurns(t *testing.T) {
	s := New(fastConfig(), testPersona(t), nil, nil)

	var res TurnResult
	for i := 0; i <= conversation.MaxTurns; i++ {
		res = s.ObserveTurn("It lasts all season.", "Uh huh.")
	}
	if res.Turn != 21 || !res.Termination.Terminal || res.Termination.Reason != "exceeded maximum length" {
		t.Errorf("expected termination on turn 21, got %+v", res)
	}
	if res.State.Result != conversation.Rejected {
		t.Errorf("expected rejected, got %+v", res.State)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := New(fastConfig(), testPersona(t), nil, nil)
	b := New(fastConfig(), testPersona(t), nil, nil)
	r.Add(a)
	r.Add(b)

	if got, err := r.Lookup(a.ID().String()); err != nil || got != a {
		t.Errorf("expected to find session a, got %v, %v", got, err)
	}
	if _, err := r.Lookup("not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.Lookup(uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if len(r.List()) != 2 {
		t.Errorf("expected two sessions, got %d", len(r.List()))
	}

	r.StopAll()
	if len(r.List()) != 0 {
		t.Errorf("expected StopAll to empty the registry")
	}
}

func TestReplay(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	jsonl := `{"speaker":"rep","text":"Hi, I'm with a local company. How long have you owned the house?","offset":1}
{"speaker":"counterpart","text":"About ten years.","offset":3}
{"speaker":"rep","text":"Can I book you a free inspection this week?","offset":6}
{"speaker":"counterpart","text":"Not interested, go away.","offset":8}
{"speaker":"rep","text":"Okay.","offset":9}
`
	entries, err := transcript.ReadJSONL(strings.NewReader(jsonl), start)
	if err != nil {
		t.Fatalf("ReadJSONL failed: %v", err)
	}

	clip := &audio.Clip{SampleRate: audio.DefaultSampleRate}
	for i := 0; i < 10*audio.DefaultSampleRate; i++ {
		clip.Samples = append(clip.Samples, 0.3*math.Sin(2*math.Pi*150*float64(i)/audio.DefaultSampleRate))
	}

	cfg := DefaultConfig()
	rep := Replay(cfg, testPersona(t), clip, entries, start)

	if len(rep.Timeline) != 20 {
		t.Errorf("expected 20 ticks over 10s, got %d", len(rep.Timeline))
	}
	for _, pt := range rep.Timeline {
		if pt.Elapsed < cfg.Energy.CalibrationWindow && pt.Energy != nil {
			t.Errorf("expected no energy while calibrating, got one at %v", pt.Elapsed)
		}
	}
	if rep.Energy == nil || rep.Sentiment == nil {
		t.Fatalf("expected final readings, got %+v", rep)
	}

	if len(rep.Turns) != 2 {
		t.Fatalf("expected the replay to stop at the rejection, got %d turns", len(rep.Turns))
	}
	if rep.State != (conversation.State{Phase: conversation.Terminal, Result: conversation.Rejected}) {
		t.Errorf("expected a rejected conversation, got %+v", rep.State)
	}
	if rep.Quality.Total <= 0 {
		t.Errorf("expected a quality score, got %+v", rep.Quality)
	}
}

func TestReplayAbsoluteTimestamps(t *testing.T) {
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	jsonl := `{"speaker":"rep","text":"Hi, how long have you owned the house?","timestamp":"2024-05-01T10:00:00Z"}
{"speaker":"counterpart","text":"About ten years.","timestamp":"2024-05-01T10:00:04Z"}
`
	entries, err := transcript.ReadJSONLAligned(strings.NewReader(jsonl), start)
	if err != nil {
		t.Fatalf("ReadJSONLAligned failed: %v", err)
	}

	p := testPersona(t)
	done := make(chan Report, 1)
	go func() { done <- Replay(DefaultConfig(), p, nil, entries, start) }()

	rep := waitFor(t, done, "replay to finish")
	if len(rep.Timeline) != 8 {
		t.Errorf("expected 8 ticks over 4s, got %d", len(rep.Timeline))
	}
	if len(rep.Turns) != 1 {
		t.Errorf("expected 1 turn, got %d", len(rep.Turns))
	}
}

func TestReplayEmpty(t *testing.T) {
	p := testPersona(t)
	rep := Replay(DefaultConfig(), p, nil, nil, time.Now())
	if len(rep.Timeline) != 0 || rep.Energy != nil {
		t.Errorf("expected an empty timeline, got %+v", rep)
	}
	if rep.Sentiment == nil || rep.Sentiment.Score != p.Sentiment() {
		t.Errorf("expected the starting sentiment, got %+v", rep.Sentiment)
	}
	if rep.State != conversation.Initial() {
		t.Errorf("expected the initial state, got %+v", rep.State)
	}
}
