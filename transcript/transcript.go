// Package transcript holds the time-ordered record of what both parties said.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Speaker identifies which side of the call produced an utterance.
type Speaker string

const (
	Rep         Speaker = "rep"
	Counterpart Speaker = "counterpart"
)

// ParseSpeaker accepts the speaker labels transcription pipelines commonly emit.
func ParseSpeaker(s string) (Speaker, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rep", "user", "agent", "seller", "salesperson":
		return Rep, nil
	case "counterpart", "prospect", "customer", "assistant", "persona", "homeowner":
		return Counterpart, nil
	default:
		return "", fmt.Errorf("unknown speaker %q", s)
	}
}

// Entry is a single utterance.
type Entry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is an append-only transcript shared between the session and its engines.
// Appends signal Updates so readers can recompute without polling.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	updates chan struct{}
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{updates: make(chan struct{}, 1)}
}

// Append adds an entry. Entries with an earlier timestamp than the last one are
// clamped forward so the log stays ordered.
func (l *Log) Append(e Entry) Entry {
	l.mu.Lock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if n := len(l.entries); n > 0 && e.Timestamp.Before(l.entries[n-1].Timestamp) {
		e.Timestamp = l.entries[n-1].Timestamp
	}
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	// Coalesce: one pending notification is enough to trigger a recompute.
	select {
	case l.updates <- struct{}{}:
	default:
	}
	return e
}

// Updates fires after one or more appends.
func (l *Log) Updates() <-chan struct{} {
	return l.updates
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Snapshot returns a copy of all entries.
func (l *Log) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Between returns the entries with from <= Timestamp <= to.
func (l *Log) Between(from, to time.Time) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for _, e := range l.entries {
		if e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Reset drops every entry.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	select {
	case <-l.updates:
	default:
	}
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Turn pairs what the rep said with the counterpart's reply.
type Turn struct {
	Rep         string
	Counterpart string
}

// Turns folds an entry stream into rep/counterpart pairs. Consecutive lines from the
// same speaker are joined; a trailing rep line without a reply becomes a turn with an
// empty counterpart text.
func Turns(entries []Entry) []Turn {
	var turns []Turn
	var cur Turn
	var last Speaker
	open := false

	for _, e := range entries {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		switch e.Speaker {
		case Rep:
			if last == Counterpart && cur.Rep != "" {
				turns = append(turns, cur)
				cur = Turn{}
			}
			cur.Rep = join(cur.Rep, text)
		case Counterpart:
			cur.Counterpart = join(cur.Counterpart, text)
		default:
			continue
		}
		last = e.Speaker
		open = true
	}
	if open {
		turns = append(turns, cur)
	}
	return turns
}

func join(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}

type jsonlEntry struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Offset    float64   `json:"offset"`
}

// ReadJSONL parses one entry per line. Lines may carry an absolute RFC 3339 timestamp or
// an offset in seconds from start. Blank lines are skipped.
func ReadJSONL(r io.Reader, start time.Time) ([]Entry, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(lines))
	for i, l := range lines {
		entries[i] = l.entry(start, time.Time{})
	}
	return entries, nil
}

// ReadJSONLAligned parses like ReadJSONL but moves absolute timestamps so that the
// earliest of them lands on start. Offsets still count from start.
func ReadJSONLAligned(r io.Reader, start time.Time) ([]Entry, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	var origin time.Time
	for _, l := range lines {
		if !l.Timestamp.IsZero() && (origin.IsZero() || l.Timestamp.Before(origin)) {
			origin = l.Timestamp
		}
	}

	entries := make([]Entry, len(lines))
	for i, l := range lines {
		entries[i] = l.entry(start, origin)
	}
	return entries, nil
}

type jsonlLine struct {
	jsonlEntry
	speaker Speaker
}

// entry resolves the line's time. A non-zero origin is mapped onto start.
func (l jsonlLine) entry(start, origin time.Time) Entry {
	ts := l.Timestamp
	switch {
	case ts.IsZero():
		ts = start.Add(time.Duration(l.Offset * float64(time.Second)))
	case !origin.IsZero():
		ts = start.Add(ts.Sub(origin))
	}
	return Entry{Speaker: l.speaker, Text: l.Text, Timestamp: ts}
}

func readLines(r io.Reader) ([]jsonlLine, error) {
	var lines []jsonlLine
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var je jsonlEntry
		if err := json.Unmarshal([]byte(raw), &je); err != nil {
			return nil, fmt.Errorf("line %d: failed to parse entry: %w", line, err)
		}
		speaker, err := ParseSpeaker(je.Speaker)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		lines = append(lines, jsonlLine{jsonlEntry: je, speaker: speaker})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	return lines, nil
}
