package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvPath, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Session.Energy.TickInterval != 500*time.Millisecond {
		t.Errorf("expected the default tick, got %v", cfg.Session.Energy.TickInterval)
	}
	if cfg.Session.Sentiment.FallbackInterval != 2*time.Second {
		t.Errorf("expected the default fallback, got %v", cfg.Session.Sentiment.FallbackInterval)
	}
	if cfg.Hub.Addr == "" || cfg.Server.Addr == "" {
		t.Errorf("expected default addresses, got %+v %+v", cfg.Hub, cfg.Server)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coach.yaml")
	doc := `
energy:
  tick_interval: 250ms
  weights:
    pace: 0.4
sentiment:
  fallback_interval: 1s
  ramp:
    - at: 0s
      factor: 0.5
    - at: 20s
      factor: 1
audio:
  vad_db: -40
server:
  addr: 0.0.0.0:9443
  record_dir: /tmp/recordings
personas:
  dir: ./personas
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPath, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"tick", cfg.Session.Energy.TickInterval, 250 * time.Millisecond},
		{"pace weight", cfg.Session.Energy.Weights.Pace, 0.4},
		{"untouched weight", cfg.Session.Energy.Weights.Volume, 0.2},
		{"untouched threshold", cfg.Session.Energy.HighThreshold, 70.0},
		{"fallback", cfg.Session.Sentiment.FallbackInterval, time.Second},
		{"ramp length", len(cfg.Session.Sentiment.Ramp), 2},
		{"ramp knee", cfg.Session.Sentiment.Ramp[1].At, 20 * time.Second},
		{"vad", cfg.Session.Extractor.VADDB, -40.0},
		{"server addr", cfg.Server.Addr, "0.0.0.0:9443"},
		{"record dir", cfg.Server.RecordDir, "/tmp/recordings"},
		{"personas dir", cfg.Personas.Dir, "./personas"},
		{"watch default", cfg.Personas.Watch, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, tt.got)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", "energy:\n  tick: 1s\n", "failed to parse config"},
		{"integer duration", "energy:\n  tick_interval: 500\n", "failed to parse config"},
		{"inverted thresholds", "energy:\n  low_threshold: 80\n", "low_threshold"},
		{"bad smoothing", "sentiment:\n  smoothing: 2\n", "smoothing"},
		{"cert without key", "server:\n  cert: server.crt\n", "cert and key"},
		{"handled costs more than unhandled", "sentiment:\n  penalties:\n    adequate: 1.5\n", "penalties"},
		{"excellent recovers less than good", "sentiment:\n  penalties:\n    excellent: 0.9\n", "penalties"},
		{"unsorted ramp", "sentiment:\n  ramp:\n    - {at: 30s, factor: 0.5}\n    - {at: 10s, factor: 0.8}\n", "ramp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected an error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Session.Energy.InitialScore != 50 {
		t.Errorf("expected defaults, got %+v", cfg.Session.Energy)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an explicit missing file to fail")
	}
}
