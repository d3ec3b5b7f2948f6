// Package config loads the YAML configuration shared by every command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bosley/coach/hub"
	"github.com/bosley/coach/sentiment"
	libaserv "github.com/bosley/coach/server"
	"github.com/bosley/coach/session"
	"gopkg.in/yaml.v3"
)

// EnvPath names the file to load when no path is given.
const EnvPath = "COACH_CONFIG"

// Client configures the streaming client.
type Client struct {
	Server   string `yaml:"server"`
	Insecure bool   `yaml:"insecure"`
	CertFile string `yaml:"cert"`
	DeviceID int    `yaml:"device"`
	Persona  string `yaml:"persona"`
}

// Personas configures where user persona definitions live.
type Personas struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// Config is the root document. The audio, energy and sentiment sections sit at the
// top level.
type Config struct {
	Session  session.Config  `yaml:",inline"`
	Server   libaserv.Config `yaml:"server"`
	Hub      hub.Config      `yaml:"hub"`
	Client   Client          `yaml:"client"`
	Personas Personas        `yaml:"personas"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Session: session.DefaultConfig(),
		Server: libaserv.Config{
			Addr: "localhost:8443",
		},
		Hub: hub.Config{
			Addr: "localhost:8080",
		},
		Client: Client{
			Server: "localhost:8443",
		},
		Personas: Personas{
			Watch: true,
		},
	}
}

// Load reads path over the defaults. An empty path falls back to $COACH_CONFIG and
// then to the defaults alone.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engines cannot run with.
func (c Config) Validate() error {
	e := c.Session.Energy
	if e.TickInterval < 0 || e.CalibrationWindow < 0 {
		return fmt.Errorf("energy: durations must not be negative")
	}
	if e.LowThreshold >= e.HighThreshold {
		return fmt.Errorf("energy: low_threshold %v must be below high_threshold %v", e.LowThreshold, e.HighThreshold)
	}
	if e.Smoothing < 0 || e.Smoothing >= 1 {
		return fmt.Errorf("energy: smoothing %v must be in [0, 1)", e.Smoothing)
	}

	s := c.Session.Sentiment
	if s.FallbackInterval < 0 {
		return fmt.Errorf("sentiment: fallback_interval must not be negative")
	}
	if s.LowThreshold >= s.PositiveThreshold {
		return fmt.Errorf("sentiment: low_threshold %v must be below positive_threshold %v", s.LowThreshold, s.PositiveThreshold)
	}
	if s.Smoothing < 0 || s.Smoothing > 1 {
		return fmt.Errorf("sentiment: smoothing %v must be in [0, 1]", s.Smoothing)
	}
	if p := s.Penalties; p != (sentiment.Penalties{}) {
		if !(0 <= p.Resolved && p.Resolved <= p.Excellent && p.Excellent <= p.Good && p.Good <= p.Adequate && p.Adequate <= 1) {
			return fmt.Errorf("sentiment: penalties must keep 0 <= resolved <= excellent <= good <= adequate <= 1")
		}
	}
	for i := 1; i < len(s.Ramp); i++ {
		if s.Ramp[i].At <= s.Ramp[i-1].At {
			return fmt.Errorf("sentiment: ramp points must be sorted by at, %v follows %v", s.Ramp[i].At, s.Ramp[i-1].At)
		}
	}

	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return fmt.Errorf("server: cert and key must be set together")
	}
	if (c.Hub.CertFile == "") != (c.Hub.KeyFile == "") {
		return fmt.Errorf("hub: cert and key must be set together")
	}
	return nil
}
