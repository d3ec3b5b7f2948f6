package persona

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuiltinCatalog(t *testing.T) {
	c, err := NewCatalog("")
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	if len(c.List()) < 5 {
		t.Errorf("expected the built-in personas, got %d", len(c.List()))
	}

	p, err := c.Get("")
	if err != nil || p.ID != DefaultID {
		t.Errorf("expected the default persona, got %+v, %v", p, err)
	}

	if _, err := c.Get("nobody"); !errors.Is(err, ErrUnknownPersona) {
		t.Errorf("expected ErrUnknownPersona, got %v", err)
	}
}

func TestPersonaSentiment(t *testing.T) {
	custom := 62.0
	tests := []struct {
		p    Persona
		want float64
	}{
		{Persona{Difficulty: Easy}, 55},
		{Persona{Difficulty: Medium}, 45},
		{Persona{Difficulty: Hard}, 35},
		{Persona{Difficulty: Hard, StartingSentiment: &custom}, 62},
	}
	for _, tt := range tests {
		if got := tt.p.Sentiment(); got != tt.want {
			t.Errorf("expected %v, got %v", tt.want, got)
		}
	}
}

func TestParse(t *testing.T) {
	single := []byte(`
id: solo
name: Sam
role: friendly
difficulty: easy
`)
	got, err := Parse(single)
	if err != nil || len(got) != 1 || got[0].ID != "solo" {
		t.Fatalf("expected one persona, got %+v, %v", got, err)
	}

	bad := []byte(`
id: broken
role: wizard
difficulty: easy
`)
	if _, err := Parse(bad); err == nil {
		t.Error("expected an unknown role to fail validation")
	}

	if _, err := Parse([]byte("personas: [")); err == nil {
		t.Error("expected malformed yaml to fail")
	}
}

func writePersona(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
		t.Fatalf("failed to write persona: %v", err)
	}
}

func TestDirectoryOverridesAndBadFiles(t *testing.T) {
	dir := t.TempDir()
	writePersona(t, dir, "custom.yaml", `
personas:
  - id: homeowner
    name: Override
    role: homeowner
    difficulty: hard
  - id: landlord
    name: Lee
    role: busy_professional
    difficulty: medium
`)
	writePersona(t, dir, "broken.yml", "id: [")
	writePersona(t, dir, "notes.txt", "ignored")

	c, err := NewCatalog(dir)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	p, err := c.Get("homeowner")
	if err != nil || p.Name != "Override" {
		t.Errorf("expected the directory persona to override the built-in, got %+v, %v", p, err)
	}
	if _, err := c.Get("landlord"); err != nil {
		t.Errorf("expected the new persona to load: %v", err)
	}
	if _, err := c.Get("skeptic"); err != nil {
		t.Errorf("expected built-ins to survive: %v", err)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCatalog(dir)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	writePersona(t, dir, "new.yaml", "id: newcomer\nname: Nia\nrole: skeptic\ndifficulty: hard\n")

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := c.Get("newcomer"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected the watcher to load the new persona")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected Watch to stop cleanly, got %v", err)
	}
}
