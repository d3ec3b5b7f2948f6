package persona

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DefaultID is the persona used when a session does not name one.
const DefaultID = "homeowner"

//go:embed personas.yaml
var builtinYAML []byte

// Catalog holds the built-in personas plus any defined as YAML files in a directory.
// Directory personas override built-ins with the same id.
type Catalog struct {
	dir string

	mu       sync.RWMutex
	builtin  map[string]Persona
	personas map[string]Persona
}

// NewCatalog loads the built-in personas and, when dir is not empty, every .yaml/.yml
// file in dir.
func NewCatalog(dir string) (*Catalog, error) {
	builtin, err := Parse(builtinYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to load built-in personas: %w", err)
	}

	c := &Catalog{dir: dir, builtin: make(map[string]Persona, len(builtin))}
	for _, p := range builtin {
		c.builtin[p.ID] = p
	}

	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the persona with id. An empty id selects DefaultID.
func (c *Catalog) Get(id string) (Persona, error) {
	if id == "" {
		id = DefaultID
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.personas[id]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %s", ErrUnknownPersona, id)
	}
	return p, nil
}

// List returns every persona sorted by id.
func (c *Catalog) List() []Persona {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Persona, 0, len(c.personas))
	for _, p := range c.personas {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reload re-reads the persona directory. A file that fails to parse is logged and
// skipped so one bad edit does not drop every persona.
func (c *Catalog) Reload() error {
	next := make(map[string]Persona, len(c.builtin))
	for id, p := range c.builtin {
		next[id] = p
	}

	if c.dir != "" {
		entries, err := os.ReadDir(c.dir)
		if err != nil {
			return fmt.Errorf("failed to read persona directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !isPersonaFile(e.Name()) {
				continue
			}
			path := filepath.Join(c.dir, e.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				slog.Error("Failed to read persona file", "error", err, "path", path)
				continue
			}
			personas, err := Parse(data)
			if err != nil {
				slog.Error("Failed to parse persona file", "error", err, "path", path)
				continue
			}
			for _, p := range personas {
				next[p.ID] = p
			}
		}
	}

	c.mu.Lock()
	c.personas = next
	c.mu.Unlock()

	slog.Debug("Loaded personas", "count", len(next), "dir", c.dir)
	return nil
}

// Watch reloads the catalog whenever a persona file in the directory changes. It
// blocks until ctx is done.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.dir == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("failed to watch persona directory: %w", err)
	}

	slog.Info("Watching persona directory", "path", c.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isPersonaFile(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}

			if err := c.Reload(); err != nil {
				slog.Error("Failed to reload personas", "error", err, "event", event)
				continue
			}
			slog.Info("Reloaded personas", "file", filepath.Base(event.Name), "op", event.Op.String())

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Persona watcher error", "error", err)
		}
	}
}

func isPersonaFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
