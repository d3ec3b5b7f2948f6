// Package hub serves the session API over HTTP and pushes score updates to websocket
// subscribers.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bosley/coach/energy"
	"github.com/bosley/coach/persona"
	"github.com/bosley/coach/sentiment"
	"github.com/bosley/coach/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Config for the HTTP listener. TLS is used when both files are set.
type Config struct {
	Addr     string `yaml:"addr"`
	CertFile string `yaml:"cert"`
	KeyFile  string `yaml:"key"`
}

// Update types pushed to subscribers.
const (
	UpdateEnergy    = "energy"
	UpdateSentiment = "sentiment"
	UpdateTurn      = "turn"
	UpdateStopped   = "stopped"
)

// Update is one websocket message.
type Update struct {
	Type      string              `json:"type"`
	SessionID uuid.UUID           `json:"sessionId"`
	Energy    *energy.Reading     `json:"energy,omitempty"`
	Sentiment *sentiment.Reading  `json:"sentiment,omitempty"`
	Turn      *session.TurnResult `json:"turn,omitempty"`
	Summary   *session.Summary    `json:"summary,omitempty"`
}

// Hub routes requests to the sessions in a registry and implements
// session.Publisher for them.
type Hub struct {
	registry *session.Registry
	catalog  *persona.Catalog
	sessions session.Config

	mu          sync.RWMutex
	subscribers map[uuid.UUID][]*wsConnection

	upgrader websocket.Upgrader
	server   *http.Server
}

// New creates a hub. Sessions created over the API use sessions as their tuning.
func New(registry *session.Registry, catalog *persona.Catalog, sessions session.Config) *Hub {
	return &Hub{
		registry:    registry,
		catalog:     catalog,
		sessions:    sessions,
		subscribers: make(map[uuid.UUID][]*wsConnection),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run serves the API on cfg.Addr until ctx is done.
func (h *Hub) Run(ctx context.Context, cfg Config) error {
	h.server = &http.Server{
		Addr:    cfg.Addr,
		Handler: h.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			err = h.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = h.server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("HTTP API listening", "address", cfg.Addr)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.closeSubscribers()
	return h.server.Shutdown(shutdownCtx)
}

func (h *Hub) PublishEnergy(id uuid.UUID, r energy.Reading) {
	h.broadcast(id, Update{Type: UpdateEnergy, SessionID: id, Energy: &r})
}

func (h *Hub) PublishSentiment(id uuid.UUID, r sentiment.Reading) {
	h.broadcast(id, Update{Type: UpdateSentiment, SessionID: id, Sentiment: &r})
}

func (h *Hub) broadcast(id uuid.UUID, u Update) {
	h.mu.RLock()
	conns := h.subscribers[id]
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	message, err := json.Marshal(u)
	if err != nil {
		slog.Error("Failed to encode update", "error", err, "sessionID", id)
		return
	}

	for _, c := range conns {
		c.enqueue(message)
	}
}

func (h *Hub) registerSubscriber(id uuid.UUID, c *wsConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[id] = append(h.subscribers[id], c)
}

func (h *Hub) unregisterSubscriber(id uuid.UUID, c *wsConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.subscribers[id]
	for i, conn := range conns {
		if conn == c {
			// Copy so broadcasts holding the old slice are unaffected.
			conns = append(conns[:i:i], conns[i+1:]...)
			break
		}
	}

	if len(conns) == 0 {
		delete(h.subscribers, id)
	} else {
		h.subscribers[id] = conns
	}
}

// subscriberCount is used by tests to wait for a websocket to register.
func (h *Hub) subscriberCount(id uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[id])
}

func (h *Hub) closeSubscribers() {
	h.mu.Lock()
	all := h.subscribers
	h.subscribers = make(map[uuid.UUID][]*wsConnection)
	h.mu.Unlock()

	for _, conns := range all {
		for _, c := range conns {
			c.close()
		}
	}
}
