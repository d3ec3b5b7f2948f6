// Package libaserv is the ingest side of the audio transport: a TLS listener that
// authenticates streaming clients and runs one coaching session per connection.
package libaserv

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bosley/coach/audio"
	"github.com/bosley/coach/persona"
	"github.com/bosley/coach/protocol"
	"github.com/bosley/coach/session"
)

const (
	defaultServerAddr = "localhost:8443"
)

// Config is the listener configuration. An empty RecordDir disables recording.
type Config struct {
	Addr      string `yaml:"addr"`
	CertFile  string `yaml:"cert"`
	KeyFile   string `yaml:"key"`
	RecordDir string `yaml:"record_dir"`
}

// Server accepts streaming clients. Sessions it creates are added to the registry for
// the lifetime of the connection.
type Server struct {
	cfg      Config
	token    string
	sessions session.Config
	catalog  *persona.Catalog
	registry *session.Registry
	pub      session.Publisher
	conns    *connectionList
	now      func() time.Time
}

func New(cfg Config, token string, sessions session.Config, catalog *persona.Catalog, registry *session.Registry, pub session.Publisher) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultServerAddr
	}
	if registry == nil {
		registry = session.NewRegistry()
	}
	return &Server{
		cfg:      cfg,
		token:    token,
		sessions: sessions,
		catalog:  catalog,
		registry: registry,
		pub:      pub,
		conns:    newConnectionList(),
		now:      time.Now,
	}
}

// Connections lists the streams currently connected, oldest first.
func (s *Server) Connections() []Connection {
	return s.conns.list()
}

// Launch listens on the configured address with TLS and serves until ctx is done.
func (s *Server) Launch(ctx context.Context) error {
	slog.Debug("Starting server", "address", s.cfg.Addr)

	cert, err := tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load server certificate and key: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
	}

	listener, err := tls.Listen("tcp", s.cfg.Addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to start TLS server: %w", err)
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is done, then waits for every
// connection handler to finish.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		slog.Debug("Server shutting down")
		listener.Close()
	})
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				slog.Debug("Server stopped accepting new connections")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed: %w", err)
			}
			slog.Error("Failed to accept connection", "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleNewConnection(ctx, conn)
		}()
	}
}

func (s *Server) handleNewConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Unblock reads when the server shuts down.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	personaID, err := protocol.ReadHandshake(conn, s.token)
	if err != nil {
		if errors.Is(err, protocol.ErrInvalidToken) {
			slog.Warn("Invalid token received", "remoteAddr", conn.RemoteAddr())
		} else {
			slog.Error("Failed to read handshake from client", "error", err, "remoteAddr", conn.RemoteAddr())
		}
		return
	}

	p, err := s.catalog.Get(personaID)
	if err != nil {
		slog.Warn("Unknown persona requested", "persona", personaID, "remoteAddr", conn.RemoteAddr())
		return
	}

	window := audio.NewWindow(audio.DefaultFrameSize, audio.DefaultSampleRate)
	sess := session.New(s.sessions, p, audio.NewWindowSource(window), s.pub)

	s.handleConnection(ctx, conn, sess, window)
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, sess *session.Session, window *audio.Window) {
	sessionID := sess.ID()
	c := &connection{info: Connection{
		SessionID: sessionID,
		Addr:      conn.RemoteAddr().String(),
		PersonaID: sess.Persona().ID,
		Connected: s.now(),
	}}

	s.registry.Add(sess)
	s.conns.add(c)
	slog.Debug("New client connected", "sessionID", sessionID, "remoteAddr", conn.RemoteAddr())

	defer func() {
		sum := sess.Stop()
		s.registry.Remove(sessionID)
		s.conns.remove(sessionID)
		slog.Debug("Client connection closed",
			"sessionID", sessionID,
			"remoteAddr", conn.RemoteAddr(),
			"bytes", c.bytes.Load(),
			"qualityTotal", sum.Quality.Total)
	}()

	if err := protocol.WriteSessionID(conn, sessionID); err != nil {
		slog.Error("Failed to send session ID", "error", err, "sessionID", sessionID)
		return
	}

	if err := sess.Start(ctx); err != nil {
		slog.Error("Failed to start session", "error", err, "sessionID", sessionID)
		return
	}

	var (
		rec        *recording
		receiving  bool
		logCounter int
	)
	defer func() {
		if rec != nil {
			rec.abort(s.now())
		}
	}()

	for {
		marker, err := protocol.ReadMarker(conn)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				slog.Debug("Connection handler shutting down", "sessionID", sessionID)
			case errors.Is(err, io.EOF):
				slog.Debug("Client disconnected", "sessionID", sessionID, "remoteAddr", conn.RemoteAddr())
			default:
				slog.Error("Failed to read marker", "error", err, "sessionID", sessionID, "remoteAddr", conn.RemoteAddr())
			}
			return
		}

		switch {
		case marker == protocol.StartMarker:
			if receiving {
				slog.Warn("Transmission restarted without an end marker", "sessionID", sessionID)
			}
			receiving = true
			if rec != nil {
				rec.finish(s.now())
				rec = nil
			}
			if s.cfg.RecordDir != "" {
				rec, err = startRecording(s.cfg.RecordDir, sessionID, s.now())
				if err != nil {
					slog.Error("Failed to create recording", "error", err, "sessionID", sessionID)
				}
			}
			slog.Info("Started receiving new transmission", "sessionID", sessionID, "remoteAddr", conn.RemoteAddr())

		case marker == protocol.EndMarker:
			slog.Info("Finished receiving transmission",
				"sessionID", sessionID,
				"bytes", c.bytes.Load(),
				"remoteAddr", conn.RemoteAddr())
			if rec != nil {
				rec.finish(s.now())
				rec = nil
			}
			return

		case !receiving:
			slog.Warn("Audio chunk outside a transmission", "sessionID", sessionID, "remoteAddr", conn.RemoteAddr())
			return

		default:
			data, err := protocol.ReadChunk(conn, marker)
			if err != nil {
				slog.Error("Failed to read chunk data", "error", err, "sessionID", sessionID, "remoteAddr", conn.RemoteAddr())
				return
			}

			window.Write(audio.DecodePCM16LE(data))
			c.bytes.Add(int64(len(data)))
			if rec != nil {
				rec.write(data)
			}

			logCounter++
			if logCounter%10 == 0 {
				slog.Debug("Audio chunk received",
					"sessionID", sessionID,
					"chunkBytes", len(data),
					"totalBytes", c.bytes.Load())
			}
		}

		select {
		case <-ctx.Done():
			slog.Debug("Connection handler shutting down", "sessionID", sessionID, "remoteAddr", conn.RemoteAddr())
			return
		default:
		}
	}
}
