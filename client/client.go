package libascli

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"syscall"

	"github.com/bosley/coach/audio"
	"github.com/bosley/coach/protocol"
	"github.com/google/uuid"
)

// chunks buffered between the capture callback and the network writer
const sendQueueSize = 64

// StreamConfig describes where and how to stream the microphone.
type StreamConfig struct {
	ServerAddr string
	Insecure   bool
	CertFile   string
	DeviceID   int
	PersonaID  string
	Token      string
}

// streamer ships captured chunks to the server and counts what it sent.
type streamer struct {
	conn        io.Writer
	totalChunks int
	totalBytes  int
	logCounter  int

	// written by the capture callback
	dropped atomic.Int64
}

func (s *streamer) run(ctx context.Context, chunks <-chan []int16, connClosed <-chan struct{}) error {
	if err := protocol.WriteStart(s.conn); err != nil {
		return fmt.Errorf("failed to send start transmission marker: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Client shutting down",
				"totalChunks", s.totalChunks,
				"totalBytes", s.totalBytes,
				"dropped", s.dropped.Load())
			if err := protocol.WriteEnd(s.conn); err != nil && !isConnectionClosed(err) {
				return fmt.Errorf("failed to send end transmission marker: %w", err)
			}
			return nil
		case <-connClosed:
			return fmt.Errorf("server connection lost")
		case chunk := <-chunks:
			if err := protocol.WriteChunk(s.conn, chunk); err != nil {
				if isConnectionClosed(err) {
					return fmt.Errorf("server connection lost: %w", err)
				}
				return fmt.Errorf("failed to send audio chunk: %w", err)
			}
			s.totalChunks++
			s.totalBytes += len(chunk) * 2 // 2 bytes per sample

			s.logCounter++
			if s.logCounter%10 == 0 {
				slog.Debug("Transmitting audio",
					"totalChunks", s.totalChunks,
					"totalBytes", s.totalBytes,
					"dropped", s.dropped.Load())
			}
		}
	}
}

// Connect dials the server, performs the handshake and returns the connection with
// the session id the server assigned.
func Connect(ctx context.Context, cfg StreamConfig) (net.Conn, uuid.UUID, error) {
	tlsConfig, err := createTLSConfig(cfg.Insecure, cfg.CertFile)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	dialer := &tls.Dialer{
		Config: tlsConfig,
	}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.ServerAddr)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	sessionID, err := handshake(conn, cfg.Token, cfg.PersonaID)
	if err != nil {
		conn.Close()
		return nil, uuid.Nil, err
	}
	return conn, sessionID, nil
}

func handshake(conn io.ReadWriter, token, personaID string) (uuid.UUID, error) {
	if err := protocol.WriteHandshake(conn, token, personaID); err != nil {
		return uuid.Nil, err
	}
	sessionID, err := protocol.ReadSessionID(conn)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to receive session ID: %w", err)
	}
	return sessionID, nil
}

// Stream captures the microphone and ships it to the ingest server until ctx is
// cancelled or the server goes away. onSession, when set, is called with the session
// id the server assigned before any audio is sent.
func Stream(ctx context.Context, cfg StreamConfig, onSession func(uuid.UUID)) error {
	slog.Debug("Starting client",
		"serverAddress", cfg.ServerAddr,
		"deviceID", cfg.DeviceID,
		"persona", cfg.PersonaID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, sessionID, err := Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	slog.Info("Received session ID", "sessionID", sessionID)
	if onSession != nil {
		onSession(sessionID)
	}

	// The server never writes after the handshake, so a completed read means it hung up.
	connClosed := make(chan struct{})
	go func() {
		io.Copy(io.Discard, conn)
		close(connClosed)
	}()

	s := &streamer{conn: conn}
	chunks := make(chan []int16, sendQueueSize)

	mic := NewMicSource(cfg.DeviceID, audio.NewWindow(audio.DefaultFrameSize, sampleRate))
	mic.OnChunk(func(chunk []int16) {
		select {
		case chunks <- chunk:
		default:
			s.dropped.Add(1)
		}
	})
	if err := mic.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err := mic.Close(); err != nil {
			slog.Error("Failed to release microphone", "error", err)
		}
	}()

	return s.run(ctx, chunks, connClosed)
}

// Helper function to check for connection closure
func isConnectionClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

func createTLSConfig(insecureMode bool, serverCertFile string) (*tls.Config, error) {
	if insecureMode {
		slog.Warn("Running in insecure mode. This should not be used in production!")
		return &tls.Config{InsecureSkipVerify: true}, nil
	}

	// Load the server's certificate
	certPEM, err := os.ReadFile(serverCertFile)
	if err != nil {
		return nil, err
	}

	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(certPEM) {
		return nil, fmt.Errorf("failed to append server certificate")
	}

	return &tls.Config{
		RootCAs: certPool,
	}, nil
}
