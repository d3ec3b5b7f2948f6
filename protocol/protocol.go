// Package protocol is the wire format between a streaming client and the ingest
// server.
//
// A connection starts with a handshake: the shared token bytes, then a 2-byte
// big-endian length and the persona id. The server answers with the 16 raw bytes of
// the session UUID. Audio follows as a single transmission: a start marker, any
// number of chunks, and an end marker. A chunk is a 4-byte big-endian byte count
// followed by little-endian int16 PCM.
package protocol

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
)

const (
	StartMarker uint32 = 0xFFFFFFFF
	EndMarker   uint32 = 0x00000000

	// MaxChunkSize bounds the size field of a chunk.
	MaxChunkSize = 1 << 20

	maxPersonaID = math.MaxUint16
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrChunkTooLarge = errors.New("audio chunk too large")
)

// WriteHandshake sends the token and the requested persona id.
func WriteHandshake(w io.Writer, token, personaID string) error {
	if len(personaID) > maxPersonaID {
		return fmt.Errorf("persona id too long: %d bytes", len(personaID))
	}
	buf := make([]byte, 0, len(token)+2+len(personaID))
	buf = append(buf, token...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(personaID)))
	buf = append(buf, personaID...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to send handshake: %w", err)
	}
	return nil
}

// ReadHandshake reads len(token) bytes, compares them with token and then reads the
// persona id. An empty persona id selects the server default.
func ReadHandshake(r io.Reader, token string) (string, error) {
	got := make([]byte, len(token))
	if _, err := io.ReadFull(r, got); err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	if subtle.ConstantTimeCompare(got, []byte(token)) != 1 {
		return "", ErrInvalidToken
	}

	var size [2]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return "", fmt.Errorf("failed to read persona length: %w", err)
	}
	id := make([]byte, binary.BigEndian.Uint16(size[:]))
	if _, err := io.ReadFull(r, id); err != nil {
		return "", fmt.Errorf("failed to read persona id: %w", err)
	}
	return string(id), nil
}

func WriteSessionID(w io.Writer, id uuid.UUID) error {
	_, err := w.Write(id[:])
	return err
}

func ReadSessionID(r io.Reader) (uuid.UUID, error) {
	idBytes := make([]byte, 16)
	if _, err := io.ReadFull(r, idBytes); err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(idBytes)
}

func WriteStart(w io.Writer) error {
	return writeMarker(w, StartMarker)
}

func WriteEnd(w io.Writer) error {
	return writeMarker(w, EndMarker)
}

func writeMarker(w io.Writer, marker uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], marker)
	_, err := w.Write(buf[:])
	return err
}

// WriteChunk sends one chunk. The size and samples go out in a single write so
// concurrent writers never interleave inside a chunk.
func WriteChunk(w io.Writer, chunk []int16) error {
	if len(chunk) == 0 {
		return nil
	}
	size := len(chunk) * 2
	if size > MaxChunkSize {
		return ErrChunkTooLarge
	}

	buf := make([]byte, 4+size)
	binary.BigEndian.PutUint32(buf, uint32(size))
	for i, sample := range chunk {
		binary.LittleEndian.PutUint16(buf[4+i*2:], uint16(sample))
	}
	_, err := w.Write(buf)
	return err
}

// ReadMarker reads the next 4-byte word. It is either StartMarker, EndMarker or the
// size of the chunk that follows.
func ReadMarker(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// ReadChunk reads a chunk body of size bytes.
func ReadChunk(r io.Reader, size uint32) ([]byte, error) {
	if size > MaxChunkSize {
		return nil, ErrChunkTooLarge
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read chunk data: %w", err)
	}
	return data, nil
}
