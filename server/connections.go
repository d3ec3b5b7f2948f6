package libaserv

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Connection describes one authenticated ingest stream.
type Connection struct {
	SessionID uuid.UUID `json:"sessionId"`
	Addr      string    `json:"addr"`
	PersonaID string    `json:"personaId"`
	Connected time.Time `json:"connected"`
	Bytes     int64     `json:"bytes"`
}

type connection struct {
	info  Connection
	bytes atomic.Int64
}

type connectionList struct {
	conns map[uuid.UUID]*connection
	mu    sync.RWMutex
}

func newConnectionList() *connectionList {
	return &connectionList{
		conns: make(map[uuid.UUID]*connection),
	}
}

func (cl *connectionList) add(c *connection) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.conns[c.info.SessionID] = c
}

func (cl *connectionList) remove(id uuid.UUID) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.conns, id)
}

func (cl *connectionList) list() []Connection {
	cl.mu.RLock()
	out := make([]Connection, 0, len(cl.conns))
	for _, c := range cl.conns {
		info := c.info
		info.Bytes = c.bytes.Load()
		out = append(out, info)
	}
	cl.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Connected.Before(out[j].Connected) })
	return out
}
