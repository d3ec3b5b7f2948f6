package hub

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bosley/coach/session"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 256
)

type wsConnection struct {
	conn      *websocket.Conn
	sessionID uuid.UUID
	hub       *Hub
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, err := h.registry.Lookup(mux.Vars(r)["sessionID"])
	if err != nil {
		writeError(w, err)
		return
	}

	// Upgrade connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := &wsConnection{
		conn:      conn,
		sessionID: sess.ID(),
		hub:       h,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}

	h.registerSubscriber(c.sessionID, c)
	slog.Debug("WebSocket subscriber connected", "sessionID", c.sessionID, "remoteAddr", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

// enqueue never blocks the publisher; a subscriber that falls behind loses updates.
func (c *wsConnection) enqueue(message []byte) {
	select {
	case <-c.done:
	case c.send <- message:
	default:
		if n := c.dropped.Add(1); n%10 == 1 {
			slog.Warn("WebSocket subscriber is falling behind", "sessionID", c.sessionID, "dropped", n)
		}
	}
}

func (c *wsConnection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConnection) write(message []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	w.Write(message)

	return w.Close()
}

// flush writes whatever was queued before the connection was closed.
func (c *wsConnection) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConnection) readPump() {
	defer func() {
		c.hub.unregisterSubscriber(c.sessionID, c)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err, "sessionID", c.sessionID)
			}
			break
		}
	}
}

// notifyStopped tells subscribers a session ended and disconnects them.
func (h *Hub) notifyStopped(id uuid.UUID, sum session.Summary) {
	h.broadcast(id, Update{Type: UpdateStopped, SessionID: id, Summary: &sum})

	h.mu.Lock()
	conns := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
