// Package transport is the WebSocket front door: it upgrades incoming
// HTTP connections, frames JSON messages instead of the teacher's
// protobuf envelopes, and hands decoded frames to package dispatch.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"golf-server/dispatch"
	"golf-server/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Connection is one live WebSocket client: the socket itself, its
// buffered outbound queue, and the dispatch.ConnContext tracking which
// player/room it's associated with.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	ctx *dispatch.ConnContext

	server *Server
}

// Server owns every live connection, keyed by player id so
// dispatch.Environment.Send can route an outbound frame to the right
// socket — the same registry shape as the teacher's Gateway, with
// connections indexed by player id instead of numeric user id.
type Server struct {
	mu          sync.RWMutex
	connections map[string]*Connection // connID -> Connection
	byPlayer    map[string]*Connection // playerID -> Connection

	Env *dispatch.Environment
}

// New creates a Server with no Environment attached yet. The caller
// wires Env after construction, since dispatch.Environment.Send is
// itself this Server's SendToPlayer method — Server must exist before
// the Environment that points back into it (see cmd/server).
func New() *Server {
	return &Server{
		connections: make(map[string]*Connection),
		byPlayer:    make(map[string]*Connection),
	}
}

// SendToPlayer delivers data to playerID's live connection, if any. It
// matches the room.Sender signature and is handed to room.Manager (and
// dispatch.Environment) as the shared outbound path. A missing
// connection or a full send buffer silently drops the frame: per
// spec.md's error-handling design, a missed broadcast is repaired by
// the player's next action or reconnection, not retried here.
func (s *Server) SendToPlayer(playerID string, data []byte) {
	s.mu.RLock()
	c := s.byPlayer[playerID]
	s.mu.RUnlock()
	if c == nil {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Printf("[transport] send buffer full for player %s, dropping frame", playerID)
	}
}

// HandleWebSocket upgrades r and starts the connection's read/write
// pumps. The "token" query parameter, if present, is carried through as
// the connection's auth user id; session validation (see
// original_source/server/auth.py) is out of scope here, matching
// SPEC_FULL.md's non-goal on account management — callers that need
// real session verification should check the token in middleware before
// this handler runs.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[transport] upgrade error: %v", err)
		return
	}

	playerID := uuid.NewString()
	authUserID := r.URL.Query().Get("token")
	c := &Connection{
		ID:     uuid.NewString(),
		Conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
		ctx:    dispatch.NewConnContext(playerID, authUserID),
		server: s,
	}

	s.mu.Lock()
	s.connections[c.ID] = c
	s.byPlayer[playerID] = c
	s.mu.Unlock()

	log.Printf("[transport] client connected: %s (player=%s)", c.ID, playerID)

	go c.writePump()
	go c.readPump()
}

func (c *Connection) readPump() {
	defer func() {
		c.server.removeConnection(c)
		if code := c.ctx.RoomCode(); code != "" {
			if r, ok := c.server.Env.Rooms.Get(code); ok {
				_ = r.Submit(room.Command{Type: room.CmdLeave, PlayerID: c.ctx.PlayerID})
			}
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[transport] read error: %v", err)
			}
			break
		}
		c.handleFrame(data)
	}
}

func (c *Connection) handleFrame(data []byte) {
	msg, err := dispatch.ParseInbound(data)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dispatch.Dispatch(ctx, msg, c.ctx, c.server.Env); err != nil {
		log.Printf("[transport] dispatch %s for player %s: %v", msg.Type, c.ctx.PlayerID, err)
	}
}

func (c *Connection) sendError(message string) {
	data, err := json.Marshal(map[string]string{"type": "error", "message": message})
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) removeConnection(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, c.ID)
	if s.byPlayer[c.ctx.PlayerID] == c {
		delete(s.byPlayer, c.ctx.PlayerID)
	}
	log.Printf("[transport] client disconnected: %s, total: %d", c.ID, len(s.connections))
}

// ConnectionCount reports how many sockets are currently live, for a
// health/metrics endpoint.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
