// Package dispatch is the external-interface layer: it decodes inbound
// JSON messages into typed requests, routes them to the right Room (or
// Manager, for lobby operations), and writes back JSON replies. It has
// no knowledge of the wire transport a message arrived over — package
// transport owns the WebSocket plumbing and calls into Handlers.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golf-server/cpu"
	"golf-server/room"
	"golf-server/statecache"
)

// InboundMessage is one decoded client frame. Raw still holds the full
// object so a handler can pull out fields beyond the envelope (Type is
// peeled off first only to pick the handler).
type InboundMessage struct {
	Type string
	Raw  json.RawMessage
}

// ParseInbound decodes a raw client frame into an InboundMessage.
func ParseInbound(data []byte) (InboundMessage, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return InboundMessage{}, fmt.Errorf("dispatch: decode envelope: %w", err)
	}
	if envelope.Type == "" {
		return InboundMessage{}, fmt.Errorf("dispatch: missing message type")
	}
	return InboundMessage{Type: envelope.Type, Raw: data}, nil
}

// ConnContext is the per-connection state a Handler can read and update.
// One ConnContext exists for the lifetime of one client connection,
// constructed by package transport.
type ConnContext struct {
	PlayerID   string
	AuthUserID string // empty for an unauthenticated guest connection

	mu       sync.Mutex
	roomCode string
}

func NewConnContext(playerID, authUserID string) *ConnContext {
	return &ConnContext{PlayerID: playerID, AuthUserID: authUserID}
}

func (cc *ConnContext) RoomCode() string {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.roomCode
}

func (cc *ConnContext) SetRoomCode(code string) {
	cc.mu.Lock()
	cc.roomCode = code
	cc.mu.Unlock()
}

// Environment bundles every collaborator a Handler needs: the room
// registry, the ephemeral cache (for room lookup by code without
// needing a live local Room), the CPU profile catalog, and the outbound
// sender shared with every Room (see room.Deps.Send).
type Environment struct {
	Rooms              *room.Manager
	Cache              *statecache.Cache
	CPU                *cpu.Registry
	Send               room.Sender
	MaxConcurrentGames int
	CountUserGames     func(authUserID string) int
}

// Handler processes one inbound message for one connection.
type Handler func(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error

// Handlers is the dispatch table, keyed by wire message type. It mirrors
// the original server's HANDLERS dict in main.py: one entry per inbound
// message the client can send.
var Handlers = map[string]Handler{
	"create_room":      handleCreateRoom,
	"join_room":        handleJoinRoom,
	"leave_room":       handleLeaveRoom,
	"leave_game":       handleLeaveRoom,
	"get_cpu_profiles": handleGetCPUProfiles,
	"add_cpu":          handleAddCPU,
	"remove_cpu":       handleRemoveCPU,
	"start_game":       handleStartGame,
	"flip_initial":     handleFlipInitial,
	"draw":             handleDraw,
	"cancel_draw":      handleCancelDraw,
	"swap":             handleSwap,
	"discard":          handleDiscard,
	"flip_card":        handleFlipCard,
	"skip_flip":        handleSkipFlip,
	"flip_as_action":   handleFlipAsAction,
	"knock_early":      handleKnockEarly,
	"next_round":       handleNextRound,
	"end_game":         handleEndGame,
}

// Dispatch looks up and runs the handler for msg.Type. An unrecognized
// type is reported to the client rather than dropped silently, so a
// client/server protocol skew is visible instead of a mysterious hang.
func Dispatch(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	h, ok := Handlers[msg.Type]
	if !ok {
		replyError(env, cc.PlayerID, fmt.Sprintf("unknown message type %q", msg.Type))
		return nil
	}
	return h(ctx, msg, cc, env)
}

func reply(env *Environment, playerID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	env.Send(playerID, data)
}

func replyError(env *Environment, playerID, message string) {
	reply(env, playerID, map[string]string{"type": "error", "message": message})
}

// currentRoom resolves cc's room. It returns ok=false without replying
// when the connection isn't seated anywhere, and replies with a "room not
// found" error when its room is no longer registered.
func currentRoom(cc *ConnContext, env *Environment) (*room.Room, bool) {
	code := cc.RoomCode()
	if code == "" {
		return nil, false
	}
	r, ok := env.Rooms.Get(code)
	if !ok {
		replyError(env, cc.PlayerID, "room not found")
		return nil, false
	}
	return r, true
}

func submitAndReport(env *Environment, cc *ConnContext, cmd room.Command) {
	r, ok := currentRoom(cc, env)
	if !ok {
		return
	}
	if err := r.Submit(cmd); err != nil {
		replyError(env, cc.PlayerID, err.Error())
	}
}
