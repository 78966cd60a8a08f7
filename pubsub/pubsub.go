// Package pubsub is the Redis pub/sub fan-out used to keep every server
// replica's in-memory room state in sync: when a replica handles a player
// action, it publishes the resulting update and every other replica
// holding a connection for that room receives it and pushes it to its
// clients.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// MessageType tags the payload carried by a Message.
type MessageType string

const (
	GameStateUpdate MessageType = "game_state_update"
	PlayerJoined    MessageType = "player_joined"
	PlayerLeft      MessageType = "player_left"
	RoomClosed      MessageType = "room_closed"
	Broadcast       MessageType = "broadcast"
)

const channelPrefix = "golf:room:"

// Message is one fact published to a room's channel.
type Message struct {
	Type     MessageType     `json:"type"`
	RoomCode string          `json:"room_code"`
	Data     json.RawMessage `json:"data"`
	SenderID string          `json:"sender_id,omitempty"`
}

// Handler processes one incoming Message. Handlers run sequentially on
// the bus's single listener goroutine; a slow handler delays every other
// subscriber of the same room, so handlers should hand work off rather
// than block.
type Handler func(Message)

// Bus manages room-channel subscriptions over one Redis connection and
// dispatches incoming messages to registered handlers, skipping messages
// this same server instance published.
type Bus struct {
	rdb      *redis.Client
	serverID string

	mu       sync.Mutex
	handlers map[string][]Handler
	ps       *redis.PubSub

	cancel context.CancelFunc
	done   chan struct{}
}

// New wraps rdb with a pub/sub bus identified by serverID (used to filter
// out a replica's own published messages on receipt).
func New(rdb *redis.Client, serverID string) *Bus {
	return &Bus{
		rdb:      rdb,
		serverID: serverID,
		handlers: make(map[string][]Handler),
	}
}

func channel(roomCode string) string { return channelPrefix + roomCode }

// Subscribe registers handler for room events on roomCode. The first
// subscriber for a room issues the actual Redis SUBSCRIBE.
func (b *Bus) Subscribe(ctx context.Context, roomCode string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := channel(roomCode)
	if _, ok := b.handlers[ch]; !ok {
		if b.ps == nil {
			b.ps = b.rdb.Subscribe(ctx)
		}
		if err := b.ps.Subscribe(ctx, ch); err != nil {
			return fmt.Errorf("pubsub: subscribe %s: %w", ch, err)
		}
	}
	b.handlers[ch] = append(b.handlers[ch], handler)
	return nil
}

// Unsubscribe drops every handler registered for roomCode and issues the
// Redis UNSUBSCRIBE.
func (b *Bus) Unsubscribe(ctx context.Context, roomCode string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := channel(roomCode)
	if _, ok := b.handlers[ch]; !ok {
		return nil
	}
	delete(b.handlers, ch)
	if b.ps == nil {
		return nil
	}
	return b.ps.Unsubscribe(ctx, ch)
}

// Publish sends message to its room's channel, stamping it with this
// bus's server ID. Returns the number of receivers.
func (b *Bus) Publish(ctx context.Context, message Message) (int64, error) {
	message.SenderID = b.serverID
	raw, err := json.Marshal(message)
	if err != nil {
		return 0, fmt.Errorf("pubsub: encode message: %w", err)
	}
	return b.rdb.Publish(ctx, channel(message.RoomCode), raw).Result()
}

// Start launches the listener goroutine. Safe to call once; a second
// call is a no-op.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		return
	}
	listenCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	if b.ps == nil {
		b.ps = b.rdb.Subscribe(listenCtx)
	}
	go b.listen(listenCtx)
	log.Printf("[PubSub] listener started (server=%s)", b.serverID)
}

// Stop cancels the listener goroutine and waits for it to exit.
func (b *Bus) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	done := b.done
	b.cancel = nil
	b.done = nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	if b.ps != nil {
		b.ps.Close()
	}
	log.Printf("[PubSub] listener stopped (server=%s)", b.serverID)
}

func (b *Bus) listen(ctx context.Context) {
	defer close(b.done)
	ch := b.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			b.dispatch(raw)
		}
	}
}

func (b *Bus) dispatch(raw *redis.Message) {
	var msg Message
	if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
		log.Printf("[PubSub] invalid message on %s: %v", raw.Channel, err)
		return
	}
	if msg.SenderID == b.serverID {
		return // published by this replica; clients already notified locally
	}

	b.mu.Lock()
	handlers := append([]Handler(nil), b.handlers[raw.Channel]...)
	b.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[PubSub] handler panic on %s: %v", raw.Channel, r)
				}
			}()
			h(msg)
		}()
	}
}

// EncodeData marshals a typed payload into a Message's Data field.
func EncodeData(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}
