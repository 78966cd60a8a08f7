package pubsub

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestBus connects to a real Redis instance named by the REDIS_URL
// environment variable, the same live-or-skip pattern as statecache's
// tests: Bus is a thin wrapper over real SUBSCRIBE/PUBLISH traffic with
// no in-memory fake available in the example pack.
func newTestBus(t *testing.T, serverID string) (*Bus, *redis.Client) {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping pubsub integration test")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("redis.ParseURL() error: %v", err)
	}
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })

	b := New(rdb, serverID)
	b.Start(context.Background())
	t.Cleanup(b.Stop)
	return b, rdb
}

func TestBus_PublishDeliversToSubscribedHandler(t *testing.T) {
	bus, _ := newTestBus(t, "server-a")
	otherBus, _ := newTestBus(t, "server-b")

	code := "room-" + t.Name()
	received := make(chan Message, 1)
	if err := otherBus.Subscribe(context.Background(), code, func(m Message) {
		received <- m
	}); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	// Redis subscriptions propagate asynchronously; give it a moment.
	time.Sleep(100 * time.Millisecond)

	msg := Message{Type: PlayerJoined, RoomCode: code, Data: EncodeData(map[string]string{"player_id": "p1"})}
	if _, err := bus.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != PlayerJoined || got.RoomCode != code || got.SenderID != "server-a" {
			t.Fatalf("received message = %+v, unexpected fields", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the subscribed handler to fire")
	}
}

func TestBus_SkipsMessagesPublishedBySameServerID(t *testing.T) {
	bus, _ := newTestBus(t, "server-self")

	code := "room-" + t.Name()
	received := make(chan Message, 1)
	if err := bus.Subscribe(context.Background(), code, func(m Message) {
		received <- m
	}); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	msg := Message{Type: Broadcast, RoomCode: code, Data: EncodeData(map[string]string{"ping": "pong"})}
	if _, err := bus.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	select {
	case got := <-received:
		t.Fatalf("expected the bus to filter out its own published message, got %+v", got)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus, _ := newTestBus(t, "server-a")
	otherBus, _ := newTestBus(t, "server-b")

	code := "room-" + t.Name()
	received := make(chan Message, 2)
	if err := otherBus.Subscribe(context.Background(), code, func(m Message) {
		received <- m
	}); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := otherBus.Unsubscribe(context.Background(), code); err != nil {
		t.Fatalf("Unsubscribe() error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	msg := Message{Type: RoomClosed, RoomCode: code}
	if _, err := bus.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	select {
	case got := <-received:
		t.Fatalf("expected no delivery after Unsubscribe, got %+v", got)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestBus_StartIsIdempotent(t *testing.T) {
	bus, _ := newTestBus(t, "server-a")
	bus.Start(context.Background()) // second call must be a no-op, not a second listener
}

func TestEncodeData_MarshalsValue(t *testing.T) {
	raw := EncodeData(map[string]int{"count": 3})
	if string(raw) != `{"count":3}` {
		t.Fatalf("EncodeData() = %s, want {\"count\":3}", raw)
	}
}
