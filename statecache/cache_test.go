package statecache

import (
	"context"
	"os"
	"testing"
	"time"
)

// newTestCache connects to a real Redis instance named by the REDIS_URL
// environment variable. There is no in-memory Redis fake anywhere in the
// example pack, and Cache's every method is a thin wrapper over real
// pipeline/command calls, so a live instance is the only thing worth
// asserting against; skip rather than fake it when none is configured.
func newTestCache(t *testing.T) *Cache {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping statecache integration test")
	}
	c, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func uniqueCode(t *testing.T) string {
	t.Helper()
	return "TEST" + t.Name()
}

func TestCache_CreateRoomAndGetRoom(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	code := uniqueCode(t)
	t.Cleanup(func() { c.DeleteRoom(ctx, code) })

	if err := c.CreateRoom(ctx, code, "game-1", "host-1", "server-a"); err != nil {
		t.Fatalf("CreateRoom() error: %v", err)
	}

	meta, ok, err := c.GetRoom(ctx, code)
	if err != nil {
		t.Fatalf("GetRoom() error: %v", err)
	}
	if !ok {
		t.Fatalf("expected room %s to exist", code)
	}
	if meta.GameID != "game-1" || meta.HostID != "host-1" || meta.Status != "waiting" || meta.ServerID != "server-a" {
		t.Fatalf("GetRoom() = %+v, unexpected fields", meta)
	}

	exists, err := c.RoomExists(ctx, code)
	if err != nil {
		t.Fatalf("RoomExists() error: %v", err)
	}
	if !exists {
		t.Fatalf("expected RoomExists() true after CreateRoom")
	}

	codes, err := c.ActiveRooms(ctx)
	if err != nil {
		t.Fatalf("ActiveRooms() error: %v", err)
	}
	found := false
	for _, rc := range codes {
		if rc == code {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s in ActiveRooms() %v", code, codes)
	}
}

func TestCache_GetRoom_MissingReturnsNotFound(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.GetRoom(ctx, "NOPE-"+t.Name())
	if err != nil {
		t.Fatalf("GetRoom() error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for a room that was never created")
	}
}

func TestCache_PlayerRoomMembership(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	code := uniqueCode(t)
	t.Cleanup(func() { c.DeleteRoom(ctx, code) })

	if err := c.CreateRoom(ctx, code, "game-2", "host-1", "server-a"); err != nil {
		t.Fatalf("CreateRoom() error: %v", err)
	}
	if err := c.AddPlayerToRoom(ctx, code, "p2"); err != nil {
		t.Fatalf("AddPlayerToRoom() error: %v", err)
	}

	room, ok, err := c.PlayerRoom(ctx, "p2")
	if err != nil {
		t.Fatalf("PlayerRoom() error: %v", err)
	}
	if !ok || room != code {
		t.Fatalf("PlayerRoom() = (%q, %v), want (%q, true)", room, ok, code)
	}

	players, err := c.RoomPlayers(ctx, code)
	if err != nil {
		t.Fatalf("RoomPlayers() error: %v", err)
	}
	if len(players) != 1 || players[0] != "p2" {
		t.Fatalf("RoomPlayers() = %v, want [p2]", players)
	}

	if err := c.RemovePlayerFromRoom(ctx, code, "p2"); err != nil {
		t.Fatalf("RemovePlayerFromRoom() error: %v", err)
	}
	if _, ok, err := c.PlayerRoom(ctx, "p2"); err != nil || ok {
		t.Fatalf("PlayerRoom() after removal = (ok=%v, err=%v), want not found", ok, err)
	}
}

func TestCache_DeleteRoomRemovesEveryOwnedKey(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	code := uniqueCode(t)

	if err := c.CreateRoom(ctx, code, "game-3", "host-1", "server-a"); err != nil {
		t.Fatalf("CreateRoom() error: %v", err)
	}
	if err := c.AddPlayerToRoom(ctx, code, "host-1"); err != nil {
		t.Fatalf("AddPlayerToRoom() error: %v", err)
	}
	if err := c.SaveGameState(ctx, "game-3", map[string]string{"phase": "playing"}); err != nil {
		t.Fatalf("SaveGameState() error: %v", err)
	}

	if err := c.DeleteRoom(ctx, code); err != nil {
		t.Fatalf("DeleteRoom() error: %v", err)
	}

	if exists, err := c.RoomExists(ctx, code); err != nil || exists {
		t.Fatalf("RoomExists() after delete = (%v, %v), want false", exists, err)
	}
	if _, ok, err := c.PlayerRoom(ctx, "host-1"); err != nil || ok {
		t.Fatalf("PlayerRoom(host-1) after DeleteRoom still mapped: ok=%v err=%v", ok, err)
	}
	var dst map[string]string
	if found, err := c.GetGameState(ctx, "game-3", &dst); err != nil || found {
		t.Fatalf("GetGameState() after DeleteRoom = (found=%v, err=%v), want false", found, err)
	}
}

func TestCache_SaveAndGetGameState(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	gameID := "game-" + t.Name()
	t.Cleanup(func() { c.DeleteGameState(ctx, gameID) })

	type snapshot struct {
		Phase string `json:"phase"`
		Round int    `json:"round"`
	}
	want := snapshot{Phase: "playing", Round: 2}
	if err := c.SaveGameState(ctx, gameID, want); err != nil {
		t.Fatalf("SaveGameState() error: %v", err)
	}

	var got snapshot
	found, err := c.GetGameState(ctx, gameID, &got)
	if err != nil {
		t.Fatalf("GetGameState() error: %v", err)
	}
	if !found {
		t.Fatalf("expected GetGameState() to find the saved state")
	}
	if got != want {
		t.Fatalf("GetGameState() = %+v, want %+v", got, want)
	}
}

func TestCache_GetGameState_MissingReturnsNotFound(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var dst map[string]string
	found, err := c.GetGameState(ctx, "never-saved-"+t.Name(), &dst)
	if err != nil {
		t.Fatalf("GetGameState() error: %v", err)
	}
	if found {
		t.Fatalf("expected found=false for a game that was never saved")
	}
}

func TestCache_SetRoomStatusAndRefreshTTL(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	code := uniqueCode(t)
	t.Cleanup(func() { c.DeleteRoom(ctx, code) })

	if err := c.CreateRoom(ctx, code, "game-4", "host-1", "server-a"); err != nil {
		t.Fatalf("CreateRoom() error: %v", err)
	}
	if err := c.SetRoomStatus(ctx, code, "playing"); err != nil {
		t.Fatalf("SetRoomStatus() error: %v", err)
	}
	meta, ok, err := c.GetRoom(ctx, code)
	if err != nil || !ok {
		t.Fatalf("GetRoom() after SetRoomStatus: ok=%v err=%v", ok, err)
	}
	if meta.Status != "playing" {
		t.Fatalf("Status = %q, want playing", meta.Status)
	}

	if err := c.RefreshRoomTTL(ctx, code); err != nil {
		t.Fatalf("RefreshRoomTTL() error: %v", err)
	}
	if err := c.TouchGame(ctx, "game-4"); err != nil {
		t.Fatalf("TouchGame() error: %v", err)
	}
}

// TestConnect_InvalidURLFails exercises the one piece of Cache that needs
// no live server at all: URL parsing failure.
func TestConnect_InvalidURLFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Connect(ctx, "://not-a-url"); err == nil {
		t.Fatalf("expected Connect() to reject a malformed redis URL")
	}
}
