// Package statecache is the Redis-backed live state cache: a CACHE, not
// the source of truth. The event log in package eventlog is authoritative;
// if Redis data is lost, every room can be rebuilt by replaying events.
// Redis buys sub-millisecond reads during gameplay, TTL-based expiry of
// abandoned rooms, and a fast room-code -> game-id lookup shared across
// server replicas.
package statecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	roomTTL = 24 * time.Hour
	gameTTL = 24 * time.Hour
)

func roomKey(roomCode string) string       { return fmt.Sprintf("golf:room:%s", roomCode) }
func gameKey(gameID string) string         { return fmt.Sprintf("golf:game:%s", gameID) }
func roomPlayersKey(roomCode string) string { return fmt.Sprintf("golf:room:%s:players", roomCode) }
func playerRoomKey(playerID string) string { return fmt.Sprintf("golf:player:%s:room", playerID) }

const activeRoomsKey = "golf:rooms:active"

// RoomMeta is the hash stored at roomKey: enough to route a reconnecting
// client to the right game and server without touching the event log.
type RoomMeta struct {
	GameID    string `redis:"game_id"`
	HostID    string `redis:"host_id"`
	Status    string `redis:"status"`
	ServerID  string `redis:"server_id"`
	CreatedAt string `redis:"created_at"`
}

// Cache wraps a go-redis client with the room/game/player key patterns
// the dispatcher and recovery service use to locate live state.
type Cache struct {
	rdb *redis.Client
}

// New wraps an already-constructed client, letting callers share one
// connection pool between the cache and the pub/sub bus.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Connect dials redisURL and verifies connectivity with a PING.
func Connect(ctx context.Context, redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("statecache: parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("statecache: ping redis: %w", err)
	}
	return &Cache{rdb: rdb}, nil
}

func (c *Cache) Close() error { return c.rdb.Close() }

// --- Room operations -----------------------------------------------------

// CreateRoom registers a new room, seeds its TTL, adds it to the active
// set, and records the host's room membership, all in one pipeline so a
// reader never observes a partially-created room.
func (c *Cache) CreateRoom(ctx context.Context, roomCode, gameID, hostID, serverID string) error {
	pipe := c.rdb.TxPipeline()
	now := time.Now().UTC().Format(time.RFC3339)

	pipe.HSet(ctx, roomKey(roomCode), map[string]any{
		"game_id":    gameID,
		"host_id":    hostID,
		"status":     "waiting",
		"server_id":  serverID,
		"created_at": now,
	})
	pipe.Expire(ctx, roomKey(roomCode), roomTTL)
	pipe.SAdd(ctx, activeRoomsKey, roomCode)
	pipe.Set(ctx, playerRoomKey(hostID), roomCode, roomTTL)

	_, err := pipe.Exec(ctx)
	return err
}

// GetRoom returns a room's metadata, or (RoomMeta{}, false, nil) if it
// does not exist.
func (c *Cache) GetRoom(ctx context.Context, roomCode string) (RoomMeta, bool, error) {
	data, err := c.rdb.HGetAll(ctx, roomKey(roomCode)).Result()
	if err != nil {
		return RoomMeta{}, false, err
	}
	if len(data) == 0 {
		return RoomMeta{}, false, nil
	}
	return RoomMeta{
		GameID:    data["game_id"],
		HostID:    data["host_id"],
		Status:    data["status"],
		ServerID:  data["server_id"],
		CreatedAt: data["created_at"],
	}, true, nil
}

func (c *Cache) RoomExists(ctx context.Context, roomCode string) (bool, error) {
	n, err := c.rdb.Exists(ctx, roomKey(roomCode)).Result()
	return n > 0, err
}

// DeleteRoom removes a room and every key it owns: its player set, each
// member's player-room pointer, its membership in the active-rooms set,
// and its game state blob if one was saved.
func (c *Cache) DeleteRoom(ctx context.Context, roomCode string) error {
	meta, ok, err := c.GetRoom(ctx, roomCode)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	players, err := c.rdb.SMembers(ctx, roomPlayersKey(roomCode)).Result()
	if err != nil {
		return err
	}

	pipe := c.rdb.TxPipeline()
	for _, playerID := range players {
		pipe.Del(ctx, playerRoomKey(playerID))
	}
	pipe.Del(ctx, roomKey(roomCode))
	pipe.Del(ctx, roomPlayersKey(roomCode))
	pipe.SRem(ctx, activeRoomsKey, roomCode)
	if meta.GameID != "" {
		pipe.Del(ctx, gameKey(meta.GameID))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *Cache) ActiveRooms(ctx context.Context) ([]string, error) {
	return c.rdb.SMembers(ctx, activeRoomsKey).Result()
}

// --- Player operations ----------------------------------------------------

func (c *Cache) AddPlayerToRoom(ctx context.Context, roomCode, playerID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, roomPlayersKey(roomCode), playerID)
	pipe.Set(ctx, playerRoomKey(playerID), roomCode, roomTTL)
	pipe.Expire(ctx, roomKey(roomCode), roomTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Cache) RemovePlayerFromRoom(ctx context.Context, roomCode, playerID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.SRem(ctx, roomPlayersKey(roomCode), playerID)
	pipe.Del(ctx, playerRoomKey(playerID))
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Cache) RoomPlayers(ctx context.Context, roomCode string) ([]string, error) {
	return c.rdb.SMembers(ctx, roomPlayersKey(roomCode)).Result()
}

// PlayerRoom returns the room a player currently belongs to, or ("",
// false, nil) if the player has no room mapping (never joined, or it
// expired).
func (c *Cache) PlayerRoom(ctx context.Context, playerID string) (string, bool, error) {
	room, err := c.rdb.Get(ctx, playerRoomKey(playerID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return room, true, nil
}

// --- Game state operations -------------------------------------------------

// SaveGameState stores state (any JSON-marshalable snapshot: the room
// saves its projected spectator view, recovery an event.RebuiltGameState)
// as a single JSON blob, refreshing its TTL.
func (c *Cache) SaveGameState(ctx context.Context, gameID string, state any) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("statecache: marshal game state: %w", err)
	}
	return c.rdb.Set(ctx, gameKey(gameID), raw, gameTTL).Err()
}

// GetGameState loads the JSON blob at gameKey(gameID) into dst. Returns
// found=false if no state is cached for this game (never saved, or its
// TTL expired).
func (c *Cache) GetGameState(ctx context.Context, gameID string, dst any) (bool, error) {
	raw, err := c.rdb.Get(ctx, gameKey(gameID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("statecache: unmarshal game state: %w", err)
	}
	return true, nil
}

func (c *Cache) DeleteGameState(ctx context.Context, gameID string) error {
	return c.rdb.Del(ctx, gameKey(gameID)).Err()
}

// --- Room status / TTL refresh --------------------------------------------

func (c *Cache) SetRoomStatus(ctx context.Context, roomCode, status string) error {
	return c.rdb.HSet(ctx, roomKey(roomCode), "status", status).Err()
}

// RefreshRoomTTL extends both the room hash and its game state blob (if
// any) on any room activity, so active games never silently expire.
func (c *Cache) RefreshRoomTTL(ctx context.Context, roomCode string) error {
	pipe := c.rdb.Pipeline()
	pipe.Expire(ctx, roomKey(roomCode), roomTTL)

	meta, ok, err := c.GetRoom(ctx, roomCode)
	if err != nil {
		return err
	}
	if ok && meta.GameID != "" {
		pipe.Expire(ctx, gameKey(meta.GameID), gameTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// TouchGame refreshes a single game's TTL without a round trip through
// its room metadata. The room actor refreshes TTLs through
// RefreshRoomTTL, not TouchGame.
func (c *Cache) TouchGame(ctx context.Context, gameID string) error {
	return c.rdb.Expire(ctx, gameKey(gameID), gameTTL).Err()
}
