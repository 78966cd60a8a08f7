// Package eventlog implements the append-only, replica-shared event store:
// the (game_id, sequence_num) unique-constrained events table plus the
// games metadata table used to enumerate active games on recovery.
package eventlog

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"golf-server/event"
)

// ErrConcurrency is returned by Append/AppendBatch when the (game_id,
// sequence_num) unique constraint rejects an insert: another writer got
// there first. The caller must re-read the latest sequence and retry with
// a freshly computed next sequence, never blindly re-append the same
// event.
var ErrConcurrency = errors.New("eventlog: concurrent append, retry from latest sequence")

// ErrNotFound is returned by GetGame for an unknown game id.
var ErrNotFound = errors.New("eventlog: game not found")

// GameStatus mirrors the games_v2.status column.
type GameStatus string

const (
	StatusActive    GameStatus = "active"
	StatusCompleted GameStatus = "completed"
)

// GameMeta is one row of the games metadata table: enough to enumerate
// and re-home an active game on recovery without replaying its events.
type GameMeta struct {
	ID          uuid.UUID
	RoomCode    string
	Status      GameStatus
	NumPlayers  int
	NumRounds   int
	Options     map[string]any
	HostID      string
	WinnerID    string
	PlayerIDs   []string
}

// Log is the storage-backend-agnostic contract for the event log. Two
// implementations are provided: PostgresLog for production multi-replica
// deployments and SQLiteLog for local development and tests.
type Log interface {
	Append(ctx context.Context, ev event.Event) error
	AppendBatch(ctx context.Context, events []event.Event) error
	GetEvents(ctx context.Context, gameID uuid.UUID, fromSequence uint64) ([]event.Event, error)
	GetLatestSequence(ctx context.Context, gameID uuid.UUID) (int64, error)
	StreamEvents(ctx context.Context, gameID uuid.UUID, fromSequence uint64, fn func(event.Event) error) error

	CreateGame(ctx context.Context, meta GameMeta) error
	MarkStarted(ctx context.Context, gameID uuid.UUID) error
	MarkCompleted(ctx context.Context, gameID uuid.UUID, winnerID string) error
	GetActiveGames(ctx context.Context) ([]GameMeta, error)
	GetGame(ctx context.Context, gameID uuid.UUID) (GameMeta, error)

	Close() error
}

const schemaSQLPostgres = `
CREATE TABLE IF NOT EXISTS events (
	id BIGSERIAL PRIMARY KEY,
	game_id UUID NOT NULL,
	sequence_num INTEGER NOT NULL,
	event_type VARCHAR(50) NOT NULL,
	player_id VARCHAR(50),
	event_data JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE(game_id, sequence_num)
);
CREATE INDEX IF NOT EXISTS idx_events_game_seq ON events(game_id, sequence_num);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
CREATE INDEX IF NOT EXISTS idx_events_player ON events(player_id);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);

CREATE TABLE IF NOT EXISTS games_v2 (
	id UUID PRIMARY KEY,
	room_code VARCHAR(10) NOT NULL,
	status VARCHAR(20) NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	num_players INTEGER NOT NULL DEFAULT 0,
	num_rounds INTEGER NOT NULL DEFAULT 1,
	options JSONB NOT NULL DEFAULT '{}',
	winner_id VARCHAR(50),
	host_id VARCHAR(50),
	player_ids VARCHAR(50)[] NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_games_status ON games_v2(status) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_games_room_code ON games_v2(room_code) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_games_player_ids ON games_v2 USING GIN(player_ids);
CREATE INDEX IF NOT EXISTS idx_games_completed_at ON games_v2(completed_at);
`

const schemaSQLSQLite = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id TEXT NOT NULL,
	sequence_num INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	player_id TEXT,
	event_data TEXT NOT NULL,
	created_at_ms INTEGER NOT NULL,
	UNIQUE(game_id, sequence_num)
);
CREATE INDEX IF NOT EXISTS idx_events_game_seq ON events(game_id, sequence_num);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);

CREATE TABLE IF NOT EXISTS games_v2 (
	id TEXT PRIMARY KEY,
	room_code TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	created_at_ms INTEGER NOT NULL,
	started_at_ms INTEGER,
	completed_at_ms INTEGER,
	num_players INTEGER NOT NULL DEFAULT 0,
	num_rounds INTEGER NOT NULL DEFAULT 1,
	options TEXT NOT NULL DEFAULT '{}',
	winner_id TEXT,
	host_id TEXT,
	player_ids TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_games_status ON games_v2(status);
`
