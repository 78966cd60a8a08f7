package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"golf-server/event"
)

// SQLiteLog is the local-dev/test event log backend: a single file (or
// :memory:) database behind the pure-Go modernc.org/sqlite driver, same
// schema shape as PostgresLog so the two are interchangeable behind the
// Log interface.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog opens path (creating parent directories as needed),
// applies the pragmas SQLite needs for single-writer concurrent access,
// and ensures the schema exists.
func NewSQLiteLog(path string) (*SQLiteLog, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("eventlog: create db dir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite is single-writer; avoid pool-induced lock contention

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("eventlog: %s: %w", pragma, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQLSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: ensure schema: %w", err)
	}
	log.Printf("[EventLog] opened sqlite at %s", path)
	return &SQLiteLog{db: db}, nil
}

func (l *SQLiteLog) Close() error { return l.db.Close() }

func (l *SQLiteLog) Append(ctx context.Context, ev event.Event) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO events (game_id, sequence_num, event_type, player_id, event_data, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
`, ev.GameID.String(), ev.Sequence, string(ev.Type), nullString(ev.PlayerID), string(ev.Data), ev.Timestamp.UnixMilli())
	if isSQLiteUniqueViolation(err) {
		return ErrConcurrency
	}
	return err
}

func (l *SQLiteLog) AppendBatch(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO events (game_id, sequence_num, event_type, player_id, event_data, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
`, ev.GameID.String(), ev.Sequence, string(ev.Type), nullString(ev.PlayerID), string(ev.Data), ev.Timestamp.UnixMilli()); err != nil {
			if isSQLiteUniqueViolation(err) {
				return ErrConcurrency
			}
			return err
		}
	}
	return tx.Commit()
}

func (l *SQLiteLog) GetEvents(ctx context.Context, gameID uuid.UUID, fromSequence uint64) ([]event.Event, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT game_id, sequence_num, event_type, player_id, event_data, created_at_ms
FROM events WHERE game_id = ? AND sequence_num >= ?
ORDER BY sequence_num ASC
`, gameID.String(), fromSequence)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteEvents(rows)
}

func (l *SQLiteLog) GetLatestSequence(ctx context.Context, gameID uuid.UUID) (int64, error) {
	var seq int64
	err := l.db.QueryRowContext(ctx, `
SELECT COALESCE(MAX(sequence_num), -1) FROM events WHERE game_id = ?
`, gameID.String()).Scan(&seq)
	return seq, err
}

func (l *SQLiteLog) StreamEvents(ctx context.Context, gameID uuid.UUID, fromSequence uint64, fn func(event.Event) error) error {
	rows, err := l.db.QueryContext(ctx, `
SELECT game_id, sequence_num, event_type, player_id, event_data, created_at_ms
FROM events WHERE game_id = ? AND sequence_num >= ?
ORDER BY sequence_num ASC
`, gameID.String(), fromSequence)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		ev, err := scanOneSQLiteEvent(rows)
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanSQLiteEvents(rows *sql.Rows) ([]event.Event, error) {
	var out []event.Event
	for rows.Next() {
		ev, err := scanOneSQLiteEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanOneSQLiteEvent(rows rowScanner) (event.Event, error) {
	var ev event.Event
	var gameIDStr, typ string
	var playerID sql.NullString
	var data string
	var createdMs int64
	if err := rows.Scan(&gameIDStr, &ev.Sequence, &typ, &playerID, &data, &createdMs); err != nil {
		return event.Event{}, err
	}
	id, err := uuid.Parse(gameIDStr)
	if err != nil {
		return event.Event{}, err
	}
	ev.GameID = id
	ev.Type = event.Type(typ)
	if playerID.Valid {
		ev.PlayerID = &playerID.String
	}
	ev.Data = []byte(data)
	ev.Timestamp = time.UnixMilli(createdMs).UTC()
	return ev, nil
}

func (l *SQLiteLog) CreateGame(ctx context.Context, meta GameMeta) error {
	optionsRaw, err := json.Marshal(meta.Options)
	if err != nil {
		return err
	}
	playerIDsRaw, err := json.Marshal(meta.PlayerIDs)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, `
INSERT INTO games_v2 (id, room_code, status, created_at_ms, num_players, num_rounds, options, host_id, player_ids)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, meta.ID.String(), meta.RoomCode, string(StatusActive), time.Now().UnixMilli(), meta.NumPlayers, meta.NumRounds, string(optionsRaw), meta.HostID, string(playerIDsRaw))
	return err
}

func (l *SQLiteLog) MarkStarted(ctx context.Context, gameID uuid.UUID) error {
	_, err := l.db.ExecContext(ctx, `UPDATE games_v2 SET started_at_ms = ? WHERE id = ?`, time.Now().UnixMilli(), gameID.String())
	return err
}

func (l *SQLiteLog) MarkCompleted(ctx context.Context, gameID uuid.UUID, winnerID string) error {
	_, err := l.db.ExecContext(ctx, `
UPDATE games_v2 SET status = ?, completed_at_ms = ?, winner_id = ? WHERE id = ?
`, string(StatusCompleted), time.Now().UnixMilli(), winnerID, gameID.String())
	return err
}

func (l *SQLiteLog) GetActiveGames(ctx context.Context) ([]GameMeta, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT id, room_code, status, num_players, num_rounds, options, host_id, COALESCE(winner_id, ''), player_ids
FROM games_v2 WHERE status = ?
`, string(StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GameMeta
	for rows.Next() {
		m, err := scanSQLiteGameMeta(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (l *SQLiteLog) GetGame(ctx context.Context, gameID uuid.UUID) (GameMeta, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT id, room_code, status, num_players, num_rounds, options, host_id, COALESCE(winner_id, ''), player_ids
FROM games_v2 WHERE id = ?
`, gameID.String())
	m, err := scanSQLiteGameMeta(row)
	if err == sql.ErrNoRows {
		return GameMeta{}, ErrNotFound
	}
	return m, err
}

func scanSQLiteGameMeta(row rowScanner) (GameMeta, error) {
	var m GameMeta
	var idStr, status, optionsRaw, playerIDsRaw string
	if err := row.Scan(&idStr, &m.RoomCode, &status, &m.NumPlayers, &m.NumRounds, &optionsRaw, &m.HostID, &m.WinnerID, &playerIDsRaw); err != nil {
		return GameMeta{}, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return GameMeta{}, err
	}
	m.ID = id
	m.Status = GameStatus(status)
	if optionsRaw != "" {
		if err := json.Unmarshal([]byte(optionsRaw), &m.Options); err != nil {
			return GameMeta{}, err
		}
	}
	if playerIDsRaw != "" {
		if err := json.Unmarshal([]byte(playerIDsRaw), &m.PlayerIDs); err != nil {
			return GameMeta{}, err
		}
	}
	return m, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func isSQLiteUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
