package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"golf-server/event"
)

// PostgresLog is the production event log backend: one Postgres
// connection pool shared by every replica, schema provisioned with
// CREATE TABLE IF NOT EXISTS on first connect.
type PostgresLog struct {
	db *sql.DB
}

// NewPostgresLog opens dsn, verifies connectivity, and ensures the schema
// exists.
func NewPostgresLog(dsn string) (*PostgresLog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQLPostgres); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: ensure schema: %w", err)
	}
	log.Printf("[EventLog] connected to postgres")
	return &PostgresLog{db: db}, nil
}

func (l *PostgresLog) Close() error { return l.db.Close() }

func (l *PostgresLog) Append(ctx context.Context, ev event.Event) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO events (game_id, sequence_num, event_type, player_id, event_data)
VALUES ($1, $2, $3, $4, $5)
`, ev.GameID, ev.Sequence, string(ev.Type), ev.PlayerID, []byte(ev.Data))
	if isUniqueViolation(err) {
		return ErrConcurrency
	}
	return err
}

func (l *PostgresLog) AppendBatch(ctx context.Context, events []event.Event) error {
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
INSERT INTO events (game_id, sequence_num, event_type, player_id, event_data)
VALUES ($1, $2, $3, $4, $5)
`, ev.GameID, ev.Sequence, string(ev.Type), ev.PlayerID, []byte(ev.Data)); err != nil {
			if isUniqueViolation(err) {
				return ErrConcurrency
			}
			return err
		}
	}
	return tx.Commit()
}

func (l *PostgresLog) GetEvents(ctx context.Context, gameID uuid.UUID, fromSequence uint64) ([]event.Event, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT game_id, sequence_num, event_type, player_id, event_data, created_at
FROM events
WHERE game_id = $1 AND sequence_num >= $2
ORDER BY sequence_num ASC
`, gameID, fromSequence)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (l *PostgresLog) GetLatestSequence(ctx context.Context, gameID uuid.UUID) (int64, error) {
	var seq int64
	err := l.db.QueryRowContext(ctx, `
SELECT COALESCE(MAX(sequence_num), -1) FROM events WHERE game_id = $1
`, gameID).Scan(&seq)
	return seq, err
}

func (l *PostgresLog) StreamEvents(ctx context.Context, gameID uuid.UUID, fromSequence uint64, fn func(event.Event) error) error {
	rows, err := l.db.QueryContext(ctx, `
SELECT game_id, sequence_num, event_type, player_id, event_data, created_at
FROM events
WHERE game_id = $1 AND sequence_num >= $2
ORDER BY sequence_num ASC
`, gameID, fromSequence)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		ev, err := scanOneEvent(rows)
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	var out []event.Event
	for rows.Next() {
		ev, err := scanOneEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOneEvent(rows rowScanner) (event.Event, error) {
	var ev event.Event
	var typ string
	var playerID sql.NullString
	var data []byte
	if err := rows.Scan(&ev.GameID, &ev.Sequence, &typ, &playerID, &data, &ev.Timestamp); err != nil {
		return event.Event{}, err
	}
	ev.Type = event.Type(typ)
	if playerID.Valid {
		ev.PlayerID = &playerID.String
	}
	ev.Data = data
	return ev, nil
}

func (l *PostgresLog) CreateGame(ctx context.Context, meta GameMeta) error {
	optionsRaw, err := json.Marshal(meta.Options)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, `
INSERT INTO games_v2 (id, room_code, status, num_players, num_rounds, options, host_id, player_ids)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, meta.ID, meta.RoomCode, string(StatusActive), meta.NumPlayers, meta.NumRounds, optionsRaw, meta.HostID, pq.Array(meta.PlayerIDs))
	return err
}

func (l *PostgresLog) MarkStarted(ctx context.Context, gameID uuid.UUID) error {
	_, err := l.db.ExecContext(ctx, `UPDATE games_v2 SET started_at = NOW() WHERE id = $1`, gameID)
	return err
}

func (l *PostgresLog) MarkCompleted(ctx context.Context, gameID uuid.UUID, winnerID string) error {
	_, err := l.db.ExecContext(ctx, `
UPDATE games_v2 SET status = $2, completed_at = NOW(), winner_id = $3 WHERE id = $1
`, gameID, string(StatusCompleted), winnerID)
	return err
}

func (l *PostgresLog) GetActiveGames(ctx context.Context) ([]GameMeta, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT id, room_code, status, num_players, num_rounds, options, host_id, COALESCE(winner_id, ''), player_ids
FROM games_v2 WHERE status = $1
`, string(StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GameMeta
	for rows.Next() {
		m, err := scanGameMeta(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (l *PostgresLog) GetGame(ctx context.Context, gameID uuid.UUID) (GameMeta, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT id, room_code, status, num_players, num_rounds, options, host_id, COALESCE(winner_id, ''), player_ids
FROM games_v2 WHERE id = $1
`, gameID)
	m, err := scanGameMeta(row)
	if err == sql.ErrNoRows {
		return GameMeta{}, ErrNotFound
	}
	return m, err
}

func scanGameMeta(row rowScanner) (GameMeta, error) {
	var m GameMeta
	var status string
	var optionsRaw []byte
	var playerIDs pq.StringArray
	if err := row.Scan(&m.ID, &m.RoomCode, &status, &m.NumPlayers, &m.NumRounds, &optionsRaw, &m.HostID, &m.WinnerID, &playerIDs); err != nil {
		return GameMeta{}, err
	}
	m.Status = GameStatus(status)
	m.PlayerIDs = []string(playerIDs)
	if len(optionsRaw) > 0 {
		if err := json.Unmarshal(optionsRaw, &m.Options); err != nil {
			return GameMeta{}, err
		}
	}
	return m, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
