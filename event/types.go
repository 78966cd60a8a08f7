// Package event defines the typed event union for a Golf game, its JSON
// wire encoding, and the pure reducer that turns an event stream into a
// RebuiltGameState.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type tags the payload carried in Event.Data.
type Type string

const (
	GameCreated   Type = "game_created"
	PlayerJoined  Type = "player_joined"
	PlayerLeft    Type = "player_left"
	GameStarted   Type = "game_started"
	RoundStarted  Type = "round_started"
	RoundEnded    Type = "round_ended"
	GameEnded     Type = "game_ended"
	InitialFlip   Type = "initial_flip"
	CardDrawn     Type = "card_drawn"
	CardSwapped   Type = "card_swapped"
	CardDiscarded Type = "card_discarded"
	CardFlipped   Type = "card_flipped"
	FlipSkipped   Type = "flip_skipped"
	FlipAsAction  Type = "flip_as_action"
	KnockEarly    Type = "knock_early"
)

// Event is one immutable fact in a game's history: it is always appended,
// never mutated, and carries everything the reducer needs to fold it into
// state. Data is kept as json.RawMessage (rather than an interface union)
// because it must survive a database round-trip through a JSONB column
// unchanged.
type Event struct {
	GameID    uuid.UUID       `json:"game_id"`
	Sequence  uint64          `json:"sequence_num"`
	Type      Type            `json:"event_type"`
	PlayerID  *string         `json:"player_id,omitempty"`
	Data      json.RawMessage `json:"event_data"`
	Timestamp time.Time       `json:"created_at"`
}

// Encode marshals a typed payload into an Event with the given envelope
// fields, failing only if payload cannot be marshaled (a programmer
// error, not a runtime condition).
func Encode(gameID uuid.UUID, seq uint64, typ Type, playerID *string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("event: encode %s: %w", typ, err)
	}
	return Event{
		GameID:    gameID,
		Sequence:  seq,
		Type:      typ,
		PlayerID:  playerID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Decode unmarshals an event's payload into dst, which must be a pointer
// to the struct type matching ev.Type.
func (ev Event) Decode(dst any) error {
	return json.Unmarshal(ev.Data, dst)
}

// --- Typed payloads ---------------------------------------------------

type GameCreatedData struct {
	RoomCode string         `json:"room_code"`
	HostID   string         `json:"host_id"`
	Options  map[string]any `json:"options"`
}

type PlayerJoinedData struct {
	PlayerName string `json:"player_name"`
	IsCPU      bool   `json:"is_cpu"`
	CPUProfile string `json:"cpu_profile,omitempty"`
}

type PlayerLeftData struct {
	// NewHostID is set only when the departing player held host and
	// another member was promoted in their place.
	NewHostID string `json:"new_host_id,omitempty"`
}

type GameStartedData struct {
	PlayerOrder []string       `json:"player_order"`
	NumRounds   int            `json:"num_rounds"`
	Options     map[string]any `json:"options"`
}

type CardData struct {
	Rank   string `json:"rank"`
	Suit   string `json:"suit"`
	FaceUp bool   `json:"face_up"`
}

type RoundStartedData struct {
	RoundNum     int                   `json:"round_num"`
	DealtCards   map[string][]CardData `json:"dealt_cards"`
	FirstDiscard *CardData             `json:"first_discard,omitempty"`
	Seed         int64                 `json:"seed"`
}

type RoundEndedData struct {
	Scores     map[string]int         `json:"scores"`
	FinisherID string                  `json:"finisher_id,omitempty"`
	FinalHands map[string][]CardData  `json:"final_hands,omitempty"`
}

type GameEndedData struct{}

type InitialFlipData struct {
	Positions []int      `json:"positions"`
	Cards     []CardData `json:"cards"`
}

type CardDrawnData struct {
	Card   CardData `json:"card"`
	Source string   `json:"source"` // "deck" | "discard"
}

type CardSwappedData struct {
	Position int      `json:"position"`
	NewCard  CardData `json:"new_card"`
	OldCard  CardData `json:"old_card"`
}

type CardDiscardedData struct{}

type CardFlippedData struct {
	Position int      `json:"position"`
	Card     CardData `json:"card"`
}

type FlipSkippedData struct{}

type FlipAsActionData struct {
	Position int      `json:"position"`
	Card     CardData `json:"card"`
}

type KnockEarlyData struct {
	Positions []int      `json:"positions"`
	Cards     []CardData `json:"cards"`
}
