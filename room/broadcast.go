package room

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"golf-server/card"
	"golf-server/event"
	"golf-server/golf"
	"golf-server/pubsub"
)

// appendEvent assigns the next sequence number, durably appends the
// event, and swallows the storage error into a log line rather than
// failing the caller: the append is not retried, and the error never
// reaches the player whose move already mutated in-memory state.
func (r *Room) appendEvent(typ event.Type, playerID *string, payload any) {
	r.seq++
	ev, err := event.Encode(r.GameID, r.seq, typ, playerID, payload)
	if err != nil {
		log.Printf("[room %s] encode %s: %v", r.Code, typ, err)
		return
	}
	if r.deps.Log == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.deps.Log.Append(ctx, ev); err != nil {
		log.Printf("[room %s] append %s: %v", r.Code, typ, err)
	}
}

// outboundCard renders a grid slot for the wire: nil for a hidden
// face-down card, the card's short code ("As", "Td", "JK") otherwise.
type outboundCard struct {
	Code   string `json:"code"`
	FaceUp bool   `json:"face_up"`
}

func renderCard(c *card.Card) *outboundCard {
	if c == nil {
		return nil
	}
	return &outboundCard{Code: c.String(), FaceUp: true}
}

type outboundPlayer struct {
	ID         string          `json:"player_id"`
	Name       string          `json:"name"`
	IsCPU      bool            `json:"is_cpu"`
	Cards      [6]*outboundCard `json:"cards"`
	Score      *int            `json:"score,omitempty"`
	TotalScore int             `json:"total_score"`
	RoundsWon  int             `json:"rounds_won"`
	AllFaceUp  bool            `json:"all_face_up"`
}

type gameStateMessage struct {
	Type                  string           `json:"type"`
	Phase                 string           `json:"phase"`
	CurrentPlayerID       string           `json:"current_player_id"`
	CurrentRound          int              `json:"current_round"`
	TotalRounds           int              `json:"total_rounds"`
	DeckRemaining         int              `json:"deck_remaining"`
	DiscardTop            *outboundCard    `json:"discard_top"`
	HasDrawnCard          bool             `json:"has_drawn_card"`
	CanDiscardDrawn       bool             `json:"can_discard_drawn"`
	WaitingForInitialFlip bool             `json:"waiting_for_initial_flip"`
	Players               []outboundPlayer `json:"players"`
}

func projectFor(snap golf.Snapshot) gameStateMessage {
	msg := gameStateMessage{
		Type:                  "game_state",
		Phase:                 snap.Phase.String(),
		CurrentPlayerID:       snap.CurrentPlayerID,
		CurrentRound:          snap.CurrentRound,
		TotalRounds:           snap.TotalRounds,
		DeckRemaining:         snap.DeckRemaining,
		HasDrawnCard:          snap.HasDrawnCard,
		CanDiscardDrawn:       snap.CanDiscardDrawn,
		WaitingForInitialFlip: snap.WaitingForInitialFlip,
	}
	if snap.DiscardTop != card.Invalid {
		msg.DiscardTop = renderCard(&snap.DiscardTop)
	}
	for _, pv := range snap.Players {
		op := outboundPlayer{
			ID: pv.ID, Name: pv.Name, IsCPU: pv.IsCPU,
			TotalScore: pv.TotalScore, RoundsWon: pv.RoundsWon, AllFaceUp: pv.AllFaceUp,
			Score: pv.Score,
		}
		for i, c := range pv.Cards {
			op.Cards[i] = renderCard(c)
		}
		msg.Players = append(msg.Players, op)
	}
	return msg
}

// broadcastState projects the game for every human member, sends each
// their own view, saves a spectator view (no hidden cards revealed) to
// the cache, and publishes
// a notice so other replicas' connections for this room pick it up too.
func (r *Room) broadcastState() {
	for playerID, member := range r.members {
		if member.IsCPU {
			continue
		}
		snap := r.game.Snapshot(playerID)
		msg := projectFor(snap)
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("[room %s] marshal state for %s: %v", r.Code, playerID, err)
			continue
		}
		if r.deps.Send != nil {
			r.deps.Send(playerID, data)
		}
	}

	if r.deps.Cache != nil {
		spectatorView := projectFor(r.game.Snapshot(""))
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.deps.Cache.SaveGameState(ctx, r.GameID.String(), spectatorView); err != nil {
			log.Printf("[room %s] save game state: %v", r.Code, err)
		}
	}
	if r.deps.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := r.deps.Bus.Publish(ctx, pubsub.Message{
			Type:     pubsub.GameStateUpdate,
			RoomCode: r.Code,
			Data:     pubsub.EncodeData(struct{}{}),
		})
		if err != nil {
			log.Printf("[room %s] publish state update: %v", r.Code, err)
		}
	}

	r.driveCPUTurn()
}

func (r *Room) markGameCompleted(winnerID string) {
	if r.deps.Log == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.deps.Log.MarkCompleted(ctx, r.GameID, winnerID); err != nil {
		log.Printf("[room %s] mark completed: %v", r.Code, err)
	}
}
