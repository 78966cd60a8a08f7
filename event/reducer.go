package event

import (
	"fmt"

	"github.com/google/uuid"
)

// GamePhase mirrors golf.Phase's values as strings, the same vocabulary
// the wire protocol and the cache use, so the reducer never imports
// package golf (reducer and engine operate on the same contract, not on
// each other).
type GamePhase string

const (
	PhaseWaiting      GamePhase = "waiting"
	PhaseInitialFlip  GamePhase = "initial_flip"
	PhasePlaying      GamePhase = "playing"
	PhaseFinalTurn    GamePhase = "final_turn"
	PhaseRoundOver    GamePhase = "round_over"
	PhaseGameOver     GamePhase = "game_over"
)

type PlayerState struct {
	ID         string
	Name       string
	Cards      []CardData
	Score      int
	TotalScore int
	RoundsWon  int
	IsCPU      bool
	CPUProfile string
}

func (p *PlayerState) allFaceUp() bool {
	for _, c := range p.Cards {
		if !c.FaceUp {
			return false
		}
	}
	return len(p.Cards) > 0
}

// RebuiltGameState is the reducer's output: everything package recovery
// needs to hydrate the state cache after replaying a game's event stream,
// mirroring golf.Game's shape without depending on it.
type RebuiltGameState struct {
	GameID     uuid.UUID
	RoomCode   string
	HostID     string
	Phase      GamePhase
	Players    map[string]*PlayerState
	PlayerOrder []string
	CurrentIdx int

	DeckRemaining     int
	DiscardPile       []CardData
	DrawnCard         *CardData
	DrawnFromDiscard  bool

	CurrentRound int
	TotalRounds  int
	Options      map[string]any

	Sequence           uint64
	FinisherID         string
	PlayersFinalTurn   map[string]bool
	InitialFlipsDone   map[string]bool
}

// CurrentPlayerID returns the player whose turn it is, or "" if there are
// no players yet.
func (s *RebuiltGameState) CurrentPlayerID() string {
	if len(s.PlayerOrder) == 0 || s.CurrentIdx < 0 || s.CurrentIdx >= len(s.PlayerOrder) {
		return ""
	}
	return s.PlayerOrder[s.CurrentIdx]
}

// Rebuild folds a full event stream, in sequence order, into a fresh
// RebuiltGameState. The first event must carry sequence 1.
func Rebuild(events []Event) (*RebuiltGameState, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("event: cannot rebuild state from an empty event list")
	}
	state := &RebuiltGameState{
		GameID:           events[0].GameID,
		Phase:            PhaseWaiting,
		Players:          map[string]*PlayerState{},
		PlayersFinalTurn: map[string]bool{},
		InitialFlipsDone: map[string]bool{},
		TotalRounds:      1,
	}
	for _, ev := range events {
		if err := Reduce(state, ev); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// Reduce applies a single event to state in place. It is pure with
// respect to anything outside state and ev: given the same (state, ev) it
// always produces the same result, so replay is deterministic.
func Reduce(state *RebuiltGameState, ev Event) error {
	expected := state.Sequence + 1
	if ev.Sequence != expected {
		return fmt.Errorf("event: expected sequence %d, got %d", expected, ev.Sequence)
	}

	var playerID string
	if ev.PlayerID != nil {
		playerID = *ev.PlayerID
	}

	switch ev.Type {
	case GameCreated:
		var d GameCreatedData
		if err := ev.Decode(&d); err != nil {
			return err
		}
		state.RoomCode = d.RoomCode
		state.HostID = d.HostID
		state.Options = d.Options

	case PlayerJoined:
		var d PlayerJoinedData
		if err := ev.Decode(&d); err != nil {
			return err
		}
		state.Players[playerID] = &PlayerState{ID: playerID, Name: d.PlayerName, IsCPU: d.IsCPU, CPUProfile: d.CPUProfile}

	case PlayerLeft:
		delete(state.Players, playerID)
		for i, id := range state.PlayerOrder {
			if id == playerID {
				state.PlayerOrder = append(state.PlayerOrder[:i], state.PlayerOrder[i+1:]...)
				break
			}
		}
		if state.CurrentIdx >= len(state.PlayerOrder) {
			state.CurrentIdx = 0
		}

	case GameStarted:
		var d GameStartedData
		if err := ev.Decode(&d); err != nil {
			return err
		}
		state.PlayerOrder = d.PlayerOrder
		state.TotalRounds = d.NumRounds
		if d.Options != nil {
			state.Options = d.Options
		}

	case RoundStarted:
		var d RoundStartedData
		if err := ev.Decode(&d); err != nil {
			return err
		}
		applyRoundStarted(state, d)

	case RoundEnded:
		var d RoundEndedData
		if err := ev.Decode(&d); err != nil {
			return err
		}
		applyRoundEnded(state, d)

	case GameEnded:
		state.Phase = PhaseGameOver

	case InitialFlip:
		var d InitialFlipData
		if err := ev.Decode(&d); err != nil {
			return err
		}
		applyInitialFlip(state, playerID, d)

	case CardDrawn:
		var d CardDrawnData
		if err := ev.Decode(&d); err != nil {
			return err
		}
		c := d.Card
		c.FaceUp = true
		state.DrawnCard = &c
		state.DrawnFromDiscard = d.Source == "discard"
		if state.DrawnFromDiscard && len(state.DiscardPile) > 0 {
			state.DiscardPile = state.DiscardPile[:len(state.DiscardPile)-1]
		} else if !state.DrawnFromDiscard && state.DeckRemaining > 0 {
			state.DeckRemaining--
		}

	case CardSwapped:
		var d CardSwappedData
		if err := ev.Decode(&d); err != nil {
			return err
		}
		applyCardSwapped(state, playerID, d)

	case CardDiscarded:
		applyCardDiscarded(state, playerID)

	case CardFlipped:
		var d CardFlippedData
		if err := ev.Decode(&d); err != nil {
			return err
		}
		applyPositionFlip(state, playerID, d.Position, d.Card)
		endTurn(state, playerID)

	case FlipSkipped:
		endTurn(state, playerID)

	case FlipAsAction:
		var d FlipAsActionData
		if err := ev.Decode(&d); err != nil {
			return err
		}
		applyPositionFlip(state, playerID, d.Position, d.Card)
		endTurn(state, playerID)

	case KnockEarly:
		var d KnockEarlyData
		if err := ev.Decode(&d); err != nil {
			return err
		}
		for i, pos := range d.Positions {
			applyPositionFlip(state, playerID, pos, d.Cards[i])
		}
		endTurn(state, playerID)

	default:
		return fmt.Errorf("event: unknown event type %q", ev.Type)
	}

	state.Sequence = ev.Sequence
	return nil
}

func applyPositionFlip(state *RebuiltGameState, playerID string, position int, c CardData) {
	p := state.Players[playerID]
	if p == nil || position < 0 || position >= len(p.Cards) {
		return
	}
	c.FaceUp = true
	p.Cards[position] = c
}

func applyRoundStarted(state *RebuiltGameState, d RoundStartedData) {
	state.CurrentRound = d.RoundNum
	state.FinisherID = ""
	state.PlayersFinalTurn = map[string]bool{}
	state.InitialFlipsDone = map[string]bool{}
	state.DrawnCard = nil
	state.DrawnFromDiscard = false
	state.CurrentIdx = 0
	state.DiscardPile = nil

	for playerID, cards := range d.DealtCards {
		if p, ok := state.Players[playerID]; ok {
			p.Cards = append([]CardData(nil), cards...)
			p.Score = 0
		}
	}
	if d.FirstDiscard != nil {
		c := *d.FirstDiscard
		c.FaceUp = true
		state.DiscardPile = append(state.DiscardPile, c)
	}

	initialFlips, _ := state.Options["initial_flips"].(float64)
	if initialFlips == 0 {
		state.Phase = PhasePlaying
	} else {
		state.Phase = PhaseInitialFlip
	}

	numDecks, _ := state.Options["num_decks"].(float64)
	if numDecks == 0 {
		numDecks = 1
	}
	cardsPerDeck := 52.0
	if useJokers, _ := state.Options["use_jokers"].(bool); useJokers {
		if luckySwing, _ := state.Options["lucky_swing"].(bool); luckySwing {
			cardsPerDeck += 1
		} else {
			cardsPerDeck += 2
		}
	}
	total := int(numDecks * cardsPerDeck)
	dealt := len(state.Players)*6 + 1
	state.DeckRemaining = total - dealt
	if state.DeckRemaining < 0 {
		state.DeckRemaining = 0
	}
}

func applyRoundEnded(state *RebuiltGameState, d RoundEndedData) {
	state.Phase = PhaseRoundOver
	for playerID, score := range d.Scores {
		if p, ok := state.Players[playerID]; ok {
			p.Score = score
			p.TotalScore += score
		}
	}
	if len(d.Scores) > 0 {
		min := minInt(d.Scores)
		for playerID, score := range d.Scores {
			if score == min {
				if p, ok := state.Players[playerID]; ok {
					p.RoundsWon++
				}
			}
		}
	}
	for playerID, cards := range d.FinalHands {
		if p, ok := state.Players[playerID]; ok {
			revealed := make([]CardData, len(cards))
			for i, c := range cards {
				c.FaceUp = true
				revealed[i] = c
			}
			p.Cards = revealed
		}
	}
}

func minInt(m map[string]int) int {
	first := true
	var min int
	for _, v := range m {
		if first || v < min {
			min = v
			first = false
		}
	}
	return min
}

func applyInitialFlip(state *RebuiltGameState, playerID string, d InitialFlipData) {
	p := state.Players[playerID]
	if p == nil {
		return
	}
	for i, pos := range d.Positions {
		if pos >= 0 && pos < len(p.Cards) {
			c := d.Cards[i]
			c.FaceUp = true
			p.Cards[pos] = c
		}
	}
	state.InitialFlipsDone[playerID] = true
	if len(state.InitialFlipsDone) == len(state.Players) {
		state.Phase = PhasePlaying
	}
}

func applyCardSwapped(state *RebuiltGameState, playerID string, d CardSwappedData) {
	p := state.Players[playerID]
	if p == nil {
		return
	}
	newCard := d.NewCard
	newCard.FaceUp = true
	if d.Position >= 0 && d.Position < len(p.Cards) {
		p.Cards[d.Position] = newCard
	}
	oldCard := d.OldCard
	oldCard.FaceUp = true
	state.DiscardPile = append(state.DiscardPile, oldCard)
	state.DrawnCard = nil
	state.DrawnFromDiscard = false
	endTurn(state, playerID)
}

func applyCardDiscarded(state *RebuiltGameState, playerID string) {
	if state.DrawnCard != nil {
		c := *state.DrawnCard
		c.FaceUp = true
		state.DiscardPile = append(state.DiscardPile, c)
		state.DrawnCard = nil
		state.DrawnFromDiscard = false
	}
	flipOnDiscard, _ := state.Options["flip_on_discard"].(bool)
	if !flipOnDiscard {
		endTurn(state, playerID)
	}
	// otherwise wait for a card_flipped/flip_skipped event
}

// endTurn is the reducer's mirror of golf.Game.checkEndTurnLocked: it
// decides whether the acting player just went out, and advances
// PlayerOrder/CurrentIdx accordingly. It never ends the round itself —
// that transition is always recorded explicitly by a round_ended event.
func endTurn(state *RebuiltGameState, playerID string) {
	p := state.Players[playerID]
	if p == nil {
		return
	}
	if p.allFaceUp() && state.FinisherID == "" {
		state.FinisherID = p.ID
		state.Phase = PhaseFinalTurn
		state.PlayersFinalTurn[p.ID] = true
	} else if state.Phase == PhaseFinalTurn {
		for i := range p.Cards {
			p.Cards[i].FaceUp = true
		}
		state.PlayersFinalTurn[p.ID] = true
	}
	nextTurn(state)
}

func nextTurn(state *RebuiltGameState) {
	if len(state.PlayerOrder) == 0 {
		return
	}
	if state.Phase == PhaseFinalTurn {
		allDone := true
		for _, id := range state.PlayerOrder {
			if !state.PlayersFinalTurn[id] {
				allDone = false
				break
			}
		}
		if allDone {
			return // a round_ended event will record the transition
		}
	}
	state.CurrentIdx = (state.CurrentIdx + 1) % len(state.PlayerOrder)
}
