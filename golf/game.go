// Package golf implements the rules engine for 6-Card Golf: hand layout,
// turn state machine, column-pair scoring, and the end-of-round bonus
// pipeline.
package golf

import (
	"fmt"
	"sync"

	"golf-server/card"
)

// Phase is the round-level state machine.
type Phase byte

const (
	PhaseWaiting Phase = iota
	PhaseInitialFlip
	PhasePlaying
	PhaseFinalTurn
	PhaseRoundOver
	PhaseGameOver
)

var phaseNames = map[Phase]string{
	PhaseWaiting:     "waiting",
	PhaseInitialFlip: "initial_flip",
	PhasePlaying:     "playing",
	PhaseFinalTurn:   "final_turn",
	PhaseRoundOver:   "round_over",
	PhaseGameOver:    "game_over",
}

func (p Phase) String() string { return phaseNames[p] }

const maxPlayers = 6

// Config pins the parameters a Game is built with: how many decks to deal
// from, how many rounds the match runs, the rule-variant bundle, and the
// RNG seed for the first round's deck (0 => time-based; recorded on the
// resulting Deck either way, so a round can be replayed from its seed).
type Config struct {
	NumDecks  int
	NumRounds int
	Options   Options
	Seed      int64
}

// Game is the mutex-guarded rules engine for one room's match. All state
// mutation happens through its exported methods; callers (package room)
// serialize access at a coarser grain but Game defends itself too, the
// same belt-and-suspenders discipline the teacher's holdem.Game uses.
type Game struct {
	mu sync.Mutex

	cfg Config

	players        []*Player
	currentIdx     int
	phase          Phase
	currentRound   int
	deck           *card.Deck
	drawnCard      card.Card
	drawnFromDisc  bool
	finisherID     string
	playersFinal   map[string]bool
	initialFlipped map[string]bool
	lastSummary    *RoundSummary
	awaitingFlip   bool // set once a flip_on_discard discard leaves this turn needing FlipAndEndTurn or SkipFlip
}

// NewGame validates cfg and returns an empty, waiting-phase Game. Players
// are added with AddPlayer; the round does not start until StartGame.
func NewGame(cfg Config) (*Game, error) {
	if cfg.NumDecks <= 0 {
		cfg.NumDecks = 1
	}
	if cfg.NumRounds <= 0 {
		cfg.NumRounds = 1
	}
	if cfg.Options.InitialFlips < 0 || cfg.Options.InitialFlips > 2 {
		return nil, InvalidStateError(fmt.Sprintf("initial flips must be 0, 1 or 2, got %d", cfg.Options.InitialFlips))
	}
	return &Game{
		cfg:            cfg,
		phase:          PhaseWaiting,
		playersFinal:   map[string]bool{},
		initialFlipped: map[string]bool{},
	}, nil
}

func (g *Game) AddPlayer(p *Player) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhaseWaiting {
		return ErrWrongPhase
	}
	if len(g.players) >= maxPlayers {
		return ErrRoomFull
	}
	for _, existing := range g.players {
		if existing.ID == p.ID {
			return InvalidStateError("player already seated: " + p.ID)
		}
	}
	g.players = append(g.players, p)
	return nil
}

func (g *Game) RemovePlayer(playerID string) *Player {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, p := range g.players {
		if p.ID == playerID {
			g.players = append(g.players[:i], g.players[i+1:]...)
			if g.currentIdx >= len(g.players) {
				g.currentIdx = 0
			}
			return p
		}
	}
	return nil
}

func (g *Game) Player(playerID string) *Player {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.playerLocked(playerID)
}

func (g *Game) playerLocked(playerID string) *Player {
	for _, p := range g.players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (g *Game) currentPlayerLocked() *Player {
	if len(g.players) == 0 {
		return nil
	}
	return g.players[g.currentIdx]
}

func (g *Game) CurrentPlayerID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p := g.currentPlayerLocked(); p != nil {
		return p.ID
	}
	return ""
}

func (g *Game) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// Seed returns the RNG seed the current round's deck was built from, for
// recording on the round_started event (a replay must reuse it verbatim).
func (g *Game) Seed() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg.Seed
}

// SetPendingSeed pins the seed the next StartGame or StartNextRound call
// will build its deck from. Live play passes 0 before every round after
// the first so each gets its own fresh shuffle (startRoundLocked always
// overwrites cfg.Seed with the realized value once drawn, so without
// this call every round after the first would silently reuse the prior
// round's exact shuffle). Event-stream replay instead pins the seed
// recorded on that round's round_started event, so the reconstructed
// deck matches history card-for-card.
func (g *Game) SetPendingSeed(seed int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.Seed = seed
}

// DealtHands returns every seated player's true current hand, face-down
// cards included, keyed by player id. Unlike Snapshot, this is not
// viewer-scoped: it exists for the orchestrator to persist a round's
// real deal to the event log, which must record ground truth regardless
// of who has seen what.
func (g *Game) DealtHands() map[string][]card.Card {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string][]card.Card, len(g.players))
	for _, p := range g.players {
		hand := make([]card.Card, len(p.Cards))
		for i, hc := range p.Cards {
			hand[i] = hc.Card
		}
		out[p.ID] = hand
	}
	return out
}

// DiscardTopCard returns the current discard pile's top card, or
// card.Invalid if the pile is empty or the round hasn't started.
func (g *Game) DiscardTopCard() card.Card {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deck == nil {
		return card.Invalid
	}
	return g.deck.DiscardTop()
}

// StartGame seeds the first round. It returns an InvalidStateError when
// fewer than two players are seated, and ErrWrongPhase once the game has
// already started.
func (g *Game) StartGame() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhaseWaiting {
		return ErrWrongPhase
	}
	if len(g.players) < 2 {
		return InvalidStateError("at least two players are required to start")
	}
	g.currentRound = 1
	g.startRoundLocked()
	return nil
}

func (g *Game) startRoundLocked() {
	g.deck = card.NewDeck(card.Options{NumDecks: g.cfg.NumDecks, WithJokers: g.cfg.Options.deckJokerCount()}, g.cfg.Seed)
	g.cfg.Seed = g.deck.Seed // pin the realized seed so a replaying caller reuses the same shoe
	g.drawnCard = card.Invalid
	g.drawnFromDisc = false
	g.finisherID = ""
	g.playersFinal = map[string]bool{}
	g.initialFlipped = map[string]bool{}
	g.awaitingFlip = false

	for _, p := range g.players {
		p.Score = 0
		for i := 0; i < 6; i++ {
			p.Cards[i] = HandCard{Card: g.deck.Draw()}
		}
	}
	top := g.deck.Draw()
	if top != card.Invalid {
		g.deck.Discard(top)
	}

	g.currentIdx = 0
	if g.cfg.Options.InitialFlips == 0 {
		g.phase = PhasePlaying
	} else {
		g.phase = PhaseInitialFlip
	}
}

// FlipInitialCards records a player's pre-game flips. Every seated player
// must flip exactly Options.InitialFlips cards once before play begins.
func (g *Game) FlipInitialCards(playerID string, positions []int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhaseInitialFlip {
		return ErrWrongPhase
	}
	if g.initialFlipped[playerID] {
		return ErrAlreadyFlipped
	}
	if len(positions) != g.cfg.Options.InitialFlips {
		return InvalidStateError(fmt.Sprintf("expected %d positions, got %d", g.cfg.Options.InitialFlips, len(positions)))
	}
	p := g.playerLocked(playerID)
	if p == nil {
		return ErrUnknownPlayer
	}
	for _, pos := range positions {
		if pos < 0 || pos >= 6 {
			return ErrInvalidPosition
		}
	}
	for _, pos := range positions {
		p.FlipCard(pos)
	}
	g.initialFlipped[playerID] = true
	if len(g.initialFlipped) == len(g.players) {
		g.phase = PhasePlaying
	}
	return nil
}

// DrawCard draws a card from either the stock ("deck") or the discard
// pile's top ("discard") for the current player. Only one card may be
// held drawn at a time.
func (g *Game) DrawCard(playerID string, fromDiscard bool) (card.Card, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.requireCurrentPlayerLocked(playerID); err != nil {
		return card.Invalid, err
	}
	if g.phase != PhasePlaying && g.phase != PhaseFinalTurn {
		return card.Invalid, ErrWrongPhase
	}
	if g.drawnCard != card.Invalid {
		return card.Invalid, ErrAlreadyDrawn
	}

	if fromDiscard {
		top := g.deck.DiscardTop()
		if top == card.Invalid {
			return card.Invalid, ErrDeckExhausted
		}
		g.popDiscardTopLocked()
		g.drawnCard = top
		g.drawnFromDisc = true
		return top, nil
	}

	drawn := g.deck.Draw()
	if drawn == card.Invalid {
		g.endRoundLocked()
		return card.Invalid, ErrDeckExhausted
	}
	g.drawnCard = drawn
	g.drawnFromDisc = false
	return drawn, nil
}

func (g *Game) popDiscardTopLocked() {
	g.deck.TakeDiscardTop()
}

func (g *Game) requireCurrentPlayerLocked(playerID string) error {
	cur := g.currentPlayerLocked()
	if cur == nil || cur.ID != playerID {
		return ErrNotCurrentPlayer
	}
	return nil
}

// SwapCard replaces the grid card at position with the held drawn card,
// discarding the displaced card, and ends the turn.
func (g *Game) SwapCard(playerID string, position int) (card.Card, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.requireCurrentPlayerLocked(playerID); err != nil {
		return card.Invalid, err
	}
	if g.drawnCard == card.Invalid {
		return card.Invalid, ErrNoDrawnCard
	}
	if position < 0 || position >= 6 {
		return card.Invalid, ErrInvalidPosition
	}
	p := g.currentPlayerLocked()
	old := p.SwapCard(position, g.drawnCard)
	g.deck.Discard(old.Card)
	g.drawnCard = card.Invalid
	g.drawnFromDisc = false
	g.checkEndTurnLocked(p)
	return old.Card, nil
}

// CanDiscardDrawn reports whether the held drawn card may be discarded
// rather than swapped in: a card drawn from the discard pile must always
// be swapped.
func (g *Game) CanDiscardDrawn() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.drawnFromDisc
}

// DiscardDrawn discards the held drawn card without swapping it into the
// grid. When Options.FlipOnDiscard is set and the player still has
// face-down cards, the turn does not end until FlipAndEndTurn or SkipFlip
// is called;
// otherwise the turn ends immediately.
func (g *Game) DiscardDrawn(playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.requireCurrentPlayerLocked(playerID); err != nil {
		return err
	}
	if g.drawnCard == card.Invalid {
		return ErrNoDrawnCard
	}
	if g.drawnFromDisc {
		return ErrMustSwapDiscard
	}
	p := g.currentPlayerLocked()
	g.deck.Discard(g.drawnCard)
	g.drawnCard = card.Invalid
	g.drawnFromDisc = false

	if g.cfg.Options.FlipOnDiscard {
		if p.hasFaceDown() {
			g.awaitingFlip = true
		} else {
			g.checkEndTurnLocked(p)
		}
		return nil
	}
	g.checkEndTurnLocked(p)
	return nil
}

func (p *Player) hasFaceDown() bool {
	for _, c := range p.Cards {
		if !c.FaceUp {
			return true
		}
	}
	return false
}

// FlipAndEndTurn flips a face-down card after a flip_on_discard discard
// and ends the turn. It is only legal in that pending state.
func (g *Game) FlipAndEndTurn(playerID string, position int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.requireCurrentPlayerLocked(playerID); err != nil {
		return err
	}
	if !g.awaitingFlip {
		return ErrWrongPhase
	}
	if position < 0 || position >= 6 {
		return ErrInvalidPosition
	}
	p := g.currentPlayerLocked()
	if p.Cards[position].FaceUp {
		return InvalidStateError("position already face up")
	}
	p.FlipCard(position)
	g.awaitingFlip = false
	g.checkEndTurnLocked(p)
	return nil
}

// SkipFlip ends the turn without flipping a card after a flip_on_discard
// discard. It is only legal in that pending state.
func (g *Game) SkipFlip(playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.requireCurrentPlayerLocked(playerID); err != nil {
		return err
	}
	if !g.awaitingFlip {
		return ErrWrongPhase
	}
	p := g.currentPlayerLocked()
	g.awaitingFlip = false
	g.checkEndTurnLocked(p)
	return nil
}

// FlipAsAction reveals a face-down card as a player's entire turn, with no
// draw involved — a house-rule alternative action some tables enable.
func (g *Game) FlipAsAction(playerID string, position int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.requireCurrentPlayerLocked(playerID); err != nil {
		return err
	}
	if g.phase != PhasePlaying && g.phase != PhaseFinalTurn {
		return ErrWrongPhase
	}
	if g.drawnCard != card.Invalid {
		return ErrAlreadyDrawn
	}
	if position < 0 || position >= 6 {
		return ErrInvalidPosition
	}
	p := g.currentPlayerLocked()
	if p.Cards[position].FaceUp {
		return InvalidStateError("position already face up")
	}
	p.FlipCard(position)
	g.checkEndTurnLocked(p)
	return nil
}

// KnockEarly forces the current player's whole hand face up immediately,
// ending their participation in the round without drawing. Preconditions
// are not fully specified upstream (see SPEC_FULL.md / DESIGN.md); this
// requires it be the acting player's turn, no card currently held drawn,
// and the round still in progress.
func (g *Game) KnockEarly(playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.requireCurrentPlayerLocked(playerID); err != nil {
		return err
	}
	if g.phase != PhasePlaying && g.phase != PhaseFinalTurn {
		return ErrWrongPhase
	}
	if g.drawnCard != card.Invalid {
		return ErrAlreadyDrawn
	}
	p := g.currentPlayerLocked()
	for i := range p.Cards {
		p.Cards[i].FaceUp = true
	}
	g.checkEndTurnLocked(p)
	return nil
}

func (g *Game) checkEndTurnLocked(p *Player) {
	if p.AllFaceUp() && g.finisherID == "" {
		g.finisherID = p.ID
		g.phase = PhaseFinalTurn
		g.playersFinal[p.ID] = true
	}
	g.nextTurnLocked()
}

func (g *Game) nextTurnLocked() {
	if g.phase == PhaseFinalTurn {
		nextIdx := (g.currentIdx + 1) % len(g.players)
		next := g.players[nextIdx]
		if g.playersFinal[next.ID] {
			g.endRoundLocked()
			return
		}
		g.currentIdx = nextIdx
		g.playersFinal[next.ID] = true
		return
	}
	g.currentIdx = (g.currentIdx + 1) % len(g.players)
}

// RoundSummary records a finished round's scores and finisher.
// endRoundLocked stores it and LastRoundSummary returns it, giving the
// orchestrator everything it needs to emit a round_ended event.
type RoundSummary struct {
	Scores    map[string]int
	FinisherID string
}

func (g *Game) endRoundLocked() *RoundSummary {
	g.phase = PhaseRoundOver
	opts := g.cfg.Options

	for _, p := range g.players {
		for i := range p.Cards {
			p.Cards[i].FaceUp = true
		}
		p.CalculateScore(opts)
	}

	if opts.Blackjack {
		for _, p := range g.players {
			if p.Score == 21 {
				p.Score = 0
			}
		}
	}

	if opts.KnockPenalty && g.finisherID != "" {
		if finisher := g.playerLocked(g.finisherID); finisher != nil {
			if !g.hasUniqueMinimumLocked(finisher) {
				finisher.Score += 10
			}
		}
	}

	if opts.KnockBonus && g.finisherID != "" {
		if finisher := g.playerLocked(g.finisherID); finisher != nil {
			finisher.Score -= 5
		}
	}

	if opts.UnderdogBonus {
		min := g.minScoreLocked()
		for _, p := range g.players {
			if p.Score == min {
				p.Score -= 3
			}
		}
	}

	if opts.TiedShame {
		counts := map[int]int{}
		for _, p := range g.players {
			counts[p.Score]++
		}
		for _, p := range g.players {
			if counts[p.Score] > 1 {
				p.Score += 5
			}
		}
	}

	for _, p := range g.players {
		p.TotalScore += p.Score
	}

	min := g.minScoreLocked()
	for _, p := range g.players {
		if p.Score == min {
			p.RoundsWon++
		}
	}

	summary := &RoundSummary{Scores: map[string]int{}, FinisherID: g.finisherID}
	for _, p := range g.players {
		summary.Scores[p.ID] = p.Score
	}
	g.lastSummary = summary
	return summary
}

// LastRoundSummary returns the summary produced by the most recently
// completed round, or nil if no round has ended yet. Callers use this to
// recover the result of a round end that happened as a side effect of a
// turn-ending call (SwapCard, DiscardDrawn, ...) rather than a direct one.
func (g *Game) LastRoundSummary() *RoundSummary {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSummary
}

func (g *Game) minScoreLocked() int {
	min := g.players[0].Score
	for _, p := range g.players[1:] {
		if p.Score < min {
			min = p.Score
		}
	}
	return min
}

// hasUniqueMinimumLocked reports whether p is the sole player at the
// round's lowest score. A finisher tied with another player at the
// minimum does not have the unique minimum, even though their score
// equals it.
func (g *Game) hasUniqueMinimumLocked(p *Player) bool {
	min := g.minScoreLocked()
	if p.Score != min {
		return false
	}
	count := 0
	for _, other := range g.players {
		if other.Score == min {
			count++
		}
	}
	return count == 1
}

// StartNextRound advances to the next round, or to PhaseGameOver once
// NumRounds has been played.
func (g *Game) StartNextRound() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhaseRoundOver {
		return false, ErrWrongPhase
	}
	if g.currentRound >= g.cfg.NumRounds {
		g.phase = PhaseGameOver
		return false, nil
	}
	g.currentRound++
	g.startRoundLocked()
	return true, nil
}
