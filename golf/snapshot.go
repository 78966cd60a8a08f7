package golf

import "golf-server/card"

// PlayerView is a single player's card grid as seen by one viewer: a
// player's own cards and, once the round is over, everyone's cards are
// fully revealed; an opponent's face-down cards are hidden.
type PlayerView struct {
	ID         string
	Name       string
	IsCPU      bool
	Cards      [6]*card.Card // nil at a position the viewer cannot see
	Score      *int          // nil until the round ends
	TotalScore int
	RoundsWon  int
	AllFaceUp  bool
}

// Snapshot is the full, viewer-scoped projection of a game in progress,
// the payload used both for outbound state broadcasts and for the
// GameView handed to a CPU policy.
type Snapshot struct {
	Phase               Phase
	CurrentPlayerID     string
	CurrentRound        int
	TotalRounds         int
	DeckRemaining       int
	DiscardTop          card.Card
	HasDrawnCard        bool
	CanDiscardDrawn     bool
	WaitingForInitialFlip bool
	AwaitingPostDiscardFlip bool
	Options             Options
	Players             []PlayerView
}

// Snapshot projects the game's state for a specific viewer. viewerID may
// be empty for a spectator/CPU-policy view with no privileged hand.
func (g *Game) Snapshot(viewerID string) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	reveal := g.phase == PhaseRoundOver || g.phase == PhaseGameOver
	s := Snapshot{
		Phase:           g.phase,
		CurrentRound:    g.currentRound,
		TotalRounds:     g.cfg.NumRounds,
		Options:         g.cfg.Options,
		HasDrawnCard:    g.drawnCard != card.Invalid,
		CanDiscardDrawn: !g.drawnFromDisc,
		AwaitingPostDiscardFlip: g.awaitingFlip,
	}
	if cur := g.currentPlayerLocked(); cur != nil {
		s.CurrentPlayerID = cur.ID
	}
	if g.deck != nil {
		s.DeckRemaining = g.deck.Remaining()
		s.DiscardTop = g.deck.DiscardTop()
	}
	s.WaitingForInitialFlip = g.phase == PhaseInitialFlip && !g.initialFlipped[viewerID]

	for _, p := range g.players {
		isSelf := p.ID == viewerID
		pv := PlayerView{ID: p.ID, Name: p.Name, IsCPU: p.IsCPU, TotalScore: p.TotalScore, RoundsWon: p.RoundsWon, AllFaceUp: p.AllFaceUp()}
		for i, hc := range p.Cards {
			if hc.FaceUp || isSelf || reveal {
				c := hc.Card
				pv.Cards[i] = &c
			}
		}
		if reveal {
			score := p.Score
			pv.Score = &score
		}
		s.Players = append(s.Players, pv)
	}
	return s
}
