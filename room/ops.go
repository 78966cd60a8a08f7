package room

import (
	"fmt"
	"math/rand"
	"time"

	"golf-server/card"
	"golf-server/cpu"
	"golf-server/event"
	"golf-server/golf"
)

func rankName(r int) string {
	switch r {
	case 1:
		return "A"
	case 10:
		return "10"
	case 11:
		return "J"
	case 12:
		return "Q"
	case 13:
		return "K"
	default:
		return fmt.Sprintf("%d", r)
	}
}

func cardData(c card.Card, faceUp bool) event.CardData {
	if c.IsJoker() {
		return event.CardData{Rank: "JK", FaceUp: faceUp}
	}
	return event.CardData{Rank: rankName(c.Rank()), Suit: c.Suit().String(), FaceUp: faceUp}
}

// afterTurn checks whether a turn-mutating op ended the round as a side
// effect, appending round_ended so the event log stays in lockstep with
// golf.Game without every call site re-deriving the transition by hand.
// game_ended is appended by handleNextRound and handleEndGame, not here.
func (r *Room) afterTurn(phaseBefore golf.Phase) {
	phaseAfter := r.game.Phase()
	if phaseAfter == golf.PhaseRoundOver && phaseBefore != golf.PhaseRoundOver {
		r.emitRoundEnded()
	}
	r.broadcastState()
}

func (r *Room) emitRoundEnded() {
	summary := r.game.LastRoundSummary()
	data := event.RoundEndedData{Scores: map[string]int{}}
	if summary != nil {
		data.Scores = summary.Scores
		data.FinisherID = summary.FinisherID
	}
	data.FinalHands = map[string][]event.CardData{}
	for playerID, hand := range r.game.DealtHands() {
		cards := make([]event.CardData, len(hand))
		for i, c := range hand {
			cards[i] = cardData(c, true)
		}
		data.FinalHands[playerID] = cards
	}
	r.appendEvent(event.RoundEnded, nil, data)
}

func (r *Room) handleStartGame(playerID string) error {
	if err := r.requireHost(playerID); err != nil {
		return err
	}
	if err := r.game.StartGame(); err != nil {
		return err
	}
	r.markStarted()
	options, _ := optionsToMap(r.cfg.Options)
	if options != nil {
		// NumDecks lives on golf.Config, not golf.Options (it governs shoe
		// size, not a rule variant), so optionsToMap's marshal of Options
		// alone never carries it; the reducer's applyRoundStarted needs it
		// to compute DeckRemaining after a recovery replay.
		options["num_decks"] = r.cfg.NumDecks
	}
	r.appendEvent(event.GameStarted, nil, event.GameStartedData{
		PlayerOrder: append([]string(nil), r.order...),
		NumRounds:   r.cfg.NumRounds,
		Options:     options,
	})
	r.emitRoundStarted()
	r.broadcastState()
	return nil
}

func (r *Room) emitRoundStarted() {
	dealt := map[string][]event.CardData{}
	for playerID, hand := range r.game.DealtHands() {
		cards := make([]event.CardData, len(hand))
		for i, c := range hand {
			cards[i] = cardData(c, false)
		}
		dealt[playerID] = cards
	}
	var firstDiscard *event.CardData
	if top := r.game.DiscardTopCard(); top != card.Invalid {
		d := cardData(top, true)
		firstDiscard = &d
	}

	currentRound := 1
	if snap := r.game.Snapshot(""); snap.CurrentRound > 0 {
		currentRound = snap.CurrentRound
	}
	r.appendEvent(event.RoundStarted, nil, event.RoundStartedData{
		RoundNum:     currentRound,
		DealtCards:   dealt,
		FirstDiscard: firstDiscard,
		Seed:         r.game.Seed(),
	})
}

func (r *Room) markStarted() {
	if r.deps.Log == nil {
		return
	}
	// MarkStarted is best-effort bookkeeping for recovery's active-game
	// scan; a failure here doesn't block play, only recovery's idle-room
	// discovery, so it's logged in appendEvent's style rather than
	// surfaced to the caller.
	ctx := roomCtx()
	defer ctx.cancel()
	if err := r.deps.Log.MarkStarted(ctx.ctx, r.GameID); err != nil {
		logTransportError(r.Code, "mark started", err)
	}
}

func (r *Room) handleFlipInitial(playerID string, positions []int) error {
	phaseBefore := r.game.Phase()
	if err := r.game.FlipInitialCards(playerID, positions); err != nil {
		return err
	}
	hand := r.game.DealtHands()[playerID]
	cards := make([]event.CardData, len(positions))
	for i, pos := range positions {
		if pos >= 0 && pos < len(hand) {
			cards[i] = cardData(hand[pos], true)
		}
	}
	r.appendEvent(event.InitialFlip, &playerID, event.InitialFlipData{Positions: positions, Cards: cards})
	r.afterTurn(phaseBefore)
	return nil
}

func (r *Room) handleDraw(playerID, source string) error {
	phaseBefore := r.game.Phase()
	fromDiscard := source == "discard"
	drawn, err := r.game.DrawCard(playerID, fromDiscard)
	if err != nil {
		if err == golf.ErrDeckExhausted && r.game.Phase() == golf.PhaseRoundOver {
			// the deck ran out mid-draw: golf.Game already closed the
			// round out from under us, so let the shared path record it.
			r.afterTurn(phaseBefore)
		}
		return err
	}
	r.appendEvent(event.CardDrawn, &playerID, event.CardDrawnData{Card: cardData(drawn, true), Source: source})
	r.broadcastState()
	return nil
}

func (r *Room) handleCancelDraw(playerID string) error {
	// Canceling a draw is a client-local undo: the card was never
	// committed to an event, so there is nothing to roll back in the
	// log. golf.Game does not model an in-flight draw as cancelable
	// without either a swap or a discard completing it; the drawn card
	// is returned to the discard pile via DiscardDrawn or swapped via
	// SwapCard by the caller before retrying their move.
	return golf.ErrNoDrawnCard
}

func (r *Room) handleSwap(playerID string, position int) error {
	phaseBefore := r.game.Phase()
	old, err := r.game.SwapCard(playerID, position)
	if err != nil {
		return err
	}
	newCard := r.game.DealtHands()[playerID][position]
	r.appendEvent(event.CardSwapped, &playerID, event.CardSwappedData{
		Position: position,
		NewCard:  cardData(newCard, true),
		OldCard:  cardData(old, true),
	})
	r.afterTurn(phaseBefore)
	return nil
}

func (r *Room) handleDiscard(playerID string) error {
	phaseBefore := r.game.Phase()
	if err := r.game.DiscardDrawn(playerID); err != nil {
		return err
	}
	r.appendEvent(event.CardDiscarded, &playerID, event.CardDiscardedData{})
	r.afterTurn(phaseBefore)
	return nil
}

func (r *Room) handleFlipCard(playerID string, position int) error {
	phaseBefore := r.game.Phase()
	if err := r.game.FlipAndEndTurn(playerID, position); err != nil {
		return err
	}
	c := r.game.DealtHands()[playerID][position]
	r.appendEvent(event.CardFlipped, &playerID, event.CardFlippedData{Position: position, Card: cardData(c, true)})
	r.afterTurn(phaseBefore)
	return nil
}

func (r *Room) handleSkipFlip(playerID string) error {
	phaseBefore := r.game.Phase()
	if err := r.game.SkipFlip(playerID); err != nil {
		return err
	}
	r.appendEvent(event.FlipSkipped, &playerID, event.FlipSkippedData{})
	r.afterTurn(phaseBefore)
	return nil
}

func (r *Room) handleFlipAsAction(playerID string, position int) error {
	phaseBefore := r.game.Phase()
	if err := r.game.FlipAsAction(playerID, position); err != nil {
		return err
	}
	c := r.game.DealtHands()[playerID][position]
	r.appendEvent(event.FlipAsAction, &playerID, event.FlipAsActionData{Position: position, Card: cardData(c, true)})
	r.afterTurn(phaseBefore)
	return nil
}

func (r *Room) handleKnockEarly(playerID string) error {
	phaseBefore := r.game.Phase()
	before := r.game.DealtHands()[playerID]
	faceDown := make([]int, 0, 6)
	for i := range before {
		faceDown = append(faceDown, i)
	}
	if err := r.game.KnockEarly(playerID); err != nil {
		return err
	}
	after := r.game.DealtHands()[playerID]
	cards := make([]event.CardData, len(faceDown))
	for i, pos := range faceDown {
		cards[i] = cardData(after[pos], true)
	}
	r.appendEvent(event.KnockEarly, &playerID, event.KnockEarlyData{Positions: faceDown, Cards: cards})
	r.afterTurn(phaseBefore)
	return nil
}

func (r *Room) handleNextRound(playerID string) error {
	if err := r.requireHost(playerID); err != nil {
		return err
	}
	r.game.SetPendingSeed(0) // fresh shuffle for this round, not a repeat of the last
	started, err := r.game.StartNextRound()
	if err != nil {
		return err
	}
	if !started {
		r.appendEvent(event.GameEnded, nil, event.GameEndedData{})
		r.markGameCompleted(r.championID())
		r.broadcastState()
		return nil
	}
	r.emitRoundStarted()
	r.broadcastState()
	return nil
}

// championID returns the lowest-total-score player once the game has
// ended, for the winner_id column recovery and clients both surface.
func (r *Room) championID() string {
	snap := r.game.Snapshot("")
	best := ""
	bestScore := 0
	for i, pv := range snap.Players {
		if i == 0 || pv.TotalScore < bestScore {
			best = pv.ID
			bestScore = pv.TotalScore
		}
	}
	return best
}

func (r *Room) handleEndGame(playerID string) error {
	if err := r.requireHost(playerID); err != nil {
		return err
	}
	r.appendEvent(event.GameEnded, nil, event.GameEndedData{})
	r.markGameCompleted(r.championID())
	r.teardownLocked()
	return nil
}

// --- CPU turn driving -----------------------------------------------------

// driveCPUTurn inspects whose turn it is after a broadcast and, if the
// current player is a CPU seat, schedules its move after a bounded
// randomized think delay. The scheduled goroutine re-submits its
// decision as an ordinary Command on the room's own channel, the same
// recursive self-scheduling shape as the teacher's scheduleNPCAction.
func (r *Room) driveCPUTurn() {
	phase := r.game.Phase()
	if phase != golf.PhasePlaying && phase != golf.PhaseFinalTurn && phase != golf.PhaseInitialFlip {
		return
	}
	currentID := r.game.CurrentPlayerID()
	if currentID == "" {
		return
	}
	member, ok := r.members[currentID]
	if !ok || !member.IsCPU || r.deps.CPU == nil {
		return
	}
	profile := member.Profile
	delay := r.deps.CPU.ThinkDelay(profile)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-r.done:
			return
		}
		cmd := r.cpuCommand(currentID, profile)
		if cmd == nil {
			return
		}
		_ = r.Submit(*cmd)
	}()
}

// cpuCommand asks the room's configured Policy for a decision and
// translates it into the Command that would express the same move for a
// human player. A nil return means there is nothing useful to do (the
// seat vanished, or the phase moved on while the think delay elapsed).
func (r *Room) cpuCommand(seatID string, profile cpu.Profile) *Command {
	snap := r.game.Snapshot(seatID)
	if snap.CurrentPlayerID != seatID {
		return nil // turn moved on while this CPU was thinking
	}

	if snap.WaitingForInitialFlip {
		positions := firstNFaceDown(snap, r.cfg.Options.InitialFlips)
		return &Command{Type: CmdFlipInitial, PlayerID: seatID, Positions: positions}
	}

	view := cpu.GameView{
		HasDrawnCard:            snap.HasDrawnCard,
		DrawnFromDiscard:        snap.HasDrawnCard && !snap.CanDiscardDrawn,
		DiscardAvailable:        snap.DiscardTop != card.Invalid,
		FlipOnDiscard:           r.cfg.Options.FlipOnDiscard,
		AwaitingPostDiscardFlip: snap.AwaitingPostDiscardFlip,
	}
	if self := r.game.Player(seatID); self != nil {
		for pos, hc := range self.Cards {
			if hc.FaceUp {
				view.FaceUpPositions = append(view.FaceUpPositions, pos)
			} else {
				view.FaceDownPositions = append(view.FaceDownPositions, pos)
			}
		}
	}

	policy := r.deps.Policy
	if policy == nil {
		policy = cpu.RandomLegalPolicy{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	}
	action, err := policy.Decide(view, profile)
	if err != nil {
		logTransportError(r.Code, "cpu policy decide", err)
		return nil
	}

	switch action.Type {
	case cpu.ActionDrawDeck:
		return &Command{Type: CmdDraw, PlayerID: seatID, Source: "deck"}
	case cpu.ActionDrawDiscard:
		return &Command{Type: CmdDraw, PlayerID: seatID, Source: "discard"}
	case cpu.ActionSwap:
		return &Command{Type: CmdSwap, PlayerID: seatID, Positions: []int{action.Position}}
	case cpu.ActionDiscard:
		return &Command{Type: CmdDiscard, PlayerID: seatID}
	case cpu.ActionFlip:
		return &Command{Type: CmdFlipCard, PlayerID: seatID, Positions: []int{action.Position}}
	case cpu.ActionSkipFlip:
		return &Command{Type: CmdSkipFlip, PlayerID: seatID}
	case cpu.ActionKnockEarly:
		return &Command{Type: CmdKnockEarly, PlayerID: seatID}
	default:
		return nil
	}
}

func firstNFaceDown(snap golf.Snapshot, n int) []int {
	var positions []int
	for _, pv := range snap.Players {
		if pv.ID != snap.CurrentPlayerID {
			continue
		}
		for pos, hc := range pv.Cards {
			if hc == nil && len(positions) < n {
				positions = append(positions, pos)
			}
		}
	}
	return positions
}
