package cpu

import (
	"fmt"
	"math/rand"
)

// ActionType names the move a Policy chose for a CPU turn.
type ActionType string

const (
	ActionDrawDeck    ActionType = "draw_deck"
	ActionDrawDiscard ActionType = "draw_discard"
	ActionSwap        ActionType = "swap"
	ActionDiscard     ActionType = "discard"
	ActionFlip        ActionType = "flip"
	ActionSkipFlip    ActionType = "skip_flip"
	ActionKnockEarly  ActionType = "knock_early"
)

// Action is one decision returned by a Policy: what to do, and which
// hand position it applies to (ignored for position-less actions).
type Action struct {
	Type     ActionType
	Position int
}

// GameView is the CPU-visible projection of a turn: everything a Policy
// needs to decide without reaching into golf.Game directly. The room
// orchestrator builds this from a golf.Snapshot scoped to the CPU seat.
type GameView struct {
	HasDrawnCard     bool
	DrawnFromDiscard bool
	DiscardAvailable bool
	FlipOnDiscard    bool
	// AwaitingPostDiscardFlip is set when a flip_on_discard discard left
	// this turn pending exactly one more action: FlipCard or SkipFlip.
	AwaitingPostDiscardFlip bool
	FaceDownPositions []int
	FaceUpPositions   []int
}

// Policy is the external collaborator contract for CPU turn decisions.
// Concrete skill heuristics live outside this package; Policy only fixes
// the shape a driver (human-authored, scripted, or model-backed) must
// implement to plug into the room orchestrator.
type Policy interface {
	Decide(view GameView, profile Profile) (Action, error)
}

// RandomLegalPolicy is a reference Policy that picks uniformly among the
// actions legal for the current view. It exists so the room orchestrator
// and its tests have a working default without depending on any skill
// heuristic — it makes no attempt to play well.
type RandomLegalPolicy struct {
	Rand *rand.Rand
}

func (p RandomLegalPolicy) rng() *rand.Rand {
	if p.Rand != nil {
		return p.Rand
	}
	return rand.New(rand.NewSource(1))
}

func (p RandomLegalPolicy) Decide(view GameView, _ Profile) (Action, error) {
	rng := p.rng()

	if view.AwaitingPostDiscardFlip {
		if len(view.FaceDownPositions) > 0 {
			return Action{Type: ActionFlip, Position: pick(rng, view.FaceDownPositions)}, nil
		}
		return Action{Type: ActionSkipFlip}, nil
	}

	if !view.HasDrawnCard {
		if view.DiscardAvailable && rng.Intn(2) == 0 {
			return Action{Type: ActionDrawDiscard}, nil
		}
		return Action{Type: ActionDrawDeck}, nil
	}

	// Drawing from discard obliges a swap; there is always a position to
	// swap into (face-down if any, else any face-up slot).
	if view.DrawnFromDiscard {
		if len(view.FaceDownPositions) > 0 {
			return Action{Type: ActionSwap, Position: pick(rng, view.FaceDownPositions)}, nil
		}
		if len(view.FaceUpPositions) > 0 {
			return Action{Type: ActionSwap, Position: pick(rng, view.FaceUpPositions)}, nil
		}
		return Action{}, fmt.Errorf("cpu: no hand position available to complete forced swap")
	}

	if rng.Intn(2) == 0 {
		all := append(append([]int{}, view.FaceDownPositions...), view.FaceUpPositions...)
		if len(all) > 0 {
			return Action{Type: ActionSwap, Position: pick(rng, all)}, nil
		}
	}

	return Action{Type: ActionDiscard}, nil
}

func pick(rng *rand.Rand, xs []int) int {
	return xs[rng.Intn(len(xs))]
}
