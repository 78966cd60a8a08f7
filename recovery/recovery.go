// Package recovery rebuilds active games after a server restart: every
// in-memory room.Room is gone, but the event log and the games metadata
// table are durable, so every game still in progress can be reanimated
// by replaying its event history through the same golf.Game operations
// that produced it the first time.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"golf-server/cpu"
	"golf-server/event"
	"golf-server/eventlog"
	"golf-server/golf"
	"golf-server/pubsub"
	"golf-server/room"
	"golf-server/statecache"
)

// Service recovers games from the event log on startup, and re-homes
// them as live rooms so play can continue without data loss.
type Service struct {
	Log    eventlog.Log
	Cache  *statecache.Cache
	Bus    *pubsub.Bus
	Rooms  *room.Manager
	CPU    *cpu.Manager
	Policy cpu.Policy
}

// Result reports the outcome of recovering one game.
type Result struct {
	GameID    uuid.UUID
	RoomCode  string
	Recovered bool
	Skipped   bool
	Err       error
}

// Summary tallies a RecoverAll pass, mirroring the stats the original
// recovery service logged on every boot.
type Summary struct {
	Recovered int
	Skipped   int
	Failed    int
	Results   []Result
}

// RecoverAll queries the event log for every game still marked active
// and attempts to recover each one. A single game's failure does not
// abort the rest of the pass.
func (s *Service) RecoverAll(ctx context.Context) (Summary, error) {
	metas, err := s.Log.GetActiveGames(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("recovery: list active games: %w", err)
	}
	log.Printf("[recovery] found %d active games to recover", len(metas))

	var summary Summary
	for _, meta := range metas {
		result := s.RecoverGame(ctx, meta.ID, meta.RoomCode)
		summary.Results = append(summary.Results, result)
		switch {
		case result.Recovered:
			summary.Recovered++
		case result.Skipped:
			summary.Skipped++
		default:
			summary.Failed++
			log.Printf("[recovery] failed to recover %s: %v", result.GameID, result.Err)
		}
	}
	return summary, nil
}

// RecoverGame replays one game's full event history and, unless it had
// already ended, re-homes it as a live room.Room.
func (s *Service) RecoverGame(ctx context.Context, gameID uuid.UUID, roomCodeHint string) Result {
	events, err := s.Log.GetEvents(ctx, gameID, 0)
	if err != nil {
		return Result{GameID: gameID, Err: fmt.Errorf("recovery: load events: %w", err)}
	}
	if len(events) == 0 {
		return Result{GameID: gameID, Err: errors.New("recovery: no events for game")}
	}

	if events[len(events)-1].Type == event.GameEnded {
		_ = s.Log.MarkCompleted(ctx, gameID, "")
		return Result{GameID: gameID, RoomCode: roomCodeHint, Skipped: true}
	}

	replayed, err := replay(events)
	if err != nil {
		return Result{GameID: gameID, RoomCode: roomCodeHint, Err: fmt.Errorf("recovery: replay: %w", err)}
	}

	if s.Cache != nil {
		if state, rebuildErr := event.Rebuild(events); rebuildErr == nil {
			if err := s.Cache.SaveGameState(ctx, gameID.String(), state); err != nil {
				log.Printf("[recovery] cache game state for %s: %v", gameID, err)
			}
		}
		s.ensureRoomInCache(ctx, gameID, replayed)
	}

	deps := room.Deps{Log: s.Log, Cache: s.Cache, Bus: s.Bus, CPU: s.CPU, Policy: s.Policy}
	r := room.Restore(replayed.roomCode, gameID, replayed.cfg, replayed.game, replayed.order, replayed.members, replayed.hostID, replayed.seq, deps, nil)
	s.Rooms.Register(r)

	log.Printf("[recovery] recovered game %s (room %s) at sequence %d, phase %s",
		gameID, replayed.roomCode, replayed.seq, replayed.game.Phase())

	return Result{GameID: gameID, RoomCode: replayed.roomCode, Recovered: true}
}

func (s *Service) ensureRoomInCache(ctx context.Context, gameID uuid.UUID, replayed *replayedGame) {
	exists, err := s.Cache.RoomExists(ctx, replayed.roomCode)
	if err != nil {
		log.Printf("[recovery] check room exists %s: %v", replayed.roomCode, err)
		return
	}
	if exists {
		return
	}
	if err := s.Cache.CreateRoom(ctx, replayed.roomCode, gameID.String(), replayed.hostID, "recovered"); err != nil {
		log.Printf("[recovery] create room in cache %s: %v", replayed.roomCode, err)
		return
	}
	status := "playing"
	switch replayed.game.Phase() {
	case golf.PhaseWaiting:
		status = "waiting"
	case golf.PhaseRoundOver, golf.PhaseGameOver:
		status = "finished"
	}
	if err := s.Cache.SetRoomStatus(ctx, replayed.roomCode, status); err != nil {
		log.Printf("[recovery] set room status %s: %v", replayed.roomCode, err)
	}
}

// replayedGame is everything RecoverGame needs to hand back to
// room.Restore once an event stream has been folded through a live
// golf.Game.
type replayedGame struct {
	roomCode string
	hostID   string
	cfg      golf.Config
	game     *golf.Game
	order    []string
	members  map[string]*room.Member
	seq      uint64
}

type pendingPlayer struct {
	id, name, cpuProfile string
	isCPU                bool
}

// replay folds events through the real golf.Game API, in order, so the
// reconstructed engine is reached by the exact same sequence of
// operations that built it the first time — not by poking private
// fields to match a snapshot. A round's deck is reproduced card-for-card
// by pinning each round_started event's recorded seed before replaying
// that round's draws.
func replay(events []event.Event) (*replayedGame, error) {
	var (
		roomCode  string
		hostID    string
		pending   []pendingPlayer
		seatOrder []string
		g         *golf.Game
		cfg       golf.Config
	)

	for _, ev := range events {
		var playerID string
		if ev.PlayerID != nil {
			playerID = *ev.PlayerID
		}

		switch ev.Type {
		case event.GameCreated:
			var d event.GameCreatedData
			if err := ev.Decode(&d); err != nil {
				return nil, err
			}
			roomCode, hostID = d.RoomCode, d.HostID

		case event.PlayerJoined:
			var d event.PlayerJoinedData
			if err := ev.Decode(&d); err != nil {
				return nil, err
			}
			if g == nil {
				pending = append(pending, pendingPlayer{id: playerID, name: d.PlayerName, isCPU: d.IsCPU, cpuProfile: d.CPUProfile})
				continue
			}
			if err := g.AddPlayer(&golf.Player{ID: playerID, Name: d.PlayerName, IsCPU: d.IsCPU, CPUProfile: d.CPUProfile}); err != nil {
				return nil, fmt.Errorf("recovery: replay player_joined: %w", err)
			}
			seatOrder = append(seatOrder, playerID)

		case event.PlayerLeft:
			var d event.PlayerLeftData
			if err := ev.Decode(&d); err != nil {
				return nil, err
			}
			if d.NewHostID != "" {
				hostID = d.NewHostID
			}
			seatOrder = removeSeat(seatOrder, playerID)
			if g == nil {
				for i, p := range pending {
					if p.id == playerID {
						pending = append(pending[:i], pending[i+1:]...)
						break
					}
				}
				continue
			}
			g.RemovePlayer(playerID)

		case event.GameStarted:
			var d event.GameStartedData
			if err := ev.Decode(&d); err != nil {
				return nil, err
			}
			opts, err := optionsFromMap(d.Options)
			if err != nil {
				return nil, err
			}
			numDecks := 1
			if v, ok := d.Options["num_decks"].(float64); ok && v > 0 {
				numDecks = int(v)
			}
			cfg = golf.Config{NumDecks: numDecks, NumRounds: d.NumRounds, Options: opts}
			built, err := golf.NewGame(cfg)
			if err != nil {
				return nil, fmt.Errorf("recovery: rebuild game config: %w", err)
			}
			g = built
			for _, p := range pending {
				if err := g.AddPlayer(&golf.Player{ID: p.id, Name: p.name, IsCPU: p.isCPU, CPUProfile: p.cpuProfile}); err != nil {
					return nil, fmt.Errorf("recovery: seat buffered player: %w", err)
				}
			}

		case event.RoundStarted:
			var d event.RoundStartedData
			if err := ev.Decode(&d); err != nil {
				return nil, err
			}
			if g == nil {
				return nil, errors.New("recovery: round_started before game_started")
			}
			g.SetPendingSeed(d.Seed)
			if g.Phase() == golf.PhaseWaiting {
				if err := g.StartGame(); err != nil {
					return nil, fmt.Errorf("recovery: replay start_game: %w", err)
				}
			} else {
				if _, err := g.StartNextRound(); err != nil {
					return nil, fmt.Errorf("recovery: replay next_round: %w", err)
				}
			}

		case event.InitialFlip:
			var d event.InitialFlipData
			if err := ev.Decode(&d); err != nil {
				return nil, err
			}
			if err := g.FlipInitialCards(playerID, d.Positions); err != nil {
				return nil, fmt.Errorf("recovery: replay initial_flip: %w", err)
			}

		case event.CardDrawn:
			var d event.CardDrawnData
			if err := ev.Decode(&d); err != nil {
				return nil, err
			}
			if _, err := g.DrawCard(playerID, d.Source == "discard"); err != nil {
				return nil, fmt.Errorf("recovery: replay card_drawn: %w", err)
			}

		case event.CardSwapped:
			var d event.CardSwappedData
			if err := ev.Decode(&d); err != nil {
				return nil, err
			}
			if _, err := g.SwapCard(playerID, d.Position); err != nil {
				return nil, fmt.Errorf("recovery: replay card_swapped: %w", err)
			}

		case event.CardDiscarded:
			if err := g.DiscardDrawn(playerID); err != nil {
				return nil, fmt.Errorf("recovery: replay card_discarded: %w", err)
			}

		case event.CardFlipped:
			var d event.CardFlippedData
			if err := ev.Decode(&d); err != nil {
				return nil, err
			}
			if err := g.FlipAndEndTurn(playerID, d.Position); err != nil {
				return nil, fmt.Errorf("recovery: replay card_flipped: %w", err)
			}

		case event.FlipSkipped:
			if err := g.SkipFlip(playerID); err != nil {
				return nil, fmt.Errorf("recovery: replay flip_skipped: %w", err)
			}

		case event.FlipAsAction:
			var d event.FlipAsActionData
			if err := ev.Decode(&d); err != nil {
				return nil, err
			}
			if err := g.FlipAsAction(playerID, d.Position); err != nil {
				return nil, fmt.Errorf("recovery: replay flip_as_action: %w", err)
			}

		case event.KnockEarly:
			if err := g.KnockEarly(playerID); err != nil {
				return nil, fmt.Errorf("recovery: replay knock_early: %w", err)
			}

		case event.RoundEnded, event.GameEnded:
			// No direct call: round/game endings are side effects of the
			// turn-ending op just replayed above, already reflected in
			// g's state.
		}
	}

	if g == nil {
		return nil, errors.New("recovery: event stream never reached game_started")
	}

	finalHands := g.DealtHands()
	members := make(map[string]*room.Member, len(finalHands))
	var order []string
	for _, id := range seatOrder {
		if _, stillSeated := finalHands[id]; !stillSeated {
			continue
		}
		m := &room.Member{PlayerID: id}
		if p := g.Player(id); p != nil {
			m.Name, m.IsCPU = p.Name, p.IsCPU
		}
		if id == hostID {
			m.IsHost = true
		}
		members[id] = m
		order = append(order, id)
	}

	return &replayedGame{
		roomCode: roomCode,
		hostID:   hostID,
		cfg:      cfg,
		game:     g,
		order:    order,
		members:  members,
		seq:      events[len(events)-1].Sequence,
	}, nil
}

func removeSeat(xs []string, target string) []string {
	out := xs[:0]
	for _, x := range xs {
		if x != target {
			out = append(out, x)
		}
	}
	return out
}

func optionsFromMap(m map[string]any) (golf.Options, error) {
	var opts golf.Options
	if m == nil {
		return opts, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return opts, err
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		return opts, err
	}
	return opts, nil
}
