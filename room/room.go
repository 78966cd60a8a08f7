// Package room is the per-match orchestrator: an actor goroutine owning
// one golf.Game, its connected members, and the event-log/cache/pub-sub
// wiring a turn needs to become durable and visible to every replica.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"golf-server/cpu"
	"golf-server/event"
	"golf-server/eventlog"
	"golf-server/golf"
	"golf-server/pubsub"
	"golf-server/statecache"
)

var (
	ErrRoomClosed    = errors.New("room: closed")
	ErrNotHost       = errors.New("room: host-only action")
	ErrUnknownMember = errors.New("room: unknown player")
)

// Sender delivers an outbound JSON frame to one human player's
// connection. The orchestrator never retries a failed send: per
// spec.md's error-handling design, a missed broadcast is repaired by
// that player's next action or reconnection.
type Sender func(playerID string, data []byte)

// Deps bundles the external collaborators every Room shares with its
// siblings, assembled once by Manager and handed to each Room it creates.
type Deps struct {
	Log      eventlog.Log
	Cache    *statecache.Cache
	Bus      *pubsub.Bus
	CPU      *cpu.Manager
	Policy   cpu.Policy
	ServerID string
	Send     Sender
}

// Room is the structural descendant of the teacher's table.Table: an
// actor goroutine draining a buffered command channel, a mutex-guarded
// game plus member map, and a done channel for shutdown.
type Room struct {
	Code   string
	GameID uuid.UUID

	deps Deps
	cfg  golf.Config

	mu      sync.RWMutex
	game    *golf.Game
	members map[string]*Member // keyed by stable player id
	order   []string           // join order, for host-reassignment iteration
	hostID  string
	closed  bool

	stopOnce sync.Once
	seq      uint64
	events   chan Command
	done     chan struct{}

	onClosed func(code string)
}

// newRoom creates a room around a freshly constructed game and starts its
// actor goroutine. gameID and code are assigned by the Manager.
func newRoom(code string, gameID uuid.UUID, cfg golf.Config, deps Deps, onClosed func(string)) (*Room, error) {
	game, err := golf.NewGame(cfg)
	if err != nil {
		return nil, err
	}
	r := &Room{
		Code:     code,
		GameID:   gameID,
		deps:     deps,
		cfg:      cfg,
		game:     game,
		members:  make(map[string]*Member),
		events:   make(chan Command, 64),
		done:     make(chan struct{}),
		onClosed: onClosed,
	}

	if deps.Log != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		options, _ := optionsToMap(cfg.Options)
		_ = deps.Log.CreateGame(ctx, eventlog.GameMeta{
			ID:        gameID,
			RoomCode:  code,
			Status:    eventlog.StatusActive,
			NumRounds: cfg.NumRounds,
			Options:   options,
		})
	}

	go r.run()
	return r, nil
}

// Restore reconstructs a Room around a game engine already replayed from
// the event log (see package recovery), rather than building a fresh
// empty one. seq is the event sequence already durably appended;
// further events continue numbering from there.
func Restore(code string, gameID uuid.UUID, cfg golf.Config, game *golf.Game, order []string, members map[string]*Member, hostID string, seq uint64, deps Deps, onClosed func(string)) *Room {
	r := &Room{
		Code:     code,
		GameID:   gameID,
		deps:     deps,
		cfg:      cfg,
		game:     game,
		members:  members,
		order:    order,
		hostID:   hostID,
		seq:      seq,
		events:   make(chan Command, 64),
		done:     make(chan struct{}),
		onClosed: onClosed,
	}
	go r.run()
	return r
}

func (r *Room) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case cmd := <-r.events:
			err := r.handleCommand(cmd)
			if cmd.Response != nil {
				cmd.Response <- err
			}
		case <-ticker.C:
			r.touch()
		case <-r.done:
			return
		}
	}
}

// Submit enqueues cmd on the room's actor channel and blocks for its
// result, the same synchronous-request-over-a-channel shape as the
// teacher's Table.SubmitEvent.
func (r *Room) Submit(cmd Command) error {
	if cmd.Response == nil {
		cmd.Response = make(chan error, 1)
	}

	select {
	case r.events <- cmd:
	case <-r.done:
		return ErrRoomClosed
	}
	select {
	case err := <-cmd.Response:
		return err
	case <-r.done:
		return ErrRoomClosed
	}
}

// Stop terminates the actor goroutine. Safe to call more than once.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Room) IsClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *Room) touch() {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed || r.deps.Cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.deps.Cache.RefreshRoomTTL(ctx, r.Code); err != nil {
		log.Printf("[room %s] ttl refresh failed: %v", r.Code, err)
	}
}

// handleCommand dispatches one command. It always runs on the actor
// goroutine, so no lock is needed against other commands; the mutex only
// guards fields a reader (IsClosed) may touch concurrently.
func (r *Room) handleCommand(cmd Command) error {
	if r.IsClosed() && cmd.Type != CmdClose {
		return ErrRoomClosed
	}

	switch cmd.Type {
	case CmdJoin:
		return r.handleJoin(cmd.PlayerID, cmd.PlayerName)
	case CmdLeave:
		return r.handleLeave(cmd.PlayerID)
	case CmdAddCPU:
		return r.handleAddCPU(cmd.PlayerID, cmd.CPUProfile)
	case CmdRemoveCPU:
		return r.handleRemoveCPU(cmd.PlayerID, cmd.TargetID)
	case CmdStartGame:
		return r.handleStartGame(cmd.PlayerID)
	case CmdFlipInitial:
		return r.handleFlipInitial(cmd.PlayerID, cmd.Positions)
	case CmdDraw:
		return r.handleDraw(cmd.PlayerID, cmd.Source)
	case CmdCancelDraw:
		return r.handleCancelDraw(cmd.PlayerID)
	case CmdSwap:
		return r.handleSwap(cmd.PlayerID, firstPosition(cmd.Positions))
	case CmdDiscard:
		return r.handleDiscard(cmd.PlayerID)
	case CmdFlipCard:
		return r.handleFlipCard(cmd.PlayerID, firstPosition(cmd.Positions))
	case CmdSkipFlip:
		return r.handleSkipFlip(cmd.PlayerID)
	case CmdFlipAsAction:
		return r.handleFlipAsAction(cmd.PlayerID, firstPosition(cmd.Positions))
	case CmdKnockEarly:
		return r.handleKnockEarly(cmd.PlayerID)
	case CmdNextRound:
		return r.handleNextRound(cmd.PlayerID)
	case CmdEndGame:
		return r.handleEndGame(cmd.PlayerID)
	case CmdClose:
		r.teardownLocked()
		return nil
	default:
		return fmt.Errorf("room: unknown command %d", cmd.Type)
	}
}

func firstPosition(positions []int) int {
	if len(positions) == 0 {
		return -1
	}
	return positions[0]
}

func optionsToMap(opts golf.Options) (map[string]any, error) {
	data, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// --- Membership ---------------------------------------------------------

func (r *Room) handleJoin(playerID, name string) error {
	if _, ok := r.members[playerID]; ok {
		return nil // reconnecting to an already-seated player is a no-op
	}
	if err := r.game.AddPlayer(&golf.Player{ID: playerID, Name: name}); err != nil {
		return err
	}

	member := &Member{PlayerID: playerID, Name: name}
	r.members[playerID] = member
	r.order = append(r.order, playerID)
	if r.hostID == "" {
		r.hostID = playerID
		member.IsHost = true
	}

	if r.deps.Cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.deps.Cache.AddPlayerToRoom(ctx, r.Code, playerID)
	}

	r.appendEvent(event.PlayerJoined, &playerID, event.PlayerJoinedData{PlayerName: name})
	r.broadcastState()
	return nil
}

// handleLeave removes a member, reassigning the host if needed and
// tearing the room down once no human remains. Disconnection always
// routes through here, so it must be idempotent.
func (r *Room) handleLeave(playerID string) error {
	member, ok := r.members[playerID]
	if !ok {
		return nil
	}
	delete(r.members, playerID)
	r.order = removeString(r.order, playerID)
	r.game.RemovePlayer(playerID)

	if r.deps.Cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.deps.Cache.RemovePlayerFromRoom(ctx, r.Code, playerID)
	}

	var newHostID string
	if member.IsHost {
		r.hostID = ""
		for _, id := range r.order {
			if m := r.members[id]; m != nil && !m.IsCPU {
				m.IsHost = true
				r.hostID = id
				newHostID = id
				break
			}
		}
	}

	if !r.hasHumanLocked() {
		r.teardownLocked()
		return nil
	}

	r.appendEvent(event.PlayerLeft, &playerID, event.PlayerLeftData{NewHostID: newHostID})
	r.broadcastState()
	return nil
}

func (r *Room) hasHumanLocked() bool {
	for _, m := range r.members {
		if !m.IsCPU {
			return true
		}
	}
	return false
}

func (r *Room) handleAddCPU(playerID, profileName string) error {
	if err := r.requireHost(playerID); err != nil {
		return err
	}
	if r.deps.CPU == nil {
		return errors.New("room: no CPU manager configured")
	}
	seatID := "cpu-" + uuid.NewString()
	var profile cpu.Profile
	var err error
	if profileName != "" {
		profile, err = r.deps.CPU.AssignSpecific(seatID, profileName)
	} else {
		profile, err = r.deps.CPU.Assign(seatID)
	}
	if err != nil {
		return err
	}

	if err := r.game.AddPlayer(&golf.Player{ID: seatID, Name: profile.Name, IsCPU: true, CPUProfile: profile.Name}); err != nil {
		r.deps.CPU.Release(seatID)
		return err
	}
	r.members[seatID] = &Member{PlayerID: seatID, Name: profile.Name, IsCPU: true, Profile: profile}
	r.order = append(r.order, seatID)

	r.appendEvent(event.PlayerJoined, &seatID, event.PlayerJoinedData{PlayerName: profile.Name, IsCPU: true, CPUProfile: profile.Name})
	r.broadcastState()
	return nil
}

func (r *Room) handleRemoveCPU(playerID, seatID string) error {
	if err := r.requireHost(playerID); err != nil {
		return err
	}
	if seatID == "" {
		// No specific seat named: remove the most recently added CPU, the
		// same "pop the last one" behavior the original client exposed.
		for i := len(r.order) - 1; i >= 0; i-- {
			if m := r.members[r.order[i]]; m != nil && m.IsCPU {
				seatID = r.order[i]
				break
			}
		}
		if seatID == "" {
			return nil
		}
	}
	member, ok := r.members[seatID]
	if !ok || !member.IsCPU {
		return ErrUnknownMember
	}
	if r.deps.CPU != nil {
		r.deps.CPU.Release(seatID)
	}
	delete(r.members, seatID)
	r.order = removeString(r.order, seatID)
	r.game.RemovePlayer(seatID)
	r.appendEvent(event.PlayerLeft, &seatID, event.PlayerLeftData{})
	r.broadcastState()
	return nil
}

func removeString(xs []string, target string) []string {
	out := xs[:0]
	for _, x := range xs {
		if x != target {
			out = append(out, x)
		}
	}
	return out
}

func (r *Room) requireHost(playerID string) error {
	if playerID != r.hostID {
		return ErrNotHost
	}
	return nil
}

// teardownLocked releases every CPU token held by the room, wipes its
// cache footprint, publishes a closing notice, and stops the actor. It
// must only be called from the actor goroutine.
func (r *Room) teardownLocked() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	for seatID, m := range r.members {
		if m.IsCPU && r.deps.CPU != nil {
			r.deps.CPU.Release(seatID)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if r.deps.Cache != nil {
		if err := r.deps.Cache.DeleteRoom(ctx, r.Code); err != nil {
			log.Printf("[room %s] teardown cache cleanup failed: %v", r.Code, err)
		}
	}
	if r.deps.Bus != nil {
		_, _ = r.deps.Bus.Publish(ctx, pubsub.Message{
			Type:     pubsub.RoomClosed,
			RoomCode: r.Code,
		})
	}
	if r.deps.Log != nil && r.game.Phase() != golf.PhaseGameOver {
		_ = r.deps.Log.MarkCompleted(ctx, r.GameID, "")
	}

	if r.onClosed != nil {
		r.onClosed(r.Code)
	}
	r.Stop()
}
