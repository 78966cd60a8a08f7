package room

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"golf-server/cpu"
	"golf-server/eventlog"
	"golf-server/golf"
)

// collectingSender records every frame sent to a player, for assertions
// that don't care about the exact JSON shape, only that a broadcast
// reached (or didn't reach) a given player.
type collectingSender struct {
	mu    sync.Mutex
	sends map[string]int
}

func newCollectingSender() *collectingSender {
	return &collectingSender{sends: map[string]int{}}
}

func (s *collectingSender) Send(playerID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends[playerID]++
}

func (s *collectingSender) count(playerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends[playerID]
}

// newTestRoom builds a Room with a real temp-file SQLite log and a real
// CPU manager/policy, but no cache or bus - both are nil-guarded
// throughout room.go/ops.go, so a Redis-free Room still exercises the
// full command path for human-only scenarios.
func newTestRoom(t *testing.T) (*Room, *collectingSender) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	logStore, err := eventlog.NewSQLiteLog(path)
	if err != nil {
		t.Fatalf("NewSQLiteLog() error: %v", err)
	}
	t.Cleanup(func() { logStore.Close() })

	sender := newCollectingSender()
	deps := Deps{
		Log:    logStore,
		CPU:    cpu.NewManager(cpu.NewRegistry()),
		Policy: cpu.RandomLegalPolicy{},
		Send:   sender.Send,
	}
	cfg := golf.Config{NumDecks: 1, NumRounds: 2, Options: golf.Options{InitialFlips: 2}, Seed: 99}
	r, err := newRoom("ABCD", uuid.New(), cfg, deps, func(string) {})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(r.Stop)
	return r, sender
}

func submit(t *testing.T, r *Room, cmd Command) error {
	t.Helper()
	return r.Submit(cmd)
}

func TestRoom_JoinAssignsHostAndIsIdempotent(t *testing.T) {
	r, sender := newTestRoom(t)

	if err := submit(t, r, Command{Type: CmdJoin, PlayerID: "p1", PlayerName: "Alice"}); err != nil {
		t.Fatalf("join p1: %v", err)
	}
	if err := submit(t, r, Command{Type: CmdJoin, PlayerID: "p2", PlayerName: "Bob"}); err != nil {
		t.Fatalf("join p2: %v", err)
	}
	r.mu.RLock()
	host := r.hostID
	members := len(r.members)
	r.mu.RUnlock()
	if host != "p1" {
		t.Fatalf("hostID = %q, want p1", host)
	}
	if members != 2 {
		t.Fatalf("members = %d, want 2", members)
	}

	// Re-joining an already-seated player is a no-op, not an error.
	if err := submit(t, r, Command{Type: CmdJoin, PlayerID: "p1", PlayerName: "Alice"}); err != nil {
		t.Fatalf("re-join p1: %v", err)
	}
	r.mu.RLock()
	members = len(r.members)
	r.mu.RUnlock()
	if members != 2 {
		t.Fatalf("members after re-join = %d, want still 2", members)
	}

	if sender.count("p1") == 0 || sender.count("p2") == 0 {
		t.Fatalf("expected broadcastState to have reached both players: p1=%d p2=%d", sender.count("p1"), sender.count("p2"))
	}
}

func TestRoom_LeaveReassignsHostAndTearsDownWhenEmpty(t *testing.T) {
	r, _ := newTestRoom(t)
	mustJoin(t, r, "p1", "Alice")
	mustJoin(t, r, "p2", "Bob")

	if err := submit(t, r, Command{Type: CmdLeave, PlayerID: "p1"}); err != nil {
		t.Fatalf("leave p1: %v", err)
	}
	r.mu.RLock()
	host := r.hostID
	_, p1Still := r.members["p1"]
	r.mu.RUnlock()
	if p1Still {
		t.Fatalf("expected p1 removed from members")
	}
	if host != "p2" {
		t.Fatalf("hostID after p1 leaves = %q, want p2", host)
	}

	if err := submit(t, r, Command{Type: CmdLeave, PlayerID: "p2"}); err != nil {
		t.Fatalf("leave p2: %v", err)
	}
	// Submit returns only after the leave command has been handled or the
	// actor has stopped, and teardown marks the room closed before
	// stopping it, so IsClosed is already true here.
	if !r.IsClosed() {
		t.Fatalf("expected room to be closed once no human remains")
	}
}

func TestRoom_LeaveIsIdempotentForUnknownPlayer(t *testing.T) {
	r, _ := newTestRoom(t)
	mustJoin(t, r, "p1", "Alice")

	if err := submit(t, r, Command{Type: CmdLeave, PlayerID: "ghost"}); err != nil {
		t.Fatalf("leave unknown player should be a no-op, got: %v", err)
	}
}

func TestRoom_AddCPURequiresHost(t *testing.T) {
	r, _ := newTestRoom(t)
	mustJoin(t, r, "p1", "Alice")
	mustJoin(t, r, "p2", "Bob")

	if err := submit(t, r, Command{Type: CmdAddCPU, PlayerID: "p2"}); err != ErrNotHost {
		t.Fatalf("AddCPU by non-host = %v, want ErrNotHost", err)
	}
	if err := submit(t, r, Command{Type: CmdAddCPU, PlayerID: "p1"}); err != nil {
		t.Fatalf("AddCPU by host: %v", err)
	}
	r.mu.RLock()
	n := len(r.members)
	r.mu.RUnlock()
	if n != 3 {
		t.Fatalf("members after AddCPU = %d, want 3", n)
	}
}

func TestRoom_AddCPUWithRequestedProfile(t *testing.T) {
	r, _ := newTestRoom(t)
	mustJoin(t, r, "p1", "Alice")

	name := cpu.DefaultProfiles[0].Name
	if err := submit(t, r, Command{Type: CmdAddCPU, PlayerID: "p1", CPUProfile: name}); err != nil {
		t.Fatalf("AddCPU with profile: %v", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	found := false
	for _, m := range r.members {
		if m.IsCPU && m.Profile.Name == name {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a CPU member holding profile %q", name)
	}
}

func TestRoom_RemoveCPUWithNoTargetRemovesMostRecent(t *testing.T) {
	r, _ := newTestRoom(t)
	mustJoin(t, r, "p1", "Alice")
	if err := submit(t, r, Command{Type: CmdAddCPU, PlayerID: "p1"}); err != nil {
		t.Fatalf("AddCPU #1: %v", err)
	}
	if err := submit(t, r, Command{Type: CmdAddCPU, PlayerID: "p1"}); err != nil {
		t.Fatalf("AddCPU #2: %v", err)
	}
	r.mu.RLock()
	secondSeat := r.order[len(r.order)-1]
	before := len(r.members)
	r.mu.RUnlock()

	if err := submit(t, r, Command{Type: CmdRemoveCPU, PlayerID: "p1"}); err != nil {
		t.Fatalf("RemoveCPU: %v", err)
	}
	r.mu.RLock()
	_, stillThere := r.members[secondSeat]
	after := len(r.members)
	r.mu.RUnlock()
	if stillThere {
		t.Fatalf("expected the most-recently-added CPU seat %q to be removed", secondSeat)
	}
	if after != before-1 {
		t.Fatalf("members after RemoveCPU = %d, want %d", after, before-1)
	}
}

func TestRoom_StartGameRequiresHost(t *testing.T) {
	r, _ := newTestRoom(t)
	mustJoin(t, r, "p1", "Alice")
	mustJoin(t, r, "p2", "Bob")

	if err := submit(t, r, Command{Type: CmdStartGame, PlayerID: "p2"}); err != ErrNotHost {
		t.Fatalf("StartGame by non-host = %v, want ErrNotHost", err)
	}
	if err := submit(t, r, Command{Type: CmdStartGame, PlayerID: "p1"}); err != nil {
		t.Fatalf("StartGame by host: %v", err)
	}
}

func TestRoom_FullHumanRoundFlowsToRoundEnd(t *testing.T) {
	r, _ := newTestRoom(t)
	mustJoin(t, r, "p1", "Alice")
	mustJoin(t, r, "p2", "Bob")
	if err := submit(t, r, Command{Type: CmdStartGame, PlayerID: "p1"}); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	// InitialFlips: 2, so both players must flip two hole cards before play begins.
	if err := submit(t, r, Command{Type: CmdFlipInitial, PlayerID: "p1", Positions: []int{0, 1}}); err != nil {
		t.Fatalf("FlipInitial p1: %v", err)
	}
	if err := submit(t, r, Command{Type: CmdFlipInitial, PlayerID: "p2", Positions: []int{0, 1}}); err != nil {
		t.Fatalf("FlipInitial p2: %v", err)
	}

	r.mu.RLock()
	current := r.game.Snapshot("").CurrentPlayerID
	r.mu.RUnlock()
	if current == "" {
		t.Fatalf("expected a current player once initial flips are done")
	}

	if err := submit(t, r, Command{Type: CmdDraw, PlayerID: current, Source: "deck"}); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if err := submit(t, r, Command{Type: CmdSwap, PlayerID: current, Positions: []int{2}}); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	r.mu.RLock()
	nextCurrent := r.game.Snapshot("").CurrentPlayerID
	r.mu.RUnlock()
	if nextCurrent == current {
		t.Fatalf("expected turn to advance past %q after Swap", current)
	}
}

func TestRoom_NextRoundRequiresHost(t *testing.T) {
	r, _ := newTestRoom(t)
	mustJoin(t, r, "p1", "Alice")
	mustJoin(t, r, "p2", "Bob")
	if err := submit(t, r, Command{Type: CmdStartGame, PlayerID: "p1"}); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	if err := submit(t, r, Command{Type: CmdNextRound, PlayerID: "p2"}); err != ErrNotHost {
		t.Fatalf("NextRound by non-host = %v, want ErrNotHost", err)
	}
}

func TestRoom_EndGameRequiresHost(t *testing.T) {
	r, _ := newTestRoom(t)
	mustJoin(t, r, "p1", "Alice")
	mustJoin(t, r, "p2", "Bob")

	if err := submit(t, r, Command{Type: CmdEndGame, PlayerID: "p2"}); err != ErrNotHost {
		t.Fatalf("EndGame by non-host = %v, want ErrNotHost", err)
	}
	if err := submit(t, r, Command{Type: CmdEndGame, PlayerID: "p1"}); err != nil {
		t.Fatalf("EndGame by host: %v", err)
	}
	if !r.IsClosed() {
		t.Fatalf("expected room to be closed after EndGame")
	}
}

func TestRoom_ClosedRoomRejectsFurtherCommands(t *testing.T) {
	r, _ := newTestRoom(t)
	mustJoin(t, r, "p1", "Alice")

	if err := submit(t, r, Command{Type: CmdLeave, PlayerID: "p1"}); err != nil {
		t.Fatalf("leave last human: %v", err)
	}
	if !r.IsClosed() {
		t.Fatalf("expected room closed once last human left")
	}
	if err := submit(t, r, Command{Type: CmdJoin, PlayerID: "p2", PlayerName: "Bob"}); err != ErrRoomClosed {
		t.Fatalf("Join on closed room = %v, want ErrRoomClosed", err)
	}
}

func mustJoin(t *testing.T, r *Room, id, name string) {
	t.Helper()
	if err := submit(t, r, Command{Type: CmdJoin, PlayerID: id, PlayerName: name}); err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
}

// TestRoom_CPUTurnEventuallyActs exercises the async CPU-turn-driving path
// (Room.driveCPUTurn), which schedules the CPU's move on its own goroutine
// after Manager.ThinkDelay once it becomes the CPU seat's turn. InitialFlips
// is 0 here so the round enters PhasePlaying immediately and the human's
// single turn hands play to the CPU seat through ordinary turn rotation.
func TestRoom_CPUTurnEventuallyActs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	logStore, err := eventlog.NewSQLiteLog(path)
	if err != nil {
		t.Fatalf("NewSQLiteLog() error: %v", err)
	}
	t.Cleanup(func() { logStore.Close() })
	sender := newCollectingSender()
	deps := Deps{
		Log:    logStore,
		CPU:    cpu.NewManager(cpu.NewRegistry()),
		Policy: cpu.RandomLegalPolicy{},
		Send:   sender.Send,
	}
	cfg := golf.Config{NumDecks: 1, NumRounds: 1, Options: golf.Options{InitialFlips: 0}, Seed: 7}
	r, err := newRoom("CPU1", uuid.New(), cfg, deps, func(string) {})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(r.Stop)

	mustJoin(t, r, "p1", "Alice")
	if err := submit(t, r, Command{Type: CmdAddCPU, PlayerID: "p1"}); err != nil {
		t.Fatalf("AddCPU: %v", err)
	}
	if err := submit(t, r, Command{Type: CmdStartGame, PlayerID: "p1"}); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if err := submit(t, r, Command{Type: CmdDraw, PlayerID: "p1", Source: "deck"}); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if err := submit(t, r, Command{Type: CmdDiscard, PlayerID: "p1"}); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	r.mu.RLock()
	afterHumanTurn := r.game.CurrentPlayerID()
	r.mu.RUnlock()
	if afterHumanTurn == "p1" {
		t.Fatalf("expected turn to pass to the CPU seat after p1's move")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.RLock()
		current := r.game.CurrentPlayerID()
		phase := r.game.Phase()
		r.mu.RUnlock()
		if current == "p1" || phase == golf.PhaseRoundOver || phase == golf.PhaseGameOver {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("CPU seat never completed its turn within the deadline")
}
