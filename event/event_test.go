package event

import (
	"testing"

	"github.com/google/uuid"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	gameID := uuid.New()
	playerID := "p1"
	ev, err := Encode(gameID, 1, PlayerJoined, &playerID, PlayerJoinedData{PlayerName: "Alice", IsCPU: false})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if ev.GameID != gameID || ev.Sequence != 1 || ev.Type != PlayerJoined {
		t.Fatalf("Encode() envelope mismatch: %+v", ev)
	}
	if ev.PlayerID == nil || *ev.PlayerID != "p1" {
		t.Fatalf("Encode() PlayerID mismatch: %+v", ev.PlayerID)
	}

	var got PlayerJoinedData
	if err := ev.Decode(&got); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.PlayerName != "Alice" {
		t.Fatalf("Decode() PlayerName = %q, want Alice", got.PlayerName)
	}
}

func TestEncode_NilPlayerID(t *testing.T) {
	ev, err := Encode(uuid.New(), 1, GameCreated, nil, GameCreatedData{RoomCode: "ABCD", HostID: "h1"})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if ev.PlayerID != nil {
		t.Fatalf("expected nil PlayerID, got %v", *ev.PlayerID)
	}
}

func buildGameCreated(gameID uuid.UUID, roomCode, hostID string, options map[string]any) Event {
	ev, _ := Encode(gameID, 1, GameCreated, nil, GameCreatedData{RoomCode: roomCode, HostID: hostID, Options: options})
	return ev
}

func buildPlayerJoined(gameID uuid.UUID, seq uint64, playerID, name string) Event {
	ev, _ := Encode(gameID, seq, PlayerJoined, &playerID, PlayerJoinedData{PlayerName: name})
	return ev
}

func TestRebuild_RejectsEmptyStream(t *testing.T) {
	if _, err := Rebuild(nil); err == nil {
		t.Fatalf("expected error rebuilding from an empty event list")
	}
}

func TestRebuild_RejectsOutOfOrderSequence(t *testing.T) {
	gameID := uuid.New()
	events := []Event{
		buildGameCreated(gameID, "ABCD", "h1", map[string]any{"initial_flips": 0.0}),
	}
	bad, _ := Encode(gameID, 5, PlayerJoined, nil, PlayerJoinedData{PlayerName: "X"})
	events = append(events, bad)
	if _, err := Rebuild(events); err == nil {
		t.Fatalf("expected sequence-gap error")
	}
}

func TestRebuild_TracksMembershipAndHost(t *testing.T) {
	gameID := uuid.New()
	events := []Event{
		buildGameCreated(gameID, "ABCD", "h1", map[string]any{"initial_flips": 0.0}),
		buildPlayerJoined(gameID, 2, "h1", "Host"),
		buildPlayerJoined(gameID, 3, "p2", "Guest"),
	}
	state, err := Rebuild(events)
	if err != nil {
		t.Fatalf("Rebuild() error: %v", err)
	}
	if state.RoomCode != "ABCD" || state.HostID != "h1" {
		t.Fatalf("Rebuild() room/host mismatch: %+v", state)
	}
	if len(state.Players) != 2 {
		t.Fatalf("Rebuild() players = %d, want 2", len(state.Players))
	}

	leftEv, _ := Encode(gameID, 4, PlayerLeft, strPtr("p2"), PlayerLeftData{})
	if err := Reduce(state, leftEv); err != nil {
		t.Fatalf("Reduce(player_left) error: %v", err)
	}
	if _, stillThere := state.Players["p2"]; stillThere {
		t.Fatalf("expected p2 removed from Players")
	}
}

func TestRebuild_RoundStartedSetsPhaseFromInitialFlips(t *testing.T) {
	gameID := uuid.New()
	events := []Event{
		buildGameCreated(gameID, "ABCD", "h1", map[string]any{"initial_flips": 2.0, "num_decks": 1.0}),
		buildPlayerJoined(gameID, 2, "h1", "Host"),
		buildPlayerJoined(gameID, 3, "p2", "Guest"),
	}
	startedEv, _ := Encode(gameID, 4, GameStarted, nil, GameStartedData{PlayerOrder: []string{"h1", "p2"}, NumRounds: 1})
	events = append(events, startedEv)
	roundEv, _ := Encode(gameID, 5, RoundStarted, nil, RoundStartedData{
		RoundNum: 1,
		DealtCards: map[string][]CardData{
			"h1": {{Rank: "A", Suit: "s"}, {Rank: "2", Suit: "h"}},
			"p2": {{Rank: "K", Suit: "c"}, {Rank: "Q", Suit: "d"}},
		},
		Seed: 42,
	})
	events = append(events, roundEv)

	state, err := Rebuild(events)
	if err != nil {
		t.Fatalf("Rebuild() error: %v", err)
	}
	if state.Phase != PhaseInitialFlip {
		t.Fatalf("Phase = %v, want PhaseInitialFlip (initial_flips=2)", state.Phase)
	}
	if state.CurrentPlayerID() != "h1" {
		t.Fatalf("CurrentPlayerID() = %q, want h1", state.CurrentPlayerID())
	}
}

func strPtr(s string) *string { return &s }
