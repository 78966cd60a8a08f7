package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"golf-server/golf"
	"golf-server/room"
)

// createRoomRequest carries the full rule-variant bundle up front: unlike
// the original server (which creates an empty room and only configures
// decks/rounds/options at start_game), this Room is built around a fixed
// golf.Config at construction time, so the client supplies it at
// create_room instead.
type createRoomRequest struct {
	PlayerName string `json:"player_name"`
	Decks      int    `json:"decks"`
	Rounds     int    `json:"rounds"`

	FlipOnDiscard bool `json:"flip_on_discard"`
	InitialFlips  int  `json:"initial_flips"`
	KnockPenalty  bool `json:"knock_penalty"`
	UseJokers     bool `json:"use_jokers"`

	LuckySwing  bool `json:"lucky_swing"`
	SuperKings  bool `json:"super_kings"`
	LuckySevens bool `json:"lucky_sevens"`
	TenPenny    bool `json:"ten_penny"`

	KnockBonus    bool `json:"knock_bonus"`
	UnderdogBonus bool `json:"underdog_bonus"`
	TiedShame     bool `json:"tied_shame"`
	Blackjack     bool `json:"blackjack"`

	QueensWild  bool `json:"queens_wild"`
	FourOfAKind bool `json:"four_of_a_kind"`
	EagleEye    bool `json:"eagle_eye"`

	Wolfpack               bool `json:"wolfpack"`
	NegativePairsKeepValue bool `json:"negative_pairs_keep_value"`
}

func (req createRoomRequest) options() golf.Options {
	return golf.Options{
		FlipOnDiscard: req.FlipOnDiscard,
		InitialFlips:  req.InitialFlips,
		KnockPenalty:  req.KnockPenalty,
		UseJokers:     req.UseJokers,
		LuckySwing:    req.LuckySwing,
		SuperKings:    req.SuperKings,
		LuckySevens:   req.LuckySevens,
		TenPenny:      req.TenPenny,
		KnockBonus:    req.KnockBonus,
		UnderdogBonus: req.UnderdogBonus,
		TiedShame:     req.TiedShame,
		Blackjack:     req.Blackjack,
		QueensWild:    req.QueensWild,
		FourOfAKind:   req.FourOfAKind,
		EagleEye:      req.EagleEye,

		Wolfpack:               req.Wolfpack,
		NegativePairsKeepValue: req.NegativePairsKeepValue,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func handleCreateRoom(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	if env.CountUserGames != nil && cc.AuthUserID != "" && env.MaxConcurrentGames > 0 {
		if env.CountUserGames(cc.AuthUserID) >= env.MaxConcurrentGames {
			replyError(env, cc.PlayerID, fmt.Sprintf("maximum %d concurrent games allowed", env.MaxConcurrentGames))
			return nil
		}
	}

	var req createRoomRequest
	if err := msg.Decode(&req); err != nil {
		replyError(env, cc.PlayerID, "invalid create_room request")
		return nil
	}
	if req.PlayerName == "" {
		req.PlayerName = "Player"
	}

	cfg := golf.Config{
		NumDecks:  clamp(valueOr(req.Decks, 1), 1, 3),
		NumRounds: clamp(valueOr(req.Rounds, 1), 1, 18),
		Options:   req.options(),
	}

	r, err := env.Rooms.CreateRoom(cc.PlayerID, cfg)
	if err != nil {
		replyError(env, cc.PlayerID, err.Error())
		return nil
	}
	if err := r.Submit(room.Command{Type: room.CmdJoin, PlayerID: cc.PlayerID, PlayerName: req.PlayerName}); err != nil {
		replyError(env, cc.PlayerID, err.Error())
		return nil
	}
	cc.SetRoomCode(r.Code)

	reply(env, cc.PlayerID, map[string]any{
		"type":          "room_created",
		"room_code":     r.Code,
		"player_id":     cc.PlayerID,
		"authenticated": cc.AuthUserID != "",
	})
	return nil
}

func valueOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

type joinRoomRequest struct {
	RoomCode   string `json:"room_code"`
	PlayerName string `json:"player_name"`
}

func handleJoinRoom(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	if env.CountUserGames != nil && cc.AuthUserID != "" && env.MaxConcurrentGames > 0 {
		if env.CountUserGames(cc.AuthUserID) >= env.MaxConcurrentGames {
			replyError(env, cc.PlayerID, fmt.Sprintf("maximum %d concurrent games allowed", env.MaxConcurrentGames))
			return nil
		}
	}

	var req joinRoomRequest
	if err := msg.Decode(&req); err != nil {
		replyError(env, cc.PlayerID, "invalid join_room request")
		return nil
	}
	if req.PlayerName == "" {
		req.PlayerName = "Player"
	}

	r, ok := env.Rooms.Get(req.RoomCode)
	if !ok {
		replyError(env, cc.PlayerID, "room not found")
		return nil
	}
	if err := r.Submit(room.Command{Type: room.CmdJoin, PlayerID: cc.PlayerID, PlayerName: req.PlayerName}); err != nil {
		replyError(env, cc.PlayerID, err.Error())
		return nil
	}
	cc.SetRoomCode(r.Code)

	reply(env, cc.PlayerID, map[string]any{
		"type":          "room_joined",
		"room_code":     r.Code,
		"player_id":     cc.PlayerID,
		"authenticated": cc.AuthUserID != "",
	})
	return nil
}

func handleLeaveRoom(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	code := cc.RoomCode()
	if code == "" {
		return nil
	}
	r, ok := env.Rooms.Get(code)
	if !ok {
		cc.SetRoomCode("")
		return nil
	}
	_ = r.Submit(room.Command{Type: room.CmdLeave, PlayerID: cc.PlayerID})
	cc.SetRoomCode("")
	return nil
}

func handleGetCPUProfiles(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	if cc.RoomCode() == "" {
		return nil
	}
	var profiles []any
	if env.CPU != nil {
		for _, p := range env.CPU.All() {
			profiles = append(profiles, p)
		}
	}
	reply(env, cc.PlayerID, map[string]any{"type": "cpu_profiles", "profiles": profiles})
	return nil
}

type addCPURequest struct {
	ProfileName string `json:"profile_name"`
}

func handleAddCPU(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	var req addCPURequest
	_ = msg.Decode(&req)
	submitAndReport(env, cc, room.Command{Type: room.CmdAddCPU, PlayerID: cc.PlayerID, CPUProfile: req.ProfileName})
	return nil
}

type removeCPURequest struct {
	SeatID string `json:"seat_id"`
}

func handleRemoveCPU(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	var req removeCPURequest
	_ = msg.Decode(&req)
	submitAndReport(env, cc, room.Command{Type: room.CmdRemoveCPU, PlayerID: cc.PlayerID, TargetID: req.SeatID})
	return nil
}

// Decode unmarshals msg's raw frame into dst.
func (msg InboundMessage) Decode(dst any) error {
	return json.Unmarshal(msg.Raw, dst)
}
