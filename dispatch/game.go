package dispatch

import (
	"context"

	"golf-server/room"
)

func handleStartGame(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	submitAndReport(env, cc, room.Command{Type: room.CmdStartGame, PlayerID: cc.PlayerID})
	return nil
}

type positionsRequest struct {
	Positions []int `json:"positions"`
}

func handleFlipInitial(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	var req positionsRequest
	_ = msg.Decode(&req)
	submitAndReport(env, cc, room.Command{Type: room.CmdFlipInitial, PlayerID: cc.PlayerID, Positions: req.Positions})
	return nil
}

type drawRequest struct {
	Source string `json:"source"`
}

func handleDraw(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	var req drawRequest
	_ = msg.Decode(&req)
	if req.Source == "" {
		req.Source = "deck"
	}
	submitAndReport(env, cc, room.Command{Type: room.CmdDraw, PlayerID: cc.PlayerID, Source: req.Source})
	return nil
}

func handleCancelDraw(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	submitAndReport(env, cc, room.Command{Type: room.CmdCancelDraw, PlayerID: cc.PlayerID})
	return nil
}

type positionRequest struct {
	Position int `json:"position"`
}

func handleSwap(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	var req positionRequest
	_ = msg.Decode(&req)
	submitAndReport(env, cc, room.Command{Type: room.CmdSwap, PlayerID: cc.PlayerID, Positions: []int{req.Position}})
	return nil
}

func handleDiscard(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	submitAndReport(env, cc, room.Command{Type: room.CmdDiscard, PlayerID: cc.PlayerID})
	return nil
}

func handleFlipCard(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	var req positionRequest
	_ = msg.Decode(&req)
	submitAndReport(env, cc, room.Command{Type: room.CmdFlipCard, PlayerID: cc.PlayerID, Positions: []int{req.Position}})
	return nil
}

func handleSkipFlip(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	submitAndReport(env, cc, room.Command{Type: room.CmdSkipFlip, PlayerID: cc.PlayerID})
	return nil
}

func handleFlipAsAction(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	var req positionRequest
	_ = msg.Decode(&req)
	submitAndReport(env, cc, room.Command{Type: room.CmdFlipAsAction, PlayerID: cc.PlayerID, Positions: []int{req.Position}})
	return nil
}

func handleKnockEarly(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	submitAndReport(env, cc, room.Command{Type: room.CmdKnockEarly, PlayerID: cc.PlayerID})
	return nil
}

func handleNextRound(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	submitAndReport(env, cc, room.Command{Type: room.CmdNextRound, PlayerID: cc.PlayerID})
	return nil
}

func handleEndGame(ctx context.Context, msg InboundMessage, cc *ConnContext, env *Environment) error {
	submitAndReport(env, cc, room.Command{Type: room.CmdEndGame, PlayerID: cc.PlayerID})
	return nil
}
