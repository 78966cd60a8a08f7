package room

import "golf-server/cpu"

// CommandType names one inbound operation the room actor can execute.
type CommandType int

const (
	CmdJoin CommandType = iota
	CmdLeave
	CmdAddCPU
	CmdRemoveCPU
	CmdStartGame
	CmdFlipInitial
	CmdDraw
	CmdCancelDraw
	CmdSwap
	CmdDiscard
	CmdFlipCard
	CmdSkipFlip
	CmdFlipAsAction
	CmdKnockEarly
	CmdNextRound
	CmdEndGame
	CmdClose
)

// Command is one message enqueued on a Room's actor channel. Response,
// if non-nil, receives exactly one error (nil on success) and is always
// closed-over by the caller, never read by the actor after sending.
type Command struct {
	Type       CommandType
	PlayerID   string // the submitting member; the CPU seat itself for CPU-originated commands
	PlayerName string
	Positions  []int
	Source     string // "deck" | "discard", for CmdDraw
	CPUProfile string // optional requested profile name, for CmdAddCPU
	TargetID   string // CPU seat id to remove, for CmdRemoveCPU; empty removes the most recently added CPU
	Response   chan error
}

// Member is one occupant of a room: either a human connection or a CPU
// seat driven by the orchestrator itself.
type Member struct {
	PlayerID string
	Name     string
	IsCPU    bool
	IsHost   bool
	Profile  cpu.Profile
}
