package room

import (
	"context"
	"log"
	"time"
)

type cancelableContext struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func roomCtx() cancelableContext {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	return cancelableContext{ctx: ctx, cancel: cancel}
}

// logTransportError records a failed call to an external collaborator
// (event log, cache, pub/sub) without surfacing it to the player whose
// command already mutated in-memory state. The failure is only logged:
// the call is not retried, no back-off is applied, and it is never
// turned into a client-facing error.
func logTransportError(roomCode, what string, err error) {
	log.Printf("[room %s] %s: %v", roomCode, what, err)
}
