package webhooks

import (
	"context"

	"github.com/mbd888/agentshield/internal/shield"
)

// Emitter adapts the dispatcher to the engine's event sink interface.
type Emitter struct {
	dispatcher *Dispatcher
}

// NewEmitter creates an emitter backed by a dispatcher.
func NewEmitter(d *Dispatcher) *Emitter {
	return &Emitter{dispatcher: d}
}

// Emit implements shield.Sink.
func (e *Emitter) Emit(ctx context.Context, ev *shield.Event) {
	e.dispatcher.Dispatch(ctx, ev.Type, ev)
}
