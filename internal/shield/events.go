package shield

import "context"

// Event types emitted by the protection engine.
const (
	EventShieldInitialized  = "shield.initialized"
	EventConfigUpdated      = "shield.config_updated"
	EventTransactionAllowed = "transaction.allowed"
	EventTransactionBlocked = "transaction.blocked"
	EventAnomalyDetected    = "anomaly.detected"
	EventCircuitTriggered   = "circuit_breaker.triggered"
	EventCircuitReset       = "circuit_breaker.reset"
	EventCircuitManualTrip  = "circuit_breaker.manual_trigger"
)

// Event is a protection engine occurrence delivered to sinks.
type Event struct {
	Type        string         `json:"type"`
	AgentWallet string         `json:"agentWallet"`
	Timestamp   int64          `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
}

// Sink receives engine events. Implementations must not block the caller for
// long; slow delivery should happen on the sink's own goroutines.
type Sink interface {
	Emit(ctx context.Context, ev *Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev *Event)

func (f SinkFunc) Emit(ctx context.Context, ev *Event) { f(ctx, ev) }

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, ev *Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}
