package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbd888/agentshield/internal/idgen"
	"github.com/mbd888/agentshield/internal/shield"
)

// Recorder is an event sink that persists notable engine events as alerts.
// Persistence is asynchronous and best effort; a failed write is logged and
// never blocks transaction recording.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a recorder sink.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Emit implements shield.Sink.
func (r *Recorder) Emit(_ context.Context, ev *shield.Event) {
	var kind string
	switch ev.Type {
	case shield.EventAnomalyDetected:
		kind = KindAnomaly
	case shield.EventTransactionBlocked:
		kind = KindBlocked
	case shield.EventCircuitTriggered:
		kind = KindCircuitTrip
	case shield.EventCircuitManualTrip:
		kind = KindManualTrigger
	default:
		return
	}

	a := &Alert{
		ID:          idgen.WithPrefix("alr_"),
		AgentWallet: ev.AgentWallet,
		Kind:        kind,
		CreatedAt:   ev.Timestamp,
	}
	if v, ok := ev.Data["reason"].(string); ok {
		a.Reason = v
	}
	if v, ok := ev.Data["rule"].(string); ok {
		a.Rule = v
	}
	if v, ok := ev.Data["signature"].(string); ok {
		a.TxSignature = v
	}
	if v, ok := ev.Data["value"].(uint64); ok {
		a.Value = v
	}
	if v, ok := ev.Data["anomalyCount"].(uint8); ok {
		a.AnomalyCount = v
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.Create(ctx, a); err != nil {
			r.logger.Error("alert persist failed",
				"agent_wallet", a.AgentWallet, "kind", a.Kind, "error", err)
		}
	}()
}
