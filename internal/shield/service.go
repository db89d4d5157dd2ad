package shield

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/agentshield/internal/metrics"
	"github.com/mbd888/agentshield/internal/syncutil"
	"github.com/mbd888/agentshield/internal/traces"
)

// Service coordinates policy evaluation, breaker transitions, persistence,
// and event emission. All mutations of a record are serialized per agent
// wallet so concurrent recordings observe a consistent anomaly count.
type Service struct {
	store  Store
	sink   Sink
	locks  *syncutil.ShardedMutex
	logger *slog.Logger

	// clock returns the current unix time; overridable in tests.
	clock func() int64
}

// NewService creates a Service. sink may be nil when no event delivery is
// wanted.
func NewService(store Store, sink Sink, logger *slog.Logger) *Service {
	if sink == nil {
		sink = SinkFunc(func(context.Context, *Event) {})
	}
	return &Service{
		store:  store,
		sink:   sink,
		locks:  syncutil.NewShardedMutex(),
		logger: logger,
		clock:  func() int64 { return time.Now().Unix() },
	}
}

// Initialize creates a protection record for an agent wallet. The record
// starts closed with zeroed counters.
func (svc *Service) Initialize(ctx context.Context, agentWallet, authority string, cfg Config) (*Shield, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	unlock := svc.locks.Lock(agentWallet)
	defer unlock()

	now := svc.clock()
	s := &Shield{
		AgentWallet: agentWallet,
		Authority:   authority,
		Config:      cfg,
		State:       StateClosed,
		CreatedAt:   now,
	}
	if err := svc.store.Create(ctx, s); err != nil {
		return nil, err
	}
	metrics.ActiveShields.Inc()

	svc.logger.Info("shield initialized", "agent_wallet", agentWallet, "authority", authority)
	svc.emit(ctx, EventShieldInitialized, s, map[string]any{
		"authority": authority,
	})
	return s, nil
}

// Get returns the protection record for an agent wallet.
func (svc *Service) Get(ctx context.Context, agentWallet string) (*Shield, error) {
	return svc.store.Get(ctx, agentWallet)
}

// UpdateConfig replaces the policy wholesale. Only the record's authority may
// call it. Breaker state and counters are untouched.
func (svc *Service) UpdateConfig(ctx context.Context, agentWallet, caller string, cfg Config) (*Shield, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	unlock := svc.locks.Lock(agentWallet)
	defer unlock()

	s, err := svc.store.Get(ctx, agentWallet)
	if err != nil {
		return nil, err
	}
	if s.Authority != caller {
		return nil, ErrNotAuthorized
	}

	s.Config = cfg
	if err := svc.store.Update(ctx, s); err != nil {
		return nil, err
	}

	svc.logger.Info("shield config updated", "agent_wallet", agentWallet)
	svc.emit(ctx, EventConfigUpdated, s, nil)
	return s, nil
}

// Record screens a transaction against the agent's policy and breaker,
// applies the outcome, persists it, and emits the resulting events. Events
// are emitted only after the updated record has been stored.
func (svc *Service) Record(ctx context.Context, agentWallet string, tx *Transaction) (*RecordOutcome, error) {
	ctx, span := traces.StartSpan(ctx, "shield.Record",
		traces.AgentWallet(agentWallet),
		traces.TxSignature(tx.Signature),
		traces.TxValue(tx.Value),
	)
	defer span.End()

	unlock := svc.locks.Lock(agentWallet)
	defer unlock()

	s, err := svc.store.Get(ctx, agentWallet)
	if err != nil {
		return nil, err
	}

	now := svc.clock()

	if !gate(s, now) {
		if err := svc.store.Update(ctx, s); err != nil {
			return nil, err
		}
		reason := "circuit breaker is open"
		metrics.TransactionsTotal.WithLabelValues(string(ResultBlocked)).Inc()
		span.SetAttributes(traces.Result(string(ResultBlocked)), traces.CircuitState(s.State.String()))
		svc.logger.Info("transaction blocked",
			"agent_wallet", agentWallet, "signature", tx.Signature, "reason", reason)
		svc.emit(ctx, EventTransactionBlocked, s, map[string]any{
			"signature": tx.Signature,
			"programId": tx.ProgramID,
			"value":     tx.Value,
			"reason":    reason,
		})
		return &RecordOutcome{Result: ResultBlocked, Reason: reason, Shield: s}, nil
	}

	verdict := Evaluate(&s.Config, tx)
	result, tripped := applyVerdict(s, verdict, now)

	if err := svc.store.Update(ctx, s); err != nil {
		return nil, err
	}

	metrics.TransactionsTotal.WithLabelValues(string(result)).Inc()
	span.SetAttributes(traces.Result(string(result)), traces.CircuitState(s.State.String()))

	txData := map[string]any{
		"signature": tx.Signature,
		"programId": tx.ProgramID,
		"value":     tx.Value,
	}

	switch result {
	case ResultAllowed:
		svc.emit(ctx, EventTransactionAllowed, s, txData)

	case ResultFlagged:
		metrics.AnomaliesTotal.WithLabelValues(verdict.Rule).Inc()
		if tripped {
			metrics.CircuitTripsTotal.WithLabelValues("threshold").Inc()
			svc.logger.Warn("circuit breaker tripped",
				"agent_wallet", agentWallet,
				"anomaly_count", s.AnomalyCount,
				"cooldown_ends_at", s.CooldownEndsAt)
			svc.emit(ctx, EventCircuitTriggered, s, map[string]any{
				"anomalyCount":   s.AnomalyCount,
				"cooldownEndsAt": s.CooldownEndsAt,
			})
		}
		svc.logger.Info("anomaly detected",
			"agent_wallet", agentWallet, "rule", verdict.Rule, "reason", verdict.Reason)
		txData["rule"] = verdict.Rule
		txData["reason"] = verdict.Reason
		txData["anomalyCount"] = s.AnomalyCount
		svc.emit(ctx, EventAnomalyDetected, s, txData)

	case ResultBlocked:
		svc.logger.Info("transaction blocked",
			"agent_wallet", agentWallet, "signature", tx.Signature, "reason", verdict.Reason)
		txData["reason"] = verdict.Reason
		svc.emit(ctx, EventTransactionBlocked, s, txData)
	}

	return &RecordOutcome{Result: result, Reason: verdict.Reason, Shield: s}, nil
}

// Trigger opens the breaker manually. reason is carried in the emitted events
// for the audit trail. The anomaly count is left as-is so a later reset is
// required to clear it.
func (svc *Service) Trigger(ctx context.Context, agentWallet, caller, reason string) (*Shield, error) {
	unlock := svc.locks.Lock(agentWallet)
	defer unlock()

	s, err := svc.store.Get(ctx, agentWallet)
	if err != nil {
		return nil, err
	}
	if s.Authority != caller {
		return nil, ErrNotAuthorized
	}

	trip(s, svc.clock())
	if err := svc.store.Update(ctx, s); err != nil {
		return nil, err
	}

	metrics.CircuitTripsTotal.WithLabelValues("manual").Inc()
	svc.logger.Warn("circuit breaker manually triggered",
		"agent_wallet", agentWallet, "reason", reason, "cooldown_ends_at", s.CooldownEndsAt)
	data := map[string]any{
		"reason":         reason,
		"anomalyCount":   s.AnomalyCount,
		"cooldownEndsAt": s.CooldownEndsAt,
	}
	svc.emit(ctx, EventCircuitTriggered, s, data)
	svc.emit(ctx, EventCircuitManualTrip, s, data)
	return s, nil
}

// Reset closes the breaker and clears the anomaly count, regardless of
// whether the cooldown has elapsed.
func (svc *Service) Reset(ctx context.Context, agentWallet, caller string) (*Shield, error) {
	unlock := svc.locks.Lock(agentWallet)
	defer unlock()

	s, err := svc.store.Get(ctx, agentWallet)
	if err != nil {
		return nil, err
	}
	if s.Authority != caller {
		return nil, ErrNotAuthorized
	}

	resetBreaker(s)
	if err := svc.store.Update(ctx, s); err != nil {
		return nil, err
	}

	svc.logger.Info("circuit breaker reset", "agent_wallet", agentWallet)
	svc.emit(ctx, EventCircuitReset, s, nil)
	return s, nil
}

// Close deletes the protection record. No event is emitted.
func (svc *Service) Close(ctx context.Context, agentWallet, caller string) error {
	unlock := svc.locks.Lock(agentWallet)
	defer unlock()

	s, err := svc.store.Get(ctx, agentWallet)
	if err != nil {
		return err
	}
	if s.Authority != caller {
		return ErrNotAuthorized
	}

	if err := svc.store.Delete(ctx, agentWallet); err != nil {
		return err
	}
	metrics.ActiveShields.Dec()
	svc.logger.Info("shield closed", "agent_wallet", agentWallet)
	return nil
}

func (svc *Service) emit(ctx context.Context, eventType string, s *Shield, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["state"] = s.State.String()
	svc.sink.Emit(ctx, &Event{
		Type:        eventType,
		AgentWallet: s.AgentWallet,
		Timestamp:   svc.clock(),
		Data:        data,
	})
}
