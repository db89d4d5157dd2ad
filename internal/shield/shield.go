// Package shield implements the AgentShield protection engine: per-agent
// policy evaluation and a circuit breaker that halts transaction flow after
// repeated anomalies.
package shield

import (
	"context"
	"errors"
)

// CircuitState is the state of an agent's circuit breaker.
type CircuitState int

const (
	// StateClosed is normal operation; transactions flow.
	StateClosed CircuitState = iota
	// StateOpen means the breaker has tripped; transactions are blocked
	// until the cooldown expires.
	StateOpen
	// StateHalfOpen is the probationary state entered when a transaction
	// arrives after cooldown expiry. One clean transaction closes the
	// breaker; one anomaly can re-open it.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state as its string name.
func (s CircuitState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes a state from its string name.
func (s *CircuitState) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"closed"`:
		*s = StateClosed
	case `"open"`:
		*s = StateOpen
	case `"half_open"`:
		*s = StateHalfOpen
	default:
		return errors.New("shield: unknown circuit state " + string(b))
	}
	return nil
}

// Result classifies the outcome of recording a transaction.
type Result string

const (
	// ResultAllowed means the transaction passed all policy rules.
	ResultAllowed Result = "allowed"
	// ResultFlagged means the transaction violated a rule and was counted
	// as an anomaly, but was not hard-blocked.
	ResultFlagged Result = "flagged"
	// ResultBlocked means the transaction was rejected outright, either by
	// the blocklist or by an open circuit breaker.
	ResultBlocked Result = "blocked"
)

// VerdictKind is the policy evaluator's classification of a transaction.
type VerdictKind int

const (
	// VerdictAllowed passes every rule.
	VerdictAllowed VerdictKind = iota
	// VerdictAnomaly violates a soft rule and counts toward the breaker.
	VerdictAnomaly
	// VerdictBlocked violates a hard rule and is rejected without counting.
	VerdictBlocked
)

// Verdict is the outcome of evaluating one transaction against a policy.
type Verdict struct {
	Kind VerdictKind
	// Rule names the first rule that matched, e.g. "blocked_program",
	// "program_not_allowed", "max_value_exceeded", "approval_required".
	Rule string
	// Reason is a human-readable explanation.
	Reason string
}

// MaxProgramListSize bounds the allowlist and blocklist lengths.
const MaxProgramListSize = 10

// Config is the per-agent protection policy.
type Config struct {
	// MaxTransactionValue is the largest single-transaction value that is
	// not flagged. Values strictly above it are anomalies.
	MaxTransactionValue uint64 `json:"maxTransactionValue"`
	// DailySpendLimit is carried in the policy but not yet enforced.
	DailySpendLimit uint64 `json:"dailySpendLimit"`
	// ApprovalThreshold flags values strictly above it as needing human
	// approval.
	ApprovalThreshold uint64 `json:"approvalThreshold"`
	// AnomalyThreshold is the anomaly count at which the breaker trips.
	AnomalyThreshold uint8 `json:"anomalyThreshold"`
	// TimeWindowSeconds is carried in the policy but not yet enforced.
	TimeWindowSeconds int64 `json:"timeWindowSeconds"`
	// CooldownSeconds is how long a tripped breaker stays open.
	CooldownSeconds int64 `json:"cooldownSeconds"`
	// AllowedPrograms, when non-empty, restricts transactions to these
	// program addresses. Anything else is flagged.
	AllowedPrograms []string `json:"allowedPrograms"`
	// BlockedPrograms are rejected outright.
	BlockedPrograms []string `json:"blockedPrograms"`
}

// Validate checks structural constraints on a policy.
func (c *Config) Validate() error {
	if c.AnomalyThreshold == 0 {
		return errors.New("anomalyThreshold must be at least 1")
	}
	if c.CooldownSeconds < 0 {
		return errors.New("cooldownSeconds must not be negative")
	}
	if c.TimeWindowSeconds < 0 {
		return errors.New("timeWindowSeconds must not be negative")
	}
	if len(c.AllowedPrograms) > MaxProgramListSize {
		return errors.New("allowedPrograms exceeds maximum of 10 entries")
	}
	if len(c.BlockedPrograms) > MaxProgramListSize {
		return errors.New("blockedPrograms exceeds maximum of 10 entries")
	}
	return nil
}

// Shield is the per-agent protection record.
type Shield struct {
	// AgentWallet is the protected agent's address and the record key.
	AgentWallet string `json:"agentWallet"`
	// Authority is the address allowed to administer this record.
	Authority string `json:"authority"`
	Config    Config `json:"config"`

	State        CircuitState `json:"state"`
	AnomalyCount uint8        `json:"anomalyCount"`

	TotalTransactions   uint64 `json:"totalTransactions"`
	BlockedTransactions uint64 `json:"blockedTransactions"`

	// LastTriggeredAt is the unix time of the most recent trip, zero if never.
	LastTriggeredAt int64 `json:"lastTriggeredAt"`
	// CooldownEndsAt is the unix time the open state expires, zero when closed.
	CooldownEndsAt int64 `json:"cooldownEndsAt"`
	CreatedAt      int64 `json:"createdAt"`
}

// Transaction is a proposed agent transaction submitted for screening.
type Transaction struct {
	// Signature identifies the transaction, hex-encoded.
	Signature string `json:"signature"`
	// ProgramID is the target program or contract address.
	ProgramID string `json:"programId"`
	// Value is the transaction value in base units.
	Value uint64 `json:"value"`
	// TxType is an application-defined category code.
	TxType uint8 `json:"txType"`
}

// RecordOutcome reports what happened when a transaction was recorded.
type RecordOutcome struct {
	Result Result `json:"result"`
	// Reason explains flagged and blocked results.
	Reason string `json:"reason,omitempty"`
	// Shield is the record state after the transaction was applied.
	Shield *Shield `json:"shield"`
}

// Sentinel errors returned by the service and stores.
var (
	ErrNotFound      = errors.New("shield not found")
	ErrAlreadyExists = errors.New("shield already exists")
	ErrNotAuthorized = errors.New("caller is not the shield authority")
	ErrInvalidConfig = errors.New("invalid shield config")
)

// Store persists protection records keyed by agent wallet.
type Store interface {
	Create(ctx context.Context, s *Shield) error
	Get(ctx context.Context, agentWallet string) (*Shield, error)
	Update(ctx context.Context, s *Shield) error
	Delete(ctx context.Context, agentWallet string) error
	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)
}
