package shield

import "fmt"

// Rule names reported in verdicts, alerts, and metrics.
const (
	RuleBlockedProgram    = "blocked_program"
	RuleProgramNotAllowed = "program_not_allowed"
	RuleMaxValueExceeded  = "max_value_exceeded"
	RuleApprovalRequired  = "approval_required"
)

// Evaluate classifies a transaction against a policy. Rules are checked in
// fixed precedence order and the first match wins:
//
//  1. blocklist membership (hard block, does not count as an anomaly)
//  2. allowlist violation (anomaly)
//  3. max transaction value (anomaly)
//  4. approval threshold (anomaly)
//
// A transaction matching none of the rules is allowed. Evaluate is pure: it
// never mutates the config and has no side effects.
func Evaluate(cfg *Config, tx *Transaction) Verdict {
	for _, blocked := range cfg.BlockedPrograms {
		if tx.ProgramID == blocked {
			return Verdict{
				Kind:   VerdictBlocked,
				Rule:   RuleBlockedProgram,
				Reason: fmt.Sprintf("program %s is blocklisted", tx.ProgramID),
			}
		}
	}

	if len(cfg.AllowedPrograms) > 0 {
		found := false
		for _, allowed := range cfg.AllowedPrograms {
			if tx.ProgramID == allowed {
				found = true
				break
			}
		}
		if !found {
			return Verdict{
				Kind:   VerdictAnomaly,
				Rule:   RuleProgramNotAllowed,
				Reason: fmt.Sprintf("program %s is not on the allowlist", tx.ProgramID),
			}
		}
	}

	if tx.Value > cfg.MaxTransactionValue {
		return Verdict{
			Kind:   VerdictAnomaly,
			Rule:   RuleMaxValueExceeded,
			Reason: fmt.Sprintf("value %d exceeds maximum %d", tx.Value, cfg.MaxTransactionValue),
		}
	}

	if tx.Value > cfg.ApprovalThreshold {
		return Verdict{
			Kind:   VerdictAnomaly,
			Rule:   RuleApprovalRequired,
			Reason: fmt.Sprintf("value %d requires approval (threshold %d)", tx.Value, cfg.ApprovalThreshold),
		}
	}

	return Verdict{Kind: VerdictAllowed}
}
