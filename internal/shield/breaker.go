package shield

// Breaker state transitions. These helpers mutate the record in place; the
// caller is responsible for persisting the result and emitting events.

// gate applies the breaker's admission check before policy evaluation.
// It returns false when the transaction must be rejected because the breaker
// is open and still cooling down. When the cooldown has elapsed the breaker
// moves to half-open and the transaction proceeds to evaluation. The check is
// lazy: expiry is observed at the next recorded transaction, not on a timer.
func gate(s *Shield, now int64) bool {
	if s.State != StateOpen {
		return true
	}
	if now < s.CooldownEndsAt {
		s.BlockedTransactions++
		return false
	}
	s.State = StateHalfOpen
	return true
}

// applyVerdict folds a policy verdict into the record and reports the
// resulting classification. tripped is true when this verdict pushed the
// anomaly count over the threshold and opened the breaker.
func applyVerdict(s *Shield, v Verdict, now int64) (result Result, tripped bool) {
	s.TotalTransactions++

	switch v.Kind {
	case VerdictAllowed:
		if s.State == StateHalfOpen {
			// One clean transaction ends probation.
			s.State = StateClosed
			s.AnomalyCount = 0
		}
		return ResultAllowed, false

	case VerdictAnomaly:
		if s.AnomalyCount < 255 {
			s.AnomalyCount++
		}
		if s.AnomalyCount >= s.Config.AnomalyThreshold {
			trip(s, now)
			tripped = true
		}
		return ResultFlagged, tripped

	default: // VerdictBlocked
		s.BlockedTransactions++
		return ResultBlocked, false
	}
}

// trip opens the breaker and starts the cooldown clock.
func trip(s *Shield, now int64) {
	s.State = StateOpen
	s.LastTriggeredAt = now
	s.CooldownEndsAt = now + s.Config.CooldownSeconds
}

// resetBreaker closes the breaker and clears the anomaly count. The last
// triggered timestamp is kept for audit.
func resetBreaker(s *Shield) {
	s.State = StateClosed
	s.AnomalyCount = 0
	s.CooldownEndsAt = 0
}
