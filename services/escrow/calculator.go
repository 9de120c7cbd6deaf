package escrow

import (
	"math"
	"math/bits"
	"time"
)

// MaxReleasable returns the maximum cumulative amount that may have been
// progressively released after elapsedMinutes of live session time. The
// platform fee share never accrues progressively; only the remaining pool is
// paid out in proportion to elapsed over scheduled time, capped at the pool
// regardless of overrun. Intermediates are 128-bit so the multiply-then-divide
// order never overflows or loses precision.
func MaxReleasable(total, elapsedMinutes, scheduledMinutes, feePercent uint64) uint64 {
	if elapsedMinutes == 0 || scheduledMinutes == 0 {
		return 0
	}
	if feePercent >= 100 {
		return 0
	}
	pool := mulDiv(total, 100-feePercent, 100)
	if elapsedMinutes >= scheduledMinutes {
		return pool
	}
	return mulDiv(pool, elapsedMinutes, scheduledMinutes)
}

// SettlementSplit computes the final payout of the remaining escrow: the
// platform fee (integer truncation, multiply before divide) and the payee
// share. Fee + payee always equals remaining.
func SettlementSplit(remaining, feePercent uint64) (payee, fee uint64) {
	fee = mulDiv(remaining, feePercent, 100)
	return remaining - fee, fee
}

// EffectiveElapsed returns the session's live minutes at now: wall time since
// start minus all paused time, including a pause still in flight. Floored to
// whole minutes and clamped at zero.
func EffectiveElapsed(s *Session, now time.Time) uint64 {
	if s.StartedAt == nil {
		return 0
	}
	paused := s.AccumulatedPausedSeconds
	if s.Status == StatusPaused {
		paused += int64(now.Sub(s.LastLivenessSignal) / time.Second)
	}
	live := int64(now.Sub(*s.StartedAt)/time.Second) - paused
	if live <= 0 {
		return 0
	}
	return uint64(live) / 60
}

// mulDiv computes a*b/div without intermediate overflow.
func mulDiv(a, b, div uint64) uint64 {
	if div == 0 {
		return 0
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= div {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, div)
	return q
}
