package escrow

import (
	"math"
	"testing"
	"time"
)

func TestMaxReleasable(t *testing.T) {
	tests := []struct {
		name      string
		total     uint64
		elapsed   uint64
		scheduled uint64
		want      uint64
	}{
		{name: "halfway", total: 100, elapsed: 30, scheduled: 60, want: 45},
		{name: "full duration caps at pool", total: 100, elapsed: 60, scheduled: 60, want: 90},
		{name: "overrun still capped", total: 100, elapsed: 600, scheduled: 60, want: 90},
		{name: "zero elapsed", total: 100, elapsed: 0, scheduled: 60, want: 0},
		{name: "zero scheduled", total: 100, elapsed: 30, scheduled: 0, want: 0},
		{name: "one minute of ninety", total: 1000, elapsed: 1, scheduled: 90, want: 10},
		{name: "truncates toward zero", total: 100, elapsed: 1, scheduled: 7, want: 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxReleasable(tt.total, tt.elapsed, tt.scheduled, 10)
			if got != tt.want {
				t.Fatalf("MaxReleasable(%d, %d, %d, 10) = %d, want %d",
					tt.total, tt.elapsed, tt.scheduled, got, tt.want)
			}
		})
	}
}

func TestMaxReleasableMonotonic(t *testing.T) {
	var prev uint64
	for elapsed := uint64(0); elapsed <= 120; elapsed++ {
		got := MaxReleasable(997, elapsed, 60, 10)
		if got < prev {
			t.Fatalf("MaxReleasable not monotonic: f(%d) = %d < f(%d) = %d", elapsed, got, elapsed-1, prev)
		}
		if pool := 997 * 90 / 100; got > uint64(pool) {
			t.Fatalf("MaxReleasable(%d) = %d exceeds pool %d", elapsed, got, pool)
		}
		prev = got
	}
}

func TestMaxReleasableNoOverflow(t *testing.T) {
	// Multiply-before-divide must survive amounts near the uint64 ceiling.
	total := uint64(math.MaxUint64)
	got := MaxReleasable(total, 30, 60, 10)
	pool := MaxReleasable(total, 60, 60, 10)
	if got == 0 || got > pool {
		t.Fatalf("MaxReleasable(max, 30, 60) = %d, want within (0, %d]", got, pool)
	}
	if diff := pool/2 - got; diff > 1 {
		t.Fatalf("MaxReleasable(max, 30, 60) = %d, want about half of pool %d", got, pool)
	}
}

func TestSettlementSplit(t *testing.T) {
	tests := []struct {
		name      string
		remaining uint64
		wantPayee uint64
		wantFee   uint64
	}{
		{name: "fee truncates", remaining: 55, wantPayee: 50, wantFee: 5},
		{name: "whole amount", remaining: 100, wantPayee: 90, wantFee: 10},
		{name: "tiny remainder", remaining: 9, wantPayee: 9, wantFee: 0},
		{name: "zero", remaining: 0, wantPayee: 0, wantFee: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payee, fee := SettlementSplit(tt.remaining, 10)
			if payee != tt.wantPayee || fee != tt.wantFee {
				t.Fatalf("SettlementSplit(%d, 10) = (%d, %d), want (%d, %d)",
					tt.remaining, payee, fee, tt.wantPayee, tt.wantFee)
			}
			if payee+fee != tt.remaining {
				t.Fatalf("split loses units: %d + %d != %d", payee, fee, tt.remaining)
			}
		})
	}
}

func TestEffectiveElapsed(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		session Session
		now     time.Time
		want    uint64
	}{
		{
			name:    "never started",
			session: Session{Status: StatusCreated},
			now:     start.Add(time.Hour),
			want:    0,
		},
		{
			name:    "running half an hour",
			session: Session{Status: StatusActive, StartedAt: &start, LastLivenessSignal: start},
			now:     start.Add(30 * time.Minute),
			want:    30,
		},
		{
			name: "accumulated pause excluded",
			session: Session{
				Status:                   StatusActive,
				StartedAt:                &start,
				LastLivenessSignal:       start,
				AccumulatedPausedSeconds: 600,
			},
			now:  start.Add(30 * time.Minute),
			want: 20,
		},
		{
			name: "in-flight pause excluded",
			session: Session{
				Status:             StatusPaused,
				StartedAt:          &start,
				LastLivenessSignal: start.Add(10 * time.Minute),
			},
			now:  start.Add(30 * time.Minute),
			want: 10,
		},
		{
			name: "clamped at zero",
			session: Session{
				Status:                   StatusActive,
				StartedAt:                &start,
				LastLivenessSignal:       start,
				AccumulatedPausedSeconds: 3600,
			},
			now:  start.Add(30 * time.Minute),
			want: 0,
		},
		{
			name:    "partial minute floors",
			session: Session{Status: StatusActive, StartedAt: &start, LastLivenessSignal: start},
			now:     start.Add(5*time.Minute + 59*time.Second),
			want:    5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectiveElapsed(&tt.session, tt.now)
			if got != tt.want {
				t.Fatalf("EffectiveElapsed() = %d, want %d", got, tt.want)
			}
		})
	}
}
