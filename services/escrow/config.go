package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds the tunable policy constants of the engine. The defaults match
// the deployed policy; every value can be overridden through the environment.
type Config struct {
	// PlatformFeePercent is withheld from the payee at settlement and never
	// progressively released.
	PlatformFeePercent uint64 `env:"ESCROW_PLATFORM_FEE_PERCENT,default=10"`

	// HeartbeatInterval is how often an active session expects a liveness
	// signal; GracePeriod is the extra tolerance before auto-pause.
	HeartbeatInterval time.Duration `env:"ESCROW_HEARTBEAT_INTERVAL,default=30s"`
	GracePeriod       time.Duration `env:"ESCROW_GRACE_PERIOD,default=60s"`

	// StartTimeout bounds how long a created session may wait to start.
	StartTimeout time.Duration `env:"ESCROW_START_TIMEOUT,default=15m"`

	// AutoReleaseDelay force-settles sessions nobody is managing anymore.
	AutoReleaseDelay time.Duration `env:"ESCROW_AUTO_RELEASE_DELAY,default=168h"`

	// RefundGracePeriod and EmergencyThreshold gate the universal refund
	// trigger's fallback conditions.
	RefundGracePeriod  time.Duration `env:"ESCROW_REFUND_GRACE_PERIOD,default=1h"`
	EmergencyThreshold time.Duration `env:"ESCROW_EMERGENCY_THRESHOLD,default=24h"`

	// MaxBatchRefund caps administrative batch refunds per call.
	MaxBatchRefund int `env:"ESCROW_MAX_BATCH_REFUND,default=50"`

	// Admins are principals allowed to force refunds.
	Admins []string `env:"ESCROW_ADMINS"`
}

// LoadConfig returns a Config populated from environment variables.
func LoadConfig(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig returns the deployed policy defaults without reading the
// environment.
func DefaultConfig() Config {
	return Config{
		PlatformFeePercent: 10,
		HeartbeatInterval:  30 * time.Second,
		GracePeriod:        60 * time.Second,
		StartTimeout:       15 * time.Minute,
		AutoReleaseDelay:   7 * 24 * time.Hour,
		RefundGracePeriod:  time.Hour,
		EmergencyThreshold: 24 * time.Hour,
		MaxBatchRefund:     50,
	}
}

// Validate rejects configurations the engine cannot operate under.
func (c Config) Validate() error {
	if c.PlatformFeePercent >= 100 {
		return fmt.Errorf("platform fee percent must be below 100, got %d", c.PlatformFeePercent)
	}
	if c.HeartbeatInterval <= 0 || c.GracePeriod <= 0 {
		return fmt.Errorf("heartbeat interval and grace period must be positive")
	}
	if c.StartTimeout <= 0 || c.AutoReleaseDelay <= 0 {
		return fmt.Errorf("start timeout and auto-release delay must be positive")
	}
	if c.MaxBatchRefund <= 0 {
		return fmt.Errorf("max batch refund must be positive, got %d", c.MaxBatchRefund)
	}
	return nil
}

// IsAdmin reports whether caller holds the administrative capability.
func (c Config) IsAdmin(caller string) bool {
	if caller == "" {
		return false
	}
	for _, admin := range c.Admins {
		if caller == admin {
			return true
		}
	}
	return false
}

// NeedsHeartbeat reports whether an active session is overdue for a liveness
// signal.
func (c Config) NeedsHeartbeat(s *Session, now time.Time) bool {
	return s.Status == StatusActive && now.After(s.LastLivenessSignal.Add(c.HeartbeatInterval))
}

// ShouldAutoPause reports whether an active session has missed its heartbeat
// by more than the grace period, making it pausable by anyone.
func (c Config) ShouldAutoPause(s *Session, now time.Time) bool {
	return s.Status == StatusActive &&
		now.After(s.LastLivenessSignal.Add(c.HeartbeatInterval+c.GracePeriod))
}
