package verification

import (
	"context"
	"time"

	"github.com/tech-arch1tect/rentid/config"
	"gorm.io/gorm"
)

type Decision struct {
	CanResend bool
	Remaining int
}

// CooldownGate decides from issuance history alone: used and expired
// records still start a cooldown window.
type CooldownGate struct {
	store  *Store
	window time.Duration
}

func NewCooldownGate(cfg *config.Config, store *Store) *CooldownGate {
	window := cfg.Verification.Cooldown
	if window < 0 {
		window = 0
	}
	return &CooldownGate{store: store, window: window}
}

func (g *CooldownGate) Window() time.Duration {
	return g.window
}

func (g *CooldownGate) WithTx(tx *gorm.DB) *CooldownGate {
	return &CooldownGate{store: g.store.WithTx(tx), window: g.window}
}

func (g *CooldownGate) Check(ctx context.Context, email string, purpose Purpose) (Decision, error) {
	last, ok, err := g.store.LatestIssuedAt(ctx, email, purpose)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{CanResend: true}, nil
	}
	return evaluate(g.window, last, g.store.Now()), nil
}

func evaluate(window time.Duration, last, now time.Time) Decision {
	elapsed := now.Sub(last)
	if elapsed >= window {
		return Decision{CanResend: true}
	}

	remaining := window - elapsed
	if remaining > window {
		remaining = window
	}
	return Decision{CanResend: false, Remaining: ceilSeconds(remaining)}
}

func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
