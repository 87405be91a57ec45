// internal/humanoid/pacer.go
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/xkilldash9x/autoapply/internal/config"
)

// Sleeper is anything that can wait on behalf of the pacer. Browsing contexts
// implement it, so a pause honors the tab's lifetime as well as ctx.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Pacer spreads settle pauses around their configured value so that
// consecutive interactions do not run on a fixed cadence.
type Pacer struct {
	cfg config.HumanoidConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a pacer. A zero seed draws one from the clock.
func New(cfg config.HumanoidConfig) *Pacer {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Pacer{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Duration returns the jittered length of a pause around base. The result is
// normally distributed with a standard deviation of JitterRatio*base, clamped
// to [MinPause, base*(1+2*JitterRatio)].
func (p *Pacer) Duration(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if p == nil || !p.cfg.Enabled || p.cfg.JitterRatio <= 0 {
		return base
	}

	p.mu.Lock()
	n := p.rng.NormFloat64()
	p.mu.Unlock()

	d := time.Duration(float64(base) * (1 + n*p.cfg.JitterRatio))
	if ceiling := time.Duration(float64(base) * (1 + 2*p.cfg.JitterRatio)); d > ceiling {
		d = ceiling
	}
	if floor := p.cfg.MinPause; d < floor {
		d = floor
	}
	return d
}

// Pause waits a jittered duration around base through s.
func (p *Pacer) Pause(ctx context.Context, s Sleeper, base time.Duration) error {
	d := p.Duration(base)
	if d <= 0 {
		return ctx.Err()
	}
	return s.Sleep(ctx, d)
}
