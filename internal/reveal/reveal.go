// internal/reveal/reveal.go
package reveal

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/humanoid"
)

// Options bound a single reveal pass.
type Options struct {
	StepBudget       int
	IdleThreshold    int
	Pause            time.Duration
	ViewportFraction float64
}

// OptionsFromConfig maps the reveal section of the config onto Options.
func OptionsFromConfig(cfg config.RevealConfig) Options {
	return Options{
		StepBudget:       cfg.StepBudget,
		IdleThreshold:    cfg.IdleThreshold,
		Pause:            cfg.Pause,
		ViewportFraction: cfg.ViewportFraction,
	}
}

func (o Options) normalized() Options {
	if o.StepBudget <= 0 {
		o.StepBudget = 40
	}
	if o.IdleThreshold <= 0 {
		o.IdleThreshold = 1
	}
	if o.ViewportFraction <= 0 || o.ViewportFraction > 1 {
		o.ViewportFraction = 0.9
	}
	return o
}

// Revealer scrolls a surface until its lazily rendered content stops growing.
type Revealer struct {
	surface schemas.SessionContext
	pacer   *humanoid.Pacer
	logger  *zap.Logger
}

// New creates a revealer over a browsing context.
func New(surface schemas.SessionContext, pacer *humanoid.Pacer, logger *zap.Logger) *Revealer {
	return &Revealer{surface: surface, pacer: pacer, logger: logger.Named("revealer")}
}

// Reveal scrolls step by step, pausing after each scroll so lazy content can
// mount, and stops once the content extent has been unchanged for
// IdleThreshold consecutive steps. Running out of steps is not an error: it
// reports stabilized=false and the caller works with what is rendered.
func (r *Revealer) Reveal(ctx context.Context, opts Options) (stabilized bool, err error) {
	opts = opts.normalized()

	last, err := r.surface.ContentExtent(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read content extent: %w", err)
	}
	initial := last
	unchanged := 0

	for step := 1; step <= opts.StepBudget; step++ {
		if err := r.surface.ScrollBy(ctx, opts.ViewportFraction); err != nil {
			return false, fmt.Errorf("reveal step %d: scroll failed: %w", step, err)
		}
		if err := r.pacer.Pause(ctx, r.surface, opts.Pause); err != nil {
			return false, err
		}
		extent, err := r.surface.ContentExtent(ctx)
		if err != nil {
			return false, fmt.Errorf("reveal step %d: failed to read content extent: %w", step, err)
		}

		if extent == last {
			unchanged++
			if unchanged >= opts.IdleThreshold {
				r.logger.Debug("Content stabilized.",
					zap.Int("steps", step),
					zap.Int64("initial_extent", initial),
					zap.Int64("extent", extent))
				return true, nil
			}
			continue
		}
		unchanged = 0
		last = extent
	}

	r.logger.Warn("Reveal step budget exhausted before content stabilized; continuing with what is rendered.",
		zap.Int("step_budget", opts.StepBudget),
		zap.Int64("extent", last))
	return false, nil
}
