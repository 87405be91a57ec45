// File: internal/orchestrator/orchestrator.go
// Description: Runs one pass over the working surface. It enumerates items,
// hands each to the workflow driver under the run quota and aggregates the
// outcomes into a run summary.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/auth"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/locator"
	"github.com/xkilldash9x/autoapply/internal/reveal"
	"github.com/xkilldash9x/autoapply/internal/workflow"
)

// ItemProcessor runs the workflow for one item. *workflow.Driver implements it.
type ItemProcessor interface {
	Process(ctx context.Context, index int, gate workflow.QuotaGate) (workflow.Result, error)
}

// Revealer surfaces lazily rendered content. *reveal.Revealer implements it.
type Revealer interface {
	Reveal(ctx context.Context, opts reveal.Options) (bool, error)
}

// Snapshotter captures diagnostic artifacts of the surface.
type Snapshotter interface {
	Capture(ctx context.Context, surface schemas.SessionContext, runID, name string) ([]string, error)
}

// Orchestrator manages the lifecycle of a run. It owns the browsing context
// for the run's duration and processes items strictly one at a time.
type Orchestrator struct {
	cfg         config.RunConfig
	revealOpts  reveal.Options
	initialWait time.Duration
	artifacts   config.ArtifactsConfig
	logger      *zap.Logger

	locator   *locator.Locator
	revealer  Revealer
	processor ItemProcessor
	openLabel locator.LabelPredicate
	snapshots Snapshotter

	now      func() time.Time
	newRunID func() string
}

// New creates an orchestrator with its collaborators injected.
func New(
	cfg config.Interface,
	logger *zap.Logger,
	loc *locator.Locator,
	revealer Revealer,
	processor ItemProcessor,
	openLabel locator.LabelPredicate,
) (*Orchestrator, error) {
	if cfg == nil || logger == nil || loc == nil || revealer == nil || processor == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if openLabel.IsZero() {
		return nil, fmt.Errorf("cannot initialize orchestrator without an open label")
	}
	runCfg := cfg.Run()
	if !runCfg.ScanMode.Valid() {
		return nil, fmt.Errorf("unknown scan mode %q", runCfg.ScanMode)
	}
	return &Orchestrator{
		cfg:         runCfg,
		revealOpts:  reveal.OptionsFromConfig(cfg.Reveal()),
		initialWait: cfg.Reveal().InitialWait,
		artifacts:   cfg.Artifacts(),
		logger:      logger.Named("orchestrator"),
		locator:     loc,
		revealer:    revealer,
		processor:   processor,
		openLabel:   openLabel,
		now:         time.Now,
		newRunID:    uuid.NewString,
	}, nil
}

// WithSnapshots enables diagnostic captures through s.
func (o *Orchestrator) WithSnapshots(s Snapshotter) *Orchestrator {
	o.snapshots = s
	return o
}

// run is the mutable state of a single Run call.
type run struct {
	summary *schemas.RunSummary
	session *auth.Session
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Run processes the items on the session's working surface and returns the
// run summary. The summary is returned even when the run ends early; in that
// case it is marked aborted and the cause is returned as the error.
func (o *Orchestrator) Run(ctx context.Context, session *auth.Session) (*schemas.RunSummary, error) {
	if session == nil || session.Surface == nil {
		return nil, fmt.Errorf("cannot run without an established session")
	}
	r := &run{
		summary: schemas.NewRunSummary(o.newRunID(), o.cfg.ScanMode, o.cfg.Quota, o.now()),
		session: session,
		limiter: newPacer(o.cfg.InterItemPause),
	}
	r.summary.Authenticated = session.Authenticated
	r.logger = o.logger.With(zap.String("run_id", r.summary.RunID))
	r.logger.Info("Run starting.",
		zap.String("scan_mode", string(o.cfg.ScanMode)),
		zap.Int("quota", o.cfg.Quota))

	err := o.execute(ctx, r)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		r.summary.Abort("cancelled")
		err = ctx.Err()
	case errors.Is(err, schemas.ErrContextLost):
		r.summary.Abort("browsing context lost")
	default:
		r.summary.Abort(err.Error())
	}

	if o.artifacts.Enabled && o.artifacts.AtRunEnd {
		o.capture(ctx, r, "final")
	}
	r.summary.Finalize(o.now())
	r.logger.Info("Run finished.",
		zap.Int("invocations", r.summary.Invocations),
		zap.Int("applied_actions", r.summary.AppliedActions),
		zap.Bool("aborted", r.summary.Aborted),
		zap.Duration("elapsed", r.summary.Elapsed))
	return r.summary, err
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	if o.initialWait > 0 {
		if err := r.session.Surface.Sleep(ctx, o.initialWait); err != nil {
			return err
		}
	}
	stabilized, err := o.revealer.Reveal(ctx, o.revealOpts)
	if err != nil {
		return fmt.Errorf("initial reveal failed: %w", err)
	}
	r.summary.RevealStabilized = stabilized

	if o.cfg.ScanMode == schemas.ScanLiveRescan {
		return o.runLiveRescan(ctx, r)
	}
	return o.runFixedCount(ctx, r)
}

// runFixedCount snapshots the item count once and walks it by position,
// stopping early if the list has shrunk below the current position.
func (o *Orchestrator) runFixedCount(ctx context.Context, r *run) error {
	total, err := o.locator.CountVisible(ctx, o.openLabel, locator.OutsideDialog)
	if err != nil {
		return fmt.Errorf("failed to count items: %w", err)
	}
	if o.cfg.MaxItems > 0 && total > o.cfg.MaxItems {
		total = o.cfg.MaxItems
	}
	r.logger.Info("Items discovered.", zap.Int("count", total))

	for i := 0; i < total; i++ {
		if stop, err := o.checkpoint(ctx, r); stop || err != nil {
			return err
		}
		_, err := o.processItem(ctx, r, i)
		if errors.Is(err, workflow.ErrEndOfItems) {
			r.logger.Info("Item list shrank; stopping early.", zap.Int("position", i), zap.Int("snapshot", total))
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// runLiveRescan re-reveals and re-locates before every item. The cursor only
// advances past an item that is still listed after processing, so items the
// application removes are not skipped over and items it keeps are not
// processed twice.
func (o *Orchestrator) runLiveRescan(ctx context.Context, r *run) error {
	cursor := 0
	for processed := 0; o.cfg.MaxItems <= 0 || processed < o.cfg.MaxItems; processed++ {
		if stop, err := o.checkpoint(ctx, r); stop || err != nil {
			return err
		}
		if processed > 0 {
			if _, err := o.revealer.Reveal(ctx, o.revealOpts); err != nil {
				return fmt.Errorf("reveal failed: %w", err)
			}
		}
		before, err := o.locator.CountVisible(ctx, o.openLabel, locator.OutsideDialog)
		if err != nil {
			return fmt.Errorf("failed to count items: %w", err)
		}

		_, err = o.processItem(ctx, r, cursor)
		if errors.Is(err, workflow.ErrEndOfItems) {
			r.logger.Info("No items remaining.", zap.Int("processed", processed))
			return nil
		}
		if err != nil {
			return err
		}

		after, err := o.locator.CountVisible(ctx, o.openLabel, locator.OutsideDialog)
		if err != nil {
			return fmt.Errorf("failed to count items: %w", err)
		}
		if after >= before {
			cursor++
		}
	}
	r.logger.Info("Item limit reached.", zap.Int("max_items", o.cfg.MaxItems))
	return nil
}

// checkpoint runs between items. It reports stop=true when the quota is used
// up and returns the context error when the run was cancelled.
func (o *Orchestrator) checkpoint(ctx context.Context, r *run) (stop bool, err error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	if r.summary.QuotaRemaining() == 0 {
		r.logger.Info("Quota reached; stopping.", zap.Int("quota", r.summary.Quota))
		return true, nil
	}
	return false, nil
}

// processItem runs one item under the per-item timeout and records it.
func (o *Orchestrator) processItem(ctx context.Context, r *run, index int) (workflow.Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return workflow.Result{}, err
	}
	itemCtx, cancel := context.WithCancel(ctx)
	if o.cfg.PerItemTimeout > 0 {
		itemCtx, cancel = context.WithTimeout(ctx, o.cfg.PerItemTimeout)
	}
	defer cancel()

	summary := r.summary
	gate := workflow.QuotaGate(func(pending int) bool {
		return summary.AppliedActions+pending < summary.Quota
	})

	start := o.now()
	res, err := o.processor.Process(itemCtx, index, gate)
	if errors.Is(err, workflow.ErrEndOfItems) {
		return res, err
	}
	if res.Outcome == "" {
		res.Outcome = schemas.OutcomeFailedRecoverable
	}

	record := schemas.ItemRecord{
		Index:        index,
		Label:        res.Label,
		Outcome:      res.Outcome,
		Applied:      res.Applied,
		QuotaSkipped: res.QuotaSkipped,
		Unverified:   res.Unverified,
		Duration:     o.now().Sub(start),
	}
	if res.Branch.IsBranch() {
		record.Branch = res.Branch.String()
	}
	if res.Err != nil {
		record.Error = res.Err.Error()
	} else if err != nil {
		record.Error = err.Error()
	}
	summary.Record(record)

	fields := []zap.Field{
		zap.Int("item", index),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("applied", res.Applied),
		zap.Int("applied_total", summary.AppliedActions),
	}
	if res.Outcome.IsFailure() {
		r.logger.Warn("Item failed.", append(fields, zap.String("error", record.Error))...)
		if res.Outcome == schemas.OutcomeFailedRecoverable && o.artifacts.Enabled && o.artifacts.OnFailure {
			o.capture(ctx, r, fmt.Sprintf("item-%03d", index))
		}
	} else {
		r.logger.Info("Item processed.", fields...)
	}

	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		// The item's own budget ran out; the run goes on.
		return res, nil
	case res.Outcome == schemas.OutcomeFailedFatal && !o.cfg.AbortOnFatal:
		r.logger.Warn("Continuing after fatal item failure.", zap.Error(err))
		return res, nil
	default:
		return res, err
	}
}

// capture stores a diagnostic snapshot; failures are logged only.
func (o *Orchestrator) capture(ctx context.Context, r *run, name string) {
	if o.snapshots == nil || ctx.Err() != nil {
		return
	}
	paths, err := o.snapshots.Capture(ctx, r.session.Surface, r.summary.RunID, name)
	if err != nil {
		r.logger.Warn("Failed to capture diagnostic snapshot.", zap.String("name", name), zap.Error(err))
		return
	}
	r.logger.Debug("Diagnostic snapshot captured.", zap.Strings("paths", paths))
}

// newPacer spaces item starts by at least pause.
func newPacer(pause time.Duration) *rate.Limiter {
	if pause <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(pause), 1)
}
