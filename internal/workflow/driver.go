// internal/workflow/driver.go
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/browser"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/humanoid"
	"github.com/xkilldash9x/autoapply/internal/locator"
)

// QuotaGate is consulted before every click that would apply an action.
// pending is the number of actions the current invocation has already
// applied that the caller has not recorded yet. A nil gate allows everything.
type QuotaGate func(pending int) bool

func (g QuotaGate) allow(pending int) bool {
	return g == nil || g(pending)
}

// Result describes one driver invocation.
type Result struct {
	Outcome schemas.Outcome
	// Applied is the number of completed actions: 0, 1 or 2.
	Applied int
	// Branch is the post-action branch taken, or Idle if none was reached.
	Branch State
	Trace  []State
	// Label is the text of the element that opened the item.
	Label string
	// QuotaSkipped is set when a click was withheld because the quota was reached.
	QuotaSkipped bool
	// Unverified is set when an inline follow-up was clicked but could not be
	// confirmed, so it was not counted.
	Unverified bool
	Dismissals int
	Err        error
}

func (r *Result) enter(s State) {
	r.Trace = append(r.Trace, s)
	if s.IsBranch() {
		r.Branch = s
	}
}

// State returns the last state entered.
func (r *Result) State() State {
	if len(r.Trace) == 0 {
		return Idle
	}
	return r.Trace[len(r.Trace)-1]
}

// Driver runs the per-item workflow: open the item, attempt the primary
// action, handle whichever follow-up appears, and return the surface to a
// neutral state. It holds no handles between steps; every decision point
// re-queries the surface.
type Driver struct {
	surface schemas.SessionContext
	loc     *locator.Locator
	pacer   *humanoid.Pacer
	labels  Labels
	cfg     config.WorkflowConfig
	logger  *zap.Logger
}

// NewDriver creates a driver over one browsing context.
func NewDriver(surface schemas.SessionContext, loc *locator.Locator, pacer *humanoid.Pacer, labels Labels, cfg config.WorkflowConfig, logger *zap.Logger) *Driver {
	if cfg.MaxDismissals <= 0 {
		cfg.MaxDismissals = 1
	}
	if cfg.DismissKey == "" {
		cfg.DismissKey = "Escape"
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = 10 * time.Second
	}
	return &Driver{
		surface: surface,
		loc:     loc,
		pacer:   pacer,
		labels:  labels,
		cfg:     cfg,
		logger:  logger.Named("workflow"),
	}
}

// Process runs the workflow for the item at position index among the visible
// open controls.
//
// It returns ErrEndOfItems when no such item exists. Any other fault is
// converted to OutcomeFailedRecoverable and reported in Result.Err with a nil
// error, so that one item cannot end the run. Context loss and cancellation
// are returned as errors, after cleanup has been attempted.
func (d *Driver) Process(ctx context.Context, index int, gate QuotaGate) (res Result, err error) {
	log := d.logger.With(zap.Int("item", index))
	res.enter(Idle)

	// Dismiss controls that are already on the page belong to it, not to the
	// item, and are never used to close the item.
	known, err := d.pageControls(ctx)
	if err != nil {
		return res, d.fail(ctx, &res, fmt.Errorf("failed to inspect page controls: %w", err))
	}
	target, err := d.loc.FindNthVisible(ctx, d.labels.Open, locator.OutsideDialog, index)
	if err != nil {
		return res, d.fail(ctx, &res, fmt.Errorf("failed to locate item: %w", err))
	}
	if target == nil {
		return res, ErrEndOfItems
	}
	res.Label = target.Text

	// From here on the surface may be left in a non-neutral state, so the
	// dismissal runs on every exit path.
	defer func() {
		if cerr := d.close(ctx, &res, known, log); cerr != nil && err == nil {
			err = d.fail(ctx, &res, cerr)
		}
		log.Debug("Item finished.",
			zap.String("outcome", string(res.Outcome)),
			zap.Int("applied", res.Applied),
			zap.Stringer("branch", res.Branch),
			zap.Int("dismissals", res.Dismissals))
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic in item workflow.", zap.Any("panic", r), zap.Stack("stack"))
			err = d.fail(ctx, &res, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := d.drive(ctx, index, target, gate, &res, log); err != nil {
		return res, d.fail(ctx, &res, err)
	}
	return res, nil
}

// fail classifies err, records it on res and returns what Process should
// return to its caller.
func (d *Driver) fail(ctx context.Context, res *Result, err error) error {
	if res.State() != Failed {
		res.enter(Failed)
	}
	switch {
	case errors.Is(err, schemas.ErrContextLost):
		res.Outcome = schemas.OutcomeFailedFatal
		res.Err = err
		return err
	case ctx.Err() != nil:
		res.Outcome = schemas.OutcomeFailedRecoverable
		res.Err = err
		return ctx.Err()
	default:
		res.Outcome = schemas.OutcomeFailedRecoverable
		res.Err = fmt.Errorf("%w: %w", ErrUnexpectedDriverFailure, err)
		return nil
	}
}

func (d *Driver) drive(ctx context.Context, index int, target *schemas.Candidate, gate QuotaGate, res *Result, log *zap.Logger) error {
	// Idle -> Opened.
	err := d.click(ctx, target, func(ctx context.Context) (*schemas.Candidate, error) {
		return d.loc.FindNthVisible(ctx, d.labels.Open, locator.OutsideDialog, index)
	})
	if err != nil {
		return fmt.Errorf("failed to open item: %w", err)
	}
	res.enter(Opened)
	if err := d.pacer.Pause(ctx, d.surface, d.cfg.OpenSettle); err != nil {
		return err
	}

	// Opened -> PrimaryActionAttempted.
	if !gate.allow(0) {
		log.Info("Quota reached; not attempting the primary action.")
		res.QuotaSkipped = true
		res.Outcome = schemas.OutcomeSkippedNoAction
		return nil
	}
	var primary *schemas.Candidate
	err = d.loc.Poll(ctx, d.cfg.PrimaryWait, func(ctx context.Context) (bool, error) {
		var err error
		primary, err = d.findPrimary(ctx)
		return primary != nil, err
	})
	if errors.Is(err, locator.ErrTimeout) {
		return d.classifyMissingAction(ctx, res, log)
	}
	if err != nil {
		return fmt.Errorf("failed waiting for primary action: %w", err)
	}

	before := d.fingerprint(ctx, log)
	err = d.click(ctx, primary, d.findPrimary)
	if err != nil {
		return fmt.Errorf("failed to click primary action: %w", err)
	}
	res.Applied = 1
	res.Outcome = schemas.OutcomeApplied
	res.enter(PrimaryActionAttempted)
	log.Info("Primary action applied.", zap.String("label", primary.Text))
	if err := d.pacer.Pause(ctx, d.surface, d.cfg.ActionSettle); err != nil {
		return err
	}

	// PrimaryActionAttempted -> branch. The probes are mutually exclusive and
	// tried in a fixed order, each with its own bound.
	handled, err := d.probeDialog(ctx, before, gate, res, log)
	if err != nil || handled {
		return err
	}
	handled, err = d.probeInline(ctx, before, gate, res, log)
	if err != nil || handled {
		return err
	}
	res.enter(NoFollowUp)
	return nil
}

// classifyMissingAction decides between "nothing to do" and "already done"
// when the primary action never became available.
func (d *Driver) classifyMissingAction(ctx context.Context, res *Result, log *zap.Logger) error {
	res.Outcome = schemas.OutcomeSkippedNoAction
	if d.labels.Done.IsZero() {
		return nil
	}
	done, err := d.loc.FindFirstDisplayed(ctx, d.labels.Done, locator.AnyScope)
	if err != nil {
		return fmt.Errorf("failed to look for completion marker: %w", err)
	}
	if done != nil {
		res.Outcome = schemas.OutcomeSkippedAlreadyDone
		log.Info("Item already acted upon.", zap.String("marker", done.Text))
		return nil
	}
	log.Info("No primary action available.")
	return nil
}

// findPrimary returns the enabled primary action, preferring one inside a
// dialog so that an item opened as a modal is acted on in the modal.
func (d *Driver) findPrimary(ctx context.Context) (*schemas.Candidate, error) {
	visible, err := d.loc.FindVisible(ctx, d.labels.Primary, locator.AnyScope)
	if err != nil {
		return nil, err
	}
	return preferDialog(visible), nil
}

func preferDialog(candidates []schemas.Candidate) *schemas.Candidate {
	for i := range candidates {
		if candidates[i].InDialog {
			return &candidates[i]
		}
	}
	if len(candidates) > 0 {
		return &candidates[0]
	}
	return nil
}

// probeDialog handles a follow-up modal carrying its own action. The surface
// must have changed since before the primary click, so a primary action that
// itself sits in a modal is not mistaken for the follow-up.
func (d *Driver) probeDialog(ctx context.Context, before string, gate QuotaGate, res *Result, log *zap.Logger) (bool, error) {
	if d.labels.DialogAction.IsZero() {
		return false, nil
	}
	var action *schemas.Candidate
	err := d.loc.Poll(ctx, d.cfg.DialogProbe, func(ctx context.Context) (bool, error) {
		if before != "" {
			fp, err := d.surface.Fingerprint(ctx)
			if err != nil {
				return false, err
			}
			if fp == before {
				return false, nil
			}
		}
		var err error
		action, err = d.loc.FindFirstVisible(ctx, d.labels.DialogAction, locator.DialogOnly)
		return action != nil, err
	})
	if errors.Is(err, locator.ErrTimeout) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dialog probe failed: %w", err)
	}
	res.enter(DialogHandled)

	if !gate.allow(res.Applied) {
		log.Info("Quota reached; skipping the dialog action.", zap.String("label", action.Text))
		res.QuotaSkipped = true
		return true, nil
	}
	err = d.click(ctx, action, func(ctx context.Context) (*schemas.Candidate, error) {
		return d.loc.FindFirstVisible(ctx, d.labels.DialogAction, locator.DialogOnly)
	})
	if err != nil {
		return true, fmt.Errorf("failed to click dialog action: %w", err)
	}
	res.Applied++
	log.Info("Dialog action applied.", zap.String("label", action.Text))
	return true, d.pacer.Pause(ctx, d.surface, d.cfg.ActionSettle)
}

// probeInline handles the application advancing in place to another item
// that offers the same primary action. The surface must have changed since
// before the primary click, otherwise the control is the one just clicked.
func (d *Driver) probeInline(ctx context.Context, before string, gate QuotaGate, res *Result, log *zap.Logger) (bool, error) {
	if before == "" {
		return false, nil
	}
	var next *schemas.Candidate
	err := d.loc.Poll(ctx, d.cfg.InlineProbe, func(ctx context.Context) (bool, error) {
		fp, err := d.surface.Fingerprint(ctx)
		if err != nil {
			return false, err
		}
		if fp == before {
			return false, nil
		}
		next, err = d.findPrimary(ctx)
		return next != nil, err
	})
	if errors.Is(err, locator.ErrTimeout) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inline probe failed: %w", err)
	}
	res.enter(InlineContinuation)

	if !gate.allow(res.Applied) {
		log.Info("Quota reached; skipping the inline follow-up action.", zap.String("label", next.Text))
		res.QuotaSkipped = true
		return true, nil
	}
	err = d.click(ctx, next, d.findPrimary)
	if err != nil {
		return true, fmt.Errorf("failed to click inline follow-up action: %w", err)
	}
	if err := d.pacer.Pause(ctx, d.surface, d.cfg.ActionSettle); err != nil {
		return true, err
	}

	confirmed, err := d.confirmed(ctx)
	if err != nil {
		return true, err
	}
	if !confirmed {
		log.Warn("Inline follow-up action clicked but not confirmed; not counting it.")
		res.Unverified = true
		return true, nil
	}
	res.Applied++
	log.Info("Inline follow-up action applied.", zap.String("label", next.Text))
	return true, nil
}

// confirmed waits for the confirmation marker in the page text. Without a
// configured marker the changed surface is taken as confirmation.
func (d *Driver) confirmed(ctx context.Context) (bool, error) {
	if d.labels.Confirmation.IsZero() {
		return true, nil
	}
	err := d.loc.Poll(ctx, d.cfg.ConfirmProbe, func(ctx context.Context) (bool, error) {
		text, err := d.surface.BodyText(ctx)
		if err != nil {
			return false, err
		}
		return d.labels.Confirmation.Match(text), nil
	})
	if errors.Is(err, locator.ErrTimeout) {
		return false, nil
	}
	return err == nil, err
}

// fingerprint returns the surface fingerprint, or "" if it cannot be read.
// An empty fingerprint disables the inline probe for this item.
func (d *Driver) fingerprint(ctx context.Context, log *zap.Logger) string {
	fp, err := d.surface.Fingerprint(ctx)
	if err != nil {
		log.Debug("Could not fingerprint surface; inline continuation detection disabled for this item.", zap.Error(err))
		return ""
	}
	return fp
}

// click clicks c, re-locating it once if the handle went stale between the
// query and the click.
func (d *Driver) click(ctx context.Context, c *schemas.Candidate, relocate func(context.Context) (*schemas.Candidate, error)) error {
	err := d.surface.Click(ctx, c.Handle)
	if !errors.Is(err, schemas.ErrStaleHandle) {
		return err
	}
	d.logger.Debug("Stale handle; re-locating.", zap.String("label", c.Text))
	fresh, rerr := relocate(ctx)
	if rerr != nil {
		return rerr
	}
	if fresh == nil {
		return fmt.Errorf("element %q disappeared after re-render: %w", c.Text, err)
	}
	return d.surface.Click(ctx, fresh.Handle)
}

// controlSet counts dismiss controls by label and dialog membership.
type controlSet map[string]int

func controlKey(c schemas.Candidate) string {
	if c.InDialog {
		return "dialog:" + locator.Normalize(c.Text)
	}
	return "page:" + locator.Normalize(c.Text)
}

// fresh drops as many occurrences of each control as were counted in the set,
// leaving the controls that appeared since.
func (k controlSet) fresh(candidates []schemas.Candidate) []schemas.Candidate {
	seen := make(map[string]int, len(k))
	var out []schemas.Candidate
	for _, c := range candidates {
		key := controlKey(c)
		seen[key]++
		if seen[key] > k[key] {
			out = append(out, c)
		}
	}
	return out
}

// pageControls records the dismiss controls visible before the item is opened.
func (d *Driver) pageControls(ctx context.Context) (controlSet, error) {
	known := controlSet{}
	if d.labels.Dismiss.IsZero() {
		return known, nil
	}
	visible, err := d.loc.FindVisible(ctx, d.labels.Dismiss, locator.AnyScope)
	if err != nil {
		return nil, err
	}
	for _, c := range visible {
		known[controlKey(c)]++
	}
	return known, nil
}

// findDismiss returns a dismiss control that appeared after the item was
// opened, innermost dialog first, or nil when there is none.
func (d *Driver) findDismiss(ctx context.Context, known controlSet) (*schemas.Candidate, error) {
	visible, err := d.loc.FindVisible(ctx, d.labels.Dismiss, locator.AnyScope)
	if err != nil {
		return nil, err
	}
	return preferDialog(known.fresh(visible)), nil
}

// close returns the surface to a neutral state. It runs on a context detached
// from ctx, so it still executes after a per-item timeout or a cancellation,
// bounded by its own timeout. Only context loss is reported back.
func (d *Driver) close(ctx context.Context, res *Result, known controlSet, log *zap.Logger) error {
	cctx, cancel := context.WithTimeout(browser.Detach(ctx), d.cfg.CleanupTimeout)
	defer cancel()

	for i := 0; i < d.cfg.MaxDismissals; i++ {
		if err := d.dismissOnce(cctx, known, log); err != nil {
			log.Warn("Dismissal failed.", zap.Error(err))
			if errors.Is(err, schemas.ErrContextLost) {
				return err
			}
			break
		}
		res.Dismissals++
		if err := d.pacer.Pause(cctx, d.surface, d.cfg.DismissSettle); err != nil {
			break
		}
		if d.labels.Dismiss.IsZero() {
			break
		}
		remaining, err := d.findDismiss(cctx, known)
		if err != nil || remaining == nil {
			break
		}
	}
	if res.State() != Failed {
		res.enter(Closed)
	}
	return nil
}

// dismissOnce clicks the innermost dismiss control the item brought up, or
// sends the dismiss key when there is none.
func (d *Driver) dismissOnce(ctx context.Context, known controlSet, log *zap.Logger) error {
	if !d.labels.Dismiss.IsZero() {
		c, err := d.findDismiss(ctx, known)
		if err != nil {
			return err
		}
		if c != nil {
			err = d.surface.Click(ctx, c.Handle)
			if err == nil {
				log.Debug("Dismissed via control.", zap.String("label", c.Text), zap.Bool("in_dialog", c.InDialog))
				return nil
			}
			if !errors.Is(err, schemas.ErrStaleHandle) {
				return err
			}
		}
	}
	log.Debug("Dismissing via key.", zap.String("key", d.cfg.DismissKey))
	return d.surface.PressKey(ctx, d.cfg.DismissKey)
}
