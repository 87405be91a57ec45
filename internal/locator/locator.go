// internal/locator/locator.go
package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/api/schemas"
)

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("locator: element did not appear in time")

// TimeoutError reports that a bounded wait for an element expired.
type TimeoutError struct {
	Predicate string
	Scope     Scope
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("locator: no visible %s element matching %s within %v", e.Scope, e.Predicate, e.Timeout)
}

// Is makes errors.Is(err, ErrTimeout) hold for any *TimeoutError.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Scope restricts candidates by their relation to a dialog region.
type Scope int

const (
	AnyScope Scope = iota
	DialogOnly
	OutsideDialog
)

func (s Scope) String() string {
	switch s {
	case DialogOnly:
		return "in-dialog"
	case OutsideDialog:
		return "page"
	default:
		return "any"
	}
}

func (s Scope) admits(c schemas.Candidate) bool {
	switch s {
	case DialogOnly:
		return c.InDialog
	case OutsideDialog:
		return !c.InDialog
	default:
		return true
	}
}

// Locator finds candidate elements by label. Every call re-queries the live
// surface; nothing is cached between calls.
type Locator struct {
	surface schemas.SessionContext
	logger  *zap.Logger
	poll    time.Duration
}

// New creates a locator over a browsing context. pollInterval is the spacing
// between attempts of the bounded waits.
func New(surface schemas.SessionContext, logger *zap.Logger, pollInterval time.Duration) *Locator {
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	return &Locator{surface: surface, logger: logger.Named("locator"), poll: pollInterval}
}

// FindAll returns every element whose text matches pred within scope,
// including hidden and disabled ones.
func (l *Locator) FindAll(ctx context.Context, pred LabelPredicate, scope Scope) ([]schemas.Candidate, error) {
	candidates, err := l.surface.QueryCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	var out []schemas.Candidate
	for _, c := range candidates {
		if scope.admits(c) && pred.Match(c.Text) {
			out = append(out, c)
		}
	}
	return out, nil
}

// FindVisible is FindAll filtered to visible, enabled elements.
func (l *Locator) FindVisible(ctx context.Context, pred LabelPredicate, scope Scope) ([]schemas.Candidate, error) {
	all, err := l.FindAll(ctx, pred, scope)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.Actionable() {
			out = append(out, c)
		}
	}
	return out, nil
}

// CountVisible returns the number of visible, enabled matches.
func (l *Locator) CountVisible(ctx context.Context, pred LabelPredicate, scope Scope) (int, error) {
	visible, err := l.FindVisible(ctx, pred, scope)
	return len(visible), err
}

// FindFirstVisible returns the first visible, enabled match, or nil when none.
func (l *Locator) FindFirstVisible(ctx context.Context, pred LabelPredicate, scope Scope) (*schemas.Candidate, error) {
	return l.FindNthVisible(ctx, pred, scope, 0)
}

// FindNthVisible returns the n-th (zero based) visible, enabled match in
// document order, or nil when fewer exist.
func (l *Locator) FindNthVisible(ctx context.Context, pred LabelPredicate, scope Scope, n int) (*schemas.Candidate, error) {
	visible, err := l.FindVisible(ctx, pred, scope)
	if err != nil {
		return nil, err
	}
	if n < 0 || n >= len(visible) {
		return nil, nil
	}
	c := visible[n]
	return &c, nil
}

// FindFirstDisplayed returns the first visible match regardless of whether it
// is enabled. Status markers such as a disabled "Applied" button are found
// this way.
func (l *Locator) FindFirstDisplayed(ctx context.Context, pred LabelPredicate, scope Scope) (*schemas.Candidate, error) {
	all, err := l.FindAll(ctx, pred, scope)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.Visible {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

// WaitFirstVisible polls until a visible, enabled match appears or timeout
// elapses, returning a *TimeoutError in the latter case.
func (l *Locator) WaitFirstVisible(ctx context.Context, pred LabelPredicate, scope Scope, timeout time.Duration) (*schemas.Candidate, error) {
	var found *schemas.Candidate
	err := l.Poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		c, err := l.FindFirstVisible(ctx, pred, scope)
		if err != nil {
			return false, err
		}
		found = c
		return c != nil, nil
	})
	if errors.Is(err, ErrTimeout) {
		return nil, &TimeoutError{Predicate: pred.String(), Scope: scope, Timeout: timeout}
	}
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Poll evaluates cond until it reports true, spacing attempts by the poll
// interval. The number of attempts is fixed up front from timeout, so the wait
// is bounded even when the surface's notion of time is not the wall clock. It
// returns ErrTimeout when every attempt failed.
func (l *Locator) Poll(ctx context.Context, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	attempts := int(timeout/l.poll) + 1
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if err := l.surface.Sleep(ctx, l.poll); err != nil {
			return err
		}
	}
	return ErrTimeout
}
