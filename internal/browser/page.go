// internal/browser/page.go
package browser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// keyCodes maps the key names the workflow dispatches to Windows virtual key
// codes, which Chrome needs for keydown handlers to fire.
var keyCodes = map[string]int64{
	"Escape":    27,
	"Enter":     13,
	"Tab":       9,
	"Backspace": 8,
}

// Page is a single Chrome tab driven over CDP. It implements
// schemas.SessionContext.
type Page struct {
	id     string
	ctx    context.Context // Tab context; carries the CDP target.
	cancel context.CancelFunc
	logger *zap.Logger
	netCfg config.NetworkConfig
	idle   *idleTracker
	lost   atomic.Bool
}

var _ schemas.SessionContext = (*Page)(nil)

// newPage wraps an already attached tab context.
func newPage(tabCtx context.Context, cancel context.CancelFunc, netCfg config.NetworkConfig, logger *zap.Logger) *Page {
	id := uuid.NewString()
	p := &Page{
		id:     id,
		ctx:    tabCtx,
		cancel: cancel,
		logger: logger.Named("page").With(zap.String("page_id", id)),
		netCfg: netCfg,
	}
	p.idle = newIdleTracker(p.logger)
	return p
}

// listen wires the CDP event listeners for idle tracking and target loss.
func (p *Page) listen() {
	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		switch ev.(type) {
		case *inspector.EventTargetCrashed, *inspector.EventDetached:
			if !p.lost.Swap(true) {
				p.logger.Error("Browsing context lost.")
			}
			return
		}
		p.idle.handleEvent(ev)
	})
}

// ID returns the unique ID of the page.
func (p *Page) ID() string { return p.id }

// runActions executes chromedp actions on the tab, bounded by ctx, and maps
// failures of the underlying target to schemas.ErrContextLost.
func (p *Page) runActions(ctx context.Context, actions ...chromedp.Action) error {
	if p.lost.Load() {
		return schemas.ErrContextLost
	}
	combined, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	return p.classify(chromedp.Run(combined, actions...))
}

func (p *Page) classify(err error) error {
	if err == nil {
		return nil
	}
	if p.lost.Load() || p.ctx.Err() != nil ||
		errors.Is(err, chromedp.ErrInvalidContext) ||
		errors.Is(err, chromedp.ErrInvalidTarget) ||
		errors.Is(err, chromedp.ErrChannelClosed) {
		return fmt.Errorf("%w: %v", schemas.ErrContextLost, err)
	}
	return err
}

// withTimeout bounds a single operation and reports timeouts with the
// operation's name.
func (p *Page) withTimeout(ctx context.Context, op string, timeout time.Duration, fn func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := fn(opCtx)
	if err != nil && opCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		p.logger.Debug("Page operation timed out.", zap.String("op", op), zap.Duration("timeout", timeout))
		return fmt.Errorf("page %s timed out after %v: %w", op, timeout, opCtx.Err())
	}
	return err
}

// evaluate runs a script and decodes its by-value result into res.
func (p *Page) evaluate(ctx context.Context, script string, res interface{}) error {
	var raw []byte
	err := p.runActions(ctx, chromedp.Evaluate(script, &raw, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	}))
	if err != nil {
		return err
	}
	// A null result leaves res at its zero value.
	if res == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, res); err != nil {
		return fmt.Errorf("failed to decode script result: %w (payload: %s)", err, string(raw))
	}
	return nil
}

// Navigate loads url and waits for the requested condition.
func (p *Page) Navigate(ctx context.Context, url string, wait schemas.WaitCondition) error {
	p.logger.Debug("Navigating.", zap.String("url", url), zap.String("wait", string(wait)))
	p.idle.reset()

	err := p.withTimeout(ctx, "navigate", p.netCfg.NavigationTimeout, func(opCtx context.Context) error {
		if err := p.runActions(opCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
			return err
		}
		if wait == schemas.WaitNetworkIdle {
			idleCtx, cancel := CombineContext(opCtx, p.ctx)
			defer cancel()
			if err := p.idle.Wait(idleCtx, p.netCfg.IdleQuietPeriod, p.netCfg.IdleMaxInflight); err != nil {
				return p.classify(err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// SetCookies injects cookies into the browser's cookie store.
func (p *Page) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		switch c.SameSite {
		case "Strict", "strict":
			param.SameSite = network.CookieSameSiteStrict
		case "Lax", "lax":
			param.SameSite = network.CookieSameSiteLax
		case "None", "none", "no_restriction":
			param.SameSite = network.CookieSameSiteNone
		}
		if !c.Expires.IsZero() {
			exp := cdp.TimeSinceEpoch(c.Expires)
			param.Expires = &exp
		}
		params = append(params, param)
	}
	return p.withTimeout(ctx, "set_cookies", p.netCfg.ActionTimeout, func(opCtx context.Context) error {
		return p.runActions(opCtx, network.SetCookies(params))
	})
}

// QueryCandidates re-tags and describes every button-like element.
func (p *Page) QueryCandidates(ctx context.Context) ([]schemas.Candidate, error) {
	var candidates []schemas.Candidate
	err := p.withTimeout(ctx, "query_candidates", p.netCfg.ActionTimeout, func(opCtx context.Context) error {
		return p.evaluate(opCtx, queryCandidatesJS, &candidates)
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Click resolves the handle, scrolls it into view and dispatches a real mouse
// press and release at its center.
func (p *Page) Click(ctx context.Context, handle string) error {
	encoded, err := json.Marshal(handle)
	if err != nil {
		return fmt.Errorf("failed to encode handle: %w", err)
	}
	return p.withTimeout(ctx, "click", p.netCfg.ActionTimeout, func(opCtx context.Context) error {
		var at *point
		if err := p.evaluate(opCtx, fmt.Sprintf(locateHandleJS, encoded), &at); err != nil {
			return err
		}
		if at == nil {
			return fmt.Errorf("click %s: %w", handle, schemas.ErrStaleHandle)
		}
		return p.runActions(opCtx,
			input.DispatchMouseEvent(input.MouseMoved, at.X, at.Y),
			input.DispatchMouseEvent(input.MousePressed, at.X, at.Y).WithButton(input.Left).WithButtons(1).WithClickCount(1),
			input.DispatchMouseEvent(input.MouseReleased, at.X, at.Y).WithButton(input.Left).WithClickCount(1),
		)
	})
}

// PressKey dispatches a keydown/keyup pair for a named key.
func (p *Page) PressKey(ctx context.Context, key string) error {
	down := input.DispatchKeyEvent(input.KeyDown).WithKey(key).WithCode(key)
	up := input.DispatchKeyEvent(input.KeyUp).WithKey(key).WithCode(key)
	if code, ok := keyCodes[key]; ok {
		down = down.WithWindowsVirtualKeyCode(code)
		up = up.WithWindowsVirtualKeyCode(code)
	}
	return p.withTimeout(ctx, "press_key", p.netCfg.ActionTimeout, func(opCtx context.Context) error {
		return p.runActions(opCtx, down, up)
	})
}

// ScrollBy scrolls down by a fraction of the viewport height.
func (p *Page) ScrollBy(ctx context.Context, viewportFraction float64) error {
	return p.withTimeout(ctx, "scroll", p.netCfg.ActionTimeout, func(opCtx context.Context) error {
		return p.evaluate(opCtx, fmt.Sprintf(scrollByJS, viewportFraction), nil)
	})
}

// ContentExtent returns the document's scroll height.
func (p *Page) ContentExtent(ctx context.Context) (int64, error) {
	var extent float64
	err := p.withTimeout(ctx, "content_extent", p.netCfg.ActionTimeout, func(opCtx context.Context) error {
		return p.evaluate(opCtx, contentExtentJS, &extent)
	})
	return int64(extent), err
}

// BodyText returns the rendered text of the body.
func (p *Page) BodyText(ctx context.Context) (string, error) {
	var text string
	err := p.withTimeout(ctx, "body_text", p.netCfg.ActionTimeout, func(opCtx context.Context) error {
		return p.evaluate(opCtx, bodyTextJS, &text)
	})
	return text, err
}

// Fingerprint hashes the current location and visible text.
func (p *Page) Fingerprint(ctx context.Context) (string, error) {
	var raw string
	err := p.withTimeout(ctx, "fingerprint", p.netCfg.ActionTimeout, func(opCtx context.Context) error {
		return p.evaluate(opCtx, fingerprintJS, &raw)
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:]), nil
}

// Snapshot captures a viewport screenshot and the serialized document.
func (p *Page) Snapshot(ctx context.Context) (*schemas.Snapshot, error) {
	snap := &schemas.Snapshot{CapturedAt: time.Now().UTC()}
	err := p.withTimeout(ctx, "snapshot", p.netCfg.ActionTimeout, func(opCtx context.Context) error {
		return p.runActions(opCtx,
			chromedp.Location(&snap.URL),
			chromedp.CaptureScreenshot(&snap.Screenshot),
			chromedp.OuterHTML("html", &snap.HTML, chromedp.ByQuery),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture snapshot: %w", err)
	}
	return snap, nil
}

// Sleep pauses for d, honoring both the caller's and the tab's lifetime.
func (p *Page) Sleep(ctx context.Context, d time.Duration) error {
	return p.runActions(ctx, chromedp.Sleep(d))
}

// Close closes the tab. It is safe to call more than once.
func (p *Page) Close(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	p.cancel = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Debug("Tab close reported an error.", zap.Error(err))
	}
	return nil
}
