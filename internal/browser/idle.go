// internal/browser/idle.go
package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
)

// idleCheckFrequency is how often the in-flight request count is sampled.
const idleCheckFrequency = 50 * time.Millisecond

// idleTracker counts in-flight network requests for one tab so navigation can
// wait for a "network idle" signal.
type idleTracker struct {
	mu       sync.RWMutex
	inflight map[network.RequestID]struct{}
	logger   *zap.Logger
}

func newIdleTracker(logger *zap.Logger) *idleTracker {
	return &idleTracker{
		inflight: make(map[network.RequestID]struct{}),
		logger:   logger,
	}
}

// handleEvent is registered with chromedp.ListenTarget.
func (t *idleTracker) handleEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		if ev.Request != nil && strings.HasPrefix(ev.Request.URL, "data:") {
			return
		}
		t.mu.Lock()
		t.inflight[ev.RequestID] = struct{}{}
		t.mu.Unlock()
	case *network.EventLoadingFinished:
		t.done(ev.RequestID)
	case *network.EventLoadingFailed:
		t.done(ev.RequestID)
	}
}

func (t *idleTracker) done(id network.RequestID) {
	t.mu.Lock()
	delete(t.inflight, id)
	t.mu.Unlock()
}

// reset forgets every tracked request. Called before a new navigation so
// requests abandoned by the previous document do not hold the count up.
func (t *idleTracker) reset() {
	t.mu.Lock()
	t.inflight = make(map[network.RequestID]struct{})
	t.mu.Unlock()
}

func (t *idleTracker) active() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.inflight)
}

// Wait blocks until at most maxInflight requests have been outstanding for a
// continuous quietPeriod. The caller's context bounds the wait.
func (t *idleTracker) Wait(ctx context.Context, quietPeriod time.Duration, maxInflight int) error {
	timer := time.NewTimer(quietPeriod)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	defer timer.Stop()

	quiet := false
	ticker := time.NewTicker(idleCheckFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			busy := t.active() > maxInflight
			switch {
			case busy && quiet:
				// Activity resumed; the quiet period starts over.
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				quiet = false
			case !busy && !quiet:
				timer.Reset(quietPeriod)
				quiet = true
			}
		case <-timer.C:
			t.logger.Debug("Network is idle.", zap.Int("inflight", t.active()))
			return nil
		}
	}
}
