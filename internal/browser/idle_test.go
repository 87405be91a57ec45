// internal/browser/idle_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func request(id string, url string) *network.EventRequestWillBeSent {
	return &network.EventRequestWillBeSent{
		RequestID: network.RequestID(id),
		Request:   &network.Request{URL: url},
	}
}

func TestIdleTracker_Counting(t *testing.T) {
	tracker := newIdleTracker(zaptest.NewLogger(t))

	tracker.handleEvent(request("1", "https://example.com/api"))
	tracker.handleEvent(request("2", "https://example.com/img.png"))
	tracker.handleEvent(request("3", "data:image/png;base64,AAAA"))
	assert.Equal(t, 2, tracker.active(), "data URLs are not network requests")

	tracker.handleEvent(&network.EventLoadingFinished{RequestID: "1"})
	tracker.handleEvent(&network.EventLoadingFailed{RequestID: "2"})
	assert.Equal(t, 0, tracker.active())

	tracker.handleEvent(request("4", "https://example.com/poll"))
	tracker.reset()
	assert.Equal(t, 0, tracker.active())
}

func TestIdleTracker_Wait(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("returns once quiet within the inflight allowance", func(t *testing.T) {
		tracker := newIdleTracker(zaptest.NewLogger(t))
		// Two long-polling requests are tolerated.
		tracker.handleEvent(request("a", "https://example.com/ws"))
		tracker.handleEvent(request("b", "https://example.com/poll"))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, tracker.Wait(ctx, 100*time.Millisecond, 2))
	})

	t.Run("waits for busy traffic to drain", func(t *testing.T) {
		tracker := newIdleTracker(zaptest.NewLogger(t))
		tracker.handleEvent(request("x", "https://example.com/bundle.js"))

		go func() {
			time.Sleep(200 * time.Millisecond)
			tracker.handleEvent(&network.EventLoadingFinished{RequestID: "x"})
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		start := time.Now()
		require.NoError(t, tracker.Wait(ctx, 100*time.Millisecond, 0))
		assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
	})

	t.Run("bounded by the caller context", func(t *testing.T) {
		tracker := newIdleTracker(zaptest.NewLogger(t))
		tracker.handleEvent(request("stuck", "https://example.com/slow"))

		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()
		err := tracker.Wait(ctx, 50*time.Millisecond, 0)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
