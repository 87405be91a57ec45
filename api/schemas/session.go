package schemas

import (
	"context"
	"errors"
	"time"
)

// -- Browsing Context Errors --

var (
	// ErrStaleHandle is returned when a candidate handle no longer resolves to a
	// live node. The page re-rendered since the handle was issued.
	ErrStaleHandle = errors.New("schemas: candidate handle is stale")

	// ErrContextLost signals that the browsing context itself is gone (crashed
	// renderer, closed target, killed browser process). It is not recoverable
	// within a run.
	ErrContextLost = errors.New("schemas: browsing context lost")
)

// -- Browsing Context Schemas --

// WaitCondition tells Navigate how long to wait after the navigation commits.
type WaitCondition string

const (
	// WaitDOMReady returns once the document reaches "interactive" or "complete".
	WaitDOMReady WaitCondition = "domcontentloaded"
	// WaitNetworkIdle additionally waits until no more than two requests have
	// been in flight for a short quiet period.
	WaitNetworkIdle WaitCondition = "networkidle"
)

// Candidate is a point-in-time view of one interactive element (button or
// link) on the live surface. Handle is only valid until the next query or
// re-render of the page; callers must never hold it across an awaited boundary.
type Candidate struct {
	Handle   string `json:"handle"`
	Text     string `json:"text"`
	Tag      string `json:"tag"`
	Role     string `json:"role,omitempty"`
	Visible  bool   `json:"visible"`
	Enabled  bool   `json:"enabled"`
	InDialog bool   `json:"in_dialog"`
}

// Actionable reports whether the element can be clicked right now.
func (c Candidate) Actionable() bool {
	return c.Visible && c.Enabled
}

// Snapshot is an opaque diagnostic capture of the rendered surface.
type Snapshot struct {
	URL        string    `json:"url"`
	Screenshot []byte    `json:"-"`
	HTML       string    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
}

// SessionContext is the contract every browsing-context implementation
// satisfies. It exposes only the DOM and navigation primitives the workflow
// needs: navigation, cookie injection, candidate queries, clicks, key presses,
// scrolling and a few read-only probes.
//
//go:generate mockery --name SessionContext --output ../../internal/mocks --outpkg mocks
type SessionContext interface {
	// ID returns the unique ID of the session.
	ID() string
	// Navigate loads url and blocks until the wait condition is met.
	Navigate(ctx context.Context, url string, wait WaitCondition) error
	// SetCookies injects cookies into the browsing context.
	SetCookies(ctx context.Context, cookies []Cookie) error
	// QueryCandidates re-scans the live document for buttons and links and issues
	// fresh handles. Handles from any earlier call become stale.
	QueryCandidates(ctx context.Context) ([]Candidate, error)
	// Click clicks the element behind a handle, or returns ErrStaleHandle.
	Click(ctx context.Context, handle string) error
	// PressKey dispatches a single key press such as "Escape".
	PressKey(ctx context.Context, key string) error
	// ScrollBy scrolls down by a fraction of the viewport height.
	ScrollBy(ctx context.Context, viewportFraction float64) error
	// ContentExtent returns the total scrollable height of the document.
	ContentExtent(ctx context.Context) (int64, error)
	// BodyText returns the rendered text of the document body.
	BodyText(ctx context.Context) (string, error)
	// Fingerprint returns a digest of the current location and visible text,
	// used to tell a changed surface from an unchanged one.
	Fingerprint(ctx context.Context) (string, error)
	// Snapshot captures a screenshot and the serialized DOM.
	Snapshot(ctx context.Context) (*Snapshot, error)
	// Sleep pauses execution for a duration, honoring cancellation.
	Sleep(ctx context.Context, d time.Duration) error
	// Close releases the browsing context.
	Close(ctx context.Context) error
}
