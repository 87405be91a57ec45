// Package simsurface provides a deterministic, in-memory stand-in for a live
// browsing context. It models a listing page whose items open a detail panel
// with a primary action, optional follow-up dialogs, and close controls. Time
// is virtual: Sleep advances a clock instead of blocking.
package simsurface

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/autoapply/api/schemas"
)

// Branch is the follow-up the surface presents after an item's primary action.
type Branch int

const (
	// NoFollowUp: the primary action completes with no further UI.
	NoFollowUp Branch = iota
	// DialogFollowUp: a modal with its own action button appears.
	DialogFollowUp
	// InlineFollowUp: the detail panel advances in place to another item with
	// the same primary action label.
	InlineFollowUp
)

// Item configures one listing entry.
type Item struct {
	Title  string
	Branch Branch
	// AlreadyDone renders a disabled "Applied" marker instead of the primary action.
	AlreadyDone bool
	// PrimaryDisabled renders the primary action but never enables it.
	PrimaryDisabled bool
	// NoActions renders neither the primary action nor a done marker.
	NoActions bool
	// PrimaryEnableAfter delays enabling the primary action by virtual time.
	PrimaryEnableAfter time.Duration
	// FollowUpDelay delays the dialog or inline continuation by virtual time.
	FollowUpDelay time.Duration
	// RemoveWhenApplied drops the item from the listing once it has been applied.
	RemoveWhenApplied bool
	// PrimaryErr is returned by a click on the primary action (no state change).
	PrimaryErr error
	// PanicOnPrimary makes the primary click panic.
	PanicOnPrimary bool
	// StickyDialog keeps the follow-up dialog open through this many dismissals.
	StickyDialog int
	// ConfirmInline shows a confirmation banner after the inline second action.
	ConfirmInline bool
}

// Options configures the listing as a whole.
type Options struct {
	// InitialRendered is how many items are rendered before any scrolling.
	// Zero renders everything.
	InitialRendered int
	// PageSize is how many more items each scroll reveals.
	PageSize int
	// BlockedText, when set, replaces the body text (e.g. a denial page).
	BlockedText string
	// ContextLostAfterClicks makes every call fail with ErrContextLost once this
	// many clicks have happened. Zero disables it.
	ContextLostAfterClicks int
	// StaleClicks makes the next N clicks fail with ErrStaleHandle even for
	// fresh handles, as if the page re-rendered between query and click.
	StaleClicks int
	// ModalDetail renders the detail panel, including its primary action and
	// close control, as a modal dialog.
	ModalDetail bool
	// PageControls are page-level buttons, such as "Send feedback", rendered
	// between the listing and the detail panel. Clicking them changes nothing.
	PageControls []string
}

// Stats are counters exposed for assertions.
type Stats struct {
	Clicks          int
	OpenClicks      int
	PrimaryClicks   int
	FollowUpClicks  int
	DismissClicks   int
	PageClicks      int
	KeyPresses      int
	Scrolls         int
	Queries         int
	StaleRejections int
	Navigations     []string
	Cookies         []schemas.Cookie
	// OpenedItems lists item indices in the order their detail panel opened.
	OpenedItems []int
	// Applied counts applied actions per item title, including inline follow-ups.
	Applied map[string]int
}

type elementKind int

const (
	elOpen elementKind = iota
	elPrimary
	elDone
	elClose
	elDialogAction
	elDialogClose
	elInlinePrimary
	elPage
)

type element struct {
	kind     elementKind
	item     int
	text     string
	enabled  bool
	inDialog bool
}

type itemState struct {
	Item
	applied   bool
	removed   bool
	inlineHit bool
}

// Surface implements schemas.SessionContext over the model.
type Surface struct {
	mu   sync.Mutex
	opts Options

	items    []*itemState
	rendered int
	clock    time.Duration
	url      string

	detail       int // index of the open item, -1 when none
	openedAt     time.Duration
	primaryAt    time.Duration
	primaryDone  bool
	dialogOpen   bool
	dialogSticky int
	inline       bool // inline continuation pending or shown
	confirmed    bool

	generation int
	handles    map[string]element
	staleLeft  int
	lost       bool

	stats Stats
}

var _ schemas.SessionContext = (*Surface)(nil)

// New builds a surface over the given items.
func New(opts Options, items ...Item) *Surface {
	s := &Surface{
		opts:      opts,
		detail:    -1,
		handles:   map[string]element{},
		staleLeft: opts.StaleClicks,
		stats:     Stats{Applied: map[string]int{}},
	}
	for i, it := range items {
		if it.Title == "" {
			it.Title = fmt.Sprintf("Item %d", i+1)
		}
		s.items = append(s.items, &itemState{Item: it})
	}
	s.rendered = len(items)
	if opts.InitialRendered > 0 && opts.InitialRendered < len(items) {
		s.rendered = opts.InitialRendered
	}
	return s
}

// Stats returns a copy of the counters.
func (s *Surface) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.Applied = make(map[string]int, len(s.stats.Applied))
	for k, v := range s.stats.Applied {
		out.Applied[k] = v
	}
	out.Navigations = append([]string(nil), s.stats.Navigations...)
	out.Cookies = append([]schemas.Cookie(nil), s.stats.Cookies...)
	out.OpenedItems = append([]int(nil), s.stats.OpenedItems...)
	return out
}

// TotalApplied sums applied actions across items.
func (s *Surface) TotalApplied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, v := range s.stats.Applied {
		total += v
	}
	return total
}

// Neutral reports whether no detail panel or dialog is open.
func (s *Surface) Neutral() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detail < 0 && !s.dialogOpen
}

// Rerender invalidates every issued handle, as a client-side re-render would.
func (s *Surface) Rerender() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.handles = map[string]element{}
}

// Elapsed returns the virtual time slept so far.
func (s *Surface) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Reset returns the surface to its initial render, keeping item state such as
// applied flags. It models reloading the page for a second run.
func (s *Surface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeDetail()
	s.rendered = len(s.items)
	if s.opts.InitialRendered > 0 && s.opts.InitialRendered < len(s.items) {
		s.rendered = s.opts.InitialRendered
	}
	s.stats.OpenedItems = nil
}

func (s *Surface) ID() string { return "simsurface" }

func (s *Surface) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.lost {
		return schemas.ErrContextLost
	}
	return nil
}

func (s *Surface) Navigate(ctx context.Context, url string, _ schemas.WaitCondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.url = url
	s.stats.Navigations = append(s.stats.Navigations, url)
	s.closeDetail()
	s.generation++
	s.handles = map[string]element{}
	return nil
}

func (s *Surface) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.stats.Cookies = append(s.stats.Cookies, cookies...)
	return nil
}

// listed returns the indices of rendered, non-removed items in display order.
func (s *Surface) listed() []int {
	var out []int
	for i := 0; i < len(s.items) && i < s.rendered; i++ {
		if !s.items[i].removed {
			out = append(out, i)
		}
	}
	return out
}

// elements builds the current render tree in document order.
func (s *Surface) elements() []element {
	var els []element
	for _, i := range s.listed() {
		els = append(els, element{kind: elOpen, item: i, text: "View", enabled: true})
	}
	for _, text := range s.opts.PageControls {
		els = append(els, element{kind: elPage, item: -1, text: text, enabled: true})
	}
	if s.detail >= 0 {
		panel := len(els)
		it := s.items[s.detail]
		switch {
		case s.inline && s.clock-s.primaryAt >= it.FollowUpDelay:
			if it.inlineHit {
				els = append(els, element{kind: elDone, item: s.detail, text: "Applied"})
			} else {
				els = append(els, element{kind: elInlinePrimary, item: s.detail, text: "Apply", enabled: true})
			}
		case it.applied || it.AlreadyDone:
			els = append(els, element{kind: elDone, item: s.detail, text: "Applied"})
		case it.NoActions:
		case it.PrimaryDisabled:
			els = append(els, element{kind: elPrimary, item: s.detail, text: "Apply"})
		default:
			enabled := s.clock-s.openedAt >= it.PrimaryEnableAfter
			els = append(els, element{kind: elPrimary, item: s.detail, text: "Apply", enabled: enabled})
		}
		els = append(els, element{kind: elClose, item: s.detail, text: "Close", enabled: true})
		if s.opts.ModalDetail {
			for i := panel; i < len(els); i++ {
				els[i].inDialog = true
			}
		}
	}
	if s.dialogOpen && s.clock-s.primaryAt >= s.items[s.detail].FollowUpDelay {
		els = append(els,
			element{kind: elDialogAction, item: s.detail, text: "Apply to similar", enabled: true, inDialog: true},
			element{kind: elDialogClose, item: s.detail, text: "Cancel", enabled: true, inDialog: true},
		)
	}
	return els
}

func (s *Surface) QueryCandidates(ctx context.Context) ([]schemas.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.stats.Queries++
	s.generation++
	s.handles = map[string]element{}

	els := s.elements()
	out := make([]schemas.Candidate, 0, len(els))
	for i, el := range els {
		handle := fmt.Sprintf("%d:%d", s.generation, i)
		s.handles[handle] = el
		out = append(out, schemas.Candidate{
			Handle:   handle,
			Text:     el.text,
			Tag:      "button",
			Visible:  true,
			Enabled:  el.enabled,
			InDialog: el.inDialog,
		})
	}
	return out, nil
}

func (s *Surface) Click(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	el, ok := s.handles[handle]
	if !ok || s.staleLeft > 0 {
		if ok {
			s.staleLeft--
		}
		s.stats.StaleRejections++
		return fmt.Errorf("click %s: %w", handle, schemas.ErrStaleHandle)
	}
	s.stats.Clicks++
	if s.opts.ContextLostAfterClicks > 0 && s.stats.Clicks >= s.opts.ContextLostAfterClicks {
		s.lost = true
	}
	if el.kind == elPage {
		s.stats.PageClicks++
		s.generation++
		s.handles = map[string]element{}
		return nil
	}

	it := s.items[el.item]
	switch el.kind {
	case elOpen:
		s.stats.OpenClicks++
		s.closeDetail()
		s.detail = el.item
		s.openedAt = s.clock
		s.stats.OpenedItems = append(s.stats.OpenedItems, el.item)
	case elPrimary:
		if !el.enabled {
			return nil
		}
		if it.PanicOnPrimary {
			panic("simsurface: primary action exploded")
		}
		if it.PrimaryErr != nil {
			return it.PrimaryErr
		}
		s.stats.PrimaryClicks++
		s.apply(it)
		s.primaryAt = s.clock
		switch it.Branch {
		case DialogFollowUp:
			s.dialogOpen = true
			s.dialogSticky = it.StickyDialog
		case InlineFollowUp:
			s.inline = true
		}
	case elInlinePrimary:
		s.stats.FollowUpClicks++
		it.inlineHit = true
		s.stats.Applied[it.Title]++
		if it.ConfirmInline {
			s.confirmed = true
		}
	case elDialogAction:
		s.stats.FollowUpClicks++
		s.stats.Applied[it.Title]++
		s.dialogOpen = false
		s.confirmed = true
	case elDialogClose, elClose:
		s.stats.DismissClicks++
		s.dismiss()
	case elDone:
	}
	// Any click re-renders the page.
	s.generation++
	s.handles = map[string]element{}
	return nil
}

func (s *Surface) apply(it *itemState) {
	it.applied = true
	s.stats.Applied[it.Title]++
}

// dismiss closes the innermost open layer.
func (s *Surface) dismiss() {
	if s.dialogOpen {
		if s.dialogSticky > 0 {
			s.dialogSticky--
			return
		}
		s.dialogOpen = false
		return
	}
	s.closeDetail()
}

func (s *Surface) closeDetail() {
	if s.detail >= 0 {
		it := s.items[s.detail]
		if it.RemoveWhenApplied && (it.applied || it.inlineHit) {
			it.removed = true
		}
	}
	s.detail = -1
	s.dialogOpen = false
	s.dialogSticky = 0
	s.inline = false
	s.confirmed = false
}

func (s *Surface) PressKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.stats.KeyPresses++
	if key == "Escape" {
		s.dismiss()
		s.generation++
		s.handles = map[string]element{}
	}
	return nil
}

func (s *Surface) ScrollBy(ctx context.Context, _ float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.stats.Scrolls++
	step := s.opts.PageSize
	if step <= 0 {
		step = len(s.items)
	}
	s.rendered += step
	if s.rendered > len(s.items) {
		s.rendered = len(s.items)
	}
	return nil
}

func (s *Surface) ContentExtent(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return int64(600 + 120*len(s.listed())), nil
}

func (s *Surface) bodyText() string {
	if s.opts.BlockedText != "" {
		return s.opts.BlockedText
	}
	var b strings.Builder
	for _, i := range s.listed() {
		fmt.Fprintf(&b, "%s\nView\n", s.items[i].Title)
	}
	if s.detail >= 0 {
		it := s.items[s.detail]
		if s.inline && s.clock-s.primaryAt >= it.FollowUpDelay {
			fmt.Fprintf(&b, "Recommended next: %s (similar)\n", it.Title)
		} else {
			fmt.Fprintf(&b, "Details for %s\n", it.Title)
		}
		if s.confirmed {
			b.WriteString("Application sent\n")
		}
	}
	for _, el := range s.elements() {
		if el.kind != elOpen {
			b.WriteString(el.text + "\n")
		}
	}
	return b.String()
}

func (s *Surface) BodyText(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return "", err
	}
	return s.bodyText(), nil
}

func (s *Surface) Fingerprint(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(s.url + "\n" + s.bodyText()))
	return hex.EncodeToString(sum[:]), nil
}

func (s *Surface) Snapshot(ctx context.Context) (*schemas.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	body := s.bodyText()
	return &schemas.Snapshot{
		URL:        s.url,
		Screenshot: []byte("PNG:" + body),
		HTML:       "<html><body><pre>" + body + "</pre></body></html>",
		CapturedAt: time.Unix(0, 0).Add(s.clock).UTC(),
	}, nil
}

// Sleep advances the virtual clock without blocking.
func (s *Surface) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock += d
	return nil
}

func (s *Surface) Close(ctx context.Context) error { return nil }
