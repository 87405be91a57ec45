// internal/workflow/state.go
package workflow

import "errors"

// State is a node of the per-item workflow state machine.
type State int

const (
	Idle State = iota
	Opened
	PrimaryActionAttempted
	DialogHandled
	InlineContinuation
	NoFollowUp
	Closed
	Failed
)

var stateNames = [...]string{
	Idle:                   "idle",
	Opened:                 "opened",
	PrimaryActionAttempted: "primary_action_attempted",
	DialogHandled:          "dialog_handled",
	InlineContinuation:     "inline_continuation",
	NoFollowUp:             "no_follow_up",
	Closed:                 "closed",
	Failed:                 "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// IsBranch reports whether s is one of the three post-action branches.
func (s State) IsBranch() bool {
	return s == DialogHandled || s == InlineContinuation || s == NoFollowUp
}

var (
	// ErrEndOfItems reports that no item exists at the requested position. It
	// ends a scan and is not a failure.
	ErrEndOfItems = errors.New("workflow: no item at this position")
	// ErrUnexpectedDriverFailure wraps any fault inside one item's workflow
	// other than context loss or cancellation.
	ErrUnexpectedDriverFailure = errors.New("workflow: unexpected driver failure")
)
