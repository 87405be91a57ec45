package schemas

import (
	"time"
)

// -- Workflow Outcome Schemas --

// Outcome classifies a single item's processing attempt. Exactly one is
// produced per workflow invocation.
type Outcome string

const (
	OutcomeApplied            Outcome = "applied"
	OutcomeSkippedNoAction    Outcome = "skipped_no_action_available"
	OutcomeSkippedAlreadyDone Outcome = "skipped_already_done"
	OutcomeFailedRecoverable  Outcome = "failed_recoverable"
	OutcomeFailedFatal        Outcome = "failed_fatal"
)

// AllOutcomes lists every outcome in reporting order.
var AllOutcomes = []Outcome{
	OutcomeApplied,
	OutcomeSkippedNoAction,
	OutcomeSkippedAlreadyDone,
	OutcomeFailedRecoverable,
	OutcomeFailedFatal,
}

// String satisfies fmt.Stringer.
func (o Outcome) String() string { return string(o) }

// IsFailure reports whether the outcome represents a failed attempt.
func (o Outcome) IsFailure() bool {
	return o == OutcomeFailedRecoverable || o == OutcomeFailedFatal
}

// ScanMode selects how the orchestrator enumerates items.
type ScanMode string

const (
	// ScanFixedCount snapshots the candidate count once and walks it by position.
	ScanFixedCount ScanMode = "fixed-count"
	// ScanLiveRescan re-reveals and re-locates before every item until none remain.
	ScanLiveRescan ScanMode = "live-rescan"
)

// Valid reports whether m names a known scan mode.
func (m ScanMode) Valid() bool {
	return m == ScanFixedCount || m == ScanLiveRescan
}

// -- Run Summary Schemas --

// ItemRecord is the per-invocation entry kept in a run summary.
type ItemRecord struct {
	Index        int           `json:"index"`
	Label        string        `json:"label,omitempty"`
	Outcome      Outcome       `json:"outcome"`
	Applied      int           `json:"applied"`
	Branch       string        `json:"branch,omitempty"`
	QuotaSkipped bool          `json:"quota_skipped,omitempty"`
	Unverified   bool          `json:"unverified,omitempty"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

// RunSummary aggregates the outcomes of one orchestrator run. It is created at
// run start, mutated only by the orchestrator's single thread of control and
// returned to the caller when the run ends.
type RunSummary struct {
	RunID             string          `json:"run_id"`
	ScanMode          ScanMode        `json:"scan_mode"`
	Quota             int             `json:"quota"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        time.Time       `json:"finished_at"`
	Elapsed           time.Duration   `json:"elapsed"`
	Invocations       int             `json:"invocations"`
	Outcomes          map[Outcome]int `json:"outcomes"`
	AppliedActions    int             `json:"applied_actions"`
	QuotaSkipped      int             `json:"quota_skipped"`
	UnverifiedActions int             `json:"unverified_actions"`
	RevealStabilized  bool            `json:"reveal_stabilized"`
	Authenticated     bool            `json:"authenticated"`
	Aborted           bool            `json:"aborted"`
	AbortReason       string          `json:"abort_reason,omitempty"`
	Items             []ItemRecord    `json:"items"`
}

// NewRunSummary returns an empty summary with every outcome counter present.
func NewRunSummary(runID string, mode ScanMode, quota int, startedAt time.Time) *RunSummary {
	outcomes := make(map[Outcome]int, len(AllOutcomes))
	for _, o := range AllOutcomes {
		outcomes[o] = 0
	}
	return &RunSummary{
		RunID:     runID,
		ScanMode:  mode,
		Quota:     quota,
		StartedAt: startedAt,
		Outcomes:  outcomes,
		Items:     []ItemRecord{},
	}
}

// Record folds one item into the running totals.
func (s *RunSummary) Record(item ItemRecord) {
	s.Invocations++
	s.Outcomes[item.Outcome]++
	s.AppliedActions += item.Applied
	if item.QuotaSkipped {
		s.QuotaSkipped++
	}
	if item.Unverified {
		s.UnverifiedActions++
	}
	s.Items = append(s.Items, item)
}

// QuotaRemaining returns how many more actions may be applied in this run.
func (s *RunSummary) QuotaRemaining() int {
	if r := s.Quota - s.AppliedActions; r > 0 {
		return r
	}
	return 0
}

// Finalize stamps the end time and elapsed duration.
func (s *RunSummary) Finalize(finishedAt time.Time) {
	s.FinishedAt = finishedAt
	s.Elapsed = finishedAt.Sub(s.StartedAt)
}

// Abort marks the summary as ended early.
func (s *RunSummary) Abort(reason string) {
	s.Aborted = true
	s.AbortReason = reason
}

// Failures returns the number of failed invocations of either kind.
func (s *RunSummary) Failures() int {
	return s.Outcomes[OutcomeFailedRecoverable] + s.Outcomes[OutcomeFailedFatal]
}
