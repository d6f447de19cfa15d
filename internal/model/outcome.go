package model

import "time"

// OutcomeStatus is the terminal state of one message within a run.
type OutcomeStatus string

const (
	OutcomeCommitted    OutcomeStatus = "committed"
	OutcomeSkipped      OutcomeStatus = "skipped"
	OutcomeFailed       OutcomeStatus = "failed"
	OutcomeNotAttempted OutcomeStatus = "not_attempted"
)

// FailureKind classifies why a message failed.
type FailureKind string

const (
	FailureTransient       FailureKind = "transient"
	FailureSchemaViolation FailureKind = "schema_violation"
	FailureQuotaExceeded   FailureKind = "quota_exceeded"
	FailureUnauthorized    FailureKind = "unauthorized"
	FailureSchemaMismatch  FailureKind = "schema_mismatch"
	FailureLedger          FailureKind = "ledger"
)

// Skip reasons.
const (
	SkipNoValidItems     = "no-valid-items"
	SkipAlreadyCommitted = "already-committed"
)

// ProcessingOutcome is the per-message terminal record. Exactly one outcome
// exists per SourceMessage per run.
type ProcessingOutcome struct {
	MessageID   string        `json:"message_id"`
	Subject     string        `json:"subject,omitempty"`
	Sender      string        `json:"sender,omitempty"`
	Status      OutcomeStatus `json:"status"`
	RowsWritten int           `json:"rows_written,omitempty"`
	SkipReason  string        `json:"skip_reason,omitempty"`
	FailureKind FailureKind   `json:"failure_kind,omitempty"`
	Detail      string        `json:"detail,omitempty"`

	// Committed holds the rows written for this message, rejected the items
	// that failed reconciliation; both surface in the summary notification.
	Committed []LineItem     `json:"committed,omitempty"`
	Rejected  []RejectedItem `json:"rejected,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// RunSummary is the sole artifact handed to the notification transport: every
// message's outcome in one place, plus aggregate counts and, when the run was
// cut short, the abort reason.
type RunSummary struct {
	RunID       string              `json:"run_id"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
	Outcomes    []ProcessingOutcome `json:"outcomes"`
	Aborted     bool                `json:"aborted"`
	AbortReason string              `json:"abort_reason,omitempty"`
}

// Record appends an outcome to the summary.
func (s *RunSummary) Record(o ProcessingOutcome) {
	s.Outcomes = append(s.Outcomes, o)
}

// Counts tallies outcomes by status.
type Counts struct {
	Committed    int `json:"committed"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
	NotAttempted int `json:"not_attempted"`
	RowsWritten  int `json:"rows_written"`
}

// Counts computes aggregate counts over the recorded outcomes.
func (s *RunSummary) Counts() Counts {
	var c Counts
	for _, o := range s.Outcomes {
		switch o.Status {
		case OutcomeCommitted:
			c.Committed++
			c.RowsWritten += o.RowsWritten
		case OutcomeSkipped:
			c.Skipped++
		case OutcomeFailed:
			c.Failed++
		case OutcomeNotAttempted:
			c.NotAttempted++
		}
	}
	return c
}

// RunStatus represents the state of a run record in the store.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusAborted  RunStatus = "aborted"
)

// Run is a persisted processing run.
type Run struct {
	ID        string      `json:"id"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
