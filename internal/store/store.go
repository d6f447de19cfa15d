// Package store persists run history and the committed-message index. The
// committed index is the idempotency gate: a message ID recorded there is
// never processed again, even if the mailbox flag was lost.
package store

import (
	"context"

	"github.com/propbooks/invoice-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the extraction pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Committed-message index
	MarkMessageCommitted(ctx context.Context, messageID, runID string, rows int) error
	IsMessageCommitted(ctx context.Context, messageID string) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
