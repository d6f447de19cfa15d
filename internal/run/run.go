// Package run coordinates one processing run: list candidate messages,
// extract and reconcile each one, append to the ledger, and deliver the
// summary. Messages are isolated: one failure never blocks the rest. The
// exceptions are run-fatal conditions (quota exhausted, credentials revoked,
// ledger schema drift), which abort the run and mark the remaining messages
// not attempted.
package run

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propbooks/invoice-cli/internal/ledger"
	"github.com/propbooks/invoice-cli/internal/model"
	"github.com/propbooks/invoice-cli/internal/normalize"
	"github.com/propbooks/invoice-cli/internal/reconcile"
	"github.com/propbooks/invoice-cli/internal/resilience"
	"github.com/propbooks/invoice-cli/internal/store"
	"github.com/propbooks/invoice-cli/pkg/mailbox"
	"github.com/propbooks/invoice-cli/pkg/notify"
)

// Extractor is the model-call stage of the pipeline.
type Extractor interface {
	Extract(ctx context.Context, input model.ExtractionInput) (*model.ExtractionResult, error)
}

// Coordinator drives a run end to end.
type Coordinator struct {
	mailbox    mailbox.Mailbox
	extractor  Extractor
	reconciler *reconcile.Reconciler
	ledger     ledger.Ledger
	store      store.Store
	notifier   notify.Notifier

	now func() time.Time
}

// New wires a Coordinator from its stages.
func New(mb mailbox.Mailbox, ex Extractor, rec *reconcile.Reconciler, led ledger.Ledger, st store.Store, nt notify.Notifier) *Coordinator {
	return &Coordinator{
		mailbox:    mb,
		extractor:  ex,
		reconciler: rec,
		ledger:     led,
		store:      st,
		notifier:   nt,
		now:        time.Now,
	}
}

// Execute performs one run. The returned summary always covers every
// candidate message. A non-nil error means the run aborted early; per-message
// failures are reported in the summary, not the error.
func (c *Coordinator) Execute(ctx context.Context) (*model.RunSummary, error) {
	run, err := c.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "run: create run record")
	}

	summary := &model.RunSummary{
		RunID:     run.ID,
		StartedAt: c.now().UTC(),
	}
	zap.L().Info("run started", zap.String("runID", run.ID))

	msgs, err := c.mailbox.ListCandidates(ctx)
	if err != nil {
		c.abort(summary, eris.Wrap(err, "run: list candidates"))
		c.finish(ctx, summary)
		return summary, eris.New(summary.AbortReason)
	}

	for _, msg := range msgs {
		if summary.Aborted {
			summary.Record(model.ProcessingOutcome{
				MessageID: msg.ID,
				Subject:   msg.Subject,
				Sender:    msg.Sender,
				Status:    model.OutcomeNotAttempted,
			})
			continue
		}

		outcome := c.processMessage(ctx, run.ID, msg)
		summary.Record(outcome)

		if outcome.Status == model.OutcomeFailed && runFatalKind(outcome.FailureKind) {
			c.abort(summary, errors.New(outcome.Detail))
		}
	}

	c.finish(ctx, summary)
	if summary.Aborted {
		return summary, eris.New(summary.AbortReason)
	}
	return summary, nil
}

// processMessage takes one message to its terminal outcome. The commit order
// is fixed: ledger rows first, then the store's committed index, then the
// mailbox flag. A crash mid-sequence leaves the message unseen but indexed,
// and the index check at the top keeps the rerun from double-writing.
func (c *Coordinator) processMessage(ctx context.Context, runID string, msg model.SourceMessage) model.ProcessingOutcome {
	outcome := model.ProcessingOutcome{
		MessageID: msg.ID,
		Subject:   msg.Subject,
		Sender:    msg.Sender,
	}

	committed, err := c.store.IsMessageCommitted(ctx, msg.ID)
	if err != nil {
		return failed(outcome, model.FailureTransient, eris.Wrap(err, "committed index lookup"))
	}
	if committed {
		// Re-flag the mailbox copy; the earlier flag attempt must
		// have been lost.
		if err := c.mailbox.MarkProcessed(ctx, msg.ID); err != nil {
			zap.L().Warn("failed to re-flag committed message",
				zap.String("messageID", msg.ID), zap.Error(err))
		}
		outcome.Status = model.OutcomeSkipped
		outcome.SkipReason = model.SkipAlreadyCommitted
		return outcome
	}

	input := normalize.Normalize(msg)
	outcome.Warnings = input.Warnings

	result, err := c.extractor.Extract(ctx, input)
	if err != nil {
		return failed(outcome, failureKind(err, model.FailureTransient), err)
	}

	valid, rejected := c.reconciler.Reconcile(result, c.now())
	outcome.Rejected = rejected

	if len(valid) == 0 {
		if err := c.mailbox.MarkProcessed(ctx, msg.ID); err != nil {
			zap.L().Warn("failed to flag skipped message",
				zap.String("messageID", msg.ID), zap.Error(err))
		}
		outcome.Status = model.OutcomeSkipped
		outcome.SkipReason = model.SkipNoValidItems
		return outcome
	}

	rows, err := c.ledger.AppendRows(ctx, valid)
	if err != nil {
		return failed(outcome, failureKind(err, model.FailureLedger), err)
	}

	if err := c.store.MarkMessageCommitted(ctx, msg.ID, runID, rows); err != nil {
		// Rows are in the ledger; losing the index entry risks a
		// duplicate on the next run, so surface it loudly.
		zap.L().Error("ledger rows written but committed index update failed",
			zap.String("messageID", msg.ID), zap.Error(err))
		outcome.Warnings = append(outcome.Warnings, "committed index update failed: "+err.Error())
	}
	if err := c.mailbox.MarkProcessed(ctx, msg.ID); err != nil {
		zap.L().Warn("failed to flag committed message",
			zap.String("messageID", msg.ID), zap.Error(err))
		outcome.Warnings = append(outcome.Warnings, "mailbox flag failed: "+err.Error())
	}

	outcome.Status = model.OutcomeCommitted
	outcome.RowsWritten = rows
	outcome.Committed = valid
	return outcome
}

func (c *Coordinator) abort(summary *model.RunSummary, cause error) {
	summary.Aborted = true
	summary.AbortReason = cause.Error()
	zap.L().Error("run aborted", zap.String("runID", summary.RunID), zap.Error(cause))
}

// finish closes out the run record and delivers the summary. Neither step
// can fail the run retroactively; problems are logged.
func (c *Coordinator) finish(ctx context.Context, summary *model.RunSummary) {
	summary.FinishedAt = c.now().UTC()

	status := model.RunStatusComplete
	if summary.Aborted {
		status = model.RunStatusAborted
	}
	if err := c.store.CompleteRun(ctx, summary.RunID, status, summary); err != nil {
		zap.L().Error("failed to persist run summary",
			zap.String("runID", summary.RunID), zap.Error(err))
	}

	subject, body := RenderSummary(summary)
	if err := c.notifier.SendSummary(ctx, subject, body); err != nil {
		zap.L().Error("failed to send run summary",
			zap.String("runID", summary.RunID), zap.Error(err))
	}

	counts := summary.Counts()
	zap.L().Info("run finished",
		zap.String("runID", summary.RunID),
		zap.String("status", string(status)),
		zap.Int("committed", counts.Committed),
		zap.Int("skipped", counts.Skipped),
		zap.Int("failed", counts.Failed),
		zap.Int("notAttempted", counts.NotAttempted),
		zap.Int("rowsWritten", counts.RowsWritten))
}

func failed(outcome model.ProcessingOutcome, kind model.FailureKind, err error) model.ProcessingOutcome {
	outcome.Status = model.OutcomeFailed
	outcome.FailureKind = kind
	outcome.Detail = err.Error()
	return outcome
}

// failureKind maps a pipeline error onto the summary's failure taxonomy,
// falling back to the stage's own kind for errors outside it.
func failureKind(err error, fallback model.FailureKind) model.FailureKind {
	var (
		quota    *resilience.QuotaExceededError
		unauth   *resilience.UnauthorizedError
		mismatch *resilience.SchemaMismatchError
		schema   *resilience.SchemaViolationError
	)
	switch {
	case errors.As(err, &quota):
		return model.FailureQuotaExceeded
	case errors.As(err, &unauth):
		return model.FailureUnauthorized
	case errors.As(err, &mismatch):
		return model.FailureSchemaMismatch
	case errors.As(err, &schema):
		return model.FailureSchemaViolation
	case resilience.IsTransient(err):
		return model.FailureTransient
	}
	return fallback
}

func runFatalKind(kind model.FailureKind) bool {
	switch kind {
	case model.FailureQuotaExceeded, model.FailureUnauthorized, model.FailureSchemaMismatch:
		return true
	}
	return false
}
