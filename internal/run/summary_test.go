package run

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propbooks/invoice-cli/internal/model"
)

func TestRenderSummary(t *testing.T) {
	summary := &model.RunSummary{
		RunID:     "run-1",
		StartedAt: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		Outcomes: []model.ProcessingOutcome{
			{
				MessageID:   "m1",
				Subject:     "Water bill",
				Sender:      "agent@example.com",
				Status:      model.OutcomeCommitted,
				RowsWritten: 1,
				Committed: []model.LineItem{{
					Date:        time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
					Description: "Water service Feb",
					Amount:      decimal.RequireFromString("-84.2"),
					Category:    "Utilities",
					Property:    "12 Oak St",
				}},
			},
			{
				MessageID:  "m2",
				Subject:    "Newsletter",
				Status:     model.OutcomeSkipped,
				SkipReason: model.SkipNoValidItems,
				Rejected: []model.RejectedItem{{
					Item:   model.LineItem{Description: "Mystery", Amount: decimal.RequireFromString("-5")},
					Reason: model.ReasonUnknownCategory,
				}},
			},
			{
				MessageID:   "m3",
				Status:      model.OutcomeFailed,
				FailureKind: model.FailureTransient,
				Detail:      "overloaded",
			},
		},
	}

	subject, body := RenderSummary(summary)

	assert.Equal(t, "Invoice Processing Summary: 1 committed, 1 skipped, 1 failed", subject)
	assert.Contains(t, body, "<h2>Invoice Processing Summary</h2>")
	assert.Contains(t, body, "Water bill")
	assert.Contains(t, body, "<td>-84.20</td>")
	assert.Contains(t, body, "12 Oak St")
	assert.Contains(t, body, model.ReasonUnknownCategory)
	assert.Contains(t, body, "overloaded")
	assert.NotContains(t, body, "aborted")
}

func TestRenderSummary_Aborted(t *testing.T) {
	summary := &model.RunSummary{
		RunID:       "run-2",
		StartedAt:   time.Now().UTC(),
		Aborted:     true,
		AbortReason: "anthropic credit exhausted",
		Outcomes: []model.ProcessingOutcome{
			{MessageID: "m1", Status: model.OutcomeNotAttempted},
		},
	}

	subject, body := RenderSummary(summary)

	assert.Contains(t, subject, "ABORTED")
	assert.Contains(t, body, "anthropic credit exhausted")
	assert.Contains(t, body, string(model.OutcomeNotAttempted))
}

func TestRenderSummary_EscapesContent(t *testing.T) {
	summary := &model.RunSummary{
		RunID:     "run-3",
		StartedAt: time.Now().UTC(),
		Outcomes: []model.ProcessingOutcome{
			{MessageID: "m1", Subject: "<script>alert(1)</script>", Status: model.OutcomeSkipped, SkipReason: model.SkipNoValidItems},
		},
	}

	_, body := RenderSummary(summary)
	require.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestRenderSummary_Empty(t *testing.T) {
	summary := &model.RunSummary{RunID: "run-4", StartedAt: time.Now().UTC()}

	subject, body := RenderSummary(summary)
	assert.Contains(t, subject, "0 committed")
	assert.Contains(t, body, "No candidate messages found.")
}
