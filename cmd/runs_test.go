package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/propbooks/invoice-cli/internal/config"
	"github.com/propbooks/invoice-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Status:    model.RunStatusComplete,
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
			Summary: &model.RunSummary{
				Outcomes: []model.ProcessingOutcome{
					{MessageID: "m1", Status: model.OutcomeCommitted, RowsWritten: 3},
					{MessageID: "m2", Status: model.OutcomeSkipped},
				},
			},
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Status:    model.RunStatusAborted,
			CreatedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "RUN ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "aborted")
	assert.Contains(t, output, "2025-06-15 10:30")
}

func TestRetryFromConfig(t *testing.T) {
	rc := retryFromConfig(config.RetryConfig{
		MaxAttempts:       5,
		InitialBackoffMS:  250,
		MaxBackoffSecs:    10,
		BackoffMultiplier: 1.5,
	})

	assert.Equal(t, 5, rc.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, rc.InitialBackoff)
	assert.Equal(t, 10*time.Second, rc.MaxBackoff)
	assert.Equal(t, 1.5, rc.Multiplier)
}
