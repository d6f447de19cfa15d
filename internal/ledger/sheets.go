package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propbooks/invoice-cli/internal/config"
	"github.com/propbooks/invoice-cli/internal/model"
	"github.com/propbooks/invoice-cli/internal/resilience"
	"github.com/propbooks/invoice-cli/pkg/sheets"
)

// SheetsLedger appends rows to a Google Sheets worksheet.
type SheetsLedger struct {
	client  sheets.Client
	cfg     config.LedgerConfig
	retry   resilience.RetryConfig
	columns []string

	mu       sync.Mutex
	verified bool
}

// NewSheetsLedger builds a ledger backed by the Google Sheets values API.
func NewSheetsLedger(client sheets.Client, cfg config.LedgerConfig, retry resilience.RetryConfig) *SheetsLedger {
	columns := cfg.Columns
	if len(columns) == 0 {
		columns = DefaultColumns
	}
	retry.ShouldRetry = resilience.IsTransient
	retry.OnRetry = resilience.RetryLogger("sheets", "append")
	return &SheetsLedger{
		client:  client,
		cfg:     cfg,
		retry:   retry,
		columns: columns,
	}
}

// AppendRows verifies the worksheet header on first use, then appends the
// items. Transient API failures are retried; auth and header failures are
// returned as run-fatal errors.
func (l *SheetsLedger) AppendRows(ctx context.Context, items []model.LineItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if err := l.verifyHeader(ctx); err != nil {
		return 0, err
	}

	rows := RowsFromItems(items)
	n, err := resilience.DoVal(ctx, l.retry, func(ctx context.Context) (int, error) {
		callCtx := ctx
		if l.cfg.TimeoutSecs > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, time.Duration(l.cfg.TimeoutSecs)*time.Second)
			defer cancel()
		}
		n, err := l.client.Append(callCtx, l.cfg.SpreadsheetID, l.cfg.Worksheet, rows)
		if err != nil {
			return 0, classifySheetsError(err)
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}

	zap.L().Info("appended ledger rows",
		zap.String("worksheet", l.cfg.Worksheet),
		zap.Int("rows", n))
	return n, nil
}

// Close is a no-op for the sheets backend.
func (l *SheetsLedger) Close() error {
	return nil
}

// verifyHeader checks the worksheet header against the configured columns
// once per process. An empty worksheet passes: Append will create the rows
// and the operator seeds the header.
func (l *SheetsLedger) verifyHeader(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.verified {
		return nil
	}

	header, err := resilience.DoVal(ctx, l.retry, func(ctx context.Context) ([]string, error) {
		header, err := l.client.Header(ctx, l.cfg.SpreadsheetID, l.cfg.Worksheet)
		if err != nil {
			return nil, classifySheetsError(err)
		}
		return header, nil
	})
	if err != nil {
		return err
	}

	if len(header) > 0 && !headerMatches(header, l.columns) {
		return &resilience.SchemaMismatchError{
			Detail: fmt.Sprintf("worksheet %q header %v does not match configured columns %v",
				l.cfg.Worksheet, header, l.columns),
		}
	}
	l.verified = true
	return nil
}

// classifySheetsError maps API status codes onto the failure taxonomy.
func classifySheetsError(err error) error {
	var se *sheets.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden:
			return &resilience.UnauthorizedError{Service: "sheets", Err: err}
		case resilience.IsTransientHTTPStatus(se.Code):
			return resilience.NewTransientError(err, se.Code)
		}
		return eris.Wrap(err, "ledger: sheets request rejected")
	}
	// Network-level failures are worth a retry.
	return resilience.NewTransientError(err, 0)
}
