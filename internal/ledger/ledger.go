// Package ledger appends reconciled line items to the bookkeeping ledger.
// Two backends are supported: a Google Sheets worksheet and a local XLSX
// file. Both verify the ledger header against the configured column layout
// before the first write; a mismatch aborts the run rather than writing rows
// into the wrong columns.
package ledger

import (
	"context"
	"strings"

	"github.com/propbooks/invoice-cli/internal/model"
)

// Ledger appends validated line items as ledger rows.
type Ledger interface {
	// AppendRows writes the items as rows and returns the number written.
	AppendRows(ctx context.Context, items []model.LineItem) (int, error)
	// Close flushes any buffered state.
	Close() error
}

// DefaultColumns is the expected ledger column layout.
var DefaultColumns = []string{"Date", "Description", "Amount", "Category", "Property"}

// RowFromItem formats one line item into ledger cells following the column
// layout: date as YYYY-MM-DD, amount as a fixed two-decimal string.
func RowFromItem(item model.LineItem) []string {
	return []string{
		item.Date.Format(model.DateFormat),
		item.Description,
		item.Amount.StringFixed(2),
		item.Category,
		item.Property,
	}
}

// RowsFromItems formats a batch of items.
func RowsFromItems(items []model.LineItem) [][]string {
	rows := make([][]string, len(items))
	for i, item := range items {
		rows[i] = RowFromItem(item)
	}
	return rows
}

// headerMatches reports whether got covers want exactly, ignoring case.
func headerMatches(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if !strings.EqualFold(got[i], want[i]) {
			return false
		}
	}
	return true
}
