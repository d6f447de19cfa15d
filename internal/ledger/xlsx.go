package ledger

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/propbooks/invoice-cli/internal/config"
	"github.com/propbooks/invoice-cli/internal/model"
	"github.com/propbooks/invoice-cli/internal/resilience"
)

// XLSXLedger appends rows to a worksheet in a local XLSX file. The file is
// created with a header row if it does not exist.
type XLSXLedger struct {
	path    string
	sheet   string
	columns []string
}

// NewXLSXLedger builds a ledger backed by an XLSX file on disk.
func NewXLSXLedger(cfg config.LedgerConfig) *XLSXLedger {
	columns := cfg.Columns
	if len(columns) == 0 {
		columns = DefaultColumns
	}
	return &XLSXLedger{
		path:    cfg.XLSXPath,
		sheet:   cfg.Worksheet,
		columns: columns,
	}
}

// AppendRows opens the workbook, verifies the header, appends the items, and
// saves. Each call is a full open/save cycle so a crash between calls never
// leaves a partially written workbook.
func (l *XLSXLedger) AppendRows(ctx context.Context, items []model.LineItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, eris.Wrap(err, "ledger: context done")
	}

	file, sheet, err := l.openSheet()
	if err != nil {
		return 0, err
	}

	if len(sheet.Rows) > 0 {
		header := make([]string, len(sheet.Rows[0].Cells))
		for i, cell := range sheet.Rows[0].Cells {
			header[i] = cell.String()
		}
		if !headerMatches(header, l.columns) {
			return 0, &resilience.SchemaMismatchError{
				Detail: fmt.Sprintf("worksheet %q header %v does not match configured columns %v",
					l.sheet, header, l.columns),
			}
		}
	} else {
		writeRow(sheet, l.columns)
	}

	for _, item := range items {
		writeRow(sheet, RowFromItem(item))
	}

	if err := file.Save(l.path); err != nil {
		return 0, eris.Wrap(err, "ledger: save workbook")
	}

	zap.L().Info("appended ledger rows",
		zap.String("path", l.path),
		zap.Int("rows", len(items)))
	return len(items), nil
}

// Close is a no-op: every append saves the workbook.
func (l *XLSXLedger) Close() error {
	return nil
}

func (l *XLSXLedger) openSheet() (*xlsx.File, *xlsx.Sheet, error) {
	var file *xlsx.File
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		file = xlsx.NewFile()
	} else {
		file, err = xlsx.OpenFile(l.path)
		if err != nil {
			return nil, nil, eris.Wrap(err, "ledger: open workbook")
		}
	}

	sheet, ok := file.Sheet[l.sheet]
	if !ok {
		var err error
		sheet, err = file.AddSheet(l.sheet)
		if err != nil {
			return nil, nil, eris.Wrap(err, "ledger: add worksheet")
		}
	}
	return file, sheet, nil
}

func writeRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, v := range cells {
		row.AddCell().SetString(v)
	}
}
