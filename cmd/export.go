package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/propbooks/invoice-cli/internal/ledger"
	"github.com/propbooks/invoice-cli/internal/store"
)

var (
	exportOut   string
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export committed line items from run history to an XLSX file",
	Long:  "Collects the committed rows recorded in run summaries and writes them to a local XLSX workbook, newest run first.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: exportLimit})
		if err != nil {
			return eris.Wrap(err, "export: list runs")
		}

		file := xlsx.NewFile()
		sheet, err := file.AddSheet("Exported")
		if err != nil {
			return eris.Wrap(err, "export: add sheet")
		}

		header := sheet.AddRow()
		for _, col := range append(ledger.DefaultColumns, "Run ID") {
			header.AddCell().SetString(col)
		}

		var count int
		for _, r := range runs {
			if r.Summary == nil {
				continue
			}
			for _, outcome := range r.Summary.Outcomes {
				for _, item := range outcome.Committed {
					row := sheet.AddRow()
					for _, cell := range ledger.RowFromItem(item) {
						row.AddCell().SetString(cell)
					}
					row.AddCell().SetString(r.ID)
					count++
				}
			}
		}

		if err := file.Save(exportOut); err != nil {
			return eris.Wrap(err, "export: save workbook")
		}

		fmt.Fprintf(os.Stderr, "Exported %d rows from %d runs to %s\n", count, len(runs), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "ledger-export.xlsx", "output XLSX path")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "max number of runs to export")
	rootCmd.AddCommand(exportCmd)
}
