package run

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/propbooks/invoice-cli/internal/model"
)

const summaryTemplate = `<html>
<body>
<h2>Invoice Processing Summary</h2>
<p><strong>Run:</strong> {{.Summary.RunID}}</p>
<p><strong>Started:</strong> {{.Summary.StartedAt.Format "2006-01-02 15:04:05 MST"}}</p>
<p><strong>Messages:</strong> {{len .Summary.Outcomes}} &middot;
<strong>Committed:</strong> {{.Counts.Committed}} &middot;
<strong>Skipped:</strong> {{.Counts.Skipped}} &middot;
<strong>Failed:</strong> {{.Counts.Failed}} &middot;
<strong>Rows written:</strong> {{.Counts.RowsWritten}}</p>
{{if .Summary.Aborted}}<p style="color: red;"><strong>Run aborted:</strong> {{.Summary.AbortReason}}</p>{{end}}

{{range .Summary.Outcomes}}
<h3>{{if .Subject}}{{.Subject}}{{else}}{{.MessageID}}{{end}}</h3>
<p><strong>From:</strong> {{.Sender}} &middot; <strong>Status:</strong> {{.Status}}{{if .SkipReason}} ({{.SkipReason}}){{end}}{{if .FailureKind}} ({{.FailureKind}}){{end}}</p>
{{if .Detail}}<p style="color: red;">{{.Detail}}</p>{{end}}
{{if .Committed}}
<table border='1' cellpadding='5'>
<tr><th>Date</th><th>Description</th><th>Amount</th><th>Category</th><th>Property</th></tr>
{{range .Committed}}<tr><td>{{.Date.Format "2006-01-02"}}</td><td>{{.Description}}</td><td>{{amount .Amount}}</td><td>{{.Category}}</td><td>{{.Property}}</td></tr>
{{end}}</table>
{{end}}
{{if .Rejected}}
<h4>Rejected items</h4>
<ul>
{{range .Rejected}}<li>{{.Item.Description}} ({{amount .Item.Amount}}): {{.Reason}}</li>
{{end}}</ul>
{{end}}
{{if .Warnings}}
<ul>
{{range .Warnings}}<li>{{.}}</li>
{{end}}</ul>
{{end}}
{{else}}
<p>No candidate messages found.</p>
{{end}}
</body>
</html>`

var summaryTmpl = template.Must(template.New("summary").Funcs(template.FuncMap{
	"amount": func(d decimal.Decimal) string { return d.StringFixed(2) },
}).Parse(summaryTemplate))

// RenderSummary produces the notification subject and HTML body for a run.
func RenderSummary(summary *model.RunSummary) (subject, body string) {
	counts := summary.Counts()

	subject = fmt.Sprintf("Invoice Processing Summary: %d committed, %d skipped, %d failed",
		counts.Committed, counts.Skipped, counts.Failed)
	if summary.Aborted {
		subject = "ABORTED - " + subject
	}

	var b strings.Builder
	err := summaryTmpl.Execute(&b, struct {
		Summary *model.RunSummary
		Counts  model.Counts
	}{summary, counts})
	if err != nil {
		// Template data is our own types; an execute failure is a bug.
		zap.L().Error("summary template failed", zap.Error(err))
		return subject, fmt.Sprintf("<html><body><p>Run %s finished; summary rendering failed: %s</p></body></html>",
			summary.RunID, err)
	}
	return subject, b.String()
}
