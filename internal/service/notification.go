package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	html "html/template"
	"sort"
	"strings"
	text "text/template"
	"time"

	"breakdown-service/internal/domain"
)

// notification is the composed admin email for a paid written request.
type notification struct {
	Subject  string
	TextBody string
	HTMLBody string
}

type notificationData struct {
	RequestID     string
	CustomerEmail string
	Amount        string
	PaidAt        string
	Questions     []string
	Snapshot      []snapshotRow
}

type snapshotRow struct {
	Key   string
	Value string
}

const textBodyTemplate = `New Written Breakdown payment confirmed

Request ID: {{.RequestID}}
Customer Email: {{.CustomerEmail}}
Payment Amount: {{.Amount}}
Paid At: {{.PaidAt}}

Questions:
{{- range $i, $q := .Questions}}
{{inc $i}}) {{$q}}
{{- end}}
{{- if .Snapshot}}

Calculator snapshot:
{{- range .Snapshot}}
- {{.Key}}: {{.Value}}
{{- end}}
{{- end}}
`

// User-supplied text (questions, emails) flows through html/template's
// contextual escaping; it must never be concatenated into the markup directly.
const htmlBodyTemplate = `<h2>New Written Breakdown payment confirmed</h2>
<p>
  <strong>Request ID:</strong> {{.RequestID}}<br>
  <strong>Customer Email:</strong> {{.CustomerEmail}}<br>
  <strong>Payment Amount:</strong> {{.Amount}}<br>
  <strong>Paid At:</strong> {{.PaidAt}}
</p>
<h3>Questions</h3>
<ol>
{{- range .Questions}}
  <li>{{.}}</li>
{{- end}}
</ol>
{{- if .Snapshot}}
<h3>Calculator snapshot</h3>
<table>
{{- range .Snapshot}}
  <tr><td>{{.Key}}</td><td>{{.Value}}</td></tr>
{{- end}}
</table>
{{- end}}
`

var (
	templateFuncs = map[string]any{
		"inc": func(i int) int { return i + 1 },
	}
	notificationText = text.Must(text.New("notification").Funcs(templateFuncs).Parse(textBodyTemplate))
	notificationHTML = html.Must(html.New("notification").Funcs(templateFuncs).Parse(htmlBodyTemplate))
)

func composeNotification(req *domain.WrittenRequest, customerEmail string, amountPence int64, currency string) (*notification, error) {
	paidAt := time.Now().UTC()
	if req.PaidAt.Valid {
		paidAt = req.PaidAt.Time.UTC()
	}

	data := notificationData{
		RequestID:     req.ID,
		CustomerEmail: customerEmail,
		Amount:        formatAmount(amountPence, currency),
		PaidAt:        paidAt.Format("02/01/2006 15:04"),
		Questions:     []string{req.Question1, req.Question2, req.Question3},
		Snapshot:      snapshotRows(req.Snapshot),
	}

	var textBuf bytes.Buffer
	if err := notificationText.Execute(&textBuf, data); err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}

	var htmlBuf bytes.Buffer
	if err := notificationHTML.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}

	return &notification{
		Subject:  "Written Breakdown Paid: " + req.ID,
		TextBody: textBuf.String(),
		HTMLBody: htmlBuf.String(),
	}, nil
}

// snapshotRows flattens the semi-structured calculator snapshot into sorted
// key/value rows. A snapshot that fails to parse is shown raw rather than
// dropped, so the operator still sees what was captured.
func snapshotRows(raw json.RawMessage) []snapshotRow {
	if len(raw) == 0 {
		return nil
	}

	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return []snapshotRow{{Key: "raw", Value: string(raw)}}
	}
	if len(values) == 0 {
		return nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]snapshotRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, snapshotRow{Key: k, Value: formatSnapshotValue(values[k])})
	}
	return rows
}

func formatSnapshotValue(v any) string {
	switch val := v.(type) {
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", val), "0"), ".")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatAmount(pence int64, currency string) string {
	major := float64(pence) / 100
	if strings.EqualFold(currency, "gbp") {
		return fmt.Sprintf("£%.2f", major)
	}
	return fmt.Sprintf("%.2f %s", major, strings.ToUpper(currency))
}
