package mailer

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/emersion/go-message/mail"

	"EMAScreener/internal/report"
)

var bodyTemplate = template.Must(template.New("body").Parse(`EMA-50 pullback screen for {{.RunDate.Format "Monday, January 2, 2006"}}
{{if .QualifyingStocks}}
{{.QualifyingStocks}} of {{.TotalStocks}} analyzed stocks traded below their 50-day EMA and closed above it:
{{range .Qualifying}}
  {{.}}
{{- end}}
{{else}}
0 qualifying: none of the {{.TotalStocks}} analyzed stocks traded below their 50-day EMA and closed above it.
{{end}}
{{- if .SkippedStocks}}
{{.SkippedStocks}} symbols were skipped for missing or short price history.
{{end}}
The full table is attached as {{.Filename}}.
Run ID: {{.RunID}}
`))

// Subject returns the mail subject for a run.
func Subject(sum report.Summary) string {
	return fmt.Sprintf("EMA-50 screen %s: %d of %d qualify",
		sum.RunDate.Format("2006-01-02"), sum.QualifyingStocks, sum.TotalStocks)
}

// RenderBody renders the plain-text summary.
func RenderBody(sum report.Summary) (string, error) {
	var b strings.Builder
	if err := bodyTemplate.Execute(&b, sum); err != nil {
		return "", fmt.Errorf("render body: %w", err)
	}
	return b.String(), nil
}

// BuildMessage assembles a MIME message with the summary text and the CSV
// report attached.
func BuildMessage(from string, to []string, sum report.Summary, csv []byte, now time.Time) ([]byte, error) {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parse from: %w", err)
	}
	toAddrs := make([]*mail.Address, 0, len(to))
	for _, t := range to {
		a, err := mail.ParseAddress(t)
		if err != nil {
			return nil, fmt.Errorf("parse to %q: %w", t, err)
		}
		toAddrs = append(toAddrs, a)
	}
	body, err := RenderBody(sum)
	if err != nil {
		return nil, err
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{fromAddr})
	h.SetAddressList("To", toAddrs)
	h.SetSubject(Subject(sum))
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create writer: %w", err)
	}

	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	w, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, fmt.Errorf("create body: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var ah mail.AttachmentHeader
	ah.SetContentType("text/csv", map[string]string{"charset": "utf-8"})
	ah.SetFilename(sum.Filename)
	w, err = mw.CreateAttachment(ah)
	if err != nil {
		return nil, fmt.Errorf("create attachment: %w", err)
	}
	if _, err := w.Write(csv); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}
