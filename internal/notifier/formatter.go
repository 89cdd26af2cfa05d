package notifier

import (
	"fmt"
	"html"
	"strings"

	"EMAScreener/internal/model"
	"EMAScreener/internal/recorder"
	"EMAScreener/internal/report"
)

// maxListed caps how many qualifying symbols are listed inline.
const maxListed = 40

// FormatSummary formats a finished screen for Telegram.
func FormatSummary(sum report.Summary) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>EMA-50 Screen</b> | %s\n\n", sum.RunDate.Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Analyzed: %d\n", sum.TotalStocks))
	b.WriteString(fmt.Sprintf("Qualifying: %d\n", sum.QualifyingStocks))
	if sum.SkippedStocks > 0 {
		b.WriteString(fmt.Sprintf("Skipped: %d\n", sum.SkippedStocks))
	}

	if sum.QualifyingStocks == 0 {
		b.WriteString("\nNo stock dipped below its 50-day EMA and closed back above it today.")
		return b.String()
	}

	b.WriteString("\n✅ <b>Low under EMA, close above:</b>\n")
	listed := sum.Qualifying
	if len(listed) > maxListed {
		listed = listed[:maxListed]
	}
	escaped := make([]string, len(listed))
	for i, s := range listed {
		escaped[i] = html.EscapeString(s)
	}
	b.WriteString(strings.Join(escaped, ", "))
	if extra := len(sum.Qualifying) - len(listed); extra > 0 {
		b.WriteString(fmt.Sprintf(" … and %d more", extra))
	}
	b.WriteString("\n")
	return b.String()
}

// FormatLastRun formats the persisted state of the most recent run.
func FormatLastRun(state model.RunState) string {
	if state.LastRunDate == "" {
		if state.Running {
			return "⏳ First screen is running now."
		}
		return "No screen has completed yet."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗂 <b>Last screen</b> | %s\n\n", state.LastRunDate))
	b.WriteString(fmt.Sprintf("Analyzed: %d\n", state.TotalStocks))
	b.WriteString(fmt.Sprintf("Qualifying: %d\n", state.QualifyingStocks))
	b.WriteString(fmt.Sprintf("Skipped: %d\n", state.SkippedStocks))
	if state.Artifact != "" {
		b.WriteString(fmt.Sprintf("File: <code>%s</code>\n", html.EscapeString(state.Artifact)))
	}
	if state.Running {
		b.WriteString(fmt.Sprintf("\n⏳ A new screen is running since %s\n", state.StartedAt.Format("15:04")))
	}
	return b.String()
}

// FormatHistory formats recorded runs, newest first.
func FormatHistory(runs []recorder.RunRecord) string {
	if len(runs) == 0 {
		return "No runs recorded."
	}
	var b strings.Builder
	b.WriteString("📅 <b>Recent screens</b>\n\n")
	for _, r := range runs {
		b.WriteString(fmt.Sprintf("%s  %d/%d qualifying", r.RunDate.Format("2006-01-02"), r.QualifyingStocks, r.TotalStocks))
		if r.SkippedStocks > 0 {
			b.WriteString(fmt.Sprintf(", %d skipped", r.SkippedStocks))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// HelpText lists the supported bot commands.
func HelpText() string {
	return "📖 <b>Commands</b>\n\n" +
		"/screen - run the EMA-50 screen now\n" +
		"/last - summary of the last completed screen\n" +
		"/history - recent screens\n" +
		"/help - this message"
}
