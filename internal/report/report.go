// Package report renders a status rollup for the terminal.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"statuspage/internal/models"
)

// Days is how many trailing days the history strip shows.
const Days = 30

var (
	colorAccent   = lipgloss.Color("#04D9FF")
	colorHealthy  = lipgloss.Color("#00FF94")
	colorDegraded = lipgloss.Color("#FFD700")
	colorDown     = lipgloss.Color("#FF0055")
	colorMuted    = lipgloss.Color("#565f89")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	nameStyle = lipgloss.NewStyle().
			Bold(true).
			Width(24)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			MarginBottom(1).
			Border(lipgloss.RoundedBorder())
)

func statusStyle(s models.ServiceStatus) lipgloss.Style {
	switch s {
	case models.StatusOperational:
		return lipgloss.NewStyle().Foreground(colorHealthy).Bold(true)
	case models.StatusDegraded:
		return lipgloss.NewStyle().Foreground(colorDegraded).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(colorDown).Bold(true)
	}
}

// Render draws the banner, then one line per service with its current
// status, uptime, latency and a strip of the last Days days.
func Render(resp models.StatusPageResponse) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(resp.Title))
	b.WriteString("\n")

	global := statusStyle(resp.GlobalStatus)
	b.WriteString(bannerStyle.BorderForeground(global.GetForeground()).Render(
		global.Render(resp.GlobalStatus.Icon()+" "+resp.GlobalStatusText()) +
			mutedStyle.Render(fmt.Sprintf("  %.2f%% uptime", resp.OverallUptime)),
	))
	b.WriteString("\n")

	if len(resp.Services) == 0 {
		b.WriteString(mutedStyle.Render("No services are being monitored yet."))
		b.WriteString("\n")
	}
	for _, s := range resp.Services {
		st := statusStyle(s.CurrentStatus)
		line := lipgloss.JoinHorizontal(lipgloss.Top,
			nameStyle.Render(s.Name),
			st.Width(16).Render(s.CurrentStatus.Icon()+" "+s.CurrentStatus.Label()),
			lipgloss.NewStyle().Width(10).Render(fmt.Sprintf("%.2f%%", s.UptimePercentage)),
			lipgloss.NewStyle().Width(9).Render(latency(s)),
			strip(s.DailyHistory),
		)
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render("Last updated " + resp.LastUpdated.UTC().Format("Jan 02, 2006 3:04 PM UTC")))
	b.WriteString("\n")
	return b.String()
}

func latency(s models.ServiceSummary) string {
	if s.LastLatency == nil {
		return "-"
	}
	return fmt.Sprintf("%dms", s.LastLatency.Milliseconds())
}

// strip renders one cell per day, dimmed for days without checks.
func strip(history []models.DayAggregate) string {
	if len(history) > Days {
		history = history[len(history)-Days:]
	}
	var b strings.Builder
	for _, d := range history {
		if d.TotalChecks == 0 {
			b.WriteString(mutedStyle.Render("·"))
			continue
		}
		b.WriteString(statusStyle(d.WorstStatus()).Render("█"))
	}
	return b.String()
}
