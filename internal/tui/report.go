package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/playpublish/internal/pipeline"
	"github.com/kingrea/playpublish/internal/session"
	"github.com/kingrea/playpublish/internal/stage"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

func statusLabel(status stage.Status) string {
	switch status {
	case stage.StatusCompleted:
		return okStyle.Render("done")
	case stage.StatusWarning:
		return warnStyle.Render("warn")
	case stage.StatusFailed:
		return failStyle.Render("fail")
	default:
		return skipStyle.Render("skip")
	}
}

func stateLabel(state pipeline.State) string {
	switch state {
	case pipeline.StateCommitted:
		return okStyle.Render(string(state))
	case pipeline.StateAborted:
		return failStyle.Render(string(state))
	default:
		return warnStyle.Render(string(state))
	}
}

// RenderReport draws the end-of-run summary.
func RenderReport(r pipeline.Report) string {
	var lines []string
	heading := "Release " + r.Target
	if r.DryRun {
		heading += " (dry run)"
	}
	lines = append(lines, titleStyle.Render(heading))
	lines = append(lines, fmt.Sprintf("state      %s", stateLabel(r.State)))
	if r.EditID != "" {
		lines = append(lines, fmt.Sprintf("edit       %s", r.EditID))
	}
	if r.VersionCode > 0 {
		lines = append(lines, fmt.Sprintf("version    %d", r.VersionCode))
	}

	if len(r.Stages) > 0 {
		lines = append(lines, "")
		for _, s := range r.Stages {
			line := fmt.Sprintf("%s  %-22s", statusLabel(s.Result.Status), s.Name)
			if s.Result.Message != "" {
				line += " " + detailStyle.Render(s.Result.Message)
			}
			lines = append(lines, line)
		}
	}
	if len(r.Plan) > 0 {
		lines = append(lines, "", titleStyle.Render("Would:"))
		for i, step := range r.Plan {
			lines = append(lines, fmt.Sprintf("%2d. %s", i+1, step))
		}
	}
	if len(r.Warnings) > 0 {
		lines = append(lines, "", warnStyle.Render("Warnings:"))
		for _, w := range r.Warnings {
			lines = append(lines, "  - "+w.String())
		}
	}
	if r.Err != nil {
		lines = append(lines, "", failStyle.Render("Error: ")+r.Err.Error())
		if r.FailedIn != "" {
			lines = append(lines, detailStyle.Render("stopped after "+string(r.FailedIn)))
		}
		if next := r.NextAction(); next != "" {
			lines = append(lines, "Next: "+next)
		}
	}
	return summaryStyle.Render(strings.Join(lines, "\n"))
}

// RenderSessions lists persisted edit records and whether each is live.
func RenderSessions(records []session.Record, live func(session.Record) bool) string {
	if len(records) == 0 {
		return skipStyle.Render("No open edits are recorded.")
	}
	lines := []string{titleStyle.Render("Open edits")}
	for _, rec := range records {
		status := okStyle.Render("live")
		if !live(rec) {
			status = failStyle.Render("expired")
		}
		line := fmt.Sprintf("%-8s %s  %s  opened %s", status, rec.ReleaseTarget, rec.EditID, rec.CreatedAt.Format("2006-01-02 15:04:05Z07:00"))
		if rec.Artifact != nil {
			line += detailStyle.Render(fmt.Sprintf("  version code %d", rec.Artifact.VersionCode))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
