// internal/tui/confirm.go
//
// The commit prompt. Committing publishes the release, so the operator
// gets one last look at the validated edit before it goes live. Built on
// bubbletea (The Elm Architecture): Init, Update on every key press,
// View to draw the question.

package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/playpublish/internal/pipeline"
)

type confirmKeys struct {
	Yes key.Binding
	No  key.Binding
}

var keys = confirmKeys{
	Yes: key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "commit")),
	No:  key.NewBinding(key.WithKeys("n", "N", "esc", "q", "ctrl+c", "enter"), key.WithHelp("n/enter", "keep edit open")),
}

// ConfirmModel asks whether a validated edit should be committed. The
// default answer is no.
type ConfirmModel struct {
	report    pipeline.Report
	answered  bool
	confirmed bool
}

// NewConfirmModel builds the prompt for a validated report.
func NewConfirmModel(report pipeline.Report) ConfirmModel {
	return ConfirmModel{report: report}
}

// Confirmed reports the operator's answer.
func (m ConfirmModel) Confirmed() bool {
	return m.confirmed
}

// Init implements tea.Model.
func (m ConfirmModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || m.answered {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, keys.Yes):
		m.answered, m.confirmed = true, true
		return m, tea.Quit
	case key.Matches(keyMsg, keys.No):
		m.answered = true
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m ConfirmModel) View() string {
	question := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801"))
	hint := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	var b strings.Builder
	b.WriteString(question.Render(fmt.Sprintf("Commit edit %s for %s?", m.report.EditID, m.report.Target)))
	b.WriteString("\n")
	if m.report.VersionCode > 0 {
		b.WriteString(fmt.Sprintf("  version code %d is validated and ready to publish\n", m.report.VersionCode))
	}
	if n := len(m.report.Warnings); n > 0 {
		b.WriteString(fmt.Sprintf("  %d warning(s) were recorded during the run\n", n))
	}
	if m.answered {
		if m.confirmed {
			b.WriteString("  committing...\n")
		} else {
			b.WriteString("  leaving the edit open\n")
		}
		return b.String()
	}
	b.WriteString(hint.Render(fmt.Sprintf("  %s  %s", helpLine(keys.Yes), helpLine(keys.No))))
	b.WriteString("\n")
	return b.String()
}

func helpLine(b key.Binding) string {
	h := b.Help()
	return h.Key + " " + h.Desc
}

// Confirm runs the prompt on in/out and returns the answer. It fits
// pipeline.WithConfirm.
func Confirm(in io.Reader, out io.Writer) pipeline.ConfirmFunc {
	return func(ctx context.Context, report pipeline.Report) (bool, error) {
		program := tea.NewProgram(
			NewConfirmModel(report),
			tea.WithContext(ctx),
			tea.WithInput(in),
			tea.WithOutput(out),
		)
		final, err := program.Run()
		if err != nil {
			return false, fmt.Errorf("tui: commit prompt: %w", err)
		}
		model, ok := final.(ConfirmModel)
		return ok && model.Confirmed(), nil
	}
}
