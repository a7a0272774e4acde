package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cadenzalabs/ensemble/internal/piece"
)

// eventMsg wraps a piece.Event so it can travel through a tea.Program's
// message loop; eventsClosedMsg marks the channel's end.
type eventMsg piece.Event
type eventsClosedMsg struct{}

type movementRow struct {
	name   string
	status string
}

var (
	styleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleHeader  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
)

// progressModel is a bubbletea live list of movements and their status,
// the --tui alternative to the raw ANSI streamEvents renderer.
type progressModel struct {
	pieceName string
	task      string
	rows      []movementRow
	done      bool
	reason    piece.TerminalReason
	events    <-chan piece.Event
}

func newProgressModel(pieceName, task string, events <-chan piece.Event) progressModel {
	return progressModel{pieceName: pieceName, task: task, events: events}
}

func (m progressModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(ch <-chan piece.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case eventMsg:
		ev := piece.Event(msg)
		switch ev.Kind {
		case piece.EventMovementStart:
			m.rows = append(m.rows, movementRow{name: ev.Movement, status: "running"})
		case piece.EventMovementComplete:
			if n := len(m.rows); n > 0 && m.rows[n-1].name == ev.Movement {
				if ev.Response != nil {
					m.rows[n-1].status = string(ev.Response.Status)
				}
			}
		case piece.EventPieceComplete:
			m.done = true
			return m, tea.Quit
		case piece.EventPieceAbort:
			m.done = true
			m.reason = ev.Reason
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)
	case eventsClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(styleHeader.Render(fmt.Sprintf("%s — %s", m.pieceName, m.task)))
	b.WriteString("\n\n")
	for _, r := range m.rows {
		style := styleRunning
		switch r.status {
		case string(piece.StatusDone):
			style = styleDone
		case string(piece.StatusError), string(piece.StatusInterrupted):
			style = styleError
		}
		b.WriteString(style.Render(fmt.Sprintf("  %-24s %s", r.name, r.status)))
		b.WriteString("\n")
	}
	if m.done {
		if m.reason != "" {
			b.WriteString(styleError.Render(fmt.Sprintf("\naborted: %s\n", m.reason)))
		} else {
			b.WriteString(styleDone.Render("\ncomplete\n"))
		}
	}
	return b.String()
}

// runProgressTUI blocks until the piece reaches a terminal state,
// rendering movement progress via bubbletea instead of streamEvents.
func runProgressTUI(pieceName, task string, events <-chan piece.Event) error {
	p := tea.NewProgram(newProgressModel(pieceName, task, events))
	_, err := p.Run()
	return err
}
