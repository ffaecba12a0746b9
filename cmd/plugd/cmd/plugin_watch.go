package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/gjson"
)

// pluginRow is one plugin line in the watch view.
type pluginRow struct {
	name   string
	active bool
}

type tickMsg time.Time

type pluginsMsg []pluginRow

type watchErrMsg struct{ err error }

// watchModel holds the state for the live plugin table.
type watchModel struct {
	addr       string
	refresh    time.Duration
	rows       []pluginRow
	lastUpdate time.Time
	err        error
}

// runPluginWatch renders a live-refreshing plugin table until quit.
func runPluginWatch(addr string, refresh time.Duration) error {
	model := watchModel{addr: addr, refresh: refresh}

	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("plugin watch failed: %w", err)
	}

	return nil
}

// Init implements the Bubble Tea init method.
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.tickCmd(), m.loadCmd())
}

// Update implements the Bubble Tea update method.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.loadCmd()
		}

	case tickMsg:
		return m, tea.Batch(m.tickCmd(), m.loadCmd())

	case pluginsMsg:
		m.rows = msg
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case watchErrMsg:
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

// View implements the Bubble Tea view method.
func (m watchModel) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Render("plugd plugins")

	header := fmt.Sprintf("%s  %s  last update %s",
		title, m.addr, m.lastUpdate.Format("15:04:05"))

	if m.err != nil {
		return fmt.Sprintf("%s\n\nError: %v\n\nPress 'q' to quit", header, m.err)
	}

	activeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	startingStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

	body := fmt.Sprintf("%-50s %s\n", "NAME", "STATE")
	for _, row := range m.rows {
		state := startingStyle.Render("starting")
		if row.active {
			state = activeStyle.Render("active")
		}
		body += fmt.Sprintf("%-50s %s\n", row.name, state)
	}

	footer := lipgloss.NewStyle().Faint(true).Render("q quit · r refresh")

	return lipgloss.JoinVertical(lipgloss.Left, header, "", body, footer)
}

// tickCmd schedules the next refresh.
func (m watchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// loadCmd fetches the current plugin list from the daemon.
func (m watchModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := sendControl(m.addr, map[string]any{"subcommand": "list"})
		if err != nil {
			return watchErrMsg{err: err}
		}

		var rows []pluginRow
		res.Get("plugins").ForEach(func(_, p gjson.Result) bool {
			rows = append(rows, pluginRow{
				name:   p.Get("name").String(),
				active: p.Get("active").Bool(),
			})

			return true
		})

		return pluginsMsg(rows)
	}
}
