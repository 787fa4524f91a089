// Package tui provides a terminal console for the correlation core.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"redblue-core/internal/tui/api"
	"redblue-core/internal/tui/scenes"
	"redblue-core/internal/tui/styles"
)

// Scene identifies the current view.
type Scene int

const (
	SceneAlerts Scene = iota
	SceneStats
	SceneSystem
)

// Model is the main console model.
type Model struct {
	client *api.Client

	scene Scene

	// Only the active scene receives updates and ticks.
	alerts *scenes.AlertsScene
	stats  *scenes.StatsScene
	system *scenes.SystemScene

	width  int
	height int

	quitting bool
}

// New creates a console model against the given base URL.
func New(baseURL string) *Model {
	client := api.NewClient(baseURL)

	return &Model{
		client: client,
		scene:  SceneAlerts,
		alerts: scenes.NewAlertsScene(client),
		stats:  scenes.NewStatsScene(client),
		system: scenes.NewSystemScene(client),
	}
}

// Init starts the initial fetch and the active scene's ticker.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.alerts.Init(),
		m.activeTickCmd(),
	)
}

// activeTickCmd returns the tick command for the active scene only, so
// inactive scenes never poll the backend.
func (m *Model) activeTickCmd() tea.Cmd {
	switch m.scene {
	case SceneAlerts:
		return m.alerts.TickCmd()
	case SceneStats:
		return m.stats.TickCmd()
	case SceneSystem:
		return m.system.TickCmd()
	default:
		return nil
	}
}

// Update handles all messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "1":
			if m.scene != SceneAlerts {
				m.scene = SceneAlerts
				cmds = append(cmds, m.alerts.Init(), m.alerts.TickCmd())
			}
			return m, tea.Batch(cmds...)

		case "2":
			if m.scene != SceneStats {
				m.scene = SceneStats
				cmds = append(cmds, m.stats.Init(), m.stats.TickCmd())
			}
			return m, tea.Batch(cmds...)

		case "3":
			if m.scene != SceneSystem {
				m.scene = SceneSystem
				cmds = append(cmds, m.system.Init(), m.system.TickCmd())
			}
			return m, tea.Batch(cmds...)

		case "tab":
			m.scene = (m.scene + 1) % 3
			cmds = append(cmds, m.activeTickCmd())
			return m, tea.Batch(cmds...)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.alerts, _ = m.alerts.Update(msg)
		m.stats, _ = m.stats.Update(msg)
		m.system, _ = m.system.Update(msg)
		return m, nil

	case scenes.TickMsg:
		// Ticks only reach the active scene, which also schedules the
		// next one.
		var cmd tea.Cmd
		switch m.scene {
		case SceneAlerts:
			m.alerts, cmd = m.alerts.Update(msg)
			cmds = append(cmds, m.alerts.TickCmd())
		case SceneStats:
			m.stats, cmd = m.stats.Update(msg)
			cmds = append(cmds, m.stats.TickCmd())
		case SceneSystem:
			m.system, cmd = m.system.Update(msg)
			cmds = append(cmds, m.system.TickCmd())
		}
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	switch m.scene {
	case SceneAlerts:
		m.alerts, cmd = m.alerts.Update(msg)
	case SceneStats:
		m.stats, cmd = m.stats.Update(msg)
	case SceneSystem:
		m.system, cmd = m.system.Update(msg)
	}
	if cmd != nil {
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the current scene.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.scene {
	case SceneAlerts:
		b.WriteString(m.alerts.View())
	case SceneStats:
		b.WriteString(m.stats.View())
	case SceneSystem:
		b.WriteString(m.system.View())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

func (m *Model) renderHeader() string {
	tabs := []struct {
		name  string
		key   string
		scene Scene
	}{
		{"Alerts", "1", SceneAlerts},
		{"Statistics", "2", SceneStats},
		{"System", "3", SceneSystem},
	}

	var tabViews []string
	for _, tab := range tabs {
		label := fmt.Sprintf(" %s %s ", tab.key, tab.name)
		if tab.scene == m.scene {
			tabViews = append(tabViews, styles.TabActive.Render(label))
		} else {
			tabViews = append(tabViews, styles.TabInactive.Render(label))
		}
	}

	tabBar := lipgloss.JoinHorizontal(lipgloss.Top, tabViews...)

	return lipgloss.NewStyle().
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.MutedColor).
		Width(m.width).
		Render(tabBar)
}

func (m *Model) renderFooter() string {
	help := " [1-3] Switch tabs  [Tab] Next tab  [↑↓/jk] Navigate  [r] Refresh  [q] Quit "
	return styles.Help.Render(help)
}

// Run starts the console application.
func Run(baseURL string) error {
	m := New(baseURL)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
