// Package scenes provides the console views over the correlation core API.
package scenes

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"redblue-core/internal/tui/api"
	"redblue-core/internal/tui/styles"
)

// TickMsg drives periodic refresh. Exported for the parent model, which
// forwards it only to the active scene.
type TickMsg struct {
	Scene string
	Time  time.Time
}

// AlertsScene displays the alert queue.
type AlertsScene struct {
	client     *api.Client
	alerts     []api.Alert
	totalCount int
	err        string
	width      int
	height     int
	cursor     int
	offset     int
	loading    bool
	maxRows    int
	lastUpdate time.Time
}

type alertsMsg struct {
	alerts     []api.Alert
	totalCount int
	err        string
}

// NewAlertsScene creates a new alerts scene.
func NewAlertsScene(client *api.Client) *AlertsScene {
	return &AlertsScene{
		client:  client,
		loading: true,
		maxRows: 10,
	}
}

// Init fetches the initial alert list.
func (a *AlertsScene) Init() tea.Cmd {
	return a.fetchAlerts()
}

func (a *AlertsScene) fetchAlerts() tea.Cmd {
	return func() tea.Msg {
		resp, err := a.client.GetAlerts(100, "")
		if err != nil {
			return alertsMsg{err: err.Error()}
		}
		return alertsMsg{alerts: resp.Alerts, totalCount: resp.Count}
	}
}

// TickCmd returns the refresh tick for this scene.
func (a *AlertsScene) TickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "alerts", Time: t}
	})
}

// Update handles messages for the alerts scene.
func (a *AlertsScene) Update(msg tea.Msg) (*AlertsScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.maxRows = max(5, a.height-12)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if a.cursor > 0 {
				a.cursor--
				if a.cursor < a.offset {
					a.offset = a.cursor
				}
			}
		case "down", "j":
			if a.cursor < len(a.alerts)-1 {
				a.cursor++
				if a.cursor >= a.offset+a.maxRows {
					a.offset = a.cursor - a.maxRows + 1
				}
			}
		case "pgup":
			a.cursor = max(0, a.cursor-a.maxRows)
			a.offset = max(0, a.offset-a.maxRows)
		case "pgdown":
			a.cursor = min(len(a.alerts)-1, a.cursor+a.maxRows)
			a.offset = min(max(0, len(a.alerts)-a.maxRows), a.offset+a.maxRows)
		case "r":
			a.loading = true
			return a, a.fetchAlerts()
		}
		return a, nil

	case alertsMsg:
		a.loading = false
		a.alerts = msg.alerts
		a.totalCount = msg.totalCount
		a.err = msg.err
		a.lastUpdate = time.Now()
		if a.cursor >= len(a.alerts) {
			a.cursor = max(0, len(a.alerts)-1)
		}
		return a, nil

	case TickMsg:
		if msg.Scene == "alerts" {
			return a, a.fetchAlerts()
		}
		return a, nil
	}

	return a, nil
}

// View renders the alert table.
func (a *AlertsScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  Alerts"))
	b.WriteString("\n\n")

	if a.loading && len(a.alerts) == 0 {
		b.WriteString(styles.Muted.Render("  Loading alerts..."))
		return b.String()
	}

	if a.err != "" {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %s", a.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Press [r] to retry."))
		return b.String()
	}

	if len(a.alerts) == 0 {
		b.WriteString(styles.Muted.Render("  No alerts."))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Alerts appear here once signals match detection rules."))
		return b.String()
	}

	countText := fmt.Sprintf("  Showing %d of %d alerts", len(a.alerts), a.totalCount)
	b.WriteString(styles.Subtitle.Render(countText))
	if a.loading {
		b.WriteString(styles.Muted.Render("  (refreshing...)"))
	}
	b.WriteString("\n\n")

	header := fmt.Sprintf("  %-10s %-10s %-14s %-8s %s",
		"Updated", "Severity", "Status", "Matches", "Title")
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	endIdx := min(a.offset+a.maxRows, len(a.alerts))
	for i, al := range a.alerts[a.offset:endIdx] {
		b.WriteString(a.renderAlertRow(al, a.offset+i == a.cursor))
		b.WriteString("\n")
	}

	if len(a.alerts) > a.maxRows {
		scrollInfo := fmt.Sprintf("\n  %d-%d of %d (↑↓ to scroll, [r] refresh)",
			a.offset+1, endIdx, len(a.alerts))
		b.WriteString(styles.Muted.Render(scrollInfo))
	} else {
		b.WriteString(styles.Muted.Render("\n  [r] Refresh"))
	}

	if !a.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  |  Updated: %s", a.lastUpdate.Format("15:04:05"))))
	}

	return b.String()
}

func (a *AlertsScene) renderAlertRow(al api.Alert, selected bool) string {
	updated := al.UpdatedAt.Format("15:04:05")
	severity := formatSeverity(al.Severity)
	status := fmt.Sprintf("%-14s", al.Status)
	matches := fmt.Sprintf("%-8d", al.MatchCount)
	title := truncate(al.Title, 50)

	row := fmt.Sprintf("  %-10s %s %s %s %s", updated, severity, status, matches, title)

	if selected {
		return lipgloss.NewStyle().
			Background(styles.Primary).
			Foreground(styles.White).
			Render(row)
	}
	return row
}

func formatSeverity(sev string) string {
	var style lipgloss.Style
	switch sev {
	case "critical", "high":
		style = styles.StatusError
	case "medium":
		style = styles.StatusWarning
	case "low":
		style = styles.StatusOK
	default:
		style = styles.Muted
	}
	return style.Render(fmt.Sprintf("%-10s", strings.ToUpper(sev)))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
