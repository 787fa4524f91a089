package scenes

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"redblue-core/internal/tui/api"
	"redblue-core/internal/tui/styles"
)

// StatsScene displays the alert statistics summary.
type StatsScene struct {
	client     *api.Client
	stats      *api.Statistics
	err        error
	width      int
	height     int
	loading    bool
	lastUpdate time.Time
}

type statsMsg struct {
	stats *api.Statistics
	err   error
}

// NewStatsScene creates a new statistics scene.
func NewStatsScene(client *api.Client) *StatsScene {
	return &StatsScene{client: client, loading: true}
}

// Init fetches the initial summary.
func (s *StatsScene) Init() tea.Cmd {
	return s.fetchStats()
}

func (s *StatsScene) fetchStats() tea.Cmd {
	return func() tea.Msg {
		stats, err := s.client.GetStatistics()
		return statsMsg{stats: stats, err: err}
	}
}

// TickCmd returns the refresh tick for this scene.
func (s *StatsScene) TickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "stats", Time: t}
	})
}

// Update handles messages for the statistics scene.
func (s *StatsScene) Update(msg tea.Msg) (*StatsScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		return s, nil

	case tea.KeyMsg:
		if msg.String() == "r" {
			s.loading = true
			return s, s.fetchStats()
		}
		return s, nil

	case statsMsg:
		s.loading = false
		s.stats = msg.stats
		s.err = msg.err
		s.lastUpdate = time.Now()
		return s, nil

	case TickMsg:
		if msg.Scene == "stats" {
			return s, s.fetchStats()
		}
		return s, nil
	}

	return s, nil
}

// View renders the statistics summary.
func (s *StatsScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  Statistics"))
	b.WriteString("\n\n")

	if s.loading && s.stats == nil {
		b.WriteString(styles.Muted.Render("  Loading statistics..."))
		return b.String()
	}

	if s.err != nil {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %v", s.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Press [r] to retry."))
		return b.String()
	}

	cards := []string{
		renderMetricCard("Total Alerts", fmt.Sprintf("%d", s.stats.Total)),
		renderMetricCard("Open", fmt.Sprintf("%d", s.stats.Open)),
		renderMetricCard("Alerts/min", fmt.Sprintf("%.2f", s.stats.AlertsPerMinute)),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	b.WriteString("\n\n")

	b.WriteString(styles.Subtitle.Render("  By Severity"))
	b.WriteString("\n")
	b.WriteString(renderBreakdown(s.stats.BySeverity, severityOrder))
	b.WriteString("\n")

	b.WriteString(styles.Subtitle.Render("  By Status"))
	b.WriteString("\n")
	b.WriteString(renderBreakdown(s.stats.ByStatus, statusOrder))
	b.WriteString("\n")

	if len(s.stats.ByRule) > 0 {
		b.WriteString(styles.Subtitle.Render("  Top Rules"))
		b.WriteString("\n")
		b.WriteString(renderTopRules(s.stats.ByRule, 5))
		b.WriteString("\n")
	}

	if !s.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  Last updated: %s", s.lastUpdate.Format("15:04:05"))))
	}

	return b.String()
}

var severityOrder = []string{"critical", "high", "medium", "low"}
var statusOrder = []string{"new", "investigating", "resolved", "closed"}

func renderBreakdown(counts map[string]int, order []string) string {
	var rows []string
	for _, key := range order {
		n, ok := counts[key]
		if !ok {
			continue
		}
		rows = append(rows, fmt.Sprintf("  %-14s %d", key, n))
	}
	if len(rows) == 0 {
		return styles.Muted.Render("  none")
	}
	return strings.Join(rows, "\n")
}

func renderTopRules(counts map[string]int, limit int) string {
	type ruleCount struct {
		rule  string
		count int
	}
	sorted := make([]ruleCount, 0, len(counts))
	for rule, n := range counts {
		sorted = append(sorted, ruleCount{rule, n})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].rule < sorted[j].rule
	})

	var rows []string
	for i, rc := range sorted {
		if i >= limit {
			break
		}
		rows = append(rows, fmt.Sprintf("  %-30s %d", truncate(rc.rule, 30), rc.count))
	}
	return strings.Join(rows, "\n")
}

func renderMetricCard(label, value string) string {
	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.MutedColor).
		Padding(0, 2).
		Width(18).
		Align(lipgloss.Center)

	content := fmt.Sprintf("%s\n%s",
		styles.MetricValue.Render(value),
		styles.MetricLabel.Render(label),
	)
	return card.Render(content)
}
