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

// SystemScene displays health and ingestion metrics.
type SystemScene struct {
	client     *api.Client
	health     *api.Health
	metrics    *api.Metrics
	err        error
	width      int
	height     int
	loading    bool
	lastUpdate time.Time
}

type systemMsg struct {
	health  *api.Health
	metrics *api.Metrics
	err     error
}

// NewSystemScene creates a new system scene.
func NewSystemScene(client *api.Client) *SystemScene {
	return &SystemScene{client: client, loading: true}
}

// Init fetches the initial system state.
func (s *SystemScene) Init() tea.Cmd {
	return s.fetchSystem()
}

func (s *SystemScene) fetchSystem() tea.Cmd {
	return func() tea.Msg {
		health, err := s.client.GetHealth()
		if err != nil {
			return systemMsg{err: err}
		}
		metrics, err := s.client.GetMetrics()
		if err != nil {
			return systemMsg{health: health, err: err}
		}
		return systemMsg{health: health, metrics: metrics}
	}
}

// TickCmd returns the refresh tick for this scene.
func (s *SystemScene) TickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "system", Time: t}
	})
}

// Update handles messages for the system scene.
func (s *SystemScene) Update(msg tea.Msg) (*SystemScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		return s, nil

	case tea.KeyMsg:
		if msg.String() == "r" {
			s.loading = true
			return s, s.fetchSystem()
		}
		return s, nil

	case systemMsg:
		s.loading = false
		s.health = msg.health
		s.metrics = msg.metrics
		s.err = msg.err
		s.lastUpdate = time.Now()
		return s, nil

	case TickMsg:
		if msg.Scene == "system" {
			return s, s.fetchSystem()
		}
		return s, nil
	}

	return s, nil
}

// View renders the system status.
func (s *SystemScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  System"))
	b.WriteString("\n\n")

	if s.loading && s.health == nil {
		b.WriteString(styles.Muted.Render("  Loading system status..."))
		return b.String()
	}

	if s.err != nil && s.health == nil {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %v", s.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Is the correlation core running? Press [r] to retry."))
		return b.String()
	}

	var statusText string
	switch s.health.Status {
	case "healthy":
		statusText = styles.StatusOK.Render("● HEALTHY")
	case "degraded":
		statusText = styles.StatusWarning.Render("● DEGRADED")
	default:
		statusText = styles.StatusError.Render("● " + strings.ToUpper(s.health.Status))
	}
	b.WriteString(fmt.Sprintf("  Status: %s\n\n", statusText))

	cards := []string{
		renderMetricCard("Queue", fmt.Sprintf("%d/%d", s.health.QueueDepth, s.health.QueueCapacity)),
		renderMetricCard("Uptime", formatUptime(s.health.UptimeSeconds)),
	}
	if s.metrics != nil {
		cards = append(cards,
			renderMetricCard("Signals", formatNumber(int64(s.metrics.SignalsTotal))),
			renderMetricCard("Dropped", formatNumber(int64(s.metrics.Queue.Dropped))),
		)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	b.WriteString("\n\n")

	if s.metrics != nil {
		b.WriteString(styles.Subtitle.Render("  Queue Throughput"))
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("  %-10s %d\n", "pushed", s.metrics.Queue.Pushed))
		b.WriteString(fmt.Sprintf("  %-10s %d\n", "popped", s.metrics.Queue.Popped))
		b.WriteString(fmt.Sprintf("  %-10s %d\n", "dropped", s.metrics.Queue.Dropped))
		b.WriteString("\n")
	}

	if !s.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  Last updated: %s", s.lastUpdate.Format("15:04:05"))))
	}

	return b.String()
}

func formatUptime(seconds int) string {
	d := time.Duration(seconds) * time.Second
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

func formatNumber(n int64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}
