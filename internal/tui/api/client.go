// Package api provides the HTTP client the console uses to talk to the
// correlation core.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client handles API communication with the correlation core.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Alert mirrors the alert body returned by the core API.
type Alert struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
	Status      string    `json:"status"`
	Fingerprint string    `json:"fingerprint"`
	RuleID      string    `json:"rule_id"`
	Source      string    `json:"source"`
	Target      string    `json:"target"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	MatchCount  int       `json:"match_count"`
}

// AlertsResponse is the body of GET /v1/alerts.
type AlertsResponse struct {
	Alerts []Alert `json:"alerts"`
	Count  int     `json:"count"`
}

// Statistics is the body of GET /v1/statistics.
type Statistics struct {
	Total           int            `json:"total"`
	Open            int            `json:"open"`
	BySeverity      map[string]int `json:"by_severity"`
	ByStatus        map[string]int `json:"by_status"`
	ByRule          map[string]int `json:"by_rule"`
	GeneratedAt     time.Time      `json:"generated_at"`
	AlertsPerMinute float64        `json:"alerts_per_minute"`
}

// Health is the body of GET /health.
type Health struct {
	Status        string `json:"status"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	UptimeSeconds int    `json:"uptime_seconds"`
}

// QueueMetrics mirrors the queue section of GET /metrics.
type QueueMetrics struct {
	Pushed   uint64 `json:"pushed"`
	Popped   uint64 `json:"popped"`
	Dropped  uint64 `json:"dropped"`
	Depth    int    `json:"depth"`
	Capacity int    `json:"capacity"`
}

// Metrics is the body of GET /metrics.
type Metrics struct {
	SignalsTotal  uint64       `json:"signals_total"`
	Queue         QueueMetrics `json:"queue"`
	UptimeSeconds int          `json:"uptime_seconds"`
}

// NewClient creates a client against the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) getJSON(path string, out any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetHealth fetches health status.
func (c *Client) GetHealth() (*Health, error) {
	var health Health
	if err := c.getJSON("/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// GetAlerts fetches the most recent alerts, optionally filtered by status.
func (c *Client) GetAlerts(limit int, status string) (*AlertsResponse, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	if status != "" {
		q.Set("status", status)
	}

	var alerts AlertsResponse
	if err := c.getJSON("/v1/alerts?"+q.Encode(), &alerts); err != nil {
		return nil, err
	}
	return &alerts, nil
}

// GetStatistics fetches the alert statistics summary.
func (c *Client) GetStatistics() (*Statistics, error) {
	var stats Statistics
	if err := c.getJSON("/v1/statistics", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetMetrics fetches the JSON operational snapshot.
func (c *Client) GetMetrics() (*Metrics, error) {
	var metrics Metrics
	if err := c.getJSON("/metrics", &metrics); err != nil {
		return nil, err
	}
	return &metrics, nil
}
