// Package startup runs preflight diagnostics before the correlation core
// begins serving traffic.
package startup

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"time"

	"redblue-core/internal/config"
)

// Status is the outcome of a single diagnostic check.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
	StatusSkipped
)

// String returns the status label.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusError:
		return "ERROR"
	case StatusSkipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// Result is the outcome of one diagnostic check.
type Result struct {
	Name    string
	Status  Status
	Message string
}

// Pinger verifies connectivity to an external store. Satisfied by
// *storage.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Diagnostics runs preflight checks against a configuration.
type Diagnostics struct {
	cfg     *config.Config
	storage Pinger
	results []Result
}

// NewDiagnostics creates a diagnostics runner. storage may be nil when the
// archive is disabled.
func NewDiagnostics(cfg *config.Config, storage Pinger) *Diagnostics {
	return &Diagnostics{cfg: cfg, storage: storage}
}

// RunAll executes every check and returns the results.
func (d *Diagnostics) RunAll() []Result {
	slog.Info("running startup diagnostics")

	d.checkRuntime()
	d.checkConfiguration()
	d.checkRulesDirectory()
	d.checkHTTPPort()
	d.checkStorage()
	d.printSummary()

	return d.results
}

// Results returns the collected results.
func (d *Diagnostics) Results() []Result {
	return d.results
}

// HasErrors reports whether any check failed.
func (d *Diagnostics) HasErrors() bool {
	for _, r := range d.results {
		if r.Status == StatusError {
			return true
		}
	}
	return false
}

// HasWarnings reports whether any check produced a warning.
func (d *Diagnostics) HasWarnings() bool {
	for _, r := range d.results {
		if r.Status == StatusWarning {
			return true
		}
	}
	return false
}

func (d *Diagnostics) addResult(name string, status Status, message string) {
	d.results = append(d.results, Result{Name: name, Status: status, Message: message})

	switch status {
	case StatusError:
		slog.Error("diagnostic failed", "check", name, "message", message)
	case StatusWarning:
		slog.Warn("diagnostic warning", "check", name, "message", message)
	default:
		slog.Debug("diagnostic passed", "check", name, "status", status.String(), "message", message)
	}
}

func (d *Diagnostics) checkRuntime() {
	d.addResult("runtime", StatusOK, fmt.Sprintf("%s %s/%s, %d CPUs",
		runtime.Version(), runtime.GOOS, runtime.GOARCH, runtime.NumCPU()))
}

func (d *Diagnostics) checkConfiguration() {
	if err := d.cfg.Validate(); err != nil {
		d.addResult("configuration", StatusError, err.Error())
		return
	}

	var integrations []string
	if d.cfg.Storage.Enabled {
		integrations = append(integrations, "clickhouse")
	}
	if d.cfg.Kafka.Enabled {
		integrations = append(integrations, "kafka")
	}
	if d.cfg.Redis.Enabled {
		integrations = append(integrations, "redis")
	}
	if d.cfg.Auth.Enabled {
		integrations = append(integrations, "auth")
	}
	if len(integrations) == 0 {
		d.addResult("configuration", StatusOK, "valid, no external integrations enabled")
		return
	}
	d.addResult("configuration", StatusOK, fmt.Sprintf("valid, enabled: %v", integrations))
}

func (d *Diagnostics) checkRulesDirectory() {
	info, err := os.Stat(d.cfg.Rules.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			d.addResult("rules_dir", StatusWarning,
				fmt.Sprintf("%s does not exist, starting with no detection rules", d.cfg.Rules.Dir))
			return
		}
		d.addResult("rules_dir", StatusError, err.Error())
		return
	}
	if !info.IsDir() {
		d.addResult("rules_dir", StatusError, fmt.Sprintf("%s is not a directory", d.cfg.Rules.Dir))
		return
	}
	d.addResult("rules_dir", StatusOK, d.cfg.Rules.Dir)
}

func (d *Diagnostics) checkHTTPPort() {
	addr := fmt.Sprintf(":%d", d.cfg.Server.HTTPPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		d.addResult("http_port", StatusError, fmt.Sprintf("port %d unavailable: %v", d.cfg.Server.HTTPPort, err))
		return
	}
	ln.Close()
	d.addResult("http_port", StatusOK, fmt.Sprintf("port %d available", d.cfg.Server.HTTPPort))
}

func (d *Diagnostics) checkStorage() {
	if !d.cfg.Storage.Enabled {
		d.addResult("storage", StatusSkipped, "archive disabled")
		return
	}
	if d.storage == nil {
		d.addResult("storage", StatusWarning, "archive enabled but no client provided")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.storage.Ping(ctx); err != nil {
		d.addResult("storage", StatusError, fmt.Sprintf("clickhouse unreachable: %v", err))
		return
	}
	d.addResult("storage", StatusOK, "clickhouse reachable")
}

func (d *Diagnostics) printSummary() {
	var ok, warnings, errors, skipped int
	for _, r := range d.results {
		switch r.Status {
		case StatusOK:
			ok++
		case StatusWarning:
			warnings++
		case StatusError:
			errors++
		case StatusSkipped:
			skipped++
		}
	}

	slog.Info("diagnostics complete",
		"total", len(d.results),
		"ok", ok,
		"warnings", warnings,
		"errors", errors,
		"skipped", skipped,
	)
}

// PrintBanner writes the service banner to stdout.
func PrintBanner(version string) {
	fmt.Printf(`
  ____  _____ ____  ____  _    _   _ _____
 |  _ \| ____|  _ \| __ )| |  | | | | ____|
 | |_) |  _| | | | |  _ \| |  | | | |  _|
 |  _ <| |___| |_| | |_) | |__| |_| | |___
 |_| \_\_____|____/|____/|_____\___/|_____|

 redblue-core %s
 alert correlation engine

`, version)
}
