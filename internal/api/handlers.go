// Package api exposes alert, detection and statistics endpoints.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"redblue-core/internal/alert"
	"redblue-core/internal/correlate"
	"redblue-core/internal/rules"
	"redblue-core/internal/stats"
)

// defaultListLimit applies when a list request carries no limit parameter.
const defaultListLimit = 100

// APIError is the structured error response body.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// API serves the alert management endpoints.
type API struct {
	alerts *alert.Store
	rules  *rules.Store
	stats  *stats.Engine
}

// New creates the API over the given stores.
func New(alerts *alert.Store, ruleStore *rules.Store, engine *stats.Engine) *API {
	return &API{
		alerts: alerts,
		rules:  ruleStore,
		stats:  engine,
	}
}

// Routes registers all endpoints on the mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/alerts", a.handleCreateAlert)
	mux.HandleFunc("GET /v1/alerts", a.handleListAlerts)
	mux.HandleFunc("GET /v1/alerts/{id}", a.handleGetAlert)
	mux.HandleFunc("PATCH /v1/alerts/{id}", a.handleUpdateAlert)
	mux.HandleFunc("GET /v1/detections", a.handleListDetections)
	mux.HandleFunc("GET /v1/statistics", a.handleStatistics)
}

// CreateAlertRequest is the body for operator-created alerts.
type CreateAlertRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    rules.Severity `json:"severity"`
}

func (a *API) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "failed to read request body")
		return
	}

	var req CreateAlertRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON: "+err.Error())
		return
	}

	created, err := a.alerts.Create(r.Context(), &alert.Alert{
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		Fingerprint: correlate.ManualFingerprint(req.Title),
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAlertID(w, r)
	if !ok {
		return
	}
	found, err := a.alerts.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// UpdateAlertRequest is the body for partial alert updates. Absent fields
// stay unchanged.
type UpdateAlertRequest struct {
	Status   *alert.Status   `json:"status,omitempty"`
	Severity *rules.Severity `json:"severity,omitempty"`
}

func (a *API) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAlertID(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "failed to read request body")
		return
	}
	var req UpdateAlertRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON: "+err.Error())
		return
	}

	updated, err := a.alerts.Update(r.Context(), id, alert.UpdateRequest{
		Status:   req.Status,
		Severity: req.Severity,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := alert.ListFilter{Limit: defaultListLimit}
	if sev := q.Get("severity"); sev != "" {
		s := rules.Severity(sev)
		if !s.IsValid() {
			writeJSONError(w, http.StatusBadRequest, "VALIDATION", "invalid severity: "+sev)
			return
		}
		filter.Severity = &s
	}
	if st := q.Get("status"); st != "" {
		s := alert.Status(st)
		if !s.IsValid() {
			writeJSONError(w, http.StatusBadRequest, "VALIDATION", "invalid status: "+st)
			return
		}
		filter.Status = &s
	}
	if lim := q.Get("limit"); lim != "" {
		n, err := strconv.Atoi(lim)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "VALIDATION", "invalid limit: "+lim)
			return
		}
		filter.Limit = n
	}
	if off := q.Get("offset"); off != "" {
		n, err := strconv.Atoi(off)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "VALIDATION", "invalid offset: "+off)
			return
		}
		filter.Offset = n
	}

	alerts := a.alerts.List(filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (a *API) handleListDetections(w http.ResponseWriter, r *http.Request) {
	active := a.rules.ActiveRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": active,
		"count": len(active),
	})
}

// StatisticsResponse is the body for GET /v1/statistics.
type StatisticsResponse struct {
	stats.Summary
	AlertsPerMinute float64 `json:"alerts_per_minute"`
}

func (a *API) handleStatistics(w http.ResponseWriter, r *http.Request) {
	window := time.Hour
	if win := r.URL.Query().Get("window"); win != "" {
		d, err := time.ParseDuration(win)
		if err != nil || d <= 0 {
			writeJSONError(w, http.StatusBadRequest, "VALIDATION", "invalid window: "+win)
			return
		}
		window = d
	}
	writeJSON(w, http.StatusOK, StatisticsResponse{
		Summary:         a.stats.Summary(),
		AlertsPerMinute: a.stats.Rate(window),
	})
}

func parseAlertID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION", "invalid alert id")
		return uuid.Nil, false
	}
	return id, true
}

// writeStoreError maps store errors onto HTTP statuses. Anything unexpected
// becomes a sanitized 500.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case alert.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "alert not found")
	case alert.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "VALIDATION", err.Error())
	case alert.IsInvalidTransition(err):
		writeJSONError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case alert.IsConflict(err):
		writeJSONError(w, http.StatusConflict, "CONFLICT", err.Error())
	default:
		slog.Error("alert store error", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// writeJSONError writes a structured JSON error response.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}
