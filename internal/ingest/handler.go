// Package ingest handles HTTP ingestion of signals.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"redblue-core/internal/alert"
	"redblue-core/internal/queue"
	"redblue-core/internal/schema"
	"redblue-core/internal/telemetry"
)

// Processor runs a signal through match and aggregate synchronously.
// Satisfied by *pipeline.Pipeline.
type Processor interface {
	Process(ctx context.Context, sig *schema.Signal) ([]*alert.Alert, error)
}

// Handler handles HTTP signal ingestion.
type Handler struct {
	validator    *schema.Validator
	queue        *queue.RingBuffer
	processor    Processor
	maxPayload   int
	maxBatch     int
	startTime    time.Time
	signalsTotal uint64

	// extraMetrics contributes component metrics to GET /metrics.
	extraMetrics func() map[string]any
}

// NewHandler creates an ingest Handler.
func NewHandler(validator *schema.Validator, q *queue.RingBuffer, proc Processor) *Handler {
	return &Handler{
		validator:  validator,
		queue:      q,
		processor:  proc,
		maxPayload: 10 * 1024 * 1024, // 10MB default
		maxBatch:   1000,
		startTime:  time.Now(),
	}
}

// WithMaxPayload sets the maximum payload size.
func (h *Handler) WithMaxPayload(size int) *Handler {
	h.maxPayload = size
	return h
}

// WithMaxBatch sets the maximum batch size.
func (h *Handler) WithMaxBatch(size int) *Handler {
	h.maxBatch = size
	return h
}

// WithExtraMetrics registers a callback merged into the /metrics payload.
func (h *Handler) WithExtraMetrics(fn func() map[string]any) *Handler {
	h.extraMetrics = fn
	return h
}

// SignalInput is the wire format for submitted signals.
type SignalInput struct {
	SignalID  *uuid.UUID     `json:"signal_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Target    string         `json:"target"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// IngestRequest is the request body for batch signal ingestion.
type IngestRequest struct {
	Signals []SignalInput `json:"signals"`
}

// IngestResponse is the response for batch signal ingestion.
type IngestResponse struct {
	Success   bool     `json:"success"`
	Accepted  int      `json:"accepted"`
	Rejected  int      `json:"rejected"`
	Errors    []string `json:"errors,omitempty"`
	RequestID string   `json:"request_id"`
}

// HandleSignals handles POST /v1/signals. Signals are validated and
// enqueued; correlation happens asynchronously on the pipeline.
func (h *Handler) HandleSignals(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	req, ok := h.readRequest(w, r, requestID)
	if !ok {
		return
	}

	var accepted, rejected int
	var errs []string

	for i, input := range req.Signals {
		sig := h.convertInput(input)

		if err := h.validator.Validate(sig); err != nil {
			rejected++
			telemetry.SignalsDropped.WithLabelValues("validation").Inc()
			errs = append(errs, fmt.Sprintf("signal[%d]: %s", i, err.Error()))
			continue
		}

		if err := h.queue.Push(sig); err != nil {
			rejected++
			if err == queue.ErrQueueFull {
				telemetry.SignalsDropped.WithLabelValues("queue_full").Inc()
				errs = append(errs, fmt.Sprintf("signal[%d]: queue full", i))
			} else {
				telemetry.SignalsDropped.WithLabelValues("queue").Inc()
				errs = append(errs, fmt.Sprintf("signal[%d]: %s", i, err.Error()))
			}
			continue
		}

		accepted++
		atomic.AddUint64(&h.signalsTotal, 1)
		telemetry.SignalsIngested.WithLabelValues(sig.Source).Inc()
	}

	resp := IngestResponse{
		Success:   rejected == 0,
		Accepted:  accepted,
		Rejected:  rejected,
		RequestID: requestID,
	}
	if len(errs) > 0 {
		resp.Errors = errs
	}

	status := http.StatusOK
	if accepted == 0 && rejected > 0 {
		status = http.StatusBadRequest
	} else if rejected > 0 {
		status = http.StatusMultiStatus
	}

	respondJSON(w, status, resp)
}

// SyncResponse is the response for synchronous signal ingestion.
type SyncResponse struct {
	Success   bool           `json:"success"`
	Alerts    []*alert.Alert `json:"alerts"`
	RequestID string         `json:"request_id"`
}

// HandleSignalSync handles POST /v1/signals/sync. The signal runs through
// the full match and aggregate path in-request and the resulting alerts come
// back in the response.
func (h *Handler) HandleSignalSync(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxPayload))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondReadError(w, err, requestID)
		return
	}

	var input SignalInput
	if err := json.Unmarshal(body, &input); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err), requestID)
		return
	}

	sig := h.convertInput(input)
	if err := h.validator.Validate(sig); err != nil {
		telemetry.SignalsDropped.WithLabelValues("validation").Inc()
		respondError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	alerts, err := h.processor.Process(r.Context(), sig)
	if err != nil {
		if alert.IsValidation(err) {
			respondError(w, http.StatusBadRequest, err.Error(), requestID)
			return
		}
		respondError(w, http.StatusInternalServerError, "signal processing failed", requestID)
		return
	}

	atomic.AddUint64(&h.signalsTotal, 1)
	telemetry.SignalsIngested.WithLabelValues(sig.Source).Inc()

	if alerts == nil {
		alerts = []*alert.Alert{}
	}
	respondJSON(w, http.StatusOK, SyncResponse{
		Success:   true,
		Alerts:    alerts,
		RequestID: requestID,
	})
}

func (h *Handler) readRequest(w http.ResponseWriter, r *http.Request, requestID string) (*IngestRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxPayload))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondReadError(w, err, requestID)
		return nil, false
	}

	var req IngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err), requestID)
		return nil, false
	}

	if len(req.Signals) == 0 {
		respondError(w, http.StatusBadRequest, "no signals provided", requestID)
		return nil, false
	}
	if len(req.Signals) > h.maxBatch {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("batch size exceeds maximum of %d", h.maxBatch), requestID)
		return nil, false
	}
	return &req, true
}

// convertInput converts a SignalInput to a canonical Signal.
func (h *Handler) convertInput(input SignalInput) *schema.Signal {
	sig := &schema.Signal{
		Timestamp:     input.Timestamp,
		Source:        input.Source,
		Target:        input.Target,
		Payload:       input.Payload,
		SchemaVersion: schema.SchemaVersionCurrent,
		ReceivedAt:    time.Now().UTC(),
	}
	if input.SignalID != nil {
		sig.SignalID = *input.SignalID
	} else {
		sig.SignalID = uuid.New()
	}
	return sig
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	metrics := h.queue.Metrics()

	status := "healthy"
	if metrics.Depth > int(float64(metrics.Capacity)*0.9) {
		status = "degraded"
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"queue_depth":    metrics.Depth,
		"queue_capacity": metrics.Capacity,
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	})
}

// Metrics handles GET /metrics, the JSON operational snapshot. Prometheus
// exposition lives on /metrics/prometheus.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"signals_total":  atomic.LoadUint64(&h.signalsTotal),
		"queue":          h.queue.Metrics(),
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	}
	if h.extraMetrics != nil {
		for k, v := range h.extraMetrics() {
			resp[k] = v
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondReadError(w http.ResponseWriter, err error, requestID string) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		respondError(w, http.StatusRequestEntityTooLarge, "payload too large", requestID)
		return
	}
	respondError(w, http.StatusBadRequest, "failed to read request body", requestID)
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message string, requestID string) {
	respondJSON(w, status, map[string]any{
		"success":    false,
		"error":      message,
		"request_id": requestID,
	})
}
