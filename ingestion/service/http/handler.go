package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"tenantlog/ingestion/normalizer"
	core "tenantlog/ingestion/service/core"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// LogHandler encapsulates the logic for handling HTTP log requests
type LogHandler struct {
	svc             *core.Service
	logger          *zap.Logger
	maxRequestBytes int64
	checks          map[string]ReadinessCheck
}

// NewLogHandler creates a new LogHandler
func NewLogHandler(s *core.Service, maxRequestBytes int64, l *zap.Logger) *LogHandler {
	if maxRequestBytes <= 0 {
		maxRequestBytes = 10 * 1024 * 1024
	}
	return &LogHandler{
		svc:             s,
		logger:          l,
		maxRequestBytes: maxRequestBytes,
		checks:          make(map[string]ReadinessCheck),
	}
}

// AddReadinessCheck registers a dependency probed by GET /readiness.
func (h *LogHandler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// readBody reads at most maxRequestBytes. The bool is false when a response
// was already written.
func (h *LogHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.ContentLength > h.maxRequestBytes {
		h.respondError(w, r, "Request body too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, r, "Request body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		h.respondError(w, r, "Failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// SubmitLog handles POST /ingest. application/json carries
// {tenant_id, log_id?, text}; text/plain carries the raw log with the tenant
// in the X-Tenant-ID header.
func (h *LogHandler) SubmitLog(w http.ResponseWriter, r *http.Request) {
	var input normalizer.Input

	switch ct := mediaType(r); ct {
	case "application/json":
		body, ok := h.readBody(w, r)
		if !ok {
			return
		}
		var payload normalizer.Structured
		if err := json.Unmarshal(body, &payload); err != nil {
			h.respondError(w, r, "Invalid JSON payload", http.StatusBadRequest)
			return
		}
		input = payload

	case "text/plain":
		body, ok := h.readBody(w, r)
		if !ok {
			return
		}
		if !utf8.Valid(body) {
			h.respondError(w, r, "Text payload must be valid UTF-8", http.StatusBadRequest)
			return
		}
		input = normalizer.Unstructured{
			TenantHeader: r.Header.Get(normalizer.TenantHeader),
			Body:         string(body),
		}

	default:
		h.respondError(w, r, "Unsupported Content-Type: use application/json or text/plain", http.StatusBadRequest)
		return
	}

	ack, err := h.svc.Submit(r.Context(), input)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, ack, http.StatusAccepted)
}

// SubmitBatch handles POST /ingest/batch with a JSON array of structured records.
func (h *LogHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	if mediaType(r) != "application/json" {
		h.respondError(w, r, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var payload []normalizer.Structured
	if err := json.Unmarshal(body, &payload); err != nil {
		h.respondError(w, r, "Invalid JSON payload: expected an array of records", http.StatusBadRequest)
		return
	}

	acks, err := h.svc.SubmitBatch(r.Context(), payload)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, map[string]interface{}{
		"status":  core.StatusAccepted,
		"count":   len(acks),
		"results": acks,
	}, http.StatusAccepted)
}

// HealthCheck handles GET /health requests
func (h *LogHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}, http.StatusOK)
}

// ReadinessCheck handles GET /readiness requests
func (h *LogHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failing := make(map[string]string)
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failing[name] = err.Error()
		}
	}

	resp := map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if len(failing) > 0 {
		resp["status"] = "not_ready"
		resp["checks"] = failing
		h.respondJSON(w, resp, http.StatusServiceUnavailable)
		return
	}
	h.respondJSON(w, resp, http.StatusOK)
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	if errors.Is(err, normalizer.ErrValidation) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *LogHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusBadRequest {
		h.respondError(w, r, err.Error(), status)
		return
	}
	h.logger.Error("ingestion failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
	h.respondError(w, r, "Failed to queue message for processing", status)
}

// respondJSON sends JSON response
func (h *LogHandler) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// respondError sends error response
func (h *LogHandler) respondError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.respondJSON(w, map[string]interface{}{
		"status":     "error",
		"message":    message,
		"request_id": middleware.GetReqID(r.Context()),
	}, statusCode)
}
