// Package intake adapts inbound change notifications into exactly one
// evaluator invocation per event. Both adapters acknowledge an event
// only after the evaluate-dispatch-persist chain completes, so a
// failed invocation is redelivered instead of silently dropped.
package intake

import (
	"encoding/json"
	"io"
	"net/http"

	"noisewatch/internal/evaluator"
	"noisewatch/internal/metrics"
	"noisewatch/internal/models"
)

// EventHandler handles "value written" webhook notifications via HTTP.
type EventHandler struct {
	evaluator *evaluator.Evaluator

	// Max body size (default 1MB)
	maxBodySize int64
}

// EventHandlerConfig holds configuration for the event handler
type EventHandlerConfig struct {
	Evaluator   *evaluator.Evaluator
	MaxBodySize int64
}

// NewEventHandler creates a new webhook handler
func NewEventHandler(cfg EventHandlerConfig) *EventHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 1 * 1024 * 1024 // 1MB default
	}

	return &EventHandler{
		evaluator:   cfg.Evaluator,
		maxBodySize: maxBodySize,
	}
}

// EventResponse is the response returned to the event source
type EventResponse struct {
	Success bool   `json:"success"`
	Outcome string `json:"outcome,omitempty"`
	Tier    string `json:"tier,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ServeHTTP handles one change-notification request. The evaluator
// runs synchronously: a 2xx acknowledges the event, a 5xx tells the
// platform to redeliver it.
func (h *EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only accept POST
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Limit body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var event models.ChangeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.IntakeEventsTotal.WithLabelValues("http", "rejected").Inc()
		h.writeError(w, http.StatusBadRequest, "invalid change event JSON")
		return
	}

	event.Normalize()
	if err := event.Validate(); err != nil {
		metrics.IntakeEventsTotal.WithLabelValues("http", "rejected").Inc()
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.evaluator.HandleEvent(r.Context(), &event)
	if err != nil {
		// Surface the failure so the event source retries the event;
		// swallowing it here would lose the alert.
		metrics.IntakeEventsTotal.WithLabelValues("http", "failed").Inc()
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if result.Outcome == evaluator.OutcomeSkipped {
		metrics.IntakeEventsTotal.WithLabelValues("http", "deleted").Inc()
	} else {
		metrics.IntakeEventsTotal.WithLabelValues("http", "handled").Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(EventResponse{
		Success: true,
		Outcome: string(result.Outcome),
		Tier:    result.Tier.String(),
	})
}

// writeError writes an error response
func (h *EventHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(EventResponse{
		Success: false,
		Error:   message,
	})
}
