package intake_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"noisewatch/internal/config"
	"noisewatch/internal/evaluator"
	"noisewatch/internal/intake"
	"noisewatch/internal/models"
	"noisewatch/internal/notify"
	"noisewatch/internal/state"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, deviceID string, m *models.Measurement, advisory string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.calls++
	return nil
}

func (d *recordingDispatcher) DispatchAllClear(ctx context.Context, deviceID string) error {
	return nil
}

func newHandler(t *testing.T) (*intake.EventHandler, *recordingDispatcher) {
	t.Helper()
	store := state.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	dispatcher := &recordingDispatcher{}
	ev := evaluator.New(store, dispatcher, config.Default().Alerting)
	return intake.NewEventHandler(intake.EventHandlerConfig{Evaluator: ev}), dispatcher
}

func postEvent(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandlerEvaluatesWrite(t *testing.T) {
	h, dispatcher := newHandler(t)

	body := `{
		"device_id": "sensor-01",
		"timestamp": "1709288100",
		"after": {"fecha": "2024-03-01 10:15:00", "nivel_dB": "91.2 dB", "vibracion_ms2": "0.4 m/s2"}
	}`

	for i := 0; i < 3; i++ {
		w := postEvent(t, h, body)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, body %s", i+1, w.Code, w.Body.String())
		}
	}

	var resp intake.EventResponse
	w := postEvent(t, h, body)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Errorf("response = %+v, want success", resp)
	}

	// The 3rd write escalated; the 4th is pinned at the same tier
	dispatcher.mu.Lock()
	calls := dispatcher.calls
	dispatcher.mu.Unlock()
	if calls != 1 {
		t.Errorf("dispatches = %d, want 1", calls)
	}
}

func TestHandlerDeletionIsNoOp(t *testing.T) {
	h, dispatcher := newHandler(t)

	body := `{
		"device_id": "sensor-01",
		"timestamp": "1709288100",
		"before": {"fecha": "2024-03-01 10:15:00", "nivel_dB": "120 dB", "vibracion_ms2": "0.4 m/s2"}
	}`

	w := postEvent(t, h, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for deletion", w.Code)
	}

	var resp intake.EventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Outcome != string(evaluator.OutcomeSkipped) {
		t.Errorf("outcome = %q, want skipped", resp.Outcome)
	}

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if dispatcher.calls != 0 {
		t.Errorf("dispatches = %d, want 0 for deletion", dispatcher.calls)
	}
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	h, _ := newHandler(t)

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid JSON", http.MethodPost, "{not json", http.StatusBadRequest},
		{"missing device ID", http.MethodPost, `{"timestamp":"1709288100","after":{"nivel_dB":"90 dB"}}`, http.StatusBadRequest},
		{"missing timestamp", http.MethodPost, `{"device_id":"sensor-01","after":{"nivel_dB":"90 dB"}}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/events", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandlerAcknowledgesUnconfiguredDispatch(t *testing.T) {
	h, dispatcher := newHandler(t)
	dispatcher.err = notify.ErrNotConfigured

	body := `{
		"device_id": "sensor-01",
		"timestamp": "1709288100",
		"after": {"fecha": "2024-03-01 10:15:00", "nivel_dB": "91.2 dB", "vibracion_ms2": "0.4 m/s2"}
	}`

	// Missing credentials never fail the event: retrying it could not
	// succeed, so the escalation persists silently and the source gets
	// a 200
	for i := 0; i < 3; i++ {
		w := postEvent(t, h, body)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	var resp intake.EventResponse
	w := postEvent(t, h, body)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Success {
		t.Errorf("response = %+v, want success", resp)
	}
}

func TestHandlerSurfacesDispatchFailure(t *testing.T) {
	h, dispatcher := newHandler(t)
	dispatcher.err = errors.New("telegram unreachable")

	body := `{
		"device_id": "sensor-01",
		"timestamp": "1709288100",
		"after": {"fecha": "2024-03-01 10:15:00", "nivel_dB": "91.2 dB", "vibracion_ms2": "0.4 m/s2"}
	}`

	// First two writes just count
	for i := 0; i < 2; i++ {
		if w := postEvent(t, h, body); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, w.Code)
		}
	}

	// The escalating write must fail with a 5xx so the event source
	// redelivers it instead of dropping the alert
	w := postEvent(t, h, body)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 on dispatch failure", w.Code)
	}
}
