package state

import (
	"strings"
	"testing"

	"noisewatch/internal/models"
	"noisewatch/internal/risk"
)

func TestStateKey(t *testing.T) {
	tests := []struct {
		deviceID string
		want     string
	}{
		{"sensor-01", "alert_status:sensor-01"},
		{"plant-3/drill", "alert_status:plant-3/drill"},
	}

	for _, tt := range tests {
		if got := stateKey(tt.deviceID); got != tt.want {
			t.Errorf("stateKey(%q) = %q, want %q", tt.deviceID, got, tt.want)
		}
	}
}

func TestDecodeState(t *testing.T) {
	raw := `{"consecutiveHighCount":3,"consecutiveLowCount":0,"lastNotifiedTier":"MED_90"}`

	st, err := decodeState("sensor-01", []byte(raw))
	if err != nil {
		t.Fatalf("decodeState returned error: %v", err)
	}

	want := models.AlertState{
		ConsecutiveHighCount: 3,
		ConsecutiveLowCount:  0,
		LastNotifiedTier:     risk.Med90,
	}
	if st != want {
		t.Errorf("decoded state = %+v, want %+v", st, want)
	}
}

func TestDecodeStateEmptyRecord(t *testing.T) {
	st, err := decodeState("sensor-01", []byte(`{}`))
	if err != nil {
		t.Fatalf("decodeState returned error: %v", err)
	}
	if st != (models.AlertState{}) {
		t.Errorf("decoded state = %+v, want zero state", st)
	}
	if st.Alerting() {
		t.Error("empty record must decode to the quiet state")
	}
}

func TestDecodeStateCorruptRecord(t *testing.T) {
	_, err := decodeState("sensor-01", []byte(`{"consecutiveHighCount":`))
	if err == nil {
		t.Fatal("decodeState should fail on corrupt JSON")
	}
	if !strings.Contains(err.Error(), "sensor-01") {
		t.Errorf("error %q should name the device", err)
	}
}

func TestDecodeStateUnknownTierLabel(t *testing.T) {
	// A renamed or legacy label degrades to the quiet state rather
	// than failing the evaluation
	raw := `{"consecutiveHighCount":1,"consecutiveLowCount":0,"lastNotifiedTier":"NIVEL_090"}`

	st, err := decodeState("sensor-01", []byte(raw))
	if err != nil {
		t.Fatalf("decodeState returned error: %v", err)
	}
	if st.LastNotifiedTier != risk.None {
		t.Errorf("tier = %v, want None for unknown label", st.LastNotifiedTier)
	}
	if st.ConsecutiveHighCount != 1 {
		t.Errorf("high count = %d, want 1", st.ConsecutiveHighCount)
	}
}
