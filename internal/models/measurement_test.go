package models_test

import (
	"encoding/json"
	"testing"

	"noisewatch/internal/models"
	"noisewatch/internal/risk"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"plain number", "87.5", 87.5},
		{"with dB suffix", "87.5 dB", 87.5},
		{"with dBA suffix", "92 dBA", 92},
		{"suffix without space", "87.5dB", 87.5},
		{"vibration unit", "0.3 m/s2", 0.3},
		{"integer", "110", 110},
		{"negative", "-3.5 dB", -3.5},
		{"leading whitespace", "  95.0 dB", 95.0},
		{"empty", "", 0},
		{"garbage", "sensor error", 0},
		{"bare sign", "-", 0},
		{"bare dot", ".", 0},
		{"double dot", "1.2.3", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := models.ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestMeasurementDecode(t *testing.T) {
	raw := `{"estado":"NIVEL_090","fecha":"2024-03-01 10:15:00","nivel_dB":"91.2 dB","vibracion_ms2":"0.4 m/s2"}`

	var m models.Measurement
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if m.NoiseLevelDB() != 91.2 {
		t.Errorf("NoiseLevelDB() = %v, want 91.2", m.NoiseLevelDB())
	}
	if m.VibrationMS2() != 0.4 {
		t.Errorf("VibrationMS2() = %v, want 0.4", m.VibrationMS2())
	}
	if m.TierLabel != "NIVEL_090" {
		t.Errorf("TierLabel = %q, want legacy label preserved", m.TierLabel)
	}
}

func TestChangeEventValidate(t *testing.T) {
	valid := func() *models.ChangeEvent {
		return &models.ChangeEvent{
			DeviceID:  "sensor-01",
			Timestamp: "1709288100",
			After:     &models.Measurement{NoiseLevel: "88 dB"},
		}
	}

	tests := []struct {
		name    string
		modify  func(*models.ChangeEvent)
		wantErr error
	}{
		{"valid event", func(e *models.ChangeEvent) {}, nil},
		{"deletion is valid", func(e *models.ChangeEvent) { e.After = nil }, nil},
		{"empty device ID", func(e *models.ChangeEvent) { e.DeviceID = "" }, models.ErrEmptyDeviceID},
		{"whitespace device ID", func(e *models.ChangeEvent) { e.DeviceID = "   " }, models.ErrEmptyDeviceID},
		{"empty timestamp", func(e *models.ChangeEvent) { e.Timestamp = "" }, models.ErrEmptyTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid()
			tt.modify(e)
			e.Normalize()
			if err := e.Validate(); err != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChangeEventIsDeletion(t *testing.T) {
	e := &models.ChangeEvent{
		DeviceID:  "sensor-01",
		Timestamp: "1709288100",
		Before:    &models.Measurement{NoiseLevel: "88 dB"},
	}
	if !e.IsDeletion() {
		t.Error("event without after snapshot should be a deletion")
	}

	e.After = &models.Measurement{NoiseLevel: "90 dB"}
	if e.IsDeletion() {
		t.Error("event with after snapshot should not be a deletion")
	}
}

func TestAlertStateJSONRoundTrip(t *testing.T) {
	st := models.AlertState{
		ConsecutiveHighCount: 3,
		ConsecutiveLowCount:  0,
		LastNotifiedTier:     risk.Med90,
	}

	data, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded models.AlertState
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded != st {
		t.Errorf("round trip = %+v, want %+v", decoded, st)
	}
}

func TestAlertStateZeroValue(t *testing.T) {
	var st models.AlertState
	if st.Alerting() {
		t.Error("zero state must be quiet")
	}
	if st.LastNotifiedTier != risk.None {
		t.Errorf("zero state tier = %v, want None", st.LastNotifiedTier)
	}
}
