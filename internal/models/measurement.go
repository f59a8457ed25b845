package models

import (
	"strconv"
	"strings"
)

// Measurement is one sensor sample as stored under
// /measurements/{deviceId}/{timestamp}. Field names match the wire
// format produced by the sensor firmware; the numeric fields carry
// optional unit suffixes ("87.5 dB", "0.3 m/s2").
type Measurement struct {
	// Legacy tier label computed by some producers; the evaluator
	// always reclassifies from the dB value and ignores this.
	TierLabel string `json:"estado,omitempty"`

	// Human-readable capture date written by the sensor
	Date string `json:"fecha"`

	// Noise level as text, e.g. "87.5 dB"
	NoiseLevel string `json:"nivel_dB"`

	// Vibration as text, e.g. "0.3 m/s2"
	Vibration string `json:"vibracion_ms2"`
}

// NoiseLevelDB returns the parsed noise level in dB.
func (m *Measurement) NoiseLevelDB() float64 {
	return ParseLevel(m.NoiseLevel)
}

// VibrationMS2 returns the parsed vibration level in m/s².
func (m *Measurement) VibrationMS2() float64 {
	return ParseLevel(m.Vibration)
}

// ParseLevel parses the leading numeric portion of a sensor field,
// ignoring a trailing unit suffix. A corrupt field parses as 0 rather
// than failing the pipeline: one bad sample must not halt alerting for
// a device.
func ParseLevel(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	// Take the longest numeric prefix, like parseFloat in the sensor
	// producers
	end := len(s)
	for i, r := range s {
		numeric := (r >= '0' && r <= '9') || r == '.' || ((r == '+' || r == '-') && i == 0)
		if !numeric {
			end = i
			break
		}
	}

	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return v
}
