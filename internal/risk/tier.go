package risk

import (
	"encoding/json"
	"fmt"
)

// Tier is a discrete risk classification for a noise level. The
// integer value is the escalation rank: comparisons must use the rank,
// never the label string.
type Tier int

const (
	None Tier = iota
	Low85
	Med90
	Med95
	High100
	High105
	Crit110
	Crit115
)

var tierLabels = map[Tier]string{
	None:    "NONE",
	Low85:   "LOW_85",
	Med90:   "MED_90",
	Med95:   "MED_95",
	High100: "HIGH_100",
	High105: "HIGH_105",
	Crit110: "CRIT_110",
	Crit115: "CRIT_115",
}

// String returns the stable tier label used in persisted state.
func (t Tier) String() string {
	if label, ok := tierLabels[t]; ok {
		return label
	}
	return fmt.Sprintf("TIER_%d", int(t))
}

// Above reports whether t is strictly higher than other in the
// escalation order.
func (t Tier) Above(other Tier) bool {
	return t > other
}

// ParseTier maps a persisted label back to its tier. Unknown labels
// map to None so a corrupted record degrades to the quiet state
// instead of failing the evaluation.
func ParseTier(label string) Tier {
	for t, l := range tierLabels {
		if l == label {
			return t
		}
	}
	return None
}

// MarshalJSON encodes the tier as its label string.
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a tier label string.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	*t = ParseTier(label)
	return nil
}
