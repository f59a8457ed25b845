package risk

// band is one row of the exposure table: a tier, its lower bound in
// dB, and the advisory shown to workers in the area.
type band struct {
	tier     Tier
	lowerDB  float64
	advisory string
}

// Exposure table, scanned from the highest bound down. The bounds and
// advisories are business constants from the occupational exposure
// limits and must not be approximated.
var bands = []band{
	{Crit115, 115, "IMMINENT DANGER! Maximum exposure: 7 minutes. Evacuate the area."},
	{Crit110, 110, "CRITICAL RISK! Maximum exposure: 15 minutes. Use double hearing protection."},
	{High105, 105, "VERY HIGH RISK! Maximum exposure: 30 minutes. Use double hearing protection."},
	{High100, 100, "HIGH RISK! Maximum exposure: 1 hour. Use double hearing protection."},
	{Med95, 95, "RISK! Maximum exposure: 2 hours. Ensure your hearing protection."},
	{Med90, 90, "RISK! Maximum exposure: 4 hours. Ensure your hearing protection."},
	{Low85, 85, "CAUTION: Elevated noise. Maximum exposure: 8 hours. Use your hearing protection."},
}

// Classify maps a noise level in dB to its risk tier and advisory.
// Levels below the lowest bound classify as None with an empty
// advisory.
func Classify(noiseLevelDB float64) (Tier, string) {
	for _, b := range bands {
		if noiseLevelDB >= b.lowerDB {
			return b.tier, b.advisory
		}
	}
	return None, ""
}

// Threshold returns the lower bound in dB for a tier, or 0 for None.
func (t Tier) Threshold() float64 {
	for _, b := range bands {
		if b.tier == t {
			return b.lowerDB
		}
	}
	return 0
}
