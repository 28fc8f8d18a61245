package timer

import "math"

// Subscription plan identifiers as sent by Twitch.
const (
	PlanPrime = "Prime"
	PlanTier1 = "1000"
	PlanTier2 = "2000"
	PlanTier3 = "3000"
)

// Multipliers maps each contribution kind to the factor applied to the
// baseline time.
type Multipliers struct {
	Tier1    float64 `yaml:"tier_1"`
	Tier2    float64 `yaml:"tier_2"`
	Tier3    float64 `yaml:"tier_3"`
	Bits     float64 `yaml:"bits"`
	Donation float64 `yaml:"donation"`
}

// Incentives is the advertised whole-second value of each contribution kind
// at the current baseline time. Broadcast to overlays as update_incentives.
type Incentives struct {
	Tier1    int `json:"tier_1"`
	Tier2    int `json:"tier_2"`
	Tier3    int `json:"tier_3"`
	Bits     int `json:"bits"`
	Donation int `json:"donation"`
}

// Calculator converts contribution events into countdown seconds. Pure: the
// same inputs always yield the same output.
type Calculator struct {
	multipliers Multipliers
}

func NewCalculator(m Multipliers) Calculator {
	return Calculator{multipliers: m}
}

// PlanMultiplier returns the multiplier for a subscription plan. Unknown or
// absent plans fall back to tier 1 rather than erroring.
func (c Calculator) PlanMultiplier(plan string) float64 {
	switch plan {
	case PlanPrime, PlanTier1:
		return c.multipliers.Tier1
	case PlanTier2:
		return c.multipliers.Tier2
	case PlanTier3:
		return c.multipliers.Tier3
	default:
		return c.multipliers.Tier1
	}
}

// SubSeconds returns the seconds granted by one subscription of the given
// plan at baseline base.
func (c Calculator) SubSeconds(plan string, base float64) float64 {
	return round3(base * c.PlanMultiplier(plan))
}

// CheerSeconds returns the seconds granted by a cheer. Bits are normalized
// per 100 before the bits multiplier applies.
func (c Calculator) CheerSeconds(bits int, base float64) float64 {
	return round3(float64(bits) / 100 * c.multipliers.Bits * base)
}

// Incentives computes the advertised amounts for every contribution kind at
// baseline base.
func (c Calculator) Incentives(base float64) Incentives {
	return Incentives{
		Tier1:    int(math.Round(base * c.multipliers.Tier1)),
		Tier2:    int(math.Round(base * c.multipliers.Tier2)),
		Tier3:    int(math.Round(base * c.multipliers.Tier3)),
		Bits:     int(math.Round(base * c.multipliers.Bits)),
		Donation: int(math.Round(base * c.multipliers.Donation)),
	}
}

// round3 rounds to millisecond precision so repeated additions don't
// accumulate float drift in serialized timestamps.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
