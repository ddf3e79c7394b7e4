package forecast

import "math"

// DefaultZ is the normal multiplier for an approximate 95% interval.
const DefaultZ = 1.96

// ConfidenceInterval returns value ± multiplier*stdDev with the lower bound
// floored at zero, since monthly totals cannot be negative.
func ConfidenceInterval(value, stdDev, multiplier float64) Interval {
	spread := multiplier * stdDev
	return Interval{
		Lower: math.Max(0, value-spread),
		Upper: value + spread,
	}
}

// stepInterval widens the spread with the square root of the step, i.e.
// forecast error variance grows linearly with the horizon.
func stepInterval(value, stdDev float64, step int) Interval {
	return ConfidenceInterval(value, stdDev*math.Sqrt(float64(step)), DefaultZ)
}
