package forecast

// Thresholds for labelling a trend. They are in different units: the slope
// and delta thresholds are per-index changes of the value, the Holt one is
// the smoothed per-month change in currency units.
const (
	slopeThreshold     = 0.1
	holtTrendThreshold = 5.0
	deltaThreshold     = 10.0
)

func classify(v, threshold float64) Trend {
	switch {
	case v > threshold:
		return TrendIncreasing
	case v < -threshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// ClassifySlope labels a regression slope.
func ClassifySlope(slope float64) Trend { return classify(slope, slopeThreshold) }

// ClassifyHoltTrend labels the final trend component of Holt's method.
func ClassifyHoltTrend(trend float64) Trend { return classify(trend, holtTrendThreshold) }

// ClassifyRecentDelta labels the change between the last point and the
// point three steps back. Series shorter than three points are stable.
func ClassifyRecentDelta(data []DataPoint) Trend {
	if len(data) < 3 {
		return TrendStable
	}
	return classify(data[len(data)-1].Value-data[len(data)-3].Value, deltaThreshold)
}
