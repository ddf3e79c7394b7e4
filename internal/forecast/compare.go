package forecast

import "math"

// AttachActuals returns a copy of result whose points carry the observed
// value for every month present in actuals. Points without an observation
// keep their previous Actual.
func AttachActuals(result ForecastResult, actuals []DataPoint) ForecastResult {
	observed := make(map[string]float64, len(actuals))
	for _, p := range actuals {
		observed[p.Date.Format("2006-01")] = p.Value
	}

	out := result
	out.Forecasts = make([]ForecastPoint, len(result.Forecasts))
	for i, p := range result.Forecasts {
		if v, ok := observed[p.Date.Format("2006-01")]; ok {
			p.Actual = &v
		}
		out.Forecasts[i] = p
	}
	return out
}

// RealizedError is the mean absolute error of the predictions that already
// have an actual value. ok is false when no point has one.
func RealizedError(points []ForecastPoint) (mae float64, ok bool) {
	var sum float64
	var n int
	for _, p := range points {
		if p.Actual == nil {
			continue
		}
		sum += math.Abs(*p.Actual - p.Predicted)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Coverage is the share of points with an actual that fell inside their
// band. ok is false when no point has an actual.
func Coverage(points []ForecastPoint) (ratio float64, ok bool) {
	var inside, n int
	for _, p := range points {
		if p.Actual == nil {
			continue
		}
		n++
		if *p.Actual >= p.Lower && *p.Actual <= p.Upper {
			inside++
		}
	}
	if n == 0 {
		return 0, false
	}
	return float64(inside) / float64(n), true
}
