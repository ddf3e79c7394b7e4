package forecast

import (
	"fmt"
	"math"
	"sort"
)

const (
	DefaultSmoothingAlpha = 0.3
	DefaultSmoothingBeta  = 0.1

	// Holt's method needs a level and an initial trend to start from.
	minSmoothingPoints = 3
)

// LinearTrendForecast extrapolates an index-based least squares line.
// Accuracy is 1-|R2|: lower means a better in-sample fit.
func LinearTrendForecast(data []DataPoint, periodsAhead int) ForecastResult {
	reg := LinearRegression(data)
	n := len(data)

	residuals := make([]float64, n)
	for i, p := range data {
		residuals[i] = p.Value - (reg.Slope*float64(i) + reg.Intercept)
	}
	stdDev := rootMeanSquare(residuals)

	accuracy := 1 - math.Abs(reg.R2)
	return ForecastResult{
		Method: LabelLinearTrend,
		// Step i is evaluated at index n+i.
		Forecasts: project(data, periodsAhead, stdDev, func(step int) float64 {
			return reg.Slope*float64(n+step) + reg.Intercept
		}),
		Accuracy:    &accuracy,
		Trend:       ClassifySlope(reg.Slope),
		Seasonality: DetectSeasonality(data),
	}
}

// ExponentialSmoothingForecast applies Holt's linear method with level
// smoothing alpha and trend smoothing beta. Series shorter than three points
// fall back to LinearTrendForecast. Accuracy is the in-sample mean absolute
// error of the smoothed level.
func ExponentialSmoothingForecast(data []DataPoint, periodsAhead int, alpha, beta float64) ForecastResult {
	if len(data) < minSmoothingPoints {
		return LinearTrendForecast(data, periodsAhead)
	}

	level := data[0].Value
	trend := data[1].Value - data[0].Value
	smoothed := make([]float64, len(data))
	smoothed[0] = level
	for i := 1; i < len(data); i++ {
		prevLevel := level
		level = alpha*data[i].Value + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
		smoothed[i] = level
	}

	actual := Values(data)
	residuals := make([]float64, len(data))
	for i := range actual {
		residuals[i] = actual[i] - smoothed[i]
	}
	stdDev := rootMeanSquare(residuals)

	accuracy := CalculateMAE(actual, smoothed)
	return ForecastResult{
		Method: LabelExponentialSmoothing,
		Forecasts: project(data, periodsAhead, stdDev, func(step int) float64 {
			return level + float64(step)*trend
		}),
		Accuracy:    &accuracy,
		Trend:       ClassifyHoltTrend(trend),
		Seasonality: DetectSeasonality(data),
	}
}

// MovingAverageForecast predicts the simple moving average of the last
// window values for every step. The band comes from the population standard
// deviation of that same window.
func MovingAverageForecast(data []DataPoint, periodsAhead int, window int) ForecastResult {
	avg := SimpleMovingAverage(data, window)
	volatility := populationStdDev(Values(tail(data, window)))

	return ForecastResult{
		Method: LabelMovingAverage,
		Forecasts: project(data, periodsAhead, volatility, func(int) float64 {
			return avg
		}),
		Trend:       ClassifyRecentDelta(data),
		Seasonality: DetectSeasonality(data),
	}
}

// Weights maps a method to its share of the ensemble prediction.
type Weights map[Method]float64

// DefaultWeights are the ensemble weights used by EnsembleForecast.
func DefaultWeights() Weights {
	return Weights{
		MethodLinear:        0.4,
		MethodExponential:   0.4,
		MethodMovingAverage: 0.2,
	}
}

const weightTolerance = 1e-9

// Validate checks that only the three base methods are weighted, that no
// weight is negative and that the weights sum to 1.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidWeights)
	}
	var sum float64
	for _, m := range sortedMethods(w) {
		v := w[m]
		switch m {
		case MethodLinear, MethodExponential, MethodMovingAverage:
		default:
			return fmt.Errorf("%w: method %q cannot be weighted", ErrInvalidWeights, m)
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidWeights, m, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %v, want 1", ErrInvalidWeights, sum)
	}
	return nil
}

// EnsembleForecast blends the linear, exponential smoothing and moving
// average forecasts 0.4/0.4/0.2. The band spans the widest of the three.
// Series shorter than three points fall back to LinearTrendForecast.
func EnsembleForecast(data []DataPoint, periodsAhead int) ForecastResult {
	return ensemble(data, periodsAhead, DefaultWeights())
}

// EnsembleForecastWeighted is EnsembleForecast with caller-supplied weights.
func EnsembleForecastWeighted(data []DataPoint, periodsAhead int, weights Weights) (ForecastResult, error) {
	if err := weights.Validate(); err != nil {
		return ForecastResult{}, err
	}
	return ensemble(data, periodsAhead, weights), nil
}

func ensemble(data []DataPoint, periodsAhead int, weights Weights) ForecastResult {
	if len(data) < minSmoothingPoints {
		return LinearTrendForecast(data, periodsAhead)
	}

	linear := LinearTrendForecast(data, periodsAhead)
	parts := map[Method]ForecastResult{
		MethodLinear:        linear,
		MethodExponential:   ExponentialSmoothingForecast(data, periodsAhead, DefaultSmoothingAlpha, DefaultSmoothingBeta),
		MethodMovingAverage: MovingAverageForecast(data, periodsAhead, DefaultWindow),
	}

	forecasts := make([]ForecastPoint, len(linear.Forecasts))
	for i := range forecasts {
		var predicted float64
		lower, upper := math.Inf(1), math.Inf(-1)
		for _, m := range []Method{MethodLinear, MethodExponential, MethodMovingAverage} {
			p := parts[m].Forecasts[i]
			predicted += weights[m] * p.Predicted
			lower = math.Min(lower, p.Lower)
			upper = math.Max(upper, p.Upper)
		}
		forecasts[i] = ForecastPoint{
			Date:      linear.Forecasts[i].Date,
			Predicted: math.Max(0, predicted),
			Lower:     lower,
			Upper:     upper,
		}
	}

	return ForecastResult{
		Method:      LabelEnsemble,
		Forecasts:   forecasts,
		Trend:       linear.Trend,
		Seasonality: DetectSeasonality(data),
	}
}

// project builds the forecast horizon: one point per month after the last
// observation, predicted floored at zero, band widened by sqrt(step).
func project(data []DataPoint, periodsAhead int, stdDev float64, predict func(step int) float64) []ForecastPoint {
	if len(data) == 0 || periodsAhead <= 0 {
		return []ForecastPoint{}
	}
	last := data[len(data)-1].Date
	out := make([]ForecastPoint, periodsAhead)
	for i := 1; i <= periodsAhead; i++ {
		predicted := math.Max(0, predict(i))
		band := stepInterval(predicted, stdDev, i)
		out[i-1] = ForecastPoint{
			Date:      addMonths(last, i),
			Predicted: predicted,
			Lower:     band.Lower,
			Upper:     band.Upper,
		}
	}
	return out
}

func sortedMethods(w Weights) []Method {
	out := make([]Method, 0, len(w))
	for m := range w {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
