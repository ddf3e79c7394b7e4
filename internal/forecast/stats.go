package forecast

import (
	"fmt"
	"math"
)

const (
	DefaultWindow   = 3
	DefaultEMAAlpha = 0.3

	seasonalLag       = 12
	seasonalThreshold = 0.3
)

// SimpleMovingAverage returns the mean of the last window values, or of all
// values when fewer exist or window <= 0. An empty series averages to 0.
func SimpleMovingAverage(data []DataPoint, window int) float64 {
	if len(data) == 0 {
		return 0
	}
	return mean(Values(tail(data, window)))
}

// ExponentialMovingAverage runs ema[i] = alpha*v[i] + (1-alpha)*ema[i-1]
// seeded with the first value and returns the last ema.
func ExponentialMovingAverage(data []DataPoint, alpha float64) float64 {
	if len(data) == 0 {
		return 0
	}
	ema := data[0].Value
	for _, p := range data[1:] {
		ema = alpha*p.Value + (1-alpha)*ema
	}
	return ema
}

// LinearRegression fits value = slope*index + intercept by ordinary least
// squares. Points are treated as equally spaced; dates are ignored.
// A series with zero variance is fitted exactly, so its R2 is 1.
func LinearRegression(data []DataPoint) Regression {
	n := float64(len(data))
	if len(data) < 2 {
		return Regression{}
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, p := range data {
		x := float64(i)
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return Regression{}
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssRes, ssTot float64
	for i, p := range data {
		predicted := slope*float64(i) + intercept
		ssRes += (p.Value - predicted) * (p.Value - predicted)
		ssTot += (p.Value - meanY) * (p.Value - meanY)
	}
	r2 := 1.0
	if ssTot != 0 {
		r2 = 1 - ssRes/ssTot
	}
	return Regression{Slope: slope, Intercept: intercept, R2: r2}
}

// DetectSeasonality reports a yearly pattern when the lag-12 autocorrelation
// exceeds 0.3 in absolute value. Fewer than 12 points never qualify.
func DetectSeasonality(data []DataPoint) bool {
	if len(data) < seasonalLag {
		return false
	}
	values := Values(data)
	m := mean(values)

	var num, den float64
	for i := range values {
		d := values[i] - m
		den += d * d
		if i >= seasonalLag {
			num += d * (values[i-seasonalLag] - m)
		}
	}
	if den == 0 {
		return false
	}
	return math.Abs(num/den) > seasonalThreshold
}

// CalculateMAE returns the mean absolute error between two equal-length
// series. Mismatched or empty series are not comparable and yield 0.
func CalculateMAE(actual, predicted []float64) float64 {
	mae, err := CalculateMAEStrict(actual, predicted)
	if err != nil {
		return 0
	}
	return mae
}

// CalculateMAEStrict is CalculateMAE that reports mismatched lengths.
func CalculateMAEStrict(actual, predicted []float64) (float64, error) {
	if len(actual) != len(predicted) {
		return 0, fmt.Errorf("%w: %d actual vs %d predicted", ErrLengthMismatch, len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return 0, nil
	}
	var sum float64
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual)), nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// populationStdDev is the standard deviation of values around their mean,
// dividing by n.
func populationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sumSq float64
	for _, v := range values {
		sumSq += (v - m) * (v - m)
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// rootMeanSquare is the standard deviation of residuals assumed to be
// centred on zero.
func rootMeanSquare(residuals []float64) float64 {
	if len(residuals) == 0 {
		return 0
	}
	var sumSq float64
	for _, r := range residuals {
		sumSq += r * r
	}
	return math.Sqrt(sumSq / float64(len(residuals)))
}

func tail(data []DataPoint, window int) []DataPoint {
	if window <= 0 || window >= len(data) {
		return data
	}
	return data[len(data)-window:]
}
