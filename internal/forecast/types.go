// Package forecast predicts future monthly totals from a short history of
// income or expense aggregates.
//
// Everything in this package is a pure function over its inputs: no I/O,
// no logging, no package state other than the method registry. Degenerate
// inputs (empty series, too few points, zero variance) fall back to neutral
// values instead of returning errors so results can always be rendered; the
// *Strict variants exist for callers that want malformed input surfaced.
package forecast

import (
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Trend labels the direction of a series.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Display labels reported in ForecastResult.Method.
const (
	LabelLinearTrend          = "Linear Trend"
	LabelExponentialSmoothing = "Exponential Smoothing"
	LabelMovingAverage        = "Moving Average"
	LabelEnsemble             = "Ensemble"
)

// DataPoint is one month's aggregated total. Date is always the first day
// of the month, UTC.
type DataPoint struct {
	Date  time.Time
	Value float64
}

// ForecastPoint is a predicted monthly total with its confidence band.
// Actual is filled in once the month has closed.
type ForecastPoint struct {
	Date      time.Time
	Predicted float64
	Lower     float64
	Upper     float64
	Actual    *float64
}

// ForecastResult is the output of one forecasting method. Forecasts has one
// point per requested step, in chronological order.
type ForecastResult struct {
	Method      string
	Forecasts   []ForecastPoint
	Accuracy    *float64 // meaning depends on the method, see each forecaster
	Trend       Trend
	Seasonality bool
}

// Regression holds an ordinary least squares fit of value against index.
type Regression struct {
	Slope     float64
	Intercept float64
	R2        float64
}

// Interval is a non-negative lower bound and an upper bound around a value.
type Interval struct {
	Lower float64
	Upper float64
}

// Values extracts the values of a series.
func Values(data []DataPoint) []float64 {
	out := make([]float64, len(data))
	for i, p := range data {
		out[i] = p.Value
	}
	return out
}

type dataPointJSON struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

func (p DataPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(dataPointJSON{Date: p.Date.Format(dateLayout), Value: p.Value})
}

func (p *DataPoint) UnmarshalJSON(b []byte) error {
	var raw dataPointJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d, err := time.Parse(dateLayout, raw.Date)
	if err != nil {
		return fmt.Errorf("data point date: %w", err)
	}
	p.Date, p.Value = d, raw.Value
	return nil
}

type forecastPointJSON struct {
	Date      string   `json:"date"`
	Predicted float64  `json:"predicted"`
	Lower     float64  `json:"lower"`
	Upper     float64  `json:"upper"`
	Actual    *float64 `json:"actual,omitempty"`
}

func (p ForecastPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(forecastPointJSON{
		Date:      p.Date.Format(dateLayout),
		Predicted: p.Predicted,
		Lower:     p.Lower,
		Upper:     p.Upper,
		Actual:    p.Actual,
	})
}

func (p *ForecastPoint) UnmarshalJSON(b []byte) error {
	var raw forecastPointJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d, err := time.Parse(dateLayout, raw.Date)
	if err != nil {
		return fmt.Errorf("forecast point date: %w", err)
	}
	*p = ForecastPoint{Date: d, Predicted: raw.Predicted, Lower: raw.Lower, Upper: raw.Upper, Actual: raw.Actual}
	return nil
}

// MarshalJSON keeps the field names used by the chart front-end.
func (r ForecastResult) MarshalJSON() ([]byte, error) {
	forecasts := r.Forecasts
	if forecasts == nil {
		forecasts = []ForecastPoint{}
	}
	return json.Marshal(struct {
		Method      string          `json:"method"`
		Forecasts   []ForecastPoint `json:"forecasts"`
		Accuracy    *float64        `json:"accuracy,omitempty"`
		Trend       Trend           `json:"trend"`
		Seasonality bool            `json:"seasonality"`
	}{r.Method, forecasts, r.Accuracy, r.Trend, r.Seasonality})
}
