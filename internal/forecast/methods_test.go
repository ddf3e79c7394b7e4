package forecast

import (
	"testing"
)

func allMethods() map[string]func([]DataPoint, int) ForecastResult {
	return map[string]func([]DataPoint, int) ForecastResult{
		"linear": LinearTrendForecast,
		"exponential": func(d []DataPoint, h int) ForecastResult {
			return ExponentialSmoothingForecast(d, h, DefaultSmoothingAlpha, DefaultSmoothingBeta)
		},
		"moving_average": func(d []DataPoint, h int) ForecastResult {
			return MovingAverageForecast(d, h, DefaultWindow)
		},
		"ensemble": EnsembleForecast,
	}
}

func TestForecasts_WellFormed(t *testing.T) {
	series := map[string][]DataPoint{
		"single":     monthly(2024, 12, 250),
		"two":        monthly(2024, 11, 250, 300),
		"flat":       monthly(2024, 1, 100, 100, 100, 100, 100, 100),
		"falling":    monthly(2024, 1, 500, 400, 300, 200, 100, 0),
		"volatile":   monthly(2023, 6, 0, 900, 20, 1500, 0, 0, 700, 30, 0, 1200, 5, 800, 0, 40),
		"year-cross": monthly(2024, 10, 10, 20, 30, 40, 50),
	}
	for name, data := range series {
		for method, run := range allMethods() {
			t.Run(name+"/"+method, func(t *testing.T) {
				for _, horizon := range []int{1, 3, 12} {
					assertWellFormed(t, data, run(data, horizon), horizon)
				}
			})
		}
	}
}

func TestForecasts_EmptyInputAndHorizon(t *testing.T) {
	for method, run := range allMethods() {
		t.Run(method, func(t *testing.T) {
			if got := run(nil, 3); len(got.Forecasts) != 0 || got.Trend != TrendStable {
				t.Errorf("empty series: %+v", got)
			}
			if got := run(monthly(2024, 1, 1, 2, 3, 4), 0); len(got.Forecasts) != 0 {
				t.Errorf("zero horizon: got %d forecasts", len(got.Forecasts))
			}
		})
	}
}

func TestLinearTrendForecast_Spike(t *testing.T) {
	data := monthly(2024, 1, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 200)
	result := LinearTrendForecast(data, 3)

	assertWellFormed(t, data, result, 3)
	if result.Method != LabelLinearTrend {
		t.Errorf("method = %q", result.Method)
	}
	if result.Trend != TrendIncreasing {
		t.Errorf("trend = %q, want increasing", result.Trend)
	}
	if result.Accuracy == nil {
		t.Fatal("linear forecast should report accuracy")
	}
	first := result.Forecasts[0].Upper - result.Forecasts[0].Lower
	last := result.Forecasts[2].Upper - result.Forecasts[2].Lower
	if last <= first {
		t.Errorf("interval should widen: step1 width %v, step3 width %v", first, last)
	}
	if got := result.Forecasts[0].Date.Format(dateLayout); got != "2025-01-01" {
		t.Errorf("first forecast date = %s, want 2025-01-01", got)
	}
}

func TestLinearTrendForecast_PerfectFit(t *testing.T) {
	result := LinearTrendForecast(monthly(2024, 1, 0, 1, 2, 3, 4), 2)
	if result.Accuracy == nil || !almostEqual(*result.Accuracy, 0) {
		t.Errorf("accuracy = %v, want 0 for a perfect fit", result.Accuracy)
	}
	// Slope 1 is above the 0.1 threshold.
	if result.Trend != TrendIncreasing {
		t.Errorf("trend = %q", result.Trend)
	}
	for _, p := range result.Forecasts {
		if p.Upper != p.Lower {
			t.Errorf("zero residuals should give a zero-width band, got %+v", p)
		}
	}
}

func TestLinearTrendForecast_ClampsAtZero(t *testing.T) {
	result := LinearTrendForecast(monthly(2024, 1, 100, 80, 60, 40, 20), 3)
	if result.Trend != TrendDecreasing {
		t.Errorf("trend = %q, want decreasing", result.Trend)
	}
	for i, p := range result.Forecasts {
		if p.Predicted != 0 || p.Lower != 0 {
			t.Errorf("step %d: expected clamped point, got %+v", i+1, p)
		}
	}
}

func TestExponentialSmoothingForecast(t *testing.T) {
	t.Run("steady growth", func(t *testing.T) {
		data := monthly(2024, 1, 100, 110, 120, 130, 140, 150)
		result := ExponentialSmoothingForecast(data, 2, DefaultSmoothingAlpha, DefaultSmoothingBeta)
		if result.Method != LabelExponentialSmoothing {
			t.Errorf("method = %q", result.Method)
		}
		if result.Trend != TrendIncreasing {
			t.Errorf("trend = %q, want increasing", result.Trend)
		}
		if !almostEqual(result.Forecasts[0].Predicted, 160) || !almostEqual(result.Forecasts[1].Predicted, 170) {
			t.Errorf("predictions = %v, %v; want 160, 170", result.Forecasts[0].Predicted, result.Forecasts[1].Predicted)
		}
		if result.Accuracy == nil || !almostEqual(*result.Accuracy, 0) {
			t.Errorf("accuracy = %v, want 0", result.Accuracy)
		}
	})

	t.Run("small trend is stable", func(t *testing.T) {
		data := monthly(2024, 1, 100, 102, 104, 106)
		result := ExponentialSmoothingForecast(data, 1, DefaultSmoothingAlpha, DefaultSmoothingBeta)
		if result.Trend != TrendStable {
			t.Errorf("trend = %q, want stable for a +2/month series", result.Trend)
		}
	})

	t.Run("falls back below three points", func(t *testing.T) {
		result := ExponentialSmoothingForecast(monthly(2024, 1, 10, 20), 2, DefaultSmoothingAlpha, DefaultSmoothingBeta)
		if result.Method != LabelLinearTrend {
			t.Errorf("method = %q, want %q", result.Method, LabelLinearTrend)
		}
	})
}

func TestMovingAverageForecast(t *testing.T) {
	data := monthly(2024, 1, 50, 90, 100, 110, 120)
	result := MovingAverageForecast(data, 4, 3)

	if result.Accuracy != nil {
		t.Errorf("moving average should not report accuracy")
	}
	for i, p := range result.Forecasts {
		if !almostEqual(p.Predicted, 110) {
			t.Errorf("step %d predicted %v, want flat 110", i+1, p.Predicted)
		}
	}
	if result.Trend != TrendIncreasing {
		t.Errorf("trend = %q, want increasing (120-100=20)", result.Trend)
	}

	trends := []struct {
		values []float64
		want   Trend
	}{
		{[]float64{10, 10, 10}, TrendStable},
		{[]float64{50, 40, 20}, TrendDecreasing},
		{[]float64{10, 30}, TrendStable},
	}
	for _, tt := range trends {
		if got := MovingAverageForecast(monthly(2024, 1, tt.values...), 1, 3).Trend; got != tt.want {
			t.Errorf("trend for %v = %q, want %q", tt.values, got, tt.want)
		}
	}
}

func TestEnsembleForecast_WeightedBlend(t *testing.T) {
	data := monthly(2023, 3, 120, 80, 150, 110, 95, 170, 130, 160, 90, 140, 210, 180, 175)
	const horizon = 6

	linear := LinearTrendForecast(data, horizon)
	exp := ExponentialSmoothingForecast(data, horizon, DefaultSmoothingAlpha, DefaultSmoothingBeta)
	ma := MovingAverageForecast(data, horizon, DefaultWindow)
	result := EnsembleForecast(data, horizon)

	assertWellFormed(t, data, result, horizon)
	if result.Method != LabelEnsemble {
		t.Errorf("method = %q", result.Method)
	}
	if result.Accuracy != nil {
		t.Errorf("ensemble should not report accuracy")
	}
	if result.Trend != linear.Trend {
		t.Errorf("trend = %q, want linear's %q", result.Trend, linear.Trend)
	}
	for i, p := range result.Forecasts {
		want := 0.4*linear.Forecasts[i].Predicted + 0.4*exp.Forecasts[i].Predicted + 0.2*ma.Forecasts[i].Predicted
		if !almostEqual(p.Predicted, want) {
			t.Errorf("step %d predicted %v, want %v", i+1, p.Predicted, want)
		}
		minLower := min(linear.Forecasts[i].Lower, exp.Forecasts[i].Lower, ma.Forecasts[i].Lower)
		maxUpper := max(linear.Forecasts[i].Upper, exp.Forecasts[i].Upper, ma.Forecasts[i].Upper)
		if p.Lower != minLower || p.Upper != maxUpper {
			t.Errorf("step %d band [%v, %v], want [%v, %v]", i+1, p.Lower, p.Upper, minLower, maxUpper)
		}
	}
}

func TestEnsembleForecast_FallsBack(t *testing.T) {
	result := EnsembleForecast(monthly(2024, 1, 10, 20), 2)
	if result.Method != LabelLinearTrend {
		t.Errorf("method = %q, want %q", result.Method, LabelLinearTrend)
	}
}

func TestEnsembleForecastWeighted(t *testing.T) {
	data := monthly(2024, 1, 100, 120, 90, 130, 110)

	onlyMA, err := EnsembleForecastWeighted(data, 3, Weights{MethodMovingAverage: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ma := MovingAverageForecast(data, 3, DefaultWindow)
	for i := range onlyMA.Forecasts {
		if !almostEqual(onlyMA.Forecasts[i].Predicted, ma.Forecasts[i].Predicted) {
			t.Errorf("step %d: %v, want %v", i+1, onlyMA.Forecasts[i].Predicted, ma.Forecasts[i].Predicted)
		}
	}

	def, err := EnsembleForecastWeighted(data, 3, DefaultWeights())
	if err != nil {
		t.Fatalf("default weights rejected: %v", err)
	}
	plain := EnsembleForecast(data, 3)
	for i := range def.Forecasts {
		if def.Forecasts[i] != plain.Forecasts[i] {
			t.Errorf("step %d differs from EnsembleForecast", i+1)
		}
	}
}

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"default", DefaultWeights(), false},
		{"single method", Weights{MethodLinear: 1}, false},
		{"empty", Weights{}, true},
		{"does not sum to one", Weights{MethodLinear: 0.5, MethodExponential: 0.4}, true},
		{"negative", Weights{MethodLinear: 1.2, MethodExponential: -0.2}, true},
		{"ensemble weighting itself", Weights{MethodEnsemble: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
