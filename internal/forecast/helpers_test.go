package forecast

import (
	"math"
	"testing"
	"time"
)

const tolerance = 1e-9

// monthly builds a series starting at the given month with one point per value.
func monthly(year int, month time.Month, values ...float64) []DataPoint {
	out := make([]DataPoint, len(values))
	for i, v := range values {
		out[i] = DataPoint{Date: time.Date(year, month+time.Month(i), 1, 0, 0, 0, 0, time.UTC), Value: v}
	}
	return out
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func assertWellFormed(t *testing.T, data []DataPoint, result ForecastResult, periodsAhead int) {
	t.Helper()
	if len(result.Forecasts) != periodsAhead {
		t.Fatalf("%s: got %d forecasts, want %d", result.Method, len(result.Forecasts), periodsAhead)
	}
	prev := data[len(data)-1].Date
	for i, p := range result.Forecasts {
		if want := prev.AddDate(0, 1, 0); !p.Date.Equal(want) {
			t.Errorf("%s step %d: date %s, want %s", result.Method, i+1, p.Date.Format(dateLayout), want.Format(dateLayout))
		}
		if p.Predicted < 0 || p.Lower < 0 || p.Upper < p.Lower {
			t.Errorf("%s step %d: invalid point %+v", result.Method, i+1, p)
		}
		prev = p.Date
	}
}
