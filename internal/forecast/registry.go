package forecast

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Method names a forecasting strategy in configuration, URLs and storage.
type Method string

const (
	MethodLinear        Method = "linear"
	MethodExponential   Method = "exponential"
	MethodMovingAverage Method = "moving_average"
	MethodEnsemble      Method = "ensemble"
)

// DefaultMethod is used when no method is requested.
const DefaultMethod = MethodEnsemble

// Forecaster is the strategy interface: it turns a monthly series into a
// forecast of periodsAhead months.
type Forecaster interface {
	Forecast(data []DataPoint, periodsAhead int) ForecastResult
}

// ForecasterFunc adapts a function to the Forecaster interface.
type ForecasterFunc func(data []DataPoint, periodsAhead int) ForecastResult

func (f ForecasterFunc) Forecast(data []DataPoint, periodsAhead int) ForecastResult {
	return f(data, periodsAhead)
}

var (
	registryMu sync.RWMutex
	registry   = map[Method]Forecaster{
		MethodLinear: ForecasterFunc(LinearTrendForecast),
		MethodExponential: ForecasterFunc(func(data []DataPoint, periodsAhead int) ForecastResult {
			return ExponentialSmoothingForecast(data, periodsAhead, DefaultSmoothingAlpha, DefaultSmoothingBeta)
		}),
		MethodMovingAverage: ForecasterFunc(func(data []DataPoint, periodsAhead int) ForecastResult {
			return MovingAverageForecast(data, periodsAhead, DefaultWindow)
		}),
		MethodEnsemble: ForecasterFunc(EnsembleForecast),
	}
)

// ParseMethod normalises a method name ("Moving-Average" → moving_average)
// and checks that it is registered.
func ParseMethod(s string) (Method, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.NewReplacer("-", "_", " ", "_").Replace(name)
	m := Method(name)
	if _, err := Lookup(m); err != nil {
		return "", err
	}
	return m, nil
}

// Lookup returns the forecaster registered for m.
func Lookup(m Method) (Forecaster, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, m)
	}
	return f, nil
}

// Register adds or replaces the forecaster for m, e.g. an ensemble built
// with configured weights.
func Register(m Method, f Forecaster) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[m] = f
}

// Methods lists the registered method names in alphabetical order.
func Methods() []Method {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Method, 0, len(registry))
	for m := range registry {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Run forecasts data with the named method.
func Run(m Method, data []DataPoint, periodsAhead int) (ForecastResult, error) {
	f, err := Lookup(m)
	if err != nil {
		return ForecastResult{}, err
	}
	return f.Forecast(data, periodsAhead), nil
}

// WeightedEnsemble returns a Forecaster blending with the given weights,
// validated up front.
func WeightedEnsemble(weights Weights) (Forecaster, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	w := make(Weights, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return ForecasterFunc(func(data []DataPoint, periodsAhead int) ForecastResult {
		return ensemble(data, periodsAhead, w)
	}), nil
}

// ParseWeights reads "linear=0.4,exponential=0.4,moving_average=0.2".
func ParseWeights(s string) (Weights, error) {
	w := Weights{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not name=value", ErrInvalidWeights, part)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidWeights, part, err)
		}
		w[Method(strings.TrimSpace(name))] = v
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}
