package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/forecast"
	"bilancio/internal/log"
	"bilancio/internal/sheets"
)

// ErrNoForecastStore is returned by operations that persist forecasts when
// the backend has nowhere to put them.
var ErrNoForecastStore = errors.New("forecast store not configured")

// forecastLoadTimeout bounds a shared cache load, which outlives the caller
// that started it.
const forecastLoadTimeout = 30 * time.Second

// ForecastConfig holds the defaults applied to requests that leave a field
// unset, plus result cache sizing.
type ForecastConfig struct {
	Method         forecast.Method
	Weights        forecast.Weights // nil keeps the built-in ensemble weights
	LookbackMonths int
	Horizon        int
	CacheTTL       time.Duration
	CacheSize      int
	// Now is the clock used to anchor series windows. Defaults to time.Now.
	Now func() time.Time
}

// DefaultForecastConfig returns sensible defaults
func DefaultForecastConfig() ForecastConfig {
	return ForecastConfig{
		Method:         forecast.DefaultMethod,
		LookbackMonths: forecast.DefaultLookbackMonths,
		Horizon:        3,
		CacheTTL:       5 * time.Minute,
		CacheSize:      128,
	}
}

// ForecastRequest selects one forecast. Zero fields take the service defaults.
type ForecastRequest struct {
	Kind    core.TransactionKind
	Method  forecast.Method
	Months  int
	Horizon int
}

// NetPoint is the projected balance for one month.
type NetPoint struct {
	Date    time.Time
	Income  float64
	Expense float64
	Net     float64
}

func (p NetPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date    string  `json:"date"`
		Income  float64 `json:"income"`
		Expense float64 `json:"expense"`
		Net     float64 `json:"net"`
	}{p.Date.Format("2006-01-02"), p.Income, p.Expense, p.Net})
}

// Summary pairs the income and expense forecasts with the projected net.
type Summary struct {
	Income  forecast.ForecastResult `json:"income"`
	Expense forecast.ForecastResult `json:"expense"`
	Net     []NetPoint              `json:"net"`
}

// ForecastService builds monthly series from stored transactions and runs
// the forecasting methods over them. Results are cached per request and
// calendar month.
type ForecastService struct {
	lister   sheets.TransactionLister
	store    sheets.ForecastStore
	config   ForecastConfig
	ensemble forecast.Forecaster
	results  *cache.Loader[forecast.ForecastResult]
	logger   *log.Logger
	events   *log.StructuredLogger
}

// NewForecastService wires a lister and an optional forecast store.
func NewForecastService(lister sheets.TransactionLister, store sheets.ForecastStore, config ForecastConfig, logger *log.Logger) (*ForecastService, error) {
	defaults := DefaultForecastConfig()
	if config.Method == "" {
		config.Method = defaults.Method
	}
	if _, err := forecast.Lookup(config.Method); err != nil {
		return nil, err
	}
	if config.LookbackMonths <= 0 {
		config.LookbackMonths = defaults.LookbackMonths
	}
	if config.Horizon <= 0 {
		config.Horizon = defaults.Horizon
	}
	if config.CacheSize <= 0 {
		config.CacheSize = defaults.CacheSize
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentForecast)

	s := &ForecastService{
		lister:  lister,
		store:   store,
		config:  config,
		results: cache.NewLoader(cache.NewLRUCache[forecast.ForecastResult](config.CacheSize, config.CacheTTL)),
		logger:  logger,
		events:  log.NewStructuredLogger(logger),
	}
	if config.Weights != nil {
		f, err := forecast.WeightedEnsemble(config.Weights)
		if err != nil {
			return nil, err
		}
		s.ensemble = f
	}
	return s, nil
}

// Cache exposes the result cache for registration with a cache.Manager.
func (s *ForecastService) Cache() *cache.LRUCache[forecast.ForecastResult] {
	return s.results.Cache()
}

// Config returns the effective defaults.
func (s *ForecastService) Config() ForecastConfig {
	return s.config
}

// Series returns the last months monthly totals of kind, ending with the
// current month. months <= 0 uses the configured lookback.
func (s *ForecastService) Series(ctx context.Context, kind core.TransactionKind, months int) ([]forecast.DataPoint, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	if months <= 0 {
		months = s.config.LookbackMonths
	}

	now := s.config.Now().UTC()
	from := time.Date(now.Year(), now.Month()-time.Month(months-1), 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)

	if totaler, ok := s.lister.(sheets.MonthlyTotaler); ok {
		totals, err := totaler.MonthlyTotals(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("monthly totals: %w", err)
		}
		return forecast.PrepareMonthlyData(forecast.FromMonthlyTotals(totals), kind, months, now), nil
	}

	txs, err := s.lister.ListTransactions(ctx, kind, from, to)
	if err != nil {
		return nil, fmt.Errorf("list %s transactions: %w", kind, err)
	}
	return forecast.PrepareMonthlyData(forecast.FromTransactions(txs), kind, months, now), nil
}

func (s *ForecastService) normalize(req ForecastRequest) (ForecastRequest, error) {
	if !req.Kind.IsValid() {
		return req, fmt.Errorf("%w: %q", core.ErrInvalidKind, req.Kind)
	}
	if req.Method == "" {
		req.Method = s.config.Method
	}
	if _, err := forecast.Lookup(req.Method); err != nil {
		return req, err
	}
	if req.Months <= 0 {
		req.Months = s.config.LookbackMonths
	}
	if req.Horizon <= 0 {
		req.Horizon = s.config.Horizon
	}
	return req, nil
}

func cacheKey(req ForecastRequest, now time.Time) string {
	return fmt.Sprintf("%s|%s|%d|%d|%s", req.Kind, req.Method, req.Months, req.Horizon, now.Format("2006-01"))
}

// Forecast runs the requested method over the kind's series.
func (s *ForecastService) Forecast(ctx context.Context, req ForecastRequest) (forecast.ForecastResult, error) {
	req, err := s.normalize(req)
	if err != nil {
		return forecast.ForecastResult{}, err
	}

	key := cacheKey(req, s.config.Now().UTC())
	result, hit, err := s.results.Get(ctx, key, func(ctx context.Context) (forecast.ForecastResult, error) {
		ctx, cancel := context.WithTimeout(ctx, forecastLoadTimeout)
		defer cancel()
		data, err := s.Series(ctx, req.Kind, req.Months)
		if err != nil {
			return forecast.ForecastResult{}, err
		}
		return s.run(req.Method, data, req.Horizon)
	})
	if err != nil {
		return forecast.ForecastResult{}, err
	}

	s.events.LogForecast(ctx, string(req.Kind), string(req.Method), req.Months, req.Horizon, string(result.Trend), hit)
	return result, nil
}

func (s *ForecastService) run(method forecast.Method, data []forecast.DataPoint, horizon int) (forecast.ForecastResult, error) {
	if method == forecast.MethodEnsemble && s.ensemble != nil {
		return s.ensemble.Forecast(data, horizon), nil
	}
	return forecast.Run(method, data, horizon)
}

// Summary forecasts income and expense concurrently and projects the net
// balance month by month.
func (s *ForecastService) Summary(ctx context.Context, method forecast.Method, months, horizon int) (Summary, error) {
	var sum Summary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.Forecast(gctx, ForecastRequest{Kind: core.Income, Method: method, Months: months, Horizon: horizon})
		sum.Income = r
		return err
	})
	g.Go(func() error {
		r, err := s.Forecast(gctx, ForecastRequest{Kind: core.Expense, Method: method, Months: months, Horizon: horizon})
		sum.Expense = r
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	sum.Net = NetBalance(sum.Income.Forecasts, sum.Expense.Forecasts)
	return sum, nil
}

// NetBalance pairs income and expense predictions by position.
func NetBalance(income, expense []forecast.ForecastPoint) []NetPoint {
	n := min(len(income), len(expense))
	out := make([]NetPoint, n)
	for i := 0; i < n; i++ {
		out[i] = NetPoint{
			Date:    income[i].Date,
			Income:  income[i].Predicted,
			Expense: expense[i].Predicted,
			Net:     income[i].Predicted - expense[i].Predicted,
		}
	}
	return out
}

// Snapshot computes the kind's forecast with the given method (the default
// when empty) and stores it for later comparison with actuals.
func (s *ForecastService) Snapshot(ctx context.Context, kind core.TransactionKind, method forecast.Method, months int) (sheets.Snapshot, error) {
	if s.store == nil {
		return sheets.Snapshot{}, ErrNoForecastStore
	}

	result, err := s.Forecast(ctx, ForecastRequest{Kind: kind, Method: method, Months: months})
	if err != nil {
		return sheets.Snapshot{}, err
	}
	if method == "" {
		method = s.config.Method
	}

	snap := sheets.Snapshot{
		Kind:        kind,
		Method:      method,
		GeneratedAt: s.config.Now().UTC(),
		Result:      result,
	}
	id, err := s.store.SaveForecast(ctx, snap)
	if err != nil {
		return sheets.Snapshot{}, fmt.Errorf("save %s forecast: %w", kind, err)
	}
	snap.ID = id

	s.logger.InfoContext(ctx, "Forecast snapshot stored",
		log.FieldSnapshotID, id,
		log.FieldKind, string(kind),
		log.FieldForecast, string(method),
		log.FieldTrend, string(result.Trend))
	return snap, nil
}

// LatestSnapshot returns the most recent stored forecast for kind and method.
func (s *ForecastService) LatestSnapshot(ctx context.Context, kind core.TransactionKind, method forecast.Method) (sheets.Snapshot, error) {
	if s.store == nil {
		return sheets.Snapshot{}, ErrNoForecastStore
	}
	if method == "" {
		method = s.config.Method
	}
	return s.store.LatestForecast(ctx, kind, method)
}

// ReconcileActuals fills the actual value of stored forecast points whose
// month has closed. It returns how many points were updated.
func (s *ForecastService) ReconcileActuals(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, ErrNoForecastStore
	}

	now := s.config.Now().UTC()
	currentMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	pending, err := s.store.PendingActuals(ctx, currentMonth)
	if err != nil {
		return 0, fmt.Errorf("pending actuals: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	earliest := map[core.TransactionKind]time.Time{}
	for _, p := range pending {
		if e, ok := earliest[p.Kind]; !ok || p.Month.Before(e) {
			earliest[p.Kind] = p.Month
		}
	}

	observed := map[core.TransactionKind]map[string]float64{}
	for kind, from := range earliest {
		months := monthsBetween(from, currentMonth) + 1
		series, err := s.Series(ctx, kind, months)
		if err != nil {
			return 0, err
		}
		byMonth := make(map[string]float64, len(series))
		for _, p := range series {
			byMonth[p.Date.Format("2006-01")] = p.Value
		}
		observed[kind] = byMonth
	}

	updated := 0
	for _, p := range pending {
		v, ok := observed[p.Kind][p.Month.Format("2006-01")]
		if !ok {
			continue
		}
		if err := s.store.SetActual(ctx, p.PointID, v); err != nil {
			return updated, fmt.Errorf("set actual for point %d: %w", p.PointID, err)
		}
		updated++
	}

	s.logger.InfoContext(ctx, "Forecast actuals reconciled", log.FieldReconciled, updated)
	return updated, nil
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// Invalidate drops cached results for kind, or for every kind when empty.
func (s *ForecastService) Invalidate(kind core.TransactionKind) int {
	if kind == "" {
		return s.results.Forget(func(string) bool { return true })
	}
	prefix := string(kind) + "|"
	return s.results.Forget(func(key string) bool { return strings.HasPrefix(key, prefix) })
}
