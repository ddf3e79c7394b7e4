package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/forecast"
	"bilancio/internal/sheets"
	"bilancio/internal/sheets/memory"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type countingLister struct {
	sheets.TransactionLister
	calls int64
}

func (l *countingLister) ListTransactions(ctx context.Context, kind core.TransactionKind, from, to time.Time) ([]core.Transaction, error) {
	atomic.AddInt64(&l.calls, 1)
	return l.TransactionLister.ListTransactions(ctx, kind, from, to)
}

func (l *countingLister) count() int64 { return atomic.LoadInt64(&l.calls) }

// gatedLister blocks its first call until release is closed, then honours
// the call's context.
type gatedLister struct {
	sheets.TransactionLister
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedLister(inner sheets.TransactionLister) *gatedLister {
	return &gatedLister{TransactionLister: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (l *gatedLister) ListTransactions(ctx context.Context, kind core.TransactionKind, from, to time.Time) ([]core.Transaction, error) {
	first := false
	l.once.Do(func() { first = true })
	if first {
		close(l.entered)
		<-l.release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return l.TransactionLister.ListTransactions(ctx, kind, from, to)
}

// seededStore holds expenses of 100..600 for Jan..Jun 2025 and a flat
// 2000 income for the same months.
func seededStore() *memory.Store {
	var txs []core.Transaction
	for m := 1; m <= 6; m++ {
		txs = append(txs,
			core.Transaction{
				Date:        core.NewDate(2025, m, 10),
				Kind:        core.Expense,
				Description: "spesa",
				Amount:      core.Money{Cents: int64(m) * 10000},
				Primary:     "Casa",
			},
			core.Transaction{
				Date:        core.NewDate(2025, m, 27),
				Kind:        core.Income,
				Description: "stipendio",
				Amount:      core.Money{Cents: 200000},
			},
		)
	}
	return memory.New(txs...)
}

func newTestForecastService(t *testing.T, lister sheets.TransactionLister, store sheets.ForecastStore, clock *testClock, mutate func(*ForecastConfig)) *ForecastService {
	t.Helper()
	cfg := DefaultForecastConfig()
	cfg.Now = clock.now
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewForecastService(lister, store, cfg, nil)
	if err != nil {
		t.Fatalf("NewForecastService() error = %v", err)
	}
	return svc
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestForecastService_Series(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	svc := newTestForecastService(t, seededStore(), nil, clock, nil)
	ctx := context.Background()

	data, err := svc.Series(ctx, core.Expense, 6)
	if err != nil {
		t.Fatalf("Series() error = %v", err)
	}
	if len(data) != 6 {
		t.Fatalf("Series() returned %d points, want 6", len(data))
	}
	for i, p := range data {
		want := float64(i+1) * 100
		if !approx(p.Value, want) {
			t.Errorf("point %d value = %v, want %v", i, p.Value, want)
		}
		if !p.Date.Equal(time.Date(2025, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("point %d date = %v", i, p.Date)
		}
	}

	padded, err := svc.Series(ctx, core.Income, 8)
	if err != nil {
		t.Fatalf("Series() error = %v", err)
	}
	if len(padded) != 8 || padded[0].Value != 0 || padded[1].Value != 0 || !approx(padded[2].Value, 2000) {
		t.Errorf("expected two empty months before January, got %+v", padded)
	}

	defaulted, _ := svc.Series(ctx, core.Income, 0)
	if len(defaulted) != forecast.DefaultLookbackMonths {
		t.Errorf("months <= 0 should use the configured lookback, got %d points", len(defaulted))
	}

	if _, err := svc.Series(ctx, "transfer", 6); !errors.Is(err, core.ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind, got %v", err)
	}
}

func TestForecastService_Forecast(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	svc := newTestForecastService(t, seededStore(), nil, clock, nil)
	ctx := context.Background()

	result, err := svc.Forecast(ctx, ForecastRequest{Kind: core.Expense, Method: forecast.MethodLinear, Months: 6, Horizon: 2})
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if result.Method != forecast.LabelLinearTrend || result.Trend != forecast.TrendIncreasing {
		t.Errorf("unexpected result header: %s %s", result.Method, result.Trend)
	}
	if len(result.Forecasts) != 2 {
		t.Fatalf("got %d forecasts, want 2", len(result.Forecasts))
	}
	if !result.Forecasts[0].Date.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first forecast date = %v, want 2025-07-01", result.Forecasts[0].Date)
	}
	for i, want := range []float64{800, 900} {
		if got := result.Forecasts[i].Predicted; !approx(got, want) {
			t.Errorf("forecast %d = %v, want %v", i, got, want)
		}
	}

	defaults, err := svc.Forecast(ctx, ForecastRequest{Kind: core.Expense})
	if err != nil {
		t.Fatalf("Forecast() with defaults error = %v", err)
	}
	if defaults.Method != forecast.LabelEnsemble || len(defaults.Forecasts) != 3 {
		t.Errorf("defaults should give a 3 month ensemble, got %s with %d points", defaults.Method, len(defaults.Forecasts))
	}

	if _, err := svc.Forecast(ctx, ForecastRequest{Kind: core.Expense, Method: "arima"}); !errors.Is(err, forecast.ErrUnknownMethod) {
		t.Errorf("expected ErrUnknownMethod, got %v", err)
	}
	if _, err := svc.Forecast(ctx, ForecastRequest{}); !errors.Is(err, core.ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind, got %v", err)
	}
}

func TestForecastService_WeightedEnsemble(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	svc := newTestForecastService(t, seededStore(), nil, clock, func(c *ForecastConfig) {
		c.Weights = forecast.Weights{forecast.MethodLinear: 1}
	})

	result, err := svc.Forecast(context.Background(), ForecastRequest{Kind: core.Expense, Months: 6, Horizon: 1})
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if result.Method != forecast.LabelEnsemble {
		t.Errorf("method = %s, want %s", result.Method, forecast.LabelEnsemble)
	}
	if got := result.Forecasts[0].Predicted; !approx(got, 800) {
		t.Errorf("linear-only ensemble predicted %v, want 800", got)
	}

	cfg := DefaultForecastConfig()
	cfg.Weights = forecast.Weights{forecast.MethodLinear: 0.3}
	if _, err := NewForecastService(seededStore(), nil, cfg, nil); !errors.Is(err, forecast.ErrInvalidWeights) {
		t.Errorf("expected ErrInvalidWeights, got %v", err)
	}
	cfg = DefaultForecastConfig()
	cfg.Method = "arima"
	if _, err := NewForecastService(seededStore(), nil, cfg, nil); !errors.Is(err, forecast.ErrUnknownMethod) {
		t.Errorf("expected ErrUnknownMethod, got %v", err)
	}
}

func TestForecastService_Cache(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	lister := &countingLister{TransactionLister: seededStore()}
	svc := newTestForecastService(t, lister, nil, clock, nil)
	ctx := context.Background()
	req := ForecastRequest{Kind: core.Expense, Method: forecast.MethodLinear, Months: 6, Horizon: 2}

	for i := 0; i < 3; i++ {
		if _, err := svc.Forecast(ctx, req); err != nil {
			t.Fatalf("Forecast() error = %v", err)
		}
	}
	if got := lister.count(); got != 1 {
		t.Fatalf("expected one load for repeated requests, got %d", got)
	}

	if n := svc.Invalidate(core.Income); n != 0 {
		t.Errorf("invalidating income dropped %d entries, want 0", n)
	}
	if n := svc.Invalidate(core.Expense); n != 1 {
		t.Errorf("invalidating expense dropped %d entries, want 1", n)
	}
	svc.Forecast(ctx, req)
	if got := lister.count(); got != 2 {
		t.Errorf("expected reload after invalidation, got %d loads", got)
	}

	// A new calendar month changes the series window.
	clock.set(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	svc.Forecast(ctx, req)
	if got := lister.count(); got != 3 {
		t.Errorf("expected reload in a new month, got %d loads", got)
	}

	if n := svc.Invalidate(""); n != 2 {
		t.Errorf("invalidating everything dropped %d entries, want 2", n)
	}
}

func TestForecastService_InvalidateDuringLoad(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	store := seededStore()
	lister := newGatedLister(store)
	svc := newTestForecastService(t, lister, nil, clock, nil)
	ctx := context.Background()
	req := ForecastRequest{Kind: core.Expense, Method: forecast.MethodLinear, Months: 6, Horizon: 1}

	stale := make(chan forecast.ForecastResult, 1)
	go func() {
		r, err := svc.Forecast(ctx, req)
		if err != nil {
			t.Errorf("Forecast() error = %v", err)
		}
		stale <- r
	}()

	<-lister.entered
	if _, err := store.Append(ctx, core.Transaction{
		Date:        core.NewDate(2025, 6, 20),
		Kind:        core.Expense,
		Description: "caldaia",
		Amount:      core.Money{Cents: 100000},
		Primary:     "Casa",
	}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	svc.Invalidate(core.Expense)
	close(lister.release)
	<-stale

	fresh, err := svc.Forecast(ctx, req)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	// Jan..Jun now reads 100..500, 1600.
	reg := forecast.LinearRegression([]forecast.DataPoint{
		{Value: 100}, {Value: 200}, {Value: 300}, {Value: 400}, {Value: 500}, {Value: 1600},
	})
	want := reg.Slope*7 + reg.Intercept
	if got := fresh.Forecasts[0].Predicted; !approx(got, want) {
		t.Errorf("predicted after invalidate = %v, want %v", got, want)
	}
}

func TestForecastService_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	lister := newGatedLister(seededStore())
	svc := newTestForecastService(t, lister, nil, clock, nil)
	req := ForecastRequest{Kind: core.Expense, Method: forecast.MethodLinear, Months: 6, Horizon: 1}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.Forecast(leaderCtx, req)
		leaderErr <- err
	}()
	<-lister.entered

	waiterErr := make(chan error, 1)
	waiter := make(chan forecast.ForecastResult, 1)
	go func() {
		r, err := svc.Forecast(context.Background(), req)
		waiterErr <- err
		waiter <- r
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader err = %v, want context.Canceled", err)
	}
	close(lister.release)

	if err := <-waiterErr; err != nil {
		t.Fatalf("waiter err = %v, want nil", err)
	}
	if r := <-waiter; len(r.Forecasts) != 1 || !approx(r.Forecasts[0].Predicted, 800) {
		t.Errorf("waiter forecasts = %+v, want 800", r.Forecasts)
	}
}

func TestForecastService_Summary(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	svc := newTestForecastService(t, seededStore(), nil, clock, nil)

	sum, err := svc.Summary(context.Background(), forecast.MethodLinear, 6, 2)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.Income.Trend != forecast.TrendStable || sum.Expense.Trend != forecast.TrendIncreasing {
		t.Errorf("unexpected trends: income %s, expense %s", sum.Income.Trend, sum.Expense.Trend)
	}
	if len(sum.Net) != 2 {
		t.Fatalf("got %d net points, want 2", len(sum.Net))
	}
	for i, want := range []float64{1200, 1100} {
		if !approx(sum.Net[i].Net, want) {
			t.Errorf("net %d = %v, want %v", i, sum.Net[i].Net, want)
		}
	}
	if !sum.Net[0].Date.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("net date = %v, want 2025-07-01", sum.Net[0].Date)
	}

	if _, err := svc.Summary(context.Background(), "arima", 6, 2); !errors.Is(err, forecast.ErrUnknownMethod) {
		t.Errorf("expected ErrUnknownMethod, got %v", err)
	}
}

func TestNetBalance_UnevenLengths(t *testing.T) {
	income := []forecast.ForecastPoint{{Predicted: 10}, {Predicted: 20}}
	expense := []forecast.ForecastPoint{{Predicted: 4}}
	net := NetBalance(income, expense)
	if len(net) != 1 || net[0].Net != 6 {
		t.Errorf("NetBalance() = %+v", net)
	}
	if got := NetBalance(nil, nil); len(got) != 0 {
		t.Errorf("NetBalance(nil, nil) = %+v", got)
	}
}

func TestForecastService_SnapshotAndReconcile(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	store := seededStore()
	svc := newTestForecastService(t, store, store, clock, nil)
	ctx := context.Background()

	snap, err := svc.Snapshot(ctx, core.Expense, forecast.MethodLinear, 6)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.ID == "" || snap.Method != forecast.MethodLinear || len(snap.Result.Forecasts) != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// Nothing has closed yet.
	if n, err := svc.ReconcileActuals(ctx); err != nil || n != 0 {
		t.Fatalf("ReconcileActuals() = %d, %v; want 0, nil", n, err)
	}

	if _, err := store.Append(ctx, core.Transaction{
		Date:        core.NewDate(2025, 7, 3),
		Kind:        core.Expense,
		Description: "affitto",
		Amount:      core.Money{Cents: 65000},
		Primary:     "Casa",
	}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	clock.set(time.Date(2025, 8, 10, 9, 0, 0, 0, time.UTC))

	n, err := svc.ReconcileActuals(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ReconcileActuals() = %d, %v; want 1, nil", n, err)
	}

	latest, err := svc.LatestSnapshot(ctx, core.Expense, forecast.MethodLinear)
	if err != nil {
		t.Fatalf("LatestSnapshot() error = %v", err)
	}
	if a := latest.Result.Forecasts[0].Actual; a == nil || !approx(*a, 650) {
		t.Errorf("July actual = %v, want 650", a)
	}
	if latest.Result.Forecasts[1].Actual != nil {
		t.Errorf("August is still open, got actual %v", *latest.Result.Forecasts[1].Actual)
	}

	if n, _ := svc.ReconcileActuals(ctx); n != 0 {
		t.Errorf("second reconcile updated %d points, want 0", n)
	}
}

func TestForecastService_NoStore(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	svc := newTestForecastService(t, seededStore(), nil, clock, nil)
	ctx := context.Background()

	if _, err := svc.Snapshot(ctx, core.Expense, "", 0); !errors.Is(err, ErrNoForecastStore) {
		t.Errorf("Snapshot() error = %v, want ErrNoForecastStore", err)
	}
	if _, err := svc.ReconcileActuals(ctx); !errors.Is(err, ErrNoForecastStore) {
		t.Errorf("ReconcileActuals() error = %v, want ErrNoForecastStore", err)
	}
	if _, err := svc.LatestSnapshot(ctx, core.Expense, ""); !errors.Is(err, ErrNoForecastStore) {
		t.Errorf("LatestSnapshot() error = %v, want ErrNoForecastStore", err)
	}
}

// totalingLister aggregates through MonthlyTotals and fails if rows are
// listed one by one.
type totalingLister struct {
	totals []core.MonthlyTotal
	calls  int
}

func (l *totalingLister) ListTransactions(context.Context, core.TransactionKind, time.Time, time.Time) ([]core.Transaction, error) {
	return nil, errors.New("rows should not be listed when totals are available")
}

func (l *totalingLister) MonthlyTotals(_ context.Context, from, to time.Time) ([]core.MonthlyTotal, error) {
	l.calls++
	if !from.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)) || !to.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)) {
		return nil, errors.New("unexpected window")
	}
	return l.totals, nil
}

func TestForecastService_SeriesFromMonthlyTotals(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	lister := &totalingLister{totals: []core.MonthlyTotal{
		{Year: 2025, Month: 4, Kind: core.Expense, Total: core.Money{Cents: 30000}, Count: 3},
		{Year: 2025, Month: 5, Kind: core.Income, Total: core.Money{Cents: 200000}, Count: 1},
		{Year: 2025, Month: 6, Kind: core.Expense, Total: core.Money{Cents: 45050}, Count: 4},
	}}
	svc := newTestForecastService(t, lister, nil, clock, nil)

	data, err := svc.Series(context.Background(), core.Expense, 3)
	if err != nil {
		t.Fatalf("Series() error = %v", err)
	}
	want := []float64{300, 0, 450.5}
	for i, p := range data {
		if !approx(p.Value, want[i]) {
			t.Errorf("point %d = %v, want %v", i, p.Value, want[i])
		}
	}
	if lister.calls != 1 {
		t.Errorf("MonthlyTotals called %d times, want 1", lister.calls)
	}
}
