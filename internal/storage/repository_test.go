package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/forecast"
	"bilancio/internal/sheets"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "bilancio.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func tx(date string, kind core.TransactionKind, cents int64) core.Transaction {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return core.Transaction{
		Date:        core.Date{Time: d},
		Kind:        kind,
		Description: "test " + date,
		Amount:      core.Money{Cents: cents},
		Primary:     "Casa",
	}
}

func TestSQLiteRepository_AppendAndList(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	for _, item := range []core.Transaction{
		tx("2025-01-05", core.Expense, 1250),
		tx("2025-01-20", core.Income, 250000),
		tx("2025-02-01", core.Expense, 800),
		tx("2025-03-01", core.Expense, 999),
	} {
		if _, err := repo.Append(ctx, item); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	expenses, err := repo.ListTransactions(ctx, core.Expense, from, to)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(expenses) != 2 {
		t.Fatalf("expected 2 expenses in [jan, mar), got %d", len(expenses))
	}
	if expenses[0].Amount.Cents != 1250 || expenses[0].Date.String() != "2025-01-05" || expenses[0].ID == 0 {
		t.Errorf("unexpected first expense: %+v", expenses[0])
	}

	all, err := repo.ListTransactions(ctx, "", from, to)
	if err != nil {
		t.Fatalf("ListTransactions all kinds: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 transactions of any kind, got %d", len(all))
	}

	totals, err := repo.MonthlyTotals(ctx, from, to)
	if err != nil {
		t.Fatalf("MonthlyTotals: %v", err)
	}
	if len(totals) != 3 {
		t.Fatalf("expected 3 month/kind groups, got %+v", totals)
	}
	if totals[0].Key() != "2025-01" || totals[0].Kind != core.Expense || totals[0].Total.Cents != 1250 {
		t.Errorf("unexpected first total: %+v", totals[0])
	}
}

func TestSQLiteRepository_AppendRejectsInvalid(t *testing.T) {
	repo := newTestRepository(t)
	bad := tx("2025-01-05", core.Expense, 0)
	if _, err := repo.Append(context.Background(), bad); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestSQLiteRepository_ForecastSnapshots(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	if _, err := repo.LatestForecast(ctx, core.Expense, forecast.MethodLinear); !errors.Is(err, sheets.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	data := []forecast.DataPoint{
		{Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Value: 100},
		{Date: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), Value: 120},
		{Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Value: 140},
	}
	older := forecast.LinearTrendForecast(data, 2)
	newer := forecast.LinearTrendForecast(data, 3)

	generated := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	if _, err := repo.SaveForecast(ctx, sheets.Snapshot{Kind: core.Expense, Method: forecast.MethodLinear, GeneratedAt: generated, Result: older}); err != nil {
		t.Fatalf("SaveForecast older: %v", err)
	}
	id, err := repo.SaveForecast(ctx, sheets.Snapshot{Kind: core.Expense, Method: forecast.MethodLinear, GeneratedAt: generated.Add(time.Hour), Result: newer})
	if err != nil {
		t.Fatalf("SaveForecast newer: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("expected a UUID snapshot id, got %q", id)
	}

	got, err := repo.LatestForecast(ctx, core.Expense, forecast.MethodLinear)
	if err != nil {
		t.Fatalf("LatestForecast: %v", err)
	}
	if got.ID != id {
		t.Errorf("latest id = %s, want %s", got.ID, id)
	}
	if got.Result.Method != forecast.LabelLinearTrend || got.Result.Trend != newer.Trend {
		t.Errorf("unexpected result header: %+v", got.Result)
	}
	if got.Result.Accuracy == nil || *got.Result.Accuracy != *newer.Accuracy {
		t.Errorf("accuracy not preserved: %v", got.Result.Accuracy)
	}
	if len(got.Result.Forecasts) != 3 {
		t.Fatalf("expected 3 points, got %d", len(got.Result.Forecasts))
	}
	for i, p := range got.Result.Forecasts {
		if !p.Date.Equal(newer.Forecasts[i].Date) || p.Predicted != newer.Forecasts[i].Predicted {
			t.Errorf("point %d = %+v, want %+v", i, p, newer.Forecasts[i])
		}
	}

	if _, err := repo.LatestForecast(ctx, core.Income, forecast.MethodLinear); !errors.Is(err, sheets.ErrNotFound) {
		t.Errorf("income has no snapshots, got %v", err)
	}
}

func TestSQLiteRepository_PendingActuals(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	result := forecast.MovingAverageForecast([]forecast.DataPoint{
		{Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Value: 50},
		{Date: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), Value: 70},
	}, 3, 3)
	if _, err := repo.SaveForecast(ctx, sheets.Snapshot{Kind: core.Income, Method: forecast.MethodMovingAverage, GeneratedAt: time.Now(), Result: result}); err != nil {
		t.Fatalf("SaveForecast: %v", err)
	}

	// Forecast months are Mar, Apr, May; with "now" in May only Mar and Apr have closed.
	pending, err := repo.PendingActuals(ctx, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("PendingActuals: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending points, got %+v", pending)
	}
	if pending[0].Kind != core.Income || pending[0].Month.Format("2006-01") != "2025-03" {
		t.Errorf("unexpected first pending point: %+v", pending[0])
	}

	if err := repo.SetActual(ctx, pending[0].PointID, 64.5); err != nil {
		t.Fatalf("SetActual: %v", err)
	}
	pending, err = repo.PendingActuals(ctx, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("PendingActuals: %v", err)
	}
	if len(pending) != 1 || pending[0].Month.Format("2006-01") != "2025-04" {
		t.Errorf("expected only April pending, got %+v", pending)
	}

	latest, err := repo.LatestForecast(ctx, core.Income, forecast.MethodMovingAverage)
	if err != nil {
		t.Fatalf("LatestForecast: %v", err)
	}
	if a := latest.Result.Forecasts[0].Actual; a == nil || *a != 64.5 {
		t.Errorf("March actual = %v, want 64.5", a)
	}

	if err := repo.SetActual(ctx, 9999, 1); !errors.Is(err, sheets.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown point, got %v", err)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second run should be a no-op: %v", err)
	}
}
