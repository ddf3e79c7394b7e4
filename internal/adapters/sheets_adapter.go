package adapters

import (
	"context"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/forecast"
	"bilancio/internal/sheets"
)

// SheetsAdapter pairs a spreadsheet, which only holds transactions, with a
// separate store for forecast snapshots.
type SheetsAdapter struct {
	transactions interface {
		sheets.TransactionWriter
		sheets.TransactionLister
	}
	forecasts sheets.ForecastStore
}

func NewSheetsAdapter(transactions interface {
	sheets.TransactionWriter
	sheets.TransactionLister
}, forecasts sheets.ForecastStore) *SheetsAdapter {
	return &SheetsAdapter{
		transactions: transactions,
		forecasts:    forecasts,
	}
}

func (a *SheetsAdapter) Append(ctx context.Context, tx core.Transaction) (string, error) {
	return a.transactions.Append(ctx, tx)
}

func (a *SheetsAdapter) ListTransactions(ctx context.Context, kind core.TransactionKind, from, to time.Time) ([]core.Transaction, error) {
	return a.transactions.ListTransactions(ctx, kind, from, to)
}

func (a *SheetsAdapter) SaveForecast(ctx context.Context, s sheets.Snapshot) (string, error) {
	return a.forecasts.SaveForecast(ctx, s)
}

func (a *SheetsAdapter) LatestForecast(ctx context.Context, kind core.TransactionKind, method forecast.Method) (sheets.Snapshot, error) {
	return a.forecasts.LatestForecast(ctx, kind, method)
}

func (a *SheetsAdapter) PendingActuals(ctx context.Context, before time.Time) ([]sheets.PendingActual, error) {
	return a.forecasts.PendingActuals(ctx, before)
}

func (a *SheetsAdapter) SetActual(ctx context.Context, pointID int64, value float64) error {
	return a.forecasts.SetActual(ctx, pointID, value)
}
