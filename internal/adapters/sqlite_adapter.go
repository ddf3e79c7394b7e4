package adapters

import (
	"context"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/forecast"
	"bilancio/internal/services"
	"bilancio/internal/sheets"
	"bilancio/internal/storage"
)

// SQLiteAdapter routes writes through TransactionService, so every saved
// transaction also publishes a forecast refresh, and serves reads and
// forecast snapshots straight from the repository.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
	service *services.TransactionService
}

func NewSQLiteAdapter(storage *storage.SQLiteRepository, service *services.TransactionService) *SQLiteAdapter {
	return &SQLiteAdapter{
		storage: storage,
		service: service,
	}
}

// Append implements sheets.TransactionWriter
func (a *SQLiteAdapter) Append(ctx context.Context, tx core.Transaction) (string, error) {
	return a.service.CreateTransaction(ctx, tx)
}

// ListTransactions implements sheets.TransactionLister
func (a *SQLiteAdapter) ListTransactions(ctx context.Context, kind core.TransactionKind, from, to time.Time) ([]core.Transaction, error) {
	return a.storage.ListTransactions(ctx, kind, from, to)
}

// MonthlyTotals implements sheets.MonthlyTotaler
func (a *SQLiteAdapter) MonthlyTotals(ctx context.Context, from, to time.Time) ([]core.MonthlyTotal, error) {
	return a.storage.MonthlyTotals(ctx, from, to)
}

func (a *SQLiteAdapter) SaveForecast(ctx context.Context, s sheets.Snapshot) (string, error) {
	return a.storage.SaveForecast(ctx, s)
}

func (a *SQLiteAdapter) LatestForecast(ctx context.Context, kind core.TransactionKind, method forecast.Method) (sheets.Snapshot, error) {
	return a.storage.LatestForecast(ctx, kind, method)
}

func (a *SQLiteAdapter) PendingActuals(ctx context.Context, before time.Time) ([]sheets.PendingActual, error) {
	return a.storage.PendingActuals(ctx, before)
}

func (a *SQLiteAdapter) SetActual(ctx context.Context, pointID int64, value float64) error {
	return a.storage.SetActual(ctx, pointID, value)
}

// Ping reports whether the database is reachable.
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	return a.storage.Ping(ctx)
}
