package sheets

import (
	"context"
	"errors"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/forecast"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Ports for outbound adapters.
type (
	TransactionWriter interface {
		Append(ctx context.Context, tx core.Transaction) (ref string, err error)
	}

	// TransactionLister returns transactions of one kind dated in [from, to).
	// An empty kind lists every kind.
	TransactionLister interface {
		ListTransactions(ctx context.Context, kind core.TransactionKind, from, to time.Time) ([]core.Transaction, error)
	}

	// MonthlyTotaler is implemented by listers that can sum transactions
	// per calendar month in [from, to) without returning each row.
	MonthlyTotaler interface {
		MonthlyTotals(ctx context.Context, from, to time.Time) ([]core.MonthlyTotal, error)
	}

	// ForecastStore keeps generated forecasts so they can later be compared
	// with what actually happened.
	ForecastStore interface {
		SaveForecast(ctx context.Context, s Snapshot) (id string, err error)
		// LatestForecast returns the most recent snapshot or ErrNotFound.
		LatestForecast(ctx context.Context, kind core.TransactionKind, method forecast.Method) (Snapshot, error)
		// PendingActuals lists forecast points dated before the given time
		// that have no actual value yet, oldest first.
		PendingActuals(ctx context.Context, before time.Time) ([]PendingActual, error)
		SetActual(ctx context.Context, pointID int64, value float64) error
	}
)

// Snapshot is a persisted forecast.
type Snapshot struct {
	ID          string
	Kind        core.TransactionKind
	Method      forecast.Method
	GeneratedAt time.Time
	Result      forecast.ForecastResult
}

// PendingActual identifies a stored forecast point still waiting for its
// observed value.
type PendingActual struct {
	PointID    int64
	SnapshotID string
	Kind       core.TransactionKind
	Month      time.Time
}
