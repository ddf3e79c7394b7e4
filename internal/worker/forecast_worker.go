package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/forecast"
	"bilancio/internal/sheets"
)

// Forecaster is the part of services.ForecastService the worker drives.
type Forecaster interface {
	Snapshot(ctx context.Context, kind core.TransactionKind, method forecast.Method, months int) (sheets.Snapshot, error)
	LatestSnapshot(ctx context.Context, kind core.TransactionKind, method forecast.Method) (sheets.Snapshot, error)
	ReconcileActuals(ctx context.Context) (int, error)
	Invalidate(kind core.TransactionKind) int
}

// ForecastWorker stores forecast snapshots in response to refresh requests
// and keeps their actuals up to date.
type ForecastWorker struct {
	forecasts Forecaster
	methods   []forecast.Method
	now       func() time.Time
}

// NewForecastWorker snapshots every method in methods on each refresh.
// An empty list snapshots the default method only.
func NewForecastWorker(forecasts Forecaster, methods []forecast.Method) *ForecastWorker {
	if len(methods) == 0 {
		methods = []forecast.Method{forecast.DefaultMethod}
	}
	return &ForecastWorker{
		forecasts: forecasts,
		methods:   methods,
		now:       time.Now,
	}
}

// HandleRefreshMessage processes a single forecast refresh message from AMQP
func (w *ForecastWorker) HandleRefreshMessage(ctx context.Context, msg *amqp.ForecastRefreshMessage) error {
	slog.InfoContext(ctx, "Processing forecast refresh message",
		"message_id", msg.ID.String(),
		"kind", string(msg.Kind),
		"months", msg.Months)

	var errs []error
	for _, kind := range msg.Kinds() {
		w.forecasts.Invalidate(kind)
		if err := w.snapshotKind(ctx, kind, msg.Months); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("refresh forecasts: %w", errors.Join(errs...))
	}
	return nil
}

func (w *ForecastWorker) snapshotKind(ctx context.Context, kind core.TransactionKind, months int) error {
	for _, method := range w.methods {
		snap, err := w.forecasts.Snapshot(ctx, kind, method, months)
		if err != nil {
			return fmt.Errorf("snapshot %s/%s: %w", kind, method, err)
		}
		slog.InfoContext(ctx, "Stored forecast snapshot",
			"snapshot_id", snap.ID,
			"kind", string(kind),
			"forecast_method", string(method),
			"trend", string(snap.Result.Trend))
	}
	return nil
}

// StartupCheck snapshots every kind and method that has no snapshot for the
// current month yet, then reconciles actuals. This recovers from refresh
// messages lost while the worker was down.
func (w *ForecastWorker) StartupCheck(ctx context.Context) error {
	now := w.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	created, failed := 0, 0
	for _, kind := range core.TransactionKinds() {
		for _, method := range w.methods {
			latest, err := w.forecasts.LatestSnapshot(ctx, kind, method)
			switch {
			case err == nil && !latest.GeneratedAt.Before(monthStart):
				continue
			case err != nil && !errors.Is(err, sheets.ErrNotFound):
				return fmt.Errorf("latest %s/%s snapshot: %w", kind, method, err)
			}

			if _, err := w.forecasts.Snapshot(ctx, kind, method, 0); err != nil {
				slog.ErrorContext(ctx, "Failed to store startup snapshot",
					"kind", string(kind), "forecast_method", string(method), "error", err)
				failed++
				continue
			}
			created++
		}
	}

	n, err := w.forecasts.ReconcileActuals(ctx)
	if err != nil {
		return fmt.Errorf("reconcile actuals: %w", err)
	}

	slog.InfoContext(ctx, "Startup forecast check completed",
		"snapshots", created,
		"errors", failed,
		"reconciled", n)
	return nil
}
