package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/forecast"
	"bilancio/internal/sheets"

	_ "modernc.org/sqlite"
)

const (
	dateLayout = "2006-01-02"
	// Fixed width so that text ordering matches chronological ordering.
	timestampLayout = "2006-01-02T15:04:05.000000000Z"
)

type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ sheets.TransactionWriter = (*SQLiteRepository)(nil)
	_ sheets.TransactionLister = (*SQLiteRepository)(nil)
	_ sheets.ForecastStore     = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Append implements sheets.TransactionWriter
func (r *SQLiteRepository) Append(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (date, kind, description, amount_cents, primary_category, secondary_category)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tx.Date.Format(dateLayout),
		string(tx.Kind),
		tx.Description,
		tx.Amount.Cents,
		tx.Primary,
		tx.Secondary,
	)
	if err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("read transaction id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", id,
		"kind", tx.Kind,
		"description", tx.Description,
		"amount_cents", tx.Amount.Cents,
		"date", tx.Date.String())

	return strconv.FormatInt(id, 10), nil
}

// ListTransactions implements sheets.TransactionLister
func (r *SQLiteRepository) ListTransactions(ctx context.Context, kind core.TransactionKind, from, to time.Time) ([]core.Transaction, error) {
	query := `
		SELECT id, date, kind, description, amount_cents, primary_category, secondary_category
		FROM transactions
		WHERE date >= ? AND date < ?`
	args := []any{from.Format(dateLayout), to.Format(dateLayout)}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY date, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			tx     core.Transaction
			date   string
			txKind string
			amount int64
		)
		if err := rows.Scan(&tx.ID, &date, &txKind, &tx.Description, &amount, &tx.Primary, &tx.Secondary); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: parse date %q: %w", tx.ID, date, err)
		}
		tx.Date = core.Date{Time: d}
		tx.Kind = core.TransactionKind(txKind)
		tx.Amount = core.Money{Cents: amount}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// MonthlyTotals sums transactions per kind and calendar month in [from, to).
func (r *SQLiteRepository) MonthlyTotals(ctx context.Context, from, to time.Time) ([]core.MonthlyTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT substr(date, 1, 7) AS month, kind, SUM(amount_cents), COUNT(*)
		FROM transactions
		WHERE date >= ? AND date < ?
		GROUP BY month, kind
		ORDER BY month, kind`,
		from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlyTotal
	for rows.Next() {
		var (
			month string
			kind  string
			total int64
			count int
		)
		if err := rows.Scan(&month, &kind, &total, &count); err != nil {
			return nil, fmt.Errorf("scan monthly total: %w", err)
		}
		t, err := time.Parse("2006-01", month)
		if err != nil {
			return nil, fmt.Errorf("parse month %q: %w", month, err)
		}
		out = append(out, core.MonthlyTotal{
			Year:  t.Year(),
			Month: int(t.Month()),
			Kind:  core.TransactionKind(kind),
			Total: core.Money{Cents: total},
			Count: count,
		})
	}
	return out, rows.Err()
}

// SaveForecast implements sheets.ForecastStore. The snapshot and its points
// are written in one transaction; an empty ID is replaced by a new UUID.
func (r *SQLiteRepository) SaveForecast(ctx context.Context, s sheets.Snapshot) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer dbtx.Rollback()

	var accuracy sql.NullFloat64
	if s.Result.Accuracy != nil {
		accuracy = sql.NullFloat64{Float64: *s.Result.Accuracy, Valid: true}
	}
	_, err = dbtx.ExecContext(ctx, `
		INSERT INTO forecast_snapshots (id, kind, method, label, generated_at, trend, seasonality, accuracy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		string(s.Kind),
		string(s.Method),
		s.Result.Method,
		s.GeneratedAt.UTC().Format(timestampLayout),
		string(s.Result.Trend),
		s.Result.Seasonality,
		accuracy,
	)
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}

	for _, p := range s.Result.Forecasts {
		var actual sql.NullFloat64
		if p.Actual != nil {
			actual = sql.NullFloat64{Float64: *p.Actual, Valid: true}
		}
		_, err = dbtx.ExecContext(ctx, `
			INSERT INTO forecast_points (snapshot_id, date, predicted, lower_bound, upper_bound, actual)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.ID, p.Date.Format(dateLayout), p.Predicted, p.Lower, p.Upper, actual)
		if err != nil {
			return "", fmt.Errorf("insert forecast point %s: %w", p.Date.Format(dateLayout), err)
		}
	}

	if err := dbtx.Commit(); err != nil {
		return "", fmt.Errorf("commit snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Forecast snapshot saved",
		"id", s.ID,
		"kind", s.Kind,
		"method", s.Method,
		"points", len(s.Result.Forecasts))

	return s.ID, nil
}

// LatestForecast implements sheets.ForecastStore
func (r *SQLiteRepository) LatestForecast(ctx context.Context, kind core.TransactionKind, method forecast.Method) (sheets.Snapshot, error) {
	var (
		s           sheets.Snapshot
		generatedAt string
		trend       string
		accuracy    sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, label, generated_at, trend, seasonality, accuracy
		FROM forecast_snapshots
		WHERE kind = ? AND method = ?
		ORDER BY generated_at DESC, rowid DESC
		LIMIT 1`,
		string(kind), string(method),
	).Scan(&s.ID, &s.Result.Method, &generatedAt, &trend, &s.Result.Seasonality, &accuracy)
	if errors.Is(err, sql.ErrNoRows) {
		return sheets.Snapshot{}, fmt.Errorf("latest %s forecast (%s): %w", kind, method, sheets.ErrNotFound)
	}
	if err != nil {
		return sheets.Snapshot{}, fmt.Errorf("latest forecast: %w", err)
	}

	s.Kind = kind
	s.Method = method
	s.Result.Trend = forecast.Trend(trend)
	if accuracy.Valid {
		v := accuracy.Float64
		s.Result.Accuracy = &v
	}
	if s.GeneratedAt, err = time.Parse(timestampLayout, generatedAt); err != nil {
		return sheets.Snapshot{}, fmt.Errorf("snapshot %s: parse generated_at: %w", s.ID, err)
	}

	points, err := r.snapshotPoints(ctx, s.ID)
	if err != nil {
		return sheets.Snapshot{}, err
	}
	s.Result.Forecasts = points
	return s, nil
}

func (r *SQLiteRepository) snapshotPoints(ctx context.Context, snapshotID string) ([]forecast.ForecastPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, predicted, lower_bound, upper_bound, actual
		FROM forecast_points
		WHERE snapshot_id = ?
		ORDER BY date`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("list forecast points: %w", err)
	}
	defer rows.Close()

	points := []forecast.ForecastPoint{}
	for rows.Next() {
		var (
			p      forecast.ForecastPoint
			date   string
			actual sql.NullFloat64
		)
		if err := rows.Scan(&date, &p.Predicted, &p.Lower, &p.Upper, &actual); err != nil {
			return nil, fmt.Errorf("scan forecast point: %w", err)
		}
		if p.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("parse forecast point date %q: %w", date, err)
		}
		if actual.Valid {
			v := actual.Float64
			p.Actual = &v
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// PendingActuals implements sheets.ForecastStore
func (r *SQLiteRepository) PendingActuals(ctx context.Context, before time.Time) ([]sheets.PendingActual, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.snapshot_id, s.kind, p.date
		FROM forecast_points p
		JOIN forecast_snapshots s ON s.id = p.snapshot_id
		WHERE p.actual IS NULL AND p.date < ?
		ORDER BY p.date, p.id`,
		before.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list pending actuals: %w", err)
	}
	defer rows.Close()

	var out []sheets.PendingActual
	for rows.Next() {
		var (
			p    sheets.PendingActual
			kind string
			date string
		)
		if err := rows.Scan(&p.PointID, &p.SnapshotID, &kind, &date); err != nil {
			return nil, fmt.Errorf("scan pending actual: %w", err)
		}
		p.Kind = core.TransactionKind(kind)
		if p.Month, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("parse pending actual date %q: %w", date, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetActual implements sheets.ForecastStore
func (r *SQLiteRepository) SetActual(ctx context.Context, pointID int64, value float64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE forecast_points SET actual = ? WHERE id = ?`, value, pointID)
	if err != nil {
		return fmt.Errorf("set actual: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set actual: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("forecast point %d: %w", pointID, sheets.ErrNotFound)
	}
	slog.DebugContext(ctx, "Forecast actual recorded", "point_id", pointID, "actual", value)
	return nil
}
