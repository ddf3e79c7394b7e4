package memory

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/forecast"
	"bilancio/internal/sheets"
)

// SeedFile is the transactions file read by NewFromFiles.
const SeedFile = "seed_transactions.txt"

type Store struct {
	mu        sync.Mutex
	items     []core.Transaction
	snapshots []sheets.Snapshot
	nextPoint int64
	// pointID -> (snapshot index, point index)
	points map[int64][2]int
}

var (
	_ sheets.TransactionWriter = (*Store)(nil)
	_ sheets.TransactionLister = (*Store)(nil)
	_ sheets.ForecastStore     = (*Store)(nil)
)

func New(items ...core.Transaction) *Store {
	s := &Store{points: map[int64][2]int{}}
	for _, tx := range items {
		s.items = append(s.items, withID(tx, len(s.items)+1))
	}
	return s
}

// NewFromFiles seeds the store from base/seed_transactions.txt. Lines have
// the form "YYYY-MM-DD;kind;amount;description[;primary[;secondary]]";
// blank lines and lines starting with # are skipped, as are malformed ones.
// A missing file yields an empty store.
func NewFromFiles(base string) *Store {
	return New(readSeed(filepath.Join(base, SeedFile))...)
}

// Append stores the transaction and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, withID(tx, len(s.items)+1))
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// ListTransactions returns transactions in [from, to), ordered by date.
func (s *Store) ListTransactions(_ context.Context, kind core.TransactionKind, from, to time.Time) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.items {
		if kind != "" && tx.Kind != kind {
			continue
		}
		if tx.Date.Before(from) || !tx.Date.Before(to) {
			continue
		}
		out = append(out, tx)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out, nil
}

func (s *Store) SaveForecast(_ context.Context, snap sheets.Snapshot) (string, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	snap.Result = cloneResult(snap.Result)

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.snapshots)
	s.snapshots = append(s.snapshots, snap)
	for i := range snap.Result.Forecasts {
		s.nextPoint++
		s.points[s.nextPoint] = [2]int{idx, i}
	}
	return snap.ID, nil
}

func (s *Store) LatestForecast(_ context.Context, kind core.TransactionKind, method forecast.Method) (sheets.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := -1
	for i, snap := range s.snapshots {
		if snap.Kind != kind || snap.Method != method {
			continue
		}
		if found < 0 || !snap.GeneratedAt.Before(s.snapshots[found].GeneratedAt) {
			found = i
		}
	}
	if found < 0 {
		return sheets.Snapshot{}, fmt.Errorf("latest %s forecast (%s): %w", kind, method, sheets.ErrNotFound)
	}
	snap := s.snapshots[found]
	snap.Result = cloneResult(snap.Result)
	return snap, nil
}

func (s *Store) PendingActuals(_ context.Context, before time.Time) ([]sheets.PendingActual, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sheets.PendingActual
	for id, pos := range s.points {
		snap := s.snapshots[pos[0]]
		p := snap.Result.Forecasts[pos[1]]
		if p.Actual != nil || !p.Date.Before(before) {
			continue
		}
		out = append(out, sheets.PendingActual{PointID: id, SnapshotID: snap.ID, Kind: snap.Kind, Month: p.Date})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Month.Equal(out[j].Month) {
			return out[i].Month.Before(out[j].Month)
		}
		return out[i].PointID < out[j].PointID
	})
	return out, nil
}

func (s *Store) SetActual(_ context.Context, pointID int64, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.points[pointID]
	if !ok {
		return fmt.Errorf("forecast point %d: %w", pointID, sheets.ErrNotFound)
	}
	s.snapshots[pos[0]].Result.Forecasts[pos[1]].Actual = &value
	return nil
}

func withID(tx core.Transaction, id int) core.Transaction {
	if tx.ID == 0 {
		tx.ID = int64(id)
	}
	return tx
}

func cloneResult(r forecast.ForecastResult) forecast.ForecastResult {
	points := make([]forecast.ForecastPoint, len(r.Forecasts))
	for i, p := range r.Forecasts {
		if p.Actual != nil {
			v := *p.Actual
			p.Actual = &v
		}
		points[i] = p
	}
	r.Forecasts = points
	if r.Accuracy != nil {
		v := *r.Accuracy
		r.Accuracy = &v
	}
	return r
}

func readSeed(path string) []core.Transaction {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []core.Transaction
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tx, err := parseSeedLine(line)
		if err != nil {
			slog.Warn("Skipping seed line", "path", path, "line", lineNo, "error", err)
			continue
		}
		out = append(out, tx)
	}
	return out
}

func parseSeedLine(line string) (core.Transaction, error) {
	fields := strings.Split(line, ";")
	if len(fields) < 4 {
		return core.Transaction{}, fmt.Errorf("expected at least 4 fields, got %d", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	d, err := time.Parse("2006-01-02", fields[0])
	if err != nil {
		return core.Transaction{}, fmt.Errorf("date: %w", err)
	}
	kind, err := core.ParseTransactionKind(fields[1])
	if err != nil {
		return core.Transaction{}, err
	}
	cents, err := core.ParseDecimalToCents(fields[2])
	if err != nil {
		return core.Transaction{}, fmt.Errorf("amount %q: %w", fields[2], err)
	}
	tx := core.Transaction{
		Date:        core.Date{Time: d},
		Kind:        kind,
		Amount:      core.Money{Cents: cents},
		Description: fields[3],
	}
	if len(fields) > 4 {
		tx.Primary = fields[4]
	}
	if len(fields) > 5 {
		tx.Secondary = fields[5]
	}
	if tx.Kind == core.Expense && tx.Primary == "" {
		tx.Primary = "Altro"
	}
	return tx, tx.Validate()
}
