package forecast

import (
	"fmt"
	"strings"
	"time"

	"bilancio/internal/core"
)

// DefaultLookbackMonths is the history window used when callers have no
// preference.
const DefaultLookbackMonths = 12

// Record is the raw transaction shape the aggregator consumes: an ISO date
// string, an amount in currency units and the transaction kind.
type Record struct {
	Date   string
	Amount float64
	Type   core.TransactionKind
}

// Accepted date layouts, tried in order.
var recordDateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FromTransactions converts stored transactions to aggregator records.
func FromTransactions(txs []core.Transaction) []Record {
	out := make([]Record, len(txs))
	for i, tx := range txs {
		out[i] = Record{
			Date:   tx.Date.Format(dateLayout),
			Amount: tx.Amount.Euros(),
			Type:   tx.Kind,
		}
	}
	return out
}

// FromMonthlyTotals converts pre-aggregated monthly totals to records, one
// per month and kind, dated on the first of the month.
func FromMonthlyTotals(totals []core.MonthlyTotal) []Record {
	out := make([]Record, len(totals))
	for i, t := range totals {
		out[i] = Record{
			Date:   t.Key() + "-01",
			Amount: t.Total.Euros(),
			Type:   t.Kind,
		}
	}
	return out
}

// PrepareMonthlyData sums the records of the given kind into one point per
// calendar month for the last `months` months ending with now's month.
// Months without transactions contribute 0, records outside the window and
// records with unparseable dates are ignored. months <= 0 yields no points.
func PrepareMonthlyData(records []Record, kind core.TransactionKind, months int, now time.Time) []DataPoint {
	points, _ := prepareMonthlyData(records, kind, months, now, false)
	return points
}

// PrepareMonthlyDataStrict is PrepareMonthlyData that reports the first
// record with an unparseable date instead of skipping it.
func PrepareMonthlyDataStrict(records []Record, kind core.TransactionKind, months int, now time.Time) ([]DataPoint, error) {
	return prepareMonthlyData(records, kind, months, now, true)
}

func prepareMonthlyData(records []Record, kind core.TransactionKind, months int, now time.Time, strict bool) ([]DataPoint, error) {
	if months <= 0 {
		return []DataPoint{}, nil
	}

	points := make([]DataPoint, months)
	index := make(map[string]int, months)
	for i := 0; i < months; i++ {
		start := time.Date(now.Year(), now.Month()-time.Month(months-1-i), 1, 0, 0, 0, 0, time.UTC)
		points[i] = DataPoint{Date: start}
		index[start.Format("2006-01")] = i
	}

	for i, r := range records {
		if r.Type != kind {
			continue
		}
		d, ok := parseRecordDate(r.Date)
		if !ok {
			if strict {
				return nil, fmt.Errorf("record %d: %w: %q", i, ErrMalformedDate, r.Date)
			}
			continue
		}
		if pos, ok := index[d.Format("2006-01")]; ok {
			points[pos].Value += r.Amount
		}
	}
	return points, nil
}

func parseRecordDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range recordDateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// addMonths returns the first day of the month n months after t's month.
func addMonths(t time.Time, n int) time.Time {
	return time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
}
