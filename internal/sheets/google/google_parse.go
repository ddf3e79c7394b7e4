package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/core"
)

// Layouts the Date column is read with. Sheets renders dates according to
// the spreadsheet locale, so the Italian form is accepted too.
var sheetDateLayouts = []string{"2006-01-02", "2/1/2006"}

// transactionRow renders tx in column order.
func transactionRow(tx core.Transaction) []any {
	return []any{
		tx.Date.Format("2006-01-02"),
		string(tx.Kind),
		tx.Amount.Euros(),
		tx.Description,
		tx.Primary,
		tx.Secondary,
	}
}

// parseTransactionRows converts a values matrix (as returned by the Sheets
// API) into transactions. A first row whose date does not parse is treated
// as the header. Other unreadable rows are counted in skipped.
func parseTransactionRows(values [][]interface{}) (out []core.Transaction, skipped int) {
	for i, row := range values {
		cols := toStrings(row)
		if isBlank(cols) {
			continue
		}
		tx, err := parseTransactionRow(cols)
		if err != nil {
			if i > 0 {
				skipped++
			}
			continue
		}
		tx.ID = int64(i + 1)
		out = append(out, tx)
	}
	return out, skipped
}

func parseTransactionRow(cols []string) (core.Transaction, error) {
	if len(cols) < 4 {
		return core.Transaction{}, fmt.Errorf("expected at least 4 columns, got %d", len(cols))
	}
	d, err := parseSheetDate(cols[0])
	if err != nil {
		return core.Transaction{}, err
	}
	kind, err := core.ParseTransactionKind(cols[1])
	if err != nil {
		return core.Transaction{}, err
	}
	cents, ok := parseEurosToCents(cols[2])
	if !ok || cents <= 0 {
		return core.Transaction{}, fmt.Errorf("amount %q: %w", cols[2], core.ErrInvalidAmount)
	}
	return core.Transaction{
		Date:        core.Date{Time: d},
		Kind:        kind,
		Amount:      core.Money{Cents: cents},
		Description: cols[3],
		Primary:     safeGet(cols, 4),
		Secondary:   safeGet(cols, 5),
	}, nil
}

func parseSheetDate(s string) (time.Time, error) {
	for _, layout := range sheetDateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unreadable date %q", s)
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func isBlank(cols []string) bool {
	for _, c := range cols {
		if c != "" {
			return false
		}
	}
	return true
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// parseEurosToCents reads "12.34", "12,34", "€ 1.234,50" or a bare number.
func parseEurosToCents(s string) (int64, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "€"))
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") {
		// Italian formatting: dots group thousands, comma is the decimal mark.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return core.FromEuros(f).Cents, true
}
