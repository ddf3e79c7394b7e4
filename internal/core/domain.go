package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TransactionKind = "income"
	Expense TransactionKind = "expense"
)

type (
	TransactionKind string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID          int64 // Database ID, zero until persisted
		Date        Date
		Kind        TransactionKind
		Description string
		Amount      Money
		Primary     string // Primary category
		Secondary   string // Secondary category
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidKind      = errors.New("invalid transaction kind")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyPrimary     = errors.New("empty primary category")
)

// ParseTransactionKind accepts "income" or "expense", case-insensitively.
func ParseTransactionKind(s string) (TransactionKind, error) {
	k := TransactionKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// IsValid reports whether k is one of the known kinds.
func (k TransactionKind) IsValid() bool {
	switch k {
	case Income, Expense:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer
func (k TransactionKind) String() string {
	return string(k)
}

// TransactionKinds returns every known kind in display order.
func TransactionKinds() []TransactionKind {
	return []TransactionKind{Income, Expense}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// MonthStart returns the first day of the date's month at midnight UTC.
func (d Date) MonthStart() Date {
	return NewDate(d.Year(), int(d.Month()), 1)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if !t.Kind.IsValid() {
		return ErrInvalidKind
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	// Incomes are often uncategorised; expenses always carry a primary category.
	if t.Kind == Expense && strings.TrimSpace(t.Primary) == "" {
		return ErrEmptyPrimary
	}
	return nil
}
