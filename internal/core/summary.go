package core

// MonthlyTotal is the sum of one kind of transaction over a calendar month.
type MonthlyTotal struct {
	Year  int
	Month int // 1-12
	Kind  TransactionKind
	Total Money
	Count int
}

// Key returns the "YYYY-MM" bucket key used across aggregation code.
func (m MonthlyTotal) Key() string {
	return NewDate(m.Year, m.Month, 1).Format("2006-01")
}
