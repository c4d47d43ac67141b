package model

import (
	"cmp"
	"slices"
	"strings"
)

// CardTransaction is one parsed credit-card statement line.
//
// The merchant group label is derived by clustering over the whole record set
// and can only be attached through WithGroup.
type CardTransaction struct {
	Date          string // "YYYY/MM/DD", as it appears in the statement
	Description   string
	TotalBilling  int64 // negative for refunds
	Count         int64
	Num           int64 // installment index
	ActualBilling int64 // amount billed for this installment
	Comment       string

	group   string
	grouped bool
}

// Group returns the merchant group label. ok is false until the record has
// been clustered.
func (t CardTransaction) Group() (label string, ok bool) {
	return t.group, t.grouped
}

// WithGroup returns a copy of t carrying the given group label.
func (t CardTransaction) WithGroup(label string) CardTransaction {
	t.group = label
	t.grouped = true
	return t
}

// Year returns the year component of Date, or "" if Date is malformed.
func (t CardTransaction) Year() string { return t.datePart(0) }

// Month returns the month component of Date.
func (t CardTransaction) Month() string { return t.datePart(1) }

// Day returns the day component of Date.
func (t CardTransaction) Day() string { return t.datePart(2) }

func (t CardTransaction) datePart(i int) string {
	parts := strings.Split(t.Date, "/")
	if len(parts) != 3 {
		return ""
	}
	return parts[i]
}

// Compare orders transactions by date, then by total billing.
// Other fields do not take part in ordering.
func Compare(a, b CardTransaction) int {
	if c := cmp.Compare(a.Date, b.Date); c != 0 {
		return c
	}
	return cmp.Compare(a.TotalBilling, b.TotalBilling)
}

// SortTransactions sorts txns in place by Compare, keeping the input order of
// equal elements.
func SortTransactions(txns []CardTransaction) {
	slices.SortStableFunc(txns, Compare)
}
