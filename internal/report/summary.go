package report

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/argent-dev/argent/internal/model"
)

// SummaryHeader is the CSV header of a group summary.
const SummaryHeader = "group,records,total_billing,actual_billing,share"

// sharePlaces is the number of decimal places kept in GroupSummary.Share.
const sharePlaces = 4

// GroupSummary aggregates the transactions of one merchant group.
type GroupSummary struct {
	Label         string
	Records       int
	TotalBilling  int64
	ActualBilling int64
	Share         decimal.Decimal // of the overall ActualBilling
}

// Summarize aggregates clustered transactions per group label, largest
// ActualBilling first. Every transaction must already carry a group.
func Summarize(txns []model.CardTransaction) ([]GroupSummary, error) {
	byLabel := make(map[string]int)
	var groups []GroupSummary
	var overall int64

	for i, txn := range txns {
		label, ok := txn.Group()
		if !ok {
			return nil, fmt.Errorf("transaction %d (%s %s) has no group", i, txn.Date, txn.Description)
		}
		idx, seen := byLabel[label]
		if !seen {
			idx = len(groups)
			byLabel[label] = idx
			groups = append(groups, GroupSummary{Label: label})
		}
		groups[idx].Records++
		groups[idx].TotalBilling += txn.TotalBilling
		groups[idx].ActualBilling += txn.ActualBilling
		overall += txn.ActualBilling
	}

	for i := range groups {
		groups[i].Share = share(groups[i].ActualBilling, overall)
	}

	slices.SortStableFunc(groups, func(a, b GroupSummary) int {
		if c := cmp.Compare(b.ActualBilling, a.ActualBilling); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return groups, nil
}

func share(part, whole int64) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).Div(decimal.NewFromInt(whole)).Round(sharePlaces)
}

// WriteSummary writes group summaries as CSV (including header).
func WriteSummary(w io.Writer, groups []GroupSummary) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(strings.Split(SummaryHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, g := range groups {
		row := []string{
			g.Label,
			strconv.Itoa(g.Records),
			strconv.FormatInt(g.TotalBilling, 10),
			strconv.FormatInt(g.ActualBilling, 10),
			g.Share.StringFixed(sharePlaces),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
