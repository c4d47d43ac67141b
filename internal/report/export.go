// Package report writes clustered card transactions and per-group summaries
// as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/argent-dev/argent/internal/model"
)

// Header is the CSV header of a transactions export.
const Header = "date,year,month,day,description,total_billing,count,num,actual_billing,comment,group"

const (
	numFields        = 11
	colDate          = 0
	colYear          = 1
	colMonth         = 2
	colDay           = 3
	colDesc          = 4
	colTotalBilling  = 5
	colCount         = 6
	colNum           = 7
	colActualBilling = 8
	colComment       = 9
	colGroup         = 10
)

// ReadRecords reads a transactions export. Every record comes back grouped.
func ReadRecords(r io.Reader) ([]model.CardTransaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading export CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	// Skip header row.
	var txns []model.CardTransaction
	for i, rec := range records[1:] {
		txn, err := UnmarshalRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// WriteRecords writes a transactions export (including header).
func WriteRecords(w io.Writer, txns []model.CardTransaction) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, txn := range txns {
		if err := cw.Write(MarshalRecord(txn)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalRecord converts a transaction to a CSV row. An ungrouped
// transaction gets an empty group column.
func MarshalRecord(txn model.CardTransaction) []string {
	row := make([]string, numFields)
	row[colDate] = txn.Date
	row[colYear] = txn.Year()
	row[colMonth] = txn.Month()
	row[colDay] = txn.Day()
	row[colDesc] = txn.Description
	row[colTotalBilling] = strconv.FormatInt(txn.TotalBilling, 10)
	row[colCount] = strconv.FormatInt(txn.Count, 10)
	row[colNum] = strconv.FormatInt(txn.Num, 10)
	row[colActualBilling] = strconv.FormatInt(txn.ActualBilling, 10)
	row[colComment] = txn.Comment
	row[colGroup], _ = txn.Group()
	return row
}

// UnmarshalRecord converts a CSV row to a grouped transaction.
func UnmarshalRecord(record []string) (model.CardTransaction, error) {
	if len(record) != numFields {
		return model.CardTransaction{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	var nums [4]int64
	for i, col := range []int{colTotalBilling, colCount, colNum, colActualBilling} {
		n, err := strconv.ParseInt(record[col], 10, 64)
		if err != nil {
			return model.CardTransaction{}, fmt.Errorf("parsing amount %q: %w", record[col], err)
		}
		nums[i] = n
	}

	txn := model.CardTransaction{
		Date:          record[colDate],
		Description:   record[colDesc],
		TotalBilling:  nums[0],
		Count:         nums[1],
		Num:           nums[2],
		ActualBilling: nums[3],
		Comment:       record[colComment],
	}
	return txn.WithGroup(record[colGroup]), nil
}
