package importer

import (
	"regexp"
	"strconv"

	"github.com/argent-dev/argent/internal/model"
)

// CardParser matches normalized card statement lines against a fixed
// seven-field grammar.
type CardParser struct{}

// Field patterns of a statement line, in order.
const (
	cardDate          = `(?P<date>[0-9]{4}/[0-9]{2}/[0-9]{2})`
	cardDescription   = `(?P<description>[^,.]+?)`
	cardTotalBilling  = `(?P<total_billing>-?[0-9]*)`
	cardCount         = `(?P<count>[0-9]*)`
	cardNum           = `(?P<num>[0-9]*)`
	cardActualBilling = `(?P<actual_billing>-?[0-9]*)`
	cardComment       = `(?P<comment>[^,.]*)`
)

var cardLine = regexp.MustCompile(`^` + cardDate + `,` + cardDescription + `,` + cardTotalBilling + `,` +
	cardCount + `,` + cardNum + `,` + cardActualBilling + `,` + cardComment)

var (
	cardColDate          = cardLine.SubexpIndex("date")
	cardColDescription   = cardLine.SubexpIndex("description")
	cardColTotalBilling  = cardLine.SubexpIndex("total_billing")
	cardColCount         = cardLine.SubexpIndex("count")
	cardColNum           = cardLine.SubexpIndex("num")
	cardColActualBilling = cardLine.SubexpIndex("actual_billing")
	cardColComment       = cardLine.SubexpIndex("comment")
)

// Format returns the parser name.
func (p *CardParser) Format() string { return "card" }

// ParseLine parses one normalized line. ok is false when the line is not a
// transaction (header rows, totals, blank lines).
func (p *CardParser) ParseLine(line string) (txn model.CardTransaction, ok bool) {
	m := cardLine.FindStringSubmatch(line)
	if m == nil {
		return model.CardTransaction{}, false
	}

	var nums [4]int64
	for i, col := range []int{cardColTotalBilling, cardColCount, cardColNum, cardColActualBilling} {
		n, ok := parseAmount(m[col])
		if !ok {
			return model.CardTransaction{}, false
		}
		nums[i] = n
	}

	return model.CardTransaction{
		Date:          m[cardColDate],
		Description:   m[cardColDescription],
		TotalBilling:  nums[0],
		Count:         nums[1],
		Num:           nums[2],
		ActualBilling: nums[3],
		Comment:       m[cardColComment],
	}, true
}

// parseAmount converts a captured numeric field. Empty and a lone "-" are
// zero; values outside int64 are rejected.
func parseAmount(s string) (int64, bool) {
	if s == "" || s == "-" {
		return 0, true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
