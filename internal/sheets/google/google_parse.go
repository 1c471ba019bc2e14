package google

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/renezit0/despesa-agil-93/internal/core"
	ports "github.com/renezit0/despesa-agil-93/internal/sheets"
)

// parseRows converts a values matrix (as returned by the Sheets API) into
// ledger rows. The first row must carry the ledger header; columns are
// located by name so they can be reordered in the sheet.
func parseRows(values [][]interface{}) ([]ports.Row, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := toStrings(values[0])
	cols := make(map[string]int, len(ports.Header))
	var missing []string
	for _, h := range ports.Header {
		idx := indexOf(headers, h)
		if idx == -1 {
			missing = append(missing, h)
		}
		cols[h] = idx
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unexpected ledger header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}

	out := make([]ports.Row, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		get := func(name string) string { return safeGet(row, cols[name]) }

		date, err := core.ParseDate(get("Date"))
		if err != nil {
			// Blank or hand-edited lines are skipped.
			continue
		}
		out = append(out, ports.Row{
			Date:        date,
			Event:       get("Event"),
			ExpenseID:   get("Expense"),
			Title:       get("Title"),
			Payment:     parseAmount(get("Payment")),
			Discount:    parseAmount(get("Discount")),
			PaymentType: core.PaymentType(get("Type")),
			Note:        get("Note"),
			Ref:         get("Ref"),
		})
	}
	return out, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// parseAmount accepts sheet-formatted numbers with a decimal comma and
// yields zero for anything unparseable.
func parseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
