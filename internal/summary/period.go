package summary

import (
	"fmt"
	"strings"
	"time"

	"walletflow/internal/core"
)

type Period string

const (
	Week  Period = "week"
	Month Period = "month"
	Year  Period = "year"
)

func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case Week, Month, Year:
		return p, nil
	default:
		return "", fmt.Errorf("invalid period %q: must be week, month or year", s)
	}
}

// Cutoff is the start of the window ending at ref. Month and year step back
// by calendar units, so the window length varies with the calendar.
func (p Period) Cutoff(ref time.Time) time.Time {
	switch p {
	case Week:
		return ref.AddDate(0, 0, -7)
	case Month:
		return ref.AddDate(0, -1, 0)
	case Year:
		return ref.AddDate(-1, 0, 0)
	default:
		return ref
	}
}

// FilterSince keeps transactions dated at or after p.Cutoff(ref), preserving
// order.
func FilterSince(txs []core.Transaction, p Period, ref time.Time) []core.Transaction {
	cutoff := p.Cutoff(ref)
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.Date.Before(cutoff) {
			out = append(out, tx)
		}
	}
	return out
}
