// Package summary computes derived values over a transaction list: totals,
// per-category sums, time windows and budget utilization. Everything here is
// pure and recomputed on each call.
package summary

import (
	"sort"
	"strings"

	"walletflow/internal/core"
)

// Totals is the income/expense/balance triple of a transaction list.
type Totals struct {
	Income  core.Money `json:"income"`
	Expense core.Money `json:"expense"`
	Balance core.Money `json:"balance"`
}

// CategoryAmount is a category together with its summed amount.
type CategoryAmount struct {
	Category core.Category
	Amount   core.Money
}

// TotalsOf sums income and expense amounts. Transactions of any other type
// count toward neither.
func TotalsOf(txs []core.Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		switch tx.Type {
		case core.Income:
			t.Income = t.Income.Add(tx.Amount)
		case core.Expense:
			t.Expense = t.Expense.Add(tx.Amount)
		}
	}
	t.Balance = t.Income.Sub(t.Expense)
	return t
}

// ByCategory seeds every known category at zero and adds each transaction to
// its bucket. Amounts of unknown category ids land nowhere.
func ByCategory(txs []core.Transaction, categories []core.Category) map[string]core.Money {
	out := make(map[string]core.Money, len(categories))
	for _, c := range categories {
		out[c.ID] = core.Money{}
	}
	for _, tx := range txs {
		if sum, ok := out[tx.Category]; ok {
			out[tx.Category] = sum.Add(tx.Amount)
		}
	}
	return out
}

// ExpenseBreakdown lists expense categories with a positive expense sum, in
// catalog order. This is the shape the spending chart consumes.
func ExpenseBreakdown(txs []core.Transaction, categories []core.Category) []CategoryAmount {
	sums := map[string]core.Money{}
	for _, tx := range txs {
		if tx.Type == core.Expense {
			sums[tx.Category] = sums[tx.Category].Add(tx.Amount)
		}
	}
	var out []CategoryAmount
	for _, c := range core.CategoriesOfType(categories, core.Expense) {
		if amt := sums[c.ID]; amt.IsPositive() {
			out = append(out, CategoryAmount{Category: c, Amount: amt})
		}
	}
	return out
}

// Query narrows a transaction list. An empty Type matches both types; Search
// matches descriptions case-insensitively.
type Query struct {
	Type   core.TransactionType
	Search string
}

// Filter applies q and returns the matches newest first.
func Filter(txs []core.Transaction, q Query) []core.Transaction {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if q.Type != "" && tx.Type != q.Type {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(tx.Description), needle) {
			continue
		}
		out = append(out, tx)
	}
	sortNewestFirst(out)
	return out
}

// Recent returns at most n transactions, newest first.
func Recent(txs []core.Transaction, n int) []core.Transaction {
	out := append([]core.Transaction(nil), txs...)
	sortNewestFirst(out)
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func sortNewestFirst(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date.Time)
	})
}
