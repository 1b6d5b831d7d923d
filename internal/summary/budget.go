package summary

import (
	"github.com/shopspring/decimal"

	"walletflow/internal/core"
)

var hundred = decimal.NewFromInt(100)

// BudgetReport compares actual totals against the budget ceilings.
type BudgetReport struct {
	Budget           core.Budget
	Totals           Totals
	IncomePercent    int
	ExpensePercent   int
	RemainingExpense core.Money
}

// Utilization is min(round(actual/limit*100), 100), or 0 when no limit is set.
func Utilization(actual, limit core.Money) int {
	if !limit.IsPositive() {
		return 0
	}
	pct := actual.Div(limit.Decimal).Mul(hundred).Round(0).IntPart()
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// Remaining is max(limit-actual, 0).
func Remaining(limit, actual core.Money) core.Money {
	r := limit.Sub(actual)
	if r.IsNegative() {
		return core.Money{}
	}
	return r
}

func BudgetStatus(b core.Budget, t Totals) BudgetReport {
	return BudgetReport{
		Budget:           b,
		Totals:           t,
		IncomePercent:    Utilization(t.Income, b.Income),
		ExpensePercent:   Utilization(t.Expense, b.Expense),
		RemainingExpense: Remaining(b.Expense, t.Expense),
	}
}
