package state

import (
	"slices"

	"walletflow/internal/core"
)

// State is the application state. Transactions keep insertion order.
//
// The reducer never writes into a slice owned by an earlier State, so a State
// value stays valid after later dispatches. Callers must still treat the
// slices as read-only.
type State struct {
	Transactions []core.Transaction
	Categories   []core.Category
	Budget       core.Budget
	Loading      bool
}

// Initial returns the pre-hydration state: no transactions, a zero budget and
// Loading set.
func Initial(categories []core.Category) State {
	return State{
		Transactions: []core.Transaction{},
		Categories:   slices.Clone(categories),
		Loading:      true,
	}
}

// Clone returns a deep copy of the slices in s.
func (s State) Clone() State {
	s.Transactions = slices.Clone(s.Transactions)
	s.Categories = slices.Clone(s.Categories)
	return s
}

// Reduce applies a to s. Unknown actions return s unchanged.
func Reduce(s State, a Action) State {
	next, _ := reduce(s, a)
	return next
}

// reduce also reports whether the persisted part of the state (transactions
// or budget) changed.
func reduce(s State, a Action) (State, bool) {
	switch a := a.(type) {
	case SetTransactions:
		s.Transactions = append([]core.Transaction{}, a.Transactions...)
		return s, true

	case AddTransaction:
		s.Transactions = append(slices.Clip(s.Transactions), a.Transaction)
		return s, true

	case UpdateTransaction:
		if !slices.ContainsFunc(s.Transactions, matchID(a.Transaction.ID)) {
			return s, false
		}
		next := slices.Clone(s.Transactions)
		for i := range next {
			if next[i].ID == a.Transaction.ID {
				next[i] = a.Transaction
			}
		}
		s.Transactions = next
		return s, true

	case DeleteTransaction:
		if !slices.ContainsFunc(s.Transactions, matchID(a.ID)) {
			return s, false
		}
		s.Transactions = slices.DeleteFunc(slices.Clone(s.Transactions), matchID(a.ID))
		return s, true

	case SetBudget:
		s.Budget = a.Budget
		return s, true

	case SetLoading:
		s.Loading = a.Loading
		return s, false

	default:
		return s, false
	}
}

func matchID(id string) func(core.Transaction) bool {
	return func(t core.Transaction) bool { return t.ID == id }
}
