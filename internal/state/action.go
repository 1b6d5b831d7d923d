package state

import "walletflow/internal/core"

// Action kinds, used in logs, metrics and change notifications.
const (
	KindSetTransactions   = "set_transactions"
	KindAddTransaction    = "add_transaction"
	KindUpdateTransaction = "update_transaction"
	KindDeleteTransaction = "delete_transaction"
	KindSetBudget         = "set_budget"
	KindSetLoading        = "set_loading"
)

// Action is the closed set of state transitions. The unexported marker keeps
// implementations inside this package.
type Action interface {
	Kind() string
	isAction()
}

type (
	// SetTransactions replaces the whole transaction list.
	SetTransactions struct {
		Transactions []core.Transaction
	}

	// AddTransaction appends to the end of the list.
	AddTransaction struct {
		Transaction core.Transaction
	}

	// UpdateTransaction replaces the transaction with the same ID.
	UpdateTransaction struct {
		Transaction core.Transaction
	}

	DeleteTransaction struct {
		ID string
	}

	SetBudget struct {
		Budget core.Budget
	}

	SetLoading struct {
		Loading bool
	}
)

func (SetTransactions) Kind() string   { return KindSetTransactions }
func (AddTransaction) Kind() string    { return KindAddTransaction }
func (UpdateTransaction) Kind() string { return KindUpdateTransaction }
func (DeleteTransaction) Kind() string { return KindDeleteTransaction }
func (SetBudget) Kind() string         { return KindSetBudget }
func (SetLoading) Kind() string        { return KindSetLoading }

func (SetTransactions) isAction()   {}
func (AddTransaction) isAction()    {}
func (UpdateTransaction) isAction() {}
func (DeleteTransaction) isAction() {}
func (SetBudget) isAction()         {}
func (SetLoading) isAction()        {}

func kindOf(a Action) string {
	if a == nil {
		return "unknown"
	}
	return a.Kind()
}
