package amqp

import (
	"testing"
	"time"

	"walletflow/internal/core"
	"walletflow/internal/state"
)

func TestNewStateChangedMessage(t *testing.T) {
	s := state.Initial(nil)
	s = state.Reduce(s, state.SetTransactions{Transactions: []core.Transaction{
		{ID: "a", Amount: core.NewMoney(100), Type: core.Income, Category: "salary"},
		{ID: "b", Amount: core.NewMoney(4.5), Type: core.Expense, Category: "food"},
	}})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	msg := NewStateChangedMessage(state.Change{Action: state.SetTransactions{}, State: s}, now)

	if msg.Action != state.KindSetTransactions {
		t.Errorf("action = %q", msg.Action)
	}
	if msg.TransactionCount != 2 {
		t.Errorf("count = %d", msg.TransactionCount)
	}
	if !msg.Balance.Equal(core.NewMoney(95.5)) {
		t.Errorf("balance = %s", msg.Balance.Display())
	}
	if !msg.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v", msg.Timestamp)
	}
}

func TestStateChangedMessage_JSON(t *testing.T) {
	msg := &StateChangedMessage{
		Action:           "set_budget",
		TransactionCount: 3,
		Income:           core.NewMoney(10),
		Expense:          core.NewMoney(2.25),
		Balance:          core.NewMoney(7.75),
		Timestamp:        time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	jsonBytes, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsed, err := StateChangedMessageFromJSON(jsonBytes)
	if err != nil {
		t.Fatalf("StateChangedMessageFromJSON() error = %v", err)
	}
	if parsed.Action != msg.Action || parsed.TransactionCount != msg.TransactionCount {
		t.Errorf("parsed = %+v, want %+v", parsed, msg)
	}
	if !parsed.Expense.Equal(msg.Expense) || !parsed.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("parsed = %+v, want %+v", parsed, msg)
	}
}

func TestStateChangedMessage_InvalidJSON(t *testing.T) {
	if _, err := StateChangedMessageFromJSON([]byte(`{"transaction_count": "many"}`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
