package amqp

import (
	"encoding/json"
	"time"

	"walletflow/internal/core"
	"walletflow/internal/state"
	"walletflow/internal/summary"
)

// StateChangedMessage summarizes the state after one applied action. It
// carries totals only; consumers that need the transactions read the backend.
type StateChangedMessage struct {
	Action           string     `json:"action"`
	TransactionCount int        `json:"transaction_count"`
	Income           core.Money `json:"income"`
	Expense          core.Money `json:"expense"`
	Balance          core.Money `json:"balance"`
	Timestamp        time.Time  `json:"timestamp"`
}

// NewStateChangedMessage builds the message for c, stamped with now.
func NewStateChangedMessage(c state.Change, now time.Time) *StateChangedMessage {
	totals := summary.TotalsOf(c.State.Transactions)
	kind := "unknown"
	if c.Action != nil {
		kind = c.Action.Kind()
	}
	return &StateChangedMessage{
		Action:           kind,
		TransactionCount: len(c.State.Transactions),
		Income:           totals.Income,
		Expense:          totals.Expense,
		Balance:          totals.Balance,
		Timestamp:        now.UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *StateChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// StateChangedMessageFromJSON decodes a message body.
func StateChangedMessageFromJSON(data []byte) (*StateChangedMessage, error) {
	var msg StateChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
