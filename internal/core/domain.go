package core

import (
	"errors"
	"strings"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	TransactionType string

	Transaction struct {
		ID          string          `json:"id"`
		Description string          `json:"description"`
		Amount      Money           `json:"amount"`
		Type        TransactionType `json:"type"`
		Category    string          `json:"category"` // Category ID, may dangle
		Date        Date            `json:"date"`
	}

	Category struct {
		ID   string          `json:"id"`
		Name string          `json:"name"`
		Type TransactionType `json:"type"`
		Icon string          `json:"icon"`
	}

	// Budget is the monthly income/expense ceiling. Replaced as a whole.
	Budget struct {
		Income  Money `json:"income"`
		Expense Money `json:"expense"`
	}

	// TransactionInput carries the user-entered fields of a transaction
	// before an ID is assigned.
	TransactionInput struct {
		Description string
		Amount      Money
		Type        TransactionType
		Category    string
		Date        Date // zero means "now"
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrCategoryMismatch = errors.New("category does not match transaction type")
	ErrNegativeBudget   = errors.New("budget must not be negative")
)

const maxDescriptionLen = 200

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (t TransactionType) String() string {
	return string(t)
}

// ParseTransactionType accepts "income" or "expense" in any case.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrInvalidType
	}
	return t, nil
}

// Validate applies the form-level rules. The state store never calls it;
// callers validate before handing input over.
func (in TransactionInput) Validate(categories []Category) error {
	if len(strings.TrimSpace(in.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(in.Description) > maxDescriptionLen {
		return errors.New("description too long (max 200 characters)")
	}
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	if !in.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(in.Category) == "" {
		return ErrEmptyCategory
	}
	cat, ok := FindCategory(categories, in.Category)
	if !ok || cat.Type != in.Type {
		return ErrCategoryMismatch
	}
	return nil
}

// Input returns the editable fields of t.
func (t Transaction) Input() TransactionInput {
	return TransactionInput{
		Description: t.Description,
		Amount:      t.Amount,
		Type:        t.Type,
		Category:    t.Category,
		Date:        t.Date,
	}
}

func (b Budget) Validate() error {
	if b.Income.IsNegative() || b.Expense.IsNegative() {
		return ErrNegativeBudget
	}
	return nil
}
