package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// TypeOf classifies an amount: strictly positive amounts are income, everything else is expense.
func TypeOf(amount decimal.Decimal) TransactionType {
	if amount.IsPositive() {
		return TypeIncome
	}
	return TypeExpense
}

type Transaction struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	CreatedAt   time.Time       `json:"date_added"`
	UpdatedAt   time.Time       `json:"date_modified"`
}
