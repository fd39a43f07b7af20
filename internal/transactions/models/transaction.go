package models

import "time"

// transaction kinds
const (
	TypeIncome  = "INCOME"
	TypeExpense = "EXPENSE"
)

// accepted payment methods, empty means unspecified
const (
	PaymentCash         = "CASH"
	PaymentDebitCard    = "DEBIT_CARD"
	PaymentCreditCard   = "CREDIT_CARD"
	PaymentBankTransfer = "BANK_TRANSFER"
	PaymentOther        = "OTHER"
)

// Transaction is a single income or expense entry.
type Transaction struct {
	ID            int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Type          string    `json:"type" gorm:"type:text;not null;index"`
	PaymentMethod string    `json:"payment_method,omitempty" gorm:"type:text"`
	Amount        float64   `json:"amount" gorm:"not null"`
	Title         string    `json:"title" gorm:"type:text;not null"`
	Category      string    `json:"category,omitempty" gorm:"type:text;index"`
	Description   string    `json:"description,omitempty" gorm:"type:text"`
	Comments      string    `json:"comments,omitempty" gorm:"type:text"`
	Date          time.Time `json:"date" gorm:"not null;index"`
	Tags          []string  `json:"tags,omitempty" gorm:"serializer:json"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// Clone returns a deep copy, so stored values are never shared with callers.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Tags != nil {
		cp.Tags = append([]string(nil), t.Tags...)
	}
	return &cp
}
