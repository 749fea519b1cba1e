/**
 * @description
 * Transaction database model: the append-only trade log.
 * Maps to the 'transactions' table in PostgreSQL.
 * Rows are never updated or deleted (except via account cascade).
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/google/uuid
 * - github.com/shopspring/decimal
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionSide defines the side of the trade
type TransactionSide string

const (
	TransactionSideBuy  TransactionSide = "BUY"
	TransactionSideSell TransactionSide = "SELL"
)

// Transaction records one executed buy or sell
type Transaction struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	AccountID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_transactions_account" json:"account_id"`
	StockID       uuid.UUID       `gorm:"type:uuid;not null" json:"stock_id"`
	Side          TransactionSide `gorm:"column:side;type:varchar(4);not null" json:"side"`
	Quantity      decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"quantity"`
	PricePerShare decimal.Decimal `gorm:"column:price_per_share;type:decimal(12,2);not null" json:"price_per_share"`
	TotalAmount   decimal.Decimal `gorm:"column:total_amount;type:decimal(15,2);not null" json:"total_amount"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Associations
	Account *Account `gorm:"foreignKey:AccountID" json:"-"`
	Stock   *Stock   `gorm:"foreignKey:StockID" json:"stock,omitempty"`
}

// TableName overrides the table name used by Transaction to `transactions`
func (Transaction) TableName() string {
	return "transactions"
}

// BeforeCreate ensures UUID is set and total_amount = quantity * price_per_share
func (t *Transaction) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.TotalAmount.IsZero() {
		t.TotalAmount = t.Quantity.Mul(t.PricePerShare).Round(2)
	}
	return
}
