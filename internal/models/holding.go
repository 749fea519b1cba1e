/**
 * @description
 * Holding database model: per account-and-stock position aggregate.
 * Maps to the 'holdings' table in PostgreSQL.
 *
 * Invariants:
 * - (account_id, stock_id) is unique.
 * - shares_owned never persists at zero: a sell that empties the position
 *   deletes the row, and a later buy starts a fresh cost basis.
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

// Holding represents shares of one stock held by one account
type Holding struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	AccountID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_holdings_account_stock" json:"account_id"`
	StockID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_holdings_account_stock" json:"stock_id"`
	SharesOwned  decimal.Decimal `gorm:"column:shares_owned;type:decimal(12,4);not null" json:"shares_owned"`
	AveragePrice decimal.Decimal `gorm:"column:average_price;type:decimal(12,4);not null" json:"average_price"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Associations
	Account *Account `gorm:"foreignKey:AccountID" json:"-"`
	Stock   *Stock   `gorm:"foreignKey:StockID" json:"stock,omitempty"`
}

// TableName overrides the table name used by Holding to `holdings`
func (Holding) TableName() string {
	return "holdings"
}

// BeforeCreate ensures UUID is generated if not present
func (h *Holding) BeforeCreate(tx *gorm.DB) (err error) {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return
}
