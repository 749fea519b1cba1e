/**
 * @description
 * Account database model: the cash ledger backing paper trades.
 * Maps to the 'accounts' table in PostgreSQL.
 * Cash is mutated exclusively inside trade-execution transactions.
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

// StartingCash is the fixed balance every new account is seeded with.
var StartingCash = decimal.RequireFromString("10000.00")

// Account holds a user's simulated cash balance (1:1 with User)
type Account struct {
	ID     uuid.UUID       `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	UserID uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Cash   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"cash"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Associations
	User     *User     `gorm:"foreignKey:UserID" json:"-"`
	Holdings []Holding `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"holdings,omitempty"`
}

// TableName overrides the table name used by Account to `accounts`
func (Account) TableName() string {
	return "accounts"
}

// BeforeCreate ensures UUID and starting balance are set
func (a *Account) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Cash.IsZero() {
		a.Cash = StartingCash
	}
	return
}
