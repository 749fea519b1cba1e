/**
 * @description
 * PortfolioSnapshot database model: one immutable valuation per account per day.
 * Maps to the 'portfolio_snapshots' table in PostgreSQL.
 * The (account_id, date) unique index is what makes valuation idempotent.
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

// PortfolioSnapshot records total portfolio value (cash + mark-to-market
// holdings) for one account on one calendar date. Never updated once written.
type PortfolioSnapshot struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	AccountID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_snapshots_account_date" json:"account_id"`
	Date       time.Time       `gorm:"type:date;not null;uniqueIndex:idx_snapshots_account_date" json:"date"`
	TotalValue decimal.Decimal `gorm:"column:total_value;type:decimal(15,2);not null" json:"total_value"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Associations
	Account *Account `gorm:"foreignKey:AccountID" json:"-"`
}

// TableName overrides the table name used by PortfolioSnapshot to `portfolio_snapshots`
func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}

// BeforeCreate ensures UUID is set and the date is truncated to a calendar day
func (p *PortfolioSnapshot) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Date = DateOnly(p.Date)
	return
}

// DateOnly truncates a timestamp to midnight UTC. Snapshot dates are calendar
// dates; comparing anything finer-grained breaks the uniqueness invariant.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
