/**
 * @description
 * Stock database model: the instrument catalog.
 * Maps to the 'stocks' table in PostgreSQL.
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

// Stock represents a tradable instrument.
// LastKnownPrice is an opportunistic cache, not an authoritative quote. It is
// refreshed immediately before every trade and periodically by the worker.
type Stock struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	Ticker         string          `gorm:"uniqueIndex;size:10;not null" json:"ticker"`
	CompanyName    string          `gorm:"size:255;not null" json:"company_name"`
	LastKnownPrice decimal.Decimal `gorm:"column:last_known_price;type:decimal(12,2);default:0" json:"last_known_price"`
	PriceUpdatedAt *time.Time      `gorm:"column:price_updated_at" json:"price_updated_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName overrides the table name used by Stock to `stocks`
func (Stock) TableName() string {
	return "stocks"
}

// BeforeCreate ensures UUID is generated if not present
func (s *Stock) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return
}
