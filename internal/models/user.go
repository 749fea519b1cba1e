/**
 * @description
 * User database model.
 * Maps to the 'users' table in PostgreSQL.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/google/uuid
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a registered user in the system
type User struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	Username      string    `gorm:"uniqueIndex;size:150;not null" json:"username"`
	Email         string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash  string    `gorm:"column:password_hash;not null" json:"-"`
	EmailVerified bool      `gorm:"column:email_verified;default:false" json:"email_verified"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Associations
	Account *Account `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"account,omitempty"`
}

// TableName overrides the table name used by User to `users`
func (User) TableName() string {
	return "users"
}

// BeforeCreate ensures UUID is generated if not present (though DB usually handles this)
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return
}
