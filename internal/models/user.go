package models

import (
	"time"
)

// UserStatus is the account state of a storefront customer
type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusBlocked UserStatus = "blocked"
)

// AnonymousUserID is the identity carts are attached to before login
const AnonymousUserID int64 = 0

// User represents a storefront customer account
type User struct {
	ID          int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name        string     `gorm:"not null" json:"name"`
	Email       string     `gorm:"uniqueIndex;not null" json:"email"`
	Phone       string     `json:"phone,omitempty"`
	Status      UserStatus `gorm:"type:varchar(20);default:'active'" json:"status"`
	CompanyName string     `json:"company_name,omitempty"`
	VatNumber   string     `json:"vat_number,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// GetEntityID implements LocalEntity
func (u *User) GetEntityID() int64 { return u.ID }

// GetEntityType implements LocalEntity
func (u *User) GetEntityType() string { return EntityTypeUser }

// IsAnonymous returns true for the shared guest identity
func (u *User) IsAnonymous() bool {
	return u.ID == AnonymousUserID
}

// HasCompany returns true if the account belongs to a business customer
func (u *User) HasCompany() bool {
	return u.CompanyName != ""
}
