package models

import (
	"time"
)

// ProfileType distinguishes billing from shipping addresses
type ProfileType string

const (
	ProfileTypeBilling  ProfileType = "billing"
	ProfileTypeShipping ProfileType = "shipping"
)

// Profile is a customer address book entry
type Profile struct {
	ID                 int64       `gorm:"primaryKey" json:"id"`
	UserID             int64       `gorm:"index" json:"user_id"`
	Type               ProfileType `gorm:"type:varchar(20);not null" json:"type"`
	GivenName          string      `json:"given_name"`
	FamilyName         string      `json:"family_name"`
	Organization       string      `json:"organization,omitempty"`
	AddressLine1       string      `json:"address_line1"`
	AddressLine2       string      `json:"address_line2,omitempty"`
	PostalCode         string      `json:"postal_code"`
	Locality           string      `json:"locality"`
	AdministrativeArea string      `json:"administrative_area,omitempty"` // state/province code
	CountryCode        string      `gorm:"type:varchar(2)" json:"country_code"`
	Phone              string      `json:"phone,omitempty"`
	Active             bool        `gorm:"default:true" json:"active"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// TableName specifies the table name for Profile model
func (Profile) TableName() string {
	return "profile"
}

// GetEntityID implements LocalEntity
func (p *Profile) GetEntityID() int64 { return p.ID }

// GetEntityType implements LocalEntity
func (p *Profile) GetEntityType() string { return EntityTypeProfile }

// FullName joins given and family name
func (p *Profile) FullName() string {
	switch {
	case p.GivenName == "":
		return p.FamilyName
	case p.FamilyName == "":
		return p.GivenName
	}
	return p.GivenName + " " + p.FamilyName
}

// HasAddress reports whether the minimal postal fields are filled
func (p *Profile) HasAddress() bool {
	return p.AddressLine1 != "" && p.Locality != "" && p.CountryCode != ""
}
