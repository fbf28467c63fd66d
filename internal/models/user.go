package models

import "time"

// User is an identity record. Walk-in visitors get a row with AnonymousToken
// set and IsAnonymous=true; signing in creates (or finds) a row keyed by the
// identity provider's subject id. Migration flips IsAnonymous on the walk-in
// row and reassigns its chat sessions; the row itself is kept for audit.
type User struct {
	ID                 string    `gorm:"primaryKey;size:26" json:"id"`
	AnonymousToken     *string   `gorm:"size:36;uniqueIndex" json:"-"`
	ExternalIdentityID *string   `gorm:"size:191;uniqueIndex" json:"-"`
	Email              *string   `gorm:"size:191;uniqueIndex" json:"email,omitempty"`
	IsAnonymous        bool      `gorm:"not null" json:"is_anonymous"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
