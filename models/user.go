package models

import (
	"time"

	"battleboats/board"
)

// DefaultSkin is served for every ship length a user has not customised.
const DefaultSkin = "img/default.png"

// User is a registered player. NameKey is the slugged username used for lookups.
type User struct {
	ID           string `gorm:"primaryKey;type:uuid" json:"id"`
	Username     string `gorm:"not null" json:"username"`
	NameKey      string `gorm:"uniqueIndex;not null" json:"-"`
	PasswordHash string `gorm:"not null" json:"-"`

	// ship length -> image URL
	Skins map[int]string `gorm:"type:jsonb;serializer:json" json:"skins,omitempty"`

	// last fleet submitted from the placement screen
	DraftFleet board.Fleet `gorm:"type:jsonb;serializer:json" json:"draft_fleet,omitempty"`

	Timestamps
}

// Session is an opaque login token.
type Session struct {
	Token     string    `gorm:"primaryKey;type:varchar(64)" json:"token"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Skins != nil {
		c.Skins = make(map[int]string, len(u.Skins))
		for k, v := range u.Skins {
			c.Skins[k] = v
		}
	}
	c.DraftFleet = u.DraftFleet.Clone()
	return &c
}
