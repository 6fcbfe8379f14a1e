package models

import (
	"time"

	"gorm.io/gorm"
)

// LeaderboardEntry tracks finished-match results per user (denormalized for reads)
type LeaderboardEntry struct {
	UserID   string `gorm:"primaryKey;type:uuid" json:"user_id"`
	Username string `gorm:"index;not null" json:"username"`

	Wins   int64 `json:"wins" gorm:"default:0;index"`
	Losses int64 `json:"losses" gorm:"default:0"`

	LastResultAt *time.Time `json:"last_result_at,omitempty"`

	Timestamps
}

func (e LeaderboardEntry) GamesPlayed() int64 {
	return e.Wins + e.Losses
}

// WinRate is a percentage; zero before the first game.
func (e LeaderboardEntry) WinRate() float64 {
	games := e.GamesPlayed()
	if games == 0 {
		return 0
	}
	return float64(e.Wins) * 100 / float64(games)
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
