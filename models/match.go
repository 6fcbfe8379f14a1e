package models

import (
	"time"

	"battleboats/board"
)

type MatchStatus string

const (
	MatchStatusActive   MatchStatus = "active"
	MatchStatusFinished MatchStatus = "finished"
)

// Player is one of the two seats of a match.
type Player struct {
	UserID   string `json:"user_id" gorm:"index"`
	Username string `json:"username"`
}

func (p Player) Empty() bool {
	return p.UserID == ""
}

// Match is the shared record both clients read and mutate through store transactions.
type Match struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	Player1 Player `gorm:"embedded;embeddedPrefix:player1_" json:"player1"`
	Player2 Player `gorm:"embedded;embeddedPrefix:player2_" json:"player2"`

	// keyed by user id
	Placements map[string]board.Fleet `gorm:"type:jsonb;serializer:json" json:"placements"`
	Shots      map[string][]int       `gorm:"type:jsonb;serializer:json" json:"shots"`
	Hits       map[string][]int       `gorm:"type:jsonb;serializer:json" json:"hits"`

	CurrentTurn string      `gorm:"type:varchar(64)" json:"current_turn"`
	Status      MatchStatus `gorm:"type:varchar(16);index;not null;default:'active'" json:"status"`
	WinnerID    string      `gorm:"type:varchar(64)" json:"winner_id,omitempty"`

	// bumped on every committed write
	Version int64 `gorm:"not null;default:0" json:"version"`

	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Opponent returns the other seat's user id, or "" when userID is not seated.
func (m *Match) Opponent(userID string) string {
	switch userID {
	case m.Player1.UserID:
		return m.Player2.UserID
	case m.Player2.UserID:
		return m.Player1.UserID
	}
	return ""
}

func (m *Match) IsParticipant(userID string) bool {
	return userID != "" && (m.Player1.UserID == userID || m.Player2.UserID == userID)
}

func (m *Match) PlayerByID(userID string) (Player, bool) {
	switch {
	case userID == "":
		return Player{}, false
	case m.Player1.UserID == userID:
		return m.Player1, true
	case m.Player2.UserID == userID:
		return m.Player2, true
	}
	return Player{}, false
}

// Clone deep-copies the record so staged transaction writes never alias committed state.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	if m.Placements != nil {
		c.Placements = make(map[string]board.Fleet, len(m.Placements))
		for k, fleet := range m.Placements {
			c.Placements[k] = fleet.Clone()
		}
	}
	c.Shots = cloneCells(m.Shots)
	c.Hits = cloneCells(m.Hits)
	if m.FinishedAt != nil {
		t := *m.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

func cloneCells(in map[string][]int) map[string][]int {
	if in == nil {
		return nil
	}
	out := make(map[string][]int, len(in))
	for k, v := range in {
		out[k] = append([]int{}, v...)
	}
	return out
}
