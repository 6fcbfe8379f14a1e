package models

import (
	"time"

	"battleboats/board"
)

// GlobalQueueID names the single waiting-slot record.
const GlobalQueueID = "global"

// QueueSlot holds at most one player waiting for an opponent.
type QueueSlot struct {
	ID         string      `gorm:"primaryKey;type:varchar(32)" json:"id"`
	UserID     string      `gorm:"type:varchar(64)" json:"user_id,omitempty"`
	Username   string      `json:"username,omitempty"`
	Fleet      board.Fleet `gorm:"type:jsonb;serializer:json" json:"fleet,omitempty"`
	EnqueuedAt *time.Time  `json:"enqueued_at,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func (q *QueueSlot) Empty() bool {
	return q == nil || q.UserID == ""
}

// Malformed is an occupied slot missing the data a pairing needs.
func (q *QueueSlot) Malformed() bool {
	return !q.Empty() && (len(q.Fleet) == 0 || q.EnqueuedAt == nil)
}

func (q *QueueSlot) Stale(now time.Time, timeout time.Duration) bool {
	if q.Empty() || q.EnqueuedAt == nil {
		return false
	}
	return now.Sub(*q.EnqueuedAt) > timeout
}

func (q *QueueSlot) Clear() {
	q.UserID = ""
	q.Username = ""
	q.Fleet = nil
	q.EnqueuedAt = nil
}

func (q *QueueSlot) Clone() *QueueSlot {
	if q == nil {
		return nil
	}
	c := *q
	c.Fleet = q.Fleet.Clone()
	if q.EnqueuedAt != nil {
		t := *q.EnqueuedAt
		c.EnqueuedAt = &t
	}
	return &c
}
