// Package store is the shared record store behind the game: one queue slot,
// match records and leaderboard rows mutated only through transactions, plus
// users and sessions. It has an in-memory backend and a gorm/postgres backend.
package store

import (
	"context"
	"time"

	"battleboats/board"
	"battleboats/models"
)

// MaxRetries bounds how often Transaction re-runs fn after ErrConflict.
const MaxRetries = 5

// Tx is the view of the store inside one transaction. Records returned by it
// are private copies; nothing is visible to other callers until fn returns nil.
type Tx interface {
	// Queue returns the global queue slot, locked for the rest of the transaction.
	Queue() (*models.QueueSlot, error)
	SaveQueue(q *models.QueueSlot) error

	// Match returns a locked copy of the match or ErrNotFound.
	Match(id string) (*models.Match, error)
	CreateMatch(m *models.Match) error
	// SaveMatch writes m if nobody else wrote it since it was read, and bumps
	// m.Version. Otherwise it returns ErrConflict.
	SaveMatch(m *models.Match) error
	DeleteMatch(id string) error

	EnsureLeaderboardEntry(userID, username string) error
	RecordResult(winner, loser models.Player, at time.Time) error
}

type GameStore interface {
	// Transaction runs fn atomically. If fn returns an error nothing it wrote is
	// kept. Written matches are published to subscribers after commit.
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	GetMatch(ctx context.Context, id string) (*models.Match, error)
	// FindMatchesByPlayer returns matches with userID seated, newest first.
	FindMatchesByPlayer(ctx context.Context, userID string, status models.MatchStatus) ([]*models.Match, error)
	ListMatches(ctx context.Context, status models.MatchStatus) ([]*models.Match, error)
	// PeekQueue reads the queue slot without locking it.
	PeekQueue(ctx context.Context) (*models.QueueSlot, error)

	TopLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	LeaderboardEntry(ctx context.Context, userID string) (*models.LeaderboardEntry, error)

	// Subscribe delivers the latest committed snapshot of a match after every
	// write. The channel is closed when the match is deleted or cancel is called.
	Subscribe(matchID string) (<-chan *models.Match, func())
}

type UserStore interface {
	// CreateUser returns ErrNameTaken when u.NameKey is already registered.
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByNameKey(ctx context.Context, key string) (*models.User, error)
	UpdateSkins(ctx context.Context, userID string, skins map[int]string) error
	UpdateDraftFleet(ctx context.Context, userID string, fleet board.Fleet) error

	CreateSession(ctx context.Context, s *models.Session) error
	Session(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

var (
	_ GameStore = (*MemoryStore)(nil)
	_ UserStore = (*MemoryStore)(nil)
	_ GameStore = (*GormStore)(nil)
	_ UserStore = (*GormStore)(nil)
)
