package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"battleboats/board"
	"battleboats/engine"
	"battleboats/models"
	"battleboats/store"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	QueueStatusWaiting = "waiting"
	QueueStatusActive  = "active"
)

// JoinResult is what a player gets back from JoinQueue. MatchID is empty
// while the player waits.
type JoinResult struct {
	MatchID string `json:"match_id"`
	Status  string `json:"status"`
}

// QueueSnapshot is the admin view of the waiting slot.
type QueueSnapshot struct {
	Waiting     bool       `json:"waiting"`
	UserID      string     `json:"user_id,omitempty"`
	Username    string     `json:"username,omitempty"`
	EnqueuedAt  *time.Time `json:"enqueued_at,omitempty"`
	WaitSeconds int64      `json:"wait_seconds"`
	Stale       bool       `json:"stale"`
	Malformed   bool       `json:"malformed"`
}

// SweepReport counts what one Sweep cleaned up.
type SweepReport struct {
	QueueCleared   bool `json:"queue_cleared"`
	MatchesRemoved int  `json:"matches_removed"`
}

// MatchmakingService pairs players through the single global queue slot.
type MatchmakingService struct {
	Games store.GameStore
	Users store.UserStore

	settings     engine.Settings
	queueTimeout time.Duration
	clock        clockwork.Clock
	log          *log.Logger
	newID        func() string
}

func NewMatchmakingService(games store.GameStore, users store.UserStore, settings engine.Settings, queueTimeout time.Duration, clock clockwork.Clock, logger *log.Logger) *MatchmakingService {
	return &MatchmakingService{
		Games:        games,
		Users:        users,
		settings:     settings,
		queueTimeout: queueTimeout,
		clock:        clock,
		log:          logger.With("component", "matchmaking"),
		newID:        uuid.NewString,
	}
}

func (s *MatchmakingService) validateFleet(fleet board.Fleet) error {
	if err := s.settings.Rules.CheckFleet(fleet); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFleet, err)
	}
	return nil
}

// SubmitFleet stores a validated fleet as the user's draft for later joins.
func (s *MatchmakingService) SubmitFleet(ctx context.Context, userID string, fleet board.Fleet) error {
	if err := s.validateFleet(fleet); err != nil {
		return err
	}
	if err := s.Users.UpdateDraftFleet(ctx, userID, fleet); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// JoinQueue either parks the player in the queue slot or pairs them with the
// player already waiting there. An empty fleet falls back to the user's draft.
func (s *MatchmakingService) JoinQueue(ctx context.Context, player models.Player, fleet board.Fleet) (JoinResult, error) {
	if len(fleet) == 0 {
		u, err := s.Users.UserByID(ctx, player.UserID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return JoinResult{}, err
		}
		if u != nil {
			fleet = u.DraftFleet
		}
		if len(fleet) == 0 {
			return JoinResult{}, ErrFleetRequired
		}
	}
	if err := s.validateFleet(fleet); err != nil {
		return JoinResult{}, err
	}

	var res JoinResult
	err := s.Games.Transaction(ctx, func(tx store.Tx) error {
		q, err := tx.Queue()
		if err != nil {
			return err
		}
		now := s.clock.Now()

		if reason := s.replaceable(q, player.UserID, now); reason != "" {
			if reason != "empty" && reason != "self" {
				s.log.Warn("matchmaking [JoinQueue] replacing waiting entry", "reason", reason, "user_id", q.UserID)
			}
			q.UserID = player.UserID
			q.Username = player.Username
			q.Fleet = fleet
			q.EnqueuedAt = &now
			if err := tx.SaveQueue(q); err != nil {
				return err
			}
			res = JoinResult{Status: QueueStatusWaiting}
			return nil
		}

		waiter := models.Player{UserID: q.UserID, Username: q.Username}
		m, err := engine.NewMatch(s.newID(), waiter, player, q.Fleet, fleet, now)
		if err != nil {
			return err
		}
		if err := tx.CreateMatch(m); err != nil {
			return err
		}
		q.Clear()
		if err := tx.SaveQueue(q); err != nil {
			return err
		}
		res = JoinResult{MatchID: m.ID, Status: QueueStatusActive}
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}

	if res.MatchID != "" {
		s.log.Info("matchmaking [JoinQueue] paired", "match_id", res.MatchID, "user_id", player.UserID)
	} else {
		s.log.Debug("matchmaking [JoinQueue] waiting", "user_id", player.UserID)
	}
	return res, nil
}

// replaceable says why the slot may be overwritten by userID, or "" when the
// waiting player is a valid opponent.
func (s *MatchmakingService) replaceable(q *models.QueueSlot, userID string, now time.Time) string {
	switch {
	case q.Empty():
		return "empty"
	case q.UserID == userID:
		return "self"
	case q.Malformed():
		return "malformed"
	case q.Stale(now, s.queueTimeout):
		return "stale"
	}
	return ""
}

// LeaveQueue clears the slot only when userID is the one waiting in it.
func (s *MatchmakingService) LeaveQueue(ctx context.Context, userID string) error {
	return s.Games.Transaction(ctx, func(tx store.Tx) error {
		q, err := tx.Queue()
		if err != nil {
			return err
		}
		if q.Empty() || q.UserID != userID {
			return nil
		}
		q.Clear()
		return tx.SaveQueue(q)
	})
}

// FindActiveMatch returns the newest playable active match userID sits in.
func (s *MatchmakingService) FindActiveMatch(ctx context.Context, userID string) (*models.Match, error) {
	ms, err := s.Games.FindMatchesByPlayer(ctx, userID, models.MatchStatusActive)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for _, m := range ms {
		if engine.IsPlayable(m, now, s.settings.MatchMaxAge) {
			return m, nil
		}
	}
	return nil, ErrNoActiveMatch
}

func (s *MatchmakingService) QueueStatus(ctx context.Context) (QueueSnapshot, error) {
	q, err := s.Games.PeekQueue(ctx)
	if err != nil {
		return QueueSnapshot{}, err
	}
	if q.Empty() {
		return QueueSnapshot{}, nil
	}
	now := s.clock.Now()
	snap := QueueSnapshot{
		Waiting:    true,
		UserID:     q.UserID,
		Username:   q.Username,
		EnqueuedAt: q.EnqueuedAt,
		Stale:      q.Stale(now, s.queueTimeout),
		Malformed:  q.Malformed(),
	}
	if q.EnqueuedAt != nil {
		snap.WaitSeconds = int64(now.Sub(*q.EnqueuedAt) / time.Second)
	}
	return snap, nil
}

// Sweep clears a stale or malformed queue entry and deletes active matches
// that are no longer playable. Safe to run alongside players doing the same.
func (s *MatchmakingService) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	err := s.Games.Transaction(ctx, func(tx store.Tx) error {
		report.QueueCleared = false
		q, err := tx.Queue()
		if err != nil {
			return err
		}
		if q.Empty() || !(q.Malformed() || q.Stale(s.clock.Now(), s.queueTimeout)) {
			return nil
		}
		s.log.Info("matchmaking [Sweep] clearing queue", "user_id", q.UserID)
		q.Clear()
		report.QueueCleared = true
		return tx.SaveQueue(q)
	})
	if err != nil {
		return report, err
	}

	active, err := s.Games.ListMatches(ctx, models.MatchStatusActive)
	if err != nil {
		return report, err
	}
	for _, m := range active {
		if engine.IsPlayable(m, s.clock.Now(), s.settings.MatchMaxAge) {
			continue
		}
		removed := false
		err := s.Games.Transaction(ctx, func(tx store.Tx) error {
			removed = false
			cur, err := tx.Match(m.ID)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if cur.Status != models.MatchStatusActive || engine.IsPlayable(cur, s.clock.Now(), s.settings.MatchMaxAge) {
				return nil
			}
			removed = true
			return tx.DeleteMatch(cur.ID)
		})
		if err != nil {
			return report, err
		}
		if removed {
			report.MatchesRemoved++
			s.log.Info("matchmaking [Sweep] removed match", "match_id", m.ID)
		}
	}
	return report, nil
}
