package services

import (
	"context"
	"errors"

	"battleboats/engine"
	"battleboats/models"
	"battleboats/store"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// MatchService runs the state machine against the shared store.
type MatchService struct {
	Games store.GameStore

	settings engine.Settings
	clock    clockwork.Clock
	log      *log.Logger
}

func NewMatchService(games store.GameStore, settings engine.Settings, clock clockwork.Clock, logger *log.Logger) *MatchService {
	return &MatchService{
		Games:    games,
		settings: settings,
		clock:    clock,
		log:      logger.With("component", "match"),
	}
}

func (s *MatchService) Settings() engine.Settings {
	return s.settings
}

// Attack resolves one shot inside a single transaction. Ignored shots write
// nothing; a winning shot records both leaderboard results in the same commit.
func (s *MatchService) Attack(ctx context.Context, matchID, attackerID string, cell int) (engine.Outcome, error) {
	if !validID(matchID) {
		return engine.Outcome{Cell: cell}, ErrMatchNotFound
	}

	var out engine.Outcome
	err := s.Games.Transaction(ctx, func(tx store.Tx) error {
		m, err := tx.Match(matchID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrMatchNotFound
		}
		if err != nil {
			return err
		}

		now := s.clock.Now()
		out, err = engine.Attack(m, attackerID, cell, s.settings, now)
		if err != nil || out.Ignored {
			return err
		}
		if err := tx.SaveMatch(m); err != nil {
			return err
		}
		if !out.Won {
			return nil
		}

		winner, _ := m.PlayerByID(attackerID)
		loser, _ := m.PlayerByID(m.Opponent(attackerID))
		return tx.RecordResult(winner, loser, now)
	})
	if err != nil {
		return out, err
	}

	if out.Won {
		s.log.Info("match [Attack] finished", "match_id", matchID, "winner_id", out.WinnerID)
	}
	return out, nil
}

// Get returns the match if viewerID is seated in it.
func (s *MatchService) Get(ctx context.Context, matchID, viewerID string) (*models.Match, error) {
	if !validID(matchID) {
		return nil, ErrMatchNotFound
	}
	m, err := s.Games.GetMatch(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	if !m.IsParticipant(viewerID) {
		return nil, engine.ErrNotParticipant
	}
	return m, nil
}

func (s *MatchService) View(m *models.Match, viewerID string) engine.View {
	return engine.ViewFor(m, viewerID, s.settings.Rules.Grid)
}

func (s *MatchService) Playable(m *models.Match) bool {
	return engine.IsPlayable(m, s.clock.Now(), s.settings.MatchMaxAge)
}

func (s *MatchService) Subscribe(matchID string) (<-chan *models.Match, func()) {
	return s.Games.Subscribe(matchID)
}

// Abandon deletes a match its player can no longer play. Finished matches are
// kept; a playable active match cannot be abandoned.
func (s *MatchService) Abandon(ctx context.Context, matchID, userID string) error {
	if !validID(matchID) {
		return nil
	}
	return s.Games.Transaction(ctx, func(tx store.Tx) error {
		m, err := tx.Match(matchID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !m.IsParticipant(userID) {
			return engine.ErrNotParticipant
		}
		if m.Status == models.MatchStatusFinished {
			return nil
		}
		if engine.IsPlayable(m, s.clock.Now(), s.settings.MatchMaxAge) {
			return ErrMatchInProgress
		}
		s.log.Info("match [Abandon]", "match_id", matchID, "user_id", userID)
		return tx.DeleteMatch(matchID)
	})
}

// validID reports whether id can name a stored row. Ids are uuids, and
// Postgres rejects anything else with a syntax error rather than a miss.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
