package services

import (
	"context"
	"errors"

	"battleboats/store"
)

const DefaultLeaderboardSize = 10

type LeaderboardRow struct {
	Rank        int     `json:"rank"`
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	Wins        int64   `json:"wins"`
	Losses      int64   `json:"losses"`
	GamesPlayed int64   `json:"games_played"`
	WinRate     float64 `json:"win_rate"`
}

type PlayerStats struct {
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	Wins        int64   `json:"wins"`
	Losses      int64   `json:"losses"`
	GamesPlayed int64   `json:"games_played"`
	WinRate     float64 `json:"win_rate"`
}

type LeaderboardService struct {
	Games store.GameStore
	Users store.UserStore
}

func NewLeaderboardService(games store.GameStore, users store.UserStore) *LeaderboardService {
	return &LeaderboardService{Games: games, Users: users}
}

// Top ranks by wins, then games played, then username.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 || limit > 100 {
		limit = DefaultLeaderboardSize
	}
	entries, err := s.Games.TopLeaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]LeaderboardRow, len(entries))
	for i, e := range entries {
		rows[i] = LeaderboardRow{
			Rank:        i + 1,
			UserID:      e.UserID,
			Username:    e.Username,
			Wins:        e.Wins,
			Losses:      e.Losses,
			GamesPlayed: e.GamesPlayed(),
			WinRate:     e.WinRate(),
		}
	}
	return rows, nil
}

// Stats reports zeros for a registered user who has not finished a game yet.
func (s *LeaderboardService) Stats(ctx context.Context, userID string) (PlayerStats, error) {
	if !validID(userID) {
		return PlayerStats{}, ErrUserNotFound
	}
	e, err := s.Games.LeaderboardEntry(ctx, userID)
	if err == nil {
		return PlayerStats{
			UserID:      e.UserID,
			Username:    e.Username,
			Wins:        e.Wins,
			Losses:      e.Losses,
			GamesPlayed: e.GamesPlayed(),
			WinRate:     e.WinRate(),
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return PlayerStats{}, err
	}

	u, err := s.Users.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return PlayerStats{}, ErrUserNotFound
	}
	if err != nil {
		return PlayerStats{}, err
	}
	return PlayerStats{UserID: u.ID, Username: u.Username}, nil
}
