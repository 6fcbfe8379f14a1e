// Package engine holds the match state machine: creation, shot resolution, win
// detection and turn ownership. Functions here mutate a *models.Match in memory;
// callers run them inside a store transaction so the read-decide-write is atomic.
package engine

import (
	"time"

	"battleboats/board"
	"battleboats/models"
)

// Settings are the rules a match is played under.
type Settings struct {
	Rules board.Rules

	// FireAgainOnHit keeps the turn with the attacker after a non-winning hit.
	// When false the turn passes on every shot.
	FireAgainOnHit bool

	// MatchMaxAge bounds how long a match stays playable. Zero disables the bound.
	MatchMaxAge time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Rules:          board.DefaultRules(),
		FireAgainOnHit: true,
		MatchMaxAge:    2 * time.Hour,
	}
}

// Outcome describes what a single attack did.
type Outcome struct {
	Cell     int                `json:"cell"`
	Hit      bool               `json:"hit"`
	Won      bool               `json:"won"`
	Ignored  bool               `json:"ignored"`
	NextTurn string             `json:"next_turn,omitempty"`
	Status   models.MatchStatus `json:"status"`
	WinnerID string             `json:"winner_id,omitempty"`
}

// NewMatch seats p1 and p2 with their fleets. Player one moves first.
func NewMatch(id string, p1, p2 models.Player, fleet1, fleet2 board.Fleet, now time.Time) (*models.Match, error) {
	if p1.UserID == p2.UserID {
		return nil, ErrSamePlayer
	}
	return &models.Match{
		ID:      id,
		Player1: p1,
		Player2: p2,
		Placements: map[string]board.Fleet{
			p1.UserID: fleet1,
			p2.UserID: fleet2,
		},
		Shots: map[string][]int{
			p1.UserID: {},
			p2.UserID: {},
		},
		Hits: map[string][]int{
			p1.UserID: {},
			p2.UserID: {},
		},
		CurrentTurn: p1.UserID,
		Status:      models.MatchStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Ready reports whether both seats and both fleets are filled.
func Ready(m *models.Match) bool {
	if m.Player1.Empty() || m.Player2.Empty() {
		return false
	}
	return len(m.Placements[m.Player1.UserID]) > 0 && len(m.Placements[m.Player2.UserID]) > 0
}

// IsPlayable is recomputed on every read, never stored.
func IsPlayable(m *models.Match, now time.Time, maxAge time.Duration) bool {
	if m == nil || !Ready(m) {
		return false
	}
	if maxAge > 0 && now.Sub(m.CreatedAt) > maxAge {
		return false
	}
	return true
}

// Attack resolves one shot. A finished match and a repeated cell are ignored
// without error and without touching m.
func Attack(m *models.Match, attackerID string, cell int, s Settings, now time.Time) (Outcome, error) {
	out := Outcome{Cell: cell, Status: m.Status, NextTurn: m.CurrentTurn, WinnerID: m.WinnerID}

	if m.Status == models.MatchStatusFinished {
		out.Ignored = true
		return out, nil
	}
	if !Ready(m) || m.CurrentTurn == "" {
		return out, ErrMatchNotReady
	}
	if !m.IsParticipant(attackerID) {
		return out, ErrNotParticipant
	}
	if m.CurrentTurn != attackerID {
		return out, ErrNotYourTurn
	}
	if !s.Rules.Grid.InBounds(cell) {
		return out, ErrInvalidCell
	}
	if contains(m.Shots[attackerID], cell) {
		out.Ignored = true
		return out, nil
	}

	defenderID := m.Opponent(attackerID)
	occupied := m.Placements[defenderID].Occupied()

	if m.Shots == nil {
		m.Shots = map[string][]int{}
	}
	if m.Hits == nil {
		m.Hits = map[string][]int{}
	}
	m.Shots[attackerID] = append(m.Shots[attackerID], cell)

	_, hit := occupied[cell]
	if hit {
		m.Hits[attackerID] = append(m.Hits[attackerID], cell)
	}
	out.Hit = hit

	if hit && coversAll(m.Hits[attackerID], occupied) {
		m.Status = models.MatchStatusFinished
		m.WinnerID = attackerID
		finished := now
		m.FinishedAt = &finished
		out.Won = true
	} else if !hit || !s.FireAgainOnHit {
		m.CurrentTurn = defenderID
	}
	m.UpdatedAt = now

	out.Status = m.Status
	out.NextTurn = m.CurrentTurn
	out.WinnerID = m.WinnerID
	return out, nil
}

func coversAll(hits []int, occupied map[int]struct{}) bool {
	if len(occupied) == 0 {
		return false
	}
	got := make(map[int]struct{}, len(hits))
	for _, h := range hits {
		got[h] = struct{}{}
	}
	for c := range occupied {
		if _, ok := got[c]; !ok {
			return false
		}
	}
	return true
}

func contains(cells []int, cell int) bool {
	for _, c := range cells {
		if c == cell {
			return true
		}
	}
	return false
}
