package engine

import (
	"battleboats/board"
	"battleboats/models"
)

// Cell markers used when rendering a board.
const (
	MarkEmpty = ""
	MarkShip  = "ship"
	MarkHit   = "hit"
	MarkMiss  = "miss"
)

// View is one player's picture of a match. The opponent's fleet stays hidden
// until the match is finished.
type View struct {
	MatchID        string             `json:"match_id"`
	Status         models.MatchStatus `json:"status"`
	Me             models.Player      `json:"me"`
	Opponent       models.Player      `json:"opponent"`
	CurrentTurn    string             `json:"current_turn"`
	WinnerID       string             `json:"winner_id,omitempty"`
	IsMyTurn       bool               `json:"is_my_turn"`
	IsOpponentTurn bool               `json:"is_opponent_turn"`
	Waiting        bool               `json:"waiting"`
	Won            bool               `json:"won"`
	Lost           bool               `json:"lost"`

	MyFleet       board.Fleet `json:"my_fleet"`
	OpponentFleet board.Fleet `json:"opponent_fleet,omitempty"`
	MyShots       []int       `json:"my_shots"`
	MyHits        []int       `json:"my_hits"`
	OpponentShots []int       `json:"opponent_shots"`
	OpponentHits  []int       `json:"opponent_hits"`

	// per-cell markers, row-major
	OwnBoard   []string `json:"own_board"`
	EnemyBoard []string `json:"enemy_board"`

	Version int64 `json:"version"`
}

// IsMyTurn is true only while the match is active and viewer holds the turn.
func IsMyTurn(m *models.Match, viewer string) bool {
	return m.Status == models.MatchStatusActive && viewer != "" && m.CurrentTurn == viewer
}

func IsOpponentTurn(m *models.Match, viewer string) bool {
	opp := m.Opponent(viewer)
	return m.Status == models.MatchStatusActive && opp != "" && m.CurrentTurn == opp
}

// ViewFor derives viewer's view. The caller must already know viewer is seated.
func ViewFor(m *models.Match, viewer string, grid board.Grid) View {
	me, _ := m.PlayerByID(viewer)
	oppID := m.Opponent(viewer)
	opp, _ := m.PlayerByID(oppID)

	v := View{
		MatchID:        m.ID,
		Status:         m.Status,
		Me:             me,
		Opponent:       opp,
		CurrentTurn:    m.CurrentTurn,
		WinnerID:       m.WinnerID,
		IsMyTurn:       IsMyTurn(m, viewer),
		IsOpponentTurn: IsOpponentTurn(m, viewer),
		Waiting:        !Ready(m),
		Won:            m.WinnerID != "" && m.WinnerID == viewer,
		Lost:           m.WinnerID != "" && m.WinnerID != viewer,
		MyFleet:        m.Placements[viewer],
		MyShots:        orEmpty(m.Shots[viewer]),
		MyHits:         orEmpty(m.Hits[viewer]),
		Version:        m.Version,
	}
	if oppID != "" {
		v.OpponentShots = orEmpty(m.Shots[oppID])
		v.OpponentHits = orEmpty(m.Hits[oppID])
	} else {
		v.OpponentShots = []int{}
		v.OpponentHits = []int{}
	}
	if m.Status == models.MatchStatusFinished {
		v.OpponentFleet = m.Placements[oppID]
	}

	v.OwnBoard = make([]string, grid.CellCount())
	for c := range v.MyFleet.Occupied() {
		if grid.InBounds(c) {
			v.OwnBoard[c] = MarkShip
		}
	}
	mark(v.OwnBoard, v.OpponentShots, v.OpponentHits)

	v.EnemyBoard = make([]string, grid.CellCount())
	mark(v.EnemyBoard, v.MyShots, v.MyHits)

	return v
}

func mark(cells []string, shots, hits []int) {
	for _, s := range shots {
		if s >= 0 && s < len(cells) {
			cells[s] = MarkMiss
		}
	}
	for _, h := range hits {
		if h >= 0 && h < len(cells) {
			cells[h] = MarkHit
		}
	}
}

func orEmpty(cells []int) []int {
	if cells == nil {
		return []int{}
	}
	return cells
}
