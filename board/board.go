// Package board is the placement model: grid geometry and fleet validation.
// Everything here is a pure function of its arguments.
package board

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultGridSize is the side of the classic 10x10 board.
const DefaultGridSize = 10

// DefaultComposition is one 4-cell, two 3-cell, three 2-cell and four 1-cell ships.
var DefaultComposition = []int{4, 3, 3, 2, 2, 2, 1, 1, 1, 1}

var (
	ErrOutOfBounds      = errors.New("ship does not fit on the board")
	ErrWrongShipCount   = errors.New("fleet has the wrong number of ships")
	ErrWrongComposition = errors.New("fleet ship lengths do not match the composition")
	ErrBadGeometry      = errors.New("ship cells do not form a straight line")
	ErrOverlap          = errors.New("ships overlap")
)

type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

func (o Orientation) Valid() bool {
	return o == Horizontal || o == Vertical
}

// Ship is a single placed ship. Cells are ascending grid indices.
type Ship struct {
	ID          string      `json:"ship_id"`
	Length      int         `json:"length"`
	Orientation Orientation `json:"orientation"`
	Cells       []int       `json:"occupied_indices"`
}

// Fleet is every ship a player placed for one match.
type Fleet []Ship

// Occupied returns the union of all ship cells.
func (f Fleet) Occupied() map[int]struct{} {
	occ := make(map[int]struct{})
	for _, s := range f {
		for _, c := range s.Cells {
			occ[c] = struct{}{}
		}
	}
	return occ
}

func (f Fleet) Clone() Fleet {
	if f == nil {
		return nil
	}
	out := make(Fleet, len(f))
	for i, s := range f {
		s.Cells = append([]int(nil), s.Cells...)
		out[i] = s
	}
	return out
}

// Grid is a square board of Size*Size cells indexed row-major from 0.
type Grid struct {
	Size int `json:"size"`
}

func (g Grid) CellCount() int {
	return g.Size * g.Size
}

func (g Grid) InBounds(cell int) bool {
	return cell >= 0 && cell < g.CellCount()
}

// ComputeOccupiedCells lays a ship of the given length from origin. A horizontal
// ship may not wrap onto the next row and a vertical one may not run off the bottom.
func (g Grid) ComputeOccupiedCells(origin, length int, o Orientation) ([]int, error) {
	if length < 1 || !o.Valid() || !g.InBounds(origin) {
		return nil, ErrOutOfBounds
	}

	cells := make([]int, 0, length)
	row := origin / g.Size
	for i := 0; i < length; i++ {
		var idx int
		if o == Horizontal {
			idx = origin + i
			if idx/g.Size != row {
				return nil, ErrOutOfBounds
			}
		} else {
			idx = origin + i*g.Size
			if idx >= g.CellCount() {
				return nil, ErrOutOfBounds
			}
		}
		cells = append(cells, idx)
	}
	return cells, nil
}

// ValidatePlacement reports whether candidate cells are on the board and clear of
// every ship in existing except the one identified by excludeShipID (the ship
// being moved or rotated).
func (g Grid) ValidatePlacement(candidate []int, existing Fleet, excludeShipID string) bool {
	if len(candidate) == 0 {
		return false
	}
	for _, c := range candidate {
		if !g.InBounds(c) {
			return false
		}
	}

	taken := make(map[int]struct{})
	for _, s := range existing {
		if excludeShipID != "" && s.ID == excludeShipID {
			continue
		}
		for _, c := range s.Cells {
			taken[c] = struct{}{}
		}
	}
	for _, c := range candidate {
		if _, ok := taken[c]; ok {
			return false
		}
	}
	return true
}

// Rules bundles the grid with the fleet composition a match is played with.
type Rules struct {
	Grid        Grid  `json:"grid"`
	Composition []int `json:"composition"`
}

func DefaultRules() Rules {
	comp := make([]int, len(DefaultComposition))
	copy(comp, DefaultComposition)
	return Rules{Grid: Grid{Size: DefaultGridSize}, Composition: comp}
}

// MaxShipLength is the longest ship in the composition.
func (r Rules) MaxShipLength() int {
	max := 0
	for _, l := range r.Composition {
		if l > max {
			max = l
		}
	}
	return max
}

func (r Rules) ValidateFleet(ships Fleet) bool {
	return r.CheckFleet(ships) == nil
}

// CheckFleet is ValidateFleet with the reason for rejection.
func (r Rules) CheckFleet(ships Fleet) error {
	if len(ships) != len(r.Composition) {
		return fmt.Errorf("%w: want %d, got %d", ErrWrongShipCount, len(r.Composition), len(ships))
	}

	want := make(map[int]int)
	for _, l := range r.Composition {
		want[l]++
	}
	got := make(map[int]int)
	for _, s := range ships {
		got[len(s.Cells)]++
	}
	for l, n := range want {
		if got[l] != n {
			return fmt.Errorf("%w: want %d ship(s) of length %d, got %d", ErrWrongComposition, n, l, got[l])
		}
	}
	if len(got) != len(want) {
		return ErrWrongComposition
	}

	seen := make(map[int]struct{})
	for i, s := range ships {
		if err := r.checkShip(s); err != nil {
			return fmt.Errorf("ship %d: %w", i, err)
		}
		for _, c := range s.Cells {
			if _, dup := seen[c]; dup {
				return fmt.Errorf("%w at cell %d", ErrOverlap, c)
			}
			seen[c] = struct{}{}
		}
	}
	return nil
}

func (r Rules) checkShip(s Ship) error {
	if s.Length != 0 && s.Length != len(s.Cells) {
		return ErrBadGeometry
	}
	if len(s.Cells) == 0 {
		return ErrBadGeometry
	}

	cells := append([]int(nil), s.Cells...)
	sort.Ints(cells)

	o := s.Orientation
	if o == "" {
		o = Horizontal
	}
	expected, err := r.Grid.ComputeOccupiedCells(cells[0], len(cells), o)
	if err != nil {
		return err
	}
	for i := range expected {
		if expected[i] != cells[i] {
			return ErrBadGeometry
		}
	}
	return nil
}

// PlaceShip builds a ship from an origin cell, checked against the rest of the fleet.
func (g Grid) PlaceShip(id string, origin, length int, o Orientation, existing Fleet) (Ship, error) {
	cells, err := g.ComputeOccupiedCells(origin, length, o)
	if err != nil {
		return Ship{}, err
	}
	if !g.ValidatePlacement(cells, existing, id) {
		return Ship{}, ErrOverlap
	}
	return Ship{ID: id, Length: length, Orientation: o, Cells: cells}, nil
}
