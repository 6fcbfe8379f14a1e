package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"battleboats/board"
	"battleboats/models"
)

var (
	alice = models.Player{UserID: "alice", Username: "Alice"}
	bob   = models.Player{UserID: "bob", Username: "Bob"}
)

func newMatch(id string) *models.Match {
	return &models.Match{
		ID:          id,
		Player1:     alice,
		Player2:     bob,
		Placements:  map[string]board.Fleet{},
		Shots:       map[string][]int{alice.UserID: {}, bob.UserID: {}},
		Hits:        map[string][]int{alice.UserID: {}, bob.UserID: {}},
		CurrentTurn: alice.UserID,
		Status:      models.MatchStatusActive,
		CreatedAt:   time.Now(),
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx Tx) error {
		q, _ := tx.Queue()
		q.UserID = alice.UserID
		now := time.Now()
		q.EnqueuedAt = &now
		if err := tx.SaveQueue(q); err != nil {
			return err
		}
		if err := tx.CreateMatch(newMatch("m1")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	q, _ := s.PeekQueue(ctx)
	if !q.Empty() {
		t.Fatalf("expected queue untouched, got %+v", q)
	}
	if _, err := s.GetMatch(ctx, "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for rolled back match, got %v", err)
	}
}

func TestSaveMatchBumpsVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Transaction(ctx, func(tx Tx) error { return tx.CreateMatch(newMatch("m1")) }); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := s.Transaction(ctx, func(tx Tx) error {
		m, err := tx.Match("m1")
		if err != nil {
			return err
		}
		m.Shots[alice.UserID] = append(m.Shots[alice.UserID], 7)
		return tx.SaveMatch(m)
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	m, _ := s.GetMatch(ctx, "m1")
	if m.Version != 2 {
		t.Fatalf("expected version 2, got %d", m.Version)
	}
	if len(m.Shots[alice.UserID]) != 1 {
		t.Fatalf("expected saved shot, got %v", m.Shots)
	}
}

func TestSaveMatchStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Transaction(ctx, func(tx Tx) error { return tx.CreateMatch(newMatch("m1")) })

	stale, _ := s.GetMatch(ctx, "m1")
	_ = s.Transaction(ctx, func(tx Tx) error {
		m, _ := tx.Match("m1")
		return tx.SaveMatch(m)
	})

	attempts := 0
	err := s.Transaction(ctx, func(tx Tx) error {
		attempts++
		return tx.SaveMatch(stale.Clone())
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if attempts != MaxRetries+1 {
		t.Fatalf("expected %d attempts, got %d", MaxRetries+1, attempts)
	}
}

func TestSubscribeReceivesLatestSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Transaction(ctx, func(tx Tx) error { return tx.CreateMatch(newMatch("m1")) })

	ch, cancel := s.Subscribe("m1")
	defer cancel()

	for i := 0; i < 3; i++ {
		_ = s.Transaction(ctx, func(tx Tx) error {
			m, _ := tx.Match("m1")
			return tx.SaveMatch(m)
		})
	}

	select {
	case m := <-ch:
		if m.Version != 4 {
			t.Fatalf("expected latest version 4, got %d", m.Version)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a snapshot")
	}

	_ = s.Transaction(ctx, func(tx Tx) error { return tx.DeleteMatch("m1") })
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel after delete")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected channel to close")
	}
}

func TestConcurrentTransactionsSerialise(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Transaction(ctx, func(tx Tx) error { return tx.CreateMatch(newMatch("m1")) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(cell int) {
			defer wg.Done()
			_ = s.Transaction(ctx, func(tx Tx) error {
				m, err := tx.Match("m1")
				if err != nil {
					return err
				}
				m.Shots[alice.UserID] = append(m.Shots[alice.UserID], cell)
				return tx.SaveMatch(m)
			})
		}(i)
	}
	wg.Wait()

	m, _ := s.GetMatch(ctx, "m1")
	if len(m.Shots[alice.UserID]) != 50 {
		t.Fatalf("expected 50 shots without lost updates, got %d", len(m.Shots[alice.UserID]))
	}
	if m.Version != 51 {
		t.Fatalf("expected version 51, got %d", m.Version)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	carol := models.Player{UserID: "carol", Username: "carol"}
	at := time.Now()

	err := s.Transaction(ctx, func(tx Tx) error {
		if err := tx.EnsureLeaderboardEntry(carol.UserID, carol.Username); err != nil {
			return err
		}
		if err := tx.RecordResult(alice, bob, at); err != nil {
			return err
		}
		if err := tx.RecordResult(bob, alice, at); err != nil {
			return err
		}
		return tx.RecordResult(bob, carol, at)
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	top, _ := s.TopLeaderboard(ctx, 10)
	if len(top) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(top))
	}
	want := []string{"bob", "alice", "carol"}
	for i, id := range want {
		if top[i].UserID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, top[i].UserID)
		}
	}
	if top[0].Wins != 2 || top[0].Losses != 1 {
		t.Fatalf("unexpected bob stats %+v", top[0])
	}
}

func TestUsersAndSessions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	u := &models.User{ID: "u1", Username: "Alice", NameKey: "alice", PasswordHash: "x"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateUser(ctx, &models.User{ID: "u2", Username: "ALICE", NameKey: "alice"}); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}

	got, err := s.UserByNameKey(ctx, "alice")
	if err != nil || got.ID != "u1" {
		t.Fatalf("expected u1, got %+v (%v)", got, err)
	}

	now := time.Now()
	_ = s.CreateSession(ctx, &models.Session{Token: "old", UserID: "u1", ExpiresAt: now.Add(-time.Minute)})
	_ = s.CreateSession(ctx, &models.Session{Token: "new", UserID: "u1", ExpiresAt: now.Add(time.Hour)})

	n, _ := s.DeleteExpiredSessions(ctx, now)
	if n != 1 {
		t.Fatalf("expected 1 expired session removed, got %d", n)
	}
	if _, err := s.Session(ctx, "new"); err != nil {
		t.Fatalf("expected live session to remain: %v", err)
	}
}
