package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"battleboats/board"
	"battleboats/models"
)

// MemoryStore keeps everything in process. Game transactions are serialised by
// one lock and staged on copies, so a failed fn leaves no trace.
type MemoryStore struct {
	mu          sync.RWMutex
	queue       *models.QueueSlot
	matches     map[string]*models.Match
	leaderboard map[string]*models.LeaderboardEntry

	umu      sync.RWMutex
	users    map[string]*models.User
	nameKeys map[string]string
	sessions map[string]*models.Session

	broker *Broker
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queue:       &models.QueueSlot{ID: models.GlobalQueueID},
		matches:     make(map[string]*models.Match),
		leaderboard: make(map[string]*models.LeaderboardEntry),
		users:       make(map[string]*models.User),
		nameKeys:    make(map[string]string),
		sessions:    make(map[string]*models.Session),
		broker:      NewBroker(),
		now:         time.Now,
	}
}

type memTx struct {
	s *MemoryStore

	queue       *models.QueueSlot
	matches     map[string]*models.Match
	deleted     map[string]struct{}
	leaderboard map[string]*models.LeaderboardEntry
}

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var written []*models.Match
	var deleted []string

	for attempt := 0; ; attempt++ {
		s.mu.Lock()
		tx := &memTx{
			s:           s,
			matches:     make(map[string]*models.Match),
			deleted:     make(map[string]struct{}),
			leaderboard: make(map[string]*models.LeaderboardEntry),
		}
		err := fn(tx)
		if err == nil {
			written, deleted = tx.commit()
		}
		s.mu.Unlock()

		if errors.Is(err, ErrConflict) && attempt < MaxRetries {
			continue
		}
		if err != nil {
			return err
		}
		break
	}

	for _, m := range written {
		s.broker.Publish(m)
	}
	for _, id := range deleted {
		s.broker.Close(id)
	}
	return nil
}

// commit runs with s.mu held.
func (t *memTx) commit() ([]*models.Match, []string) {
	s := t.s
	if t.queue != nil {
		t.queue.UpdatedAt = s.now()
		s.queue = t.queue
	}

	var written []*models.Match
	for id, m := range t.matches {
		s.matches[id] = m
		written = append(written, m.Clone())
	}
	var deleted []string
	for id := range t.deleted {
		delete(s.matches, id)
		deleted = append(deleted, id)
	}
	for id, e := range t.leaderboard {
		s.leaderboard[id] = e
	}
	return written, deleted
}

func (t *memTx) Queue() (*models.QueueSlot, error) {
	if t.queue != nil {
		return t.queue.Clone(), nil
	}
	return t.s.queue.Clone(), nil
}

func (t *memTx) SaveQueue(q *models.QueueSlot) error {
	c := q.Clone()
	c.ID = models.GlobalQueueID
	t.queue = c
	return nil
}

func (t *memTx) Match(id string) (*models.Match, error) {
	if _, gone := t.deleted[id]; gone {
		return nil, ErrNotFound
	}
	if m, ok := t.matches[id]; ok {
		return m.Clone(), nil
	}
	if m, ok := t.s.matches[id]; ok {
		return m.Clone(), nil
	}
	return nil, ErrNotFound
}

func (t *memTx) current(id string) (*models.Match, bool) {
	if _, gone := t.deleted[id]; gone {
		return nil, false
	}
	if m, ok := t.matches[id]; ok {
		return m, true
	}
	m, ok := t.s.matches[id]
	return m, ok
}

func (t *memTx) CreateMatch(m *models.Match) error {
	if _, exists := t.current(m.ID); exists {
		return ErrConflict
	}
	delete(t.deleted, m.ID)
	m.Version = 1
	t.matches[m.ID] = m.Clone()
	return nil
}

func (t *memTx) SaveMatch(m *models.Match) error {
	cur, ok := t.current(m.ID)
	if !ok {
		return ErrNotFound
	}
	if cur.Version != m.Version {
		return ErrConflict
	}
	m.Version++
	t.matches[m.ID] = m.Clone()
	return nil
}

func (t *memTx) DeleteMatch(id string) error {
	delete(t.matches, id)
	if _, ok := t.s.matches[id]; ok {
		t.deleted[id] = struct{}{}
	}
	return nil
}

func (t *memTx) entry(userID, username string) *models.LeaderboardEntry {
	if e, ok := t.leaderboard[userID]; ok {
		return e
	}
	var e models.LeaderboardEntry
	if cur, ok := t.s.leaderboard[userID]; ok {
		e = *cur
	} else {
		now := t.s.now()
		e = models.LeaderboardEntry{UserID: userID, Username: username}
		e.CreatedAt = now
		e.UpdatedAt = now
	}
	t.leaderboard[userID] = &e
	return &e
}

func (t *memTx) EnsureLeaderboardEntry(userID, username string) error {
	t.entry(userID, username)
	return nil
}

func (t *memTx) RecordResult(winner, loser models.Player, at time.Time) error {
	w := t.entry(winner.UserID, winner.Username)
	w.Wins++
	w.Username = winner.Username
	w.LastResultAt = &at
	w.UpdatedAt = at

	l := t.entry(loser.UserID, loser.Username)
	l.Losses++
	l.Username = loser.Username
	l.LastResultAt = &at
	l.UpdatedAt = at
	return nil
}

func (s *MemoryStore) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemoryStore) FindMatchesByPlayer(ctx context.Context, userID string, status models.MatchStatus) ([]*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Match
	for _, m := range s.matches {
		if m.Status == status && m.IsParticipant(userID) {
			out = append(out, m.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) ListMatches(ctx context.Context, status models.MatchStatus) ([]*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Match
	for _, m := range s.matches {
		if m.Status == status {
			out = append(out, m.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(ms []*models.Match) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].ID > ms[j].ID
		}
		return ms[i].CreatedAt.After(ms[j].CreatedAt)
	})
}

func (s *MemoryStore) PeekQueue(ctx context.Context) (*models.QueueSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.Clone(), nil
}

func (s *MemoryStore) TopLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	s.mu.RLock()
	out := make([]models.LeaderboardEntry, 0, len(s.leaderboard))
	for _, e := range s.leaderboard {
		out = append(out, *e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.GamesPlayed() != b.GamesPlayed() {
			return a.GamesPlayed() > b.GamesPlayed()
		}
		return strings.ToLower(a.Username) < strings.ToLower(b.Username)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) LeaderboardEntry(ctx context.Context, userID string) (*models.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.leaderboard[userID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *e
	return &c, nil
}

func (s *MemoryStore) Subscribe(matchID string) (<-chan *models.Match, func()) {
	return s.broker.Subscribe(matchID)
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	s.umu.Lock()
	defer s.umu.Unlock()

	if _, taken := s.nameKeys[u.NameKey]; taken {
		return ErrNameTaken
	}
	now := s.now()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u.Clone()
	s.nameKeys[u.NameKey] = u.ID
	return nil
}

func (s *MemoryStore) UserByID(ctx context.Context, id string) (*models.User, error) {
	s.umu.RLock()
	defer s.umu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

func (s *MemoryStore) UserByNameKey(ctx context.Context, key string) (*models.User, error) {
	s.umu.RLock()
	defer s.umu.RUnlock()

	id, ok := s.nameKeys[key]
	if !ok {
		return nil, ErrNotFound
	}
	return s.users[id].Clone(), nil
}

func (s *MemoryStore) UpdateSkins(ctx context.Context, userID string, skins map[int]string) error {
	s.umu.Lock()
	defer s.umu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Skins = make(map[int]string, len(skins))
	for k, v := range skins {
		u.Skins[k] = v
	}
	u.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) UpdateDraftFleet(ctx context.Context, userID string, fleet board.Fleet) error {
	s.umu.Lock()
	defer s.umu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.DraftFleet = fleet.Clone()
	u.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) CreateSession(ctx context.Context, sess *models.Session) error {
	s.umu.Lock()
	defer s.umu.Unlock()

	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now()
	}
	c := *sess
	s.sessions[sess.Token] = &c
	return nil
}

func (s *MemoryStore) Session(ctx context.Context, token string) (*models.Session, error) {
	s.umu.RLock()
	defer s.umu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	c := *sess
	return &c, nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, token string) error {
	s.umu.Lock()
	defer s.umu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *MemoryStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	s.umu.Lock()
	defer s.umu.Unlock()

	var n int64
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}
