package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"battleboats/board"
	"battleboats/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the postgres backend. Queue and match reads inside a
// transaction take row locks; match writes are additionally version checked.
type GormStore struct {
	DB     *gorm.DB
	broker *Broker
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db, broker: NewBroker()}
}

// Migrate creates the tables and seeds the global queue row so that the
// queue lock always has a row to hold.
func (s *GormStore) Migrate() error {
	if err := s.DB.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.QueueSlot{},
		&models.Match{},
		&models.LeaderboardEntry{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return s.seedQueue(s.DB)
}

func (s *GormStore) seedQueue(db *gorm.DB) error {
	slot := models.QueueSlot{ID: models.GlobalQueueID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&slot).Error; err != nil {
		return fmt.Errorf("failed to seed queue slot: %w", err)
	}
	return nil
}

type gormTx struct {
	s       *GormStore
	db      *gorm.DB
	written map[string]*models.Match
	deleted map[string]struct{}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	for attempt := 0; ; attempt++ {
		t := &gormTx{
			s:       s,
			written: make(map[string]*models.Match),
			deleted: make(map[string]struct{}),
		}
		err := s.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			t.db = db
			return fn(t)
		})
		if errors.Is(err, ErrConflict) && attempt < MaxRetries {
			continue
		}
		if err != nil {
			return err
		}

		for _, m := range t.written {
			s.broker.Publish(m)
		}
		for id := range t.deleted {
			s.broker.Close(id)
		}
		return nil
	}
}

func (t *gormTx) Queue() (*models.QueueSlot, error) {
	var q models.QueueSlot
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", models.GlobalQueueID).
		First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := t.s.seedQueue(t.db); err != nil {
			return nil, err
		}
		err = t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", models.GlobalQueueID).
			First(&q).Error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock queue slot: %w", err)
	}
	return &q, nil
}

func (t *gormTx) SaveQueue(q *models.QueueSlot) error {
	q.ID = models.GlobalQueueID
	if err := t.db.Save(q).Error; err != nil {
		return fmt.Errorf("failed to save queue slot: %w", err)
	}
	return nil
}

func (t *gormTx) Match(id string) (*models.Match, error) {
	var m models.Match
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (t *gormTx) CreateMatch(m *models.Match) error {
	m.Version = 1
	if err := t.db.Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create match: %w", err)
	}
	t.written[m.ID] = m.Clone()
	delete(t.deleted, m.ID)
	return nil
}

func (t *gormTx) SaveMatch(m *models.Match) error {
	prev := m.Version
	m.Version = prev + 1

	res := t.db.Model(m).
		Where("version = ?", prev).
		Select("*").
		Omit("created_at").
		Updates(m)
	if res.Error != nil {
		m.Version = prev
		return fmt.Errorf("failed to save match: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		m.Version = prev
		return ErrConflict
	}
	t.written[m.ID] = m.Clone()
	return nil
}

func (t *gormTx) DeleteMatch(id string) error {
	if err := t.db.Delete(&models.Match{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete match: %w", err)
	}
	delete(t.written, id)
	t.deleted[id] = struct{}{}
	return nil
}

func (t *gormTx) EnsureLeaderboardEntry(userID, username string) error {
	e := models.LeaderboardEntry{UserID: userID, Username: username}
	return t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&e).Error
}

func (t *gormTx) RecordResult(winner, loser models.Player, at time.Time) error {
	if err := t.bump(winner, "wins", at); err != nil {
		return err
	}
	return t.bump(loser, "losses", at)
}

func (t *gormTx) bump(p models.Player, column string, at time.Time) error {
	e := models.LeaderboardEntry{UserID: p.UserID, Username: p.Username, LastResultAt: &at}
	if column == "wins" {
		e.Wins = 1
	} else {
		e.Losses = 1
	}

	err := t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			column:           gorm.Expr("leaderboard_entries."+column+" + ?", 1),
			"username":       p.Username,
			"last_result_at": at,
			"updated_at":     at,
		}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("failed to record %s for %s: %w", column, p.UserID, err)
	}
	return nil
}

func (s *GormStore) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	var m models.Match
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *GormStore) FindMatchesByPlayer(ctx context.Context, userID string, status models.MatchStatus) ([]*models.Match, error) {
	var ms []*models.Match
	err := s.DB.WithContext(ctx).
		Where("(player1_user_id = ? OR player2_user_id = ?) AND status = ?", userID, userID, status).
		Order("created_at DESC").
		Find(&ms).Error
	return ms, err
}

func (s *GormStore) ListMatches(ctx context.Context, status models.MatchStatus) ([]*models.Match, error) {
	var ms []*models.Match
	err := s.DB.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Find(&ms).Error
	return ms, err
}

func (s *GormStore) PeekQueue(ctx context.Context) (*models.QueueSlot, error) {
	var q models.QueueSlot
	err := s.DB.WithContext(ctx).Where("id = ?", models.GlobalQueueID).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.QueueSlot{ID: models.GlobalQueueID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *GormStore) TopLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	q := s.DB.WithContext(ctx).
		Order("wins DESC").
		Order("wins + losses DESC").
		Order("LOWER(username) ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&entries).Error
	return entries, err
}

func (s *GormStore) LeaderboardEntry(ctx context.Context, userID string) (*models.LeaderboardEntry, error) {
	var e models.LeaderboardEntry
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *GormStore) Subscribe(matchID string) (<-chan *models.Match, func()) {
	return s.broker.Subscribe(matchID)
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrNameTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *GormStore) UserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *GormStore) UserByNameKey(ctx context.Context, key string) (*models.User, error) {
	return s.findUser(ctx, "name_key = ?", key)
}

func (s *GormStore) findUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var u models.User
	err := s.DB.WithContext(ctx).Where(query, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *GormStore) UpdateSkins(ctx context.Context, userID string, skins map[int]string) error {
	return s.updateUser(ctx, userID, &models.User{Skins: skins}, "skins")
}

func (s *GormStore) UpdateDraftFleet(ctx context.Context, userID string, fleet board.Fleet) error {
	return s.updateUser(ctx, userID, &models.User{DraftFleet: fleet}, "draft_fleet")
}

func (s *GormStore) updateUser(ctx context.Context, userID string, values *models.User, column string) error {
	res := s.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Select(column).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("failed to update %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CreateSession(ctx context.Context, sess *models.Session) error {
	return s.DB.WithContext(ctx).Create(sess).Error
}

func (s *GormStore) Session(ctx context.Context, token string) (*models.Session, error) {
	var sess models.Session
	err := s.DB.WithContext(ctx).Where("token = ?", token).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *GormStore) DeleteSession(ctx context.Context, token string) error {
	return s.DB.WithContext(ctx).Where("token = ?", token).Delete(&models.Session{}).Error
}

func (s *GormStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}
