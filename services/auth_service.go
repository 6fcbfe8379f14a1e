package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"battleboats/config"
	"battleboats/models"
	"battleboats/store"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
)

const (
	minNameRunes   = 3
	maxNameRunes   = 24
	maxSecretBytes = 72
)

// AuthService registers users and issues opaque session tokens.
type AuthService struct {
	Users store.UserStore
	Games store.GameStore

	cfg        config.AuthConfig
	clock      clockwork.Clock
	log        *log.Logger
	bcryptCost int

	mu       sync.Mutex
	failures map[string][]time.Time
	dummy    []byte
}

func NewAuthService(users store.UserStore, games store.GameStore, cfg config.AuthConfig, clock clockwork.Clock, logger *log.Logger) *AuthService {
	return &AuthService{
		Users:      users,
		Games:      games,
		cfg:        cfg,
		clock:      clock,
		log:        logger.With("component", "auth"),
		bcryptCost: bcrypt.DefaultCost,
		failures:   make(map[string][]time.Time),
	}
}

// normalizeName returns the display name and its lookup key.
func normalizeName(name string) (string, string, error) {
	display := norm.NFC.String(strings.TrimSpace(name))
	n := utf8.RuneCountInString(display)
	if n < minNameRunes || n > maxNameRunes {
		return "", "", ErrInvalidName
	}
	key := slug.Make(display)
	if key == "" {
		return "", "", ErrInvalidName
	}
	return display, key, nil
}

func (s *AuthService) checkSecret(secret string) error {
	if utf8.RuneCountInString(secret) < s.cfg.MinSecretLength {
		return ErrWeakSecret
	}
	if len(secret) > maxSecretBytes {
		return ErrSecretTooLong
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, name, secret string) (*models.User, error) {
	display, key, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if err := s.checkSecret(secret); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Username:     display,
		NameKey:      key,
		PasswordHash: string(hash),
		Skins:        map[int]string{},
	}
	if err := s.Users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrNameTaken) {
			return nil, ErrNameTaken
		}
		return nil, err
	}

	err = s.Games.Transaction(ctx, func(tx store.Tx) error {
		return tx.EnsureLeaderboardEntry(u.ID, u.Username)
	})
	if err != nil {
		s.log.Error("auth [Register] leaderboard entry", "err", err, "user_id", u.ID)
	}

	s.log.Info("auth [Register]", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Login verifies the credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, name, secret string) (*models.Session, *models.User, error) {
	_, key, err := normalizeName(name)
	if err != nil {
		return nil, nil, ErrWrongCredentials
	}
	if s.limited(key) {
		return nil, nil, ErrRateLimited
	}

	u, err := s.Users.UserByNameKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		// burn the same time as a real comparison
		_ = bcrypt.CompareHashAndPassword(s.dummyHash(), []byte(secret))
		s.fail(key)
		return nil, nil, ErrWrongCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(secret)); err != nil {
		s.fail(key)
		s.log.Warn("auth [Login] wrong password", "user_id", u.ID)
		return nil, nil, ErrWrongCredentials
	}
	s.reset(key)

	now := s.clock.Now()
	sess := &models.Session{
		Token:     strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", ""),
		UserID:    u.ID,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
		CreatedAt: now,
	}
	if err := s.Users.CreateSession(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, u, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.Users.DeleteSession(ctx, token)
}

// CurrentUser resolves a session token. Expired sessions are removed on sight.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	sess, err := s.Users.Session(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.clock.Now()) {
		_ = s.Users.DeleteSession(ctx, token)
		return nil, ErrUnauthenticated
	}

	u, err := s.Users.UserByID(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	return u, err
}

func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.Users.DeleteExpiredSessions(ctx, s.clock.Now())
}

func (s *AuthService) limited(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recent(key)) >= s.cfg.MaxFailedLogins
}

func (s *AuthService) fail(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key] = append(s.recent(key), s.clock.Now())
}

func (s *AuthService) reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, key)
}

// recent drops failures outside the window. Caller holds s.mu.
func (s *AuthService) recent(key string) []time.Time {
	cutoff := s.clock.Now().Add(-s.cfg.FailedLoginSpan)
	kept := s.failures[key][:0]
	for _, t := range s.failures[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(s.failures, key)
		return nil
	}
	s.failures[key] = kept
	return kept
}

func (s *AuthService) dummyHash() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dummy == nil {
		s.dummy, _ = bcrypt.GenerateFromPassword([]byte("battleboats-dummy"), s.bcryptCost)
	}
	return s.dummy
}
