// Package session keeps the admin bearer token between invocations and
// guards every admin call on its presence.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"gemini-console/internal/logger"
	"gemini-console/internal/models"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNoSession means no token is stored; the user has to log in first.
	ErrNoSession = errors.New("not logged in, run `geminictl login` first")
	// ErrSessionExpired means the server rejected the stored token.
	ErrSessionExpired = errors.New("session expired, please log in again")
)

const tokenTTL = 5 * time.Minute

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Save(profile, token string) error {
	sess := &models.AdminSession{
		Profile:   profile,
		Token:     token,
		CreatedAt: time.Now(),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "created_at"}),
	}).Create(sess).Error
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Store) Load(profile string) (*models.AdminSession, error) {
	var sess models.AdminSession
	err := s.db.Where("profile = ?", profile).First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

func (s *Store) Delete(profile string) error {
	return s.db.Delete(&models.AdminSession{}, "profile = ?", profile).Error
}

// Guard hands out the stored token for one profile (one proxy base URL).
// It satisfies api.TokenSource.
type Guard struct {
	store   *Store
	profile string
	cache   *cache.Cache
	expired atomic.Bool
}

func NewGuard(store *Store, profile string) *Guard {
	return &Guard{
		store:   store,
		profile: profile,
		cache:   cache.New(tokenTTL, 10*time.Minute),
	}
}

func (g *Guard) Profile() string {
	return g.profile
}

func (g *Guard) Token() (string, error) {
	if cached, found := g.cache.Get(g.profile); found {
		return cached.(string), nil
	}

	sess, err := g.store.Load(g.profile)
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil || sess.Token == "" {
		if g.expired.Load() {
			return "", ErrSessionExpired
		}
		return "", ErrNoSession
	}

	g.cache.Set(g.profile, sess.Token, cache.DefaultExpiration)
	return sess.Token, nil
}

// Expire forgets the token after the server answered 401.
func (g *Guard) Expire() {
	g.cache.Delete(g.profile)
	g.expired.Store(true)
	if err := g.store.Delete(g.profile); err != nil {
		logger.Logger.Warn("failed to clear expired session", zap.String("profile", g.profile), zap.Error(err))
	}
}

func (g *Guard) Login(token string) error {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return errors.New("token must not be empty")
	}
	if err := g.store.Save(g.profile, token); err != nil {
		return err
	}
	g.expired.Store(false)
	g.cache.Set(g.profile, token, cache.DefaultExpiration)
	return nil
}

func (g *Guard) Logout() error {
	g.cache.Delete(g.profile)
	return g.store.Delete(g.profile)
}

// Valid reports whether a token is present without contacting the server.
func (g *Guard) Valid() bool {
	_, err := g.Token()
	return err == nil
}
