package auth

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = 24 * time.Hour

// ErrNoSession is returned for unknown and expired session ids.
var ErrNoSession = errors.New("no active session")

type User struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Fullname string   `json:"fullname"`
	Roles    []string `json:"roles"`
}

// Session binds a browser cookie to a Moodle user and that user's token.
type Session struct {
	ID        string    `json:"id"`
	User      User      `json:"user"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

type Repository interface {
	LoadAll() ([]Session, error)
	Upsert(session Session) error
	Remove(id string) error
}

type Service struct {
	repo     Repository
	ttl      time.Duration
	now      func() time.Time
	mu       sync.RWMutex
	sessions map[string]Session
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewWithRepo preloads live sessions from repo. A nil repo keeps sessions in memory only.
func NewWithRepo(repo Repository, ttl time.Duration, opts ...Option) (*Service, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Service{repo: repo, ttl: ttl, now: time.Now, sessions: make(map[string]Session)}
	for _, opt := range opts {
		opt(s)
	}
	if repo != nil {
		stored, err := repo.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("load sessions: %w", err)
		}
		now := s.now()
		for _, sess := range stored {
			if !sess.Expired(now) {
				s.sessions[sess.ID] = sess
			}
		}
	}
	return s, nil
}

func (s *Service) Create(user User, token string) (Session, error) {
	now := s.now()
	sess := Session{
		ID:        uuid.NewString(),
		User:      user,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	if s.repo != nil {
		if err := s.repo.Upsert(sess); err != nil {
			return Session{}, fmt.Errorf("persist session: %w", err)
		}
	}
	return sess, nil
}

func (s *Service) Get(id string) (Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || sess.Expired(s.now()) {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

func (s *Service) Remove(id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Remove(id)
	}
	return nil
}

// PurgeExpired drops expired sessions and returns how many were removed.
func (s *Service) PurgeExpired() int {
	now := s.now()
	s.mu.Lock()
	var expired []string
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			expired = append(expired, id)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
	if s.repo != nil {
		for _, id := range expired {
			if err := s.repo.Remove(id); err != nil {
				log.Printf("⚠️ failed to remove expired session: %v", err)
			}
		}
	}
	return len(expired)
}

// List returns the live sessions.
func (s *Service) List() []Session {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if !sess.Expired(now) {
			out = append(out, sess)
		}
	}
	return out
}
