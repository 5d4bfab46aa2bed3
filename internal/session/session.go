// Package session persists the logged-in user and announces login state
// changes.
package session

import (
	stdsync "sync"

	"github.com/wahabsharif/premierspaces-app/backend/internal/crypto"
	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/events"
	"github.com/wahabsharif/premierspaces-app/backend/internal/kvstore"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
)

// Store keeps the session under kvstore.KeySession.
type Store struct {
	kv  *kvstore.Store
	key []byte

	mu      stdsync.Mutex
	changes events.Topic[bool]
}

// Option configures a Store.
type Option func(*Store)

// WithTokenKey encrypts the session token on disk with key.
func WithTokenKey(key []byte) Option {
	return func(s *Store) {
		s.key = key
	}
}

// New creates a Store.
func New(kv *kvstore.Store, opts ...Option) *Store {
	s := &Store{kv: kv}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the stored session, or nil when nobody is logged in.
func (s *Store) Load() (*models.Session, error) {
	var sess models.Session
	ok, err := s.kv.Get(kvstore.KeySession, &sess)
	if err != nil || !ok {
		return nil, err
	}
	if s.key != nil {
		token, err := crypto.DecryptString(sess.Token, s.key)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to decrypt session token", err)
		}
		sess.Token = token
	}
	return &sess, nil
}

// UserID returns the logged-in user id or NO_SESSION.
func (s *Store) UserID() (string, error) {
	sess, err := s.Load()
	if err != nil {
		return "", err
	}
	if !sess.Valid() {
		return "", apperrors.New(apperrors.ErrNoSession, "no user session")
	}
	return sess.UserID.String(), nil
}

// Login stores sess and notifies subscribers.
func (s *Store) Login(sess models.Session) error {
	if !sess.Valid() {
		return apperrors.New(apperrors.ErrValidation, "session requires a user id")
	}
	if s.key != nil {
		token, err := crypto.EncryptString(sess.Token, s.key)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to encrypt session token", err)
		}
		sess.Token = token
	}
	s.mu.Lock()
	err := s.kv.Set(kvstore.KeySession, sess)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.changes.Publish(true)
	return nil
}

// Logout removes the session and notifies subscribers.
func (s *Store) Logout() error {
	s.mu.Lock()
	err := s.kv.Delete(kvstore.KeySession)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.changes.Publish(false)
	return nil
}

// Subscribe calls fn with true after Login and false after Logout.
func (s *Store) Subscribe(fn func(loggedIn bool)) func() {
	return s.changes.Subscribe(fn)
}
