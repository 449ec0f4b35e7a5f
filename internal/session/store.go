//go:generate mockgen -source ./store.go -destination=./mocks/store.go -package=mock_session
package session

import (
	"sync"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
)

// TokenKey is the key the bearer token is persisted under.
const TokenKey = "userToken"

type Store interface {
	Save(sess domain.Session) error
	// Load reports false when no token is stored.
	Load() (domain.Session, bool, error)
	Clear() error
}

// MemoryStore keeps the token for the lifetime of the process only.
type MemoryStore struct {
	mu   sync.Mutex
	sess domain.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(sess domain.Session) error {
	if sess.IsZero() {
		return ErrEmptyToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
	return nil
}

func (s *MemoryStore) Load() (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess, !s.sess.IsZero(), nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = domain.Session{}
	return nil
}
