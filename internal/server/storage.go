package server

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/metrics"
)

var (
	ErrEmailTaken   = errors.New("email already taken")
	ErrUserNotFound = errors.New("user not found")
)

type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PhoneNumber  string `json:"phone_number"`
	Address      string `json:"address"`
	PasswordHash string `json:"-"`
}

// MemoryStorage keeps users, orders and revoked tokens in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	users   map[string]*User
	orders  map[int64][]domain.OrderRecord
	revoked map[string]time.Time
	userSeq int64
	// Order ids are global, like an auto-increment column.
	orderSeq int64
	timeNow  func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:   make(map[string]*User),
		orders:  make(map[int64][]domain.OrderRecord),
		revoked: make(map[string]time.Time),
		timeNow: time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *MemoryStorage) CreateUser(_ context.Context, user User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(user.Email)
	if _, found := s.users[key]; found {
		return User{}, ErrEmailTaken
	}

	s.userSeq++
	user.ID = s.userSeq
	userCopy := user
	s.users[key] = &userCopy
	return user, nil
}

func (s *MemoryStorage) UserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, found := s.users[normalizeEmail(email)]
	if !found {
		return User{}, ErrUserNotFound
	}
	return *user, nil
}

func (s *MemoryStorage) AddOrder(_ context.Context, userID int64, order domain.OrderRecord) (domain.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orderSeq++
	order.ID = domain.RecordID(strconv.FormatInt(s.orderSeq, 10))
	s.orders[userID] = append(s.orders[userID], order)

	metrics.StubOrdersStored.Inc()
	return order, nil
}

func (s *MemoryStorage) UserOrders(_ context.Context, userID int64) ([]domain.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.OrderRecord, len(s.orders[userID]))
	copy(orders, s.orders[userID])
	return orders, nil
}

// RevokeToken remembers a token id until it would have expired anyway.
func (s *MemoryStorage) RevokeToken(_ context.Context, tokenID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timeNow()
	for id, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, id)
		}
	}
	s.revoked[tokenID] = until
	return nil
}

func (s *MemoryStorage) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, found := s.revoked[tokenID]
	return found, nil
}
