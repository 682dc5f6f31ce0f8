// Package ledger holds per-user credit balances.
package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/actualpc/phillip-therapy/internal/model"
)

// ErrInvalidAmount is returned when a credit amount is not positive.
var ErrInvalidAmount = errors.New("credit amount must be positive")

// Store is the credit ledger. Implementations must make TryConsume and Credit
// atomic per user.
type Store interface {
	// Get returns the user, creating it with the starting balance if absent.
	Get(ctx context.Context, userID string) (model.User, error)
	// TryConsume spends one credit. It reports false, leaving the balance
	// unchanged, when the user has none left.
	TryConsume(ctx context.Context, userID string) (bool, error)
	// Credit adds amount to the user's balance and returns the new balance.
	Credit(ctx context.Context, userID string, amount int) (int, error)
	// Balance returns a snapshot of the user's balance.
	Balance(ctx context.Context, userID string) (int, error)
}

// MemoryStore is a process-lifetime Store backed by a map.
type MemoryStore struct {
	mu             sync.Mutex
	users          map[string]*model.User
	initialCredits int
}

// NewMemoryStore creates an in-memory ledger granting initialCredits to new users.
func NewMemoryStore(initialCredits int) *MemoryStore {
	if initialCredits < 0 {
		initialCredits = 0
	}
	return &MemoryStore{
		users:          make(map[string]*model.User),
		initialCredits: initialCredits,
	}
}

// getLocked must be called with mu held.
func (s *MemoryStore) getLocked(userID string) *model.User {
	u, ok := s.users[userID]
	if !ok {
		u = &model.User{ID: userID, Credits: s.initialCredits}
		s.users[userID] = u
	}
	return u
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, userID string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.getLocked(userID), nil
}

// TryConsume implements Store.
func (s *MemoryStore) TryConsume(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.getLocked(userID)
	if u.Credits <= 0 {
		return false, nil
	}
	u.Credits--
	return true, nil
}

// Credit implements Store.
func (s *MemoryStore) Credit(_ context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.getLocked(userID)
	u.Credits += amount
	return u.Credits, nil
}

// Balance implements Store.
func (s *MemoryStore) Balance(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(userID).Credits, nil
}
