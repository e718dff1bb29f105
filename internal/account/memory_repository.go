package account

import (
	"context"
	"errors"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
	cards    map[string]Card
}

// NewMemoryRepository constructs an in-memory repository for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		accounts: make(map[string]Account),
		cards:    make(map[string]Card),
	}
}

func (r *memoryRepository) CreateAccount(_ context.Context, acct Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[acct.ID]; exists {
		return errors.New("account exists")
	}
	r.accounts[acct.ID] = acct
	return nil
}

func (r *memoryRepository) Account(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

func (r *memoryRepository) AccountsByUser(_ context.Context, userID string) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Account
	for _, acct := range r.accounts {
		if acct.UserID == userID {
			out = append(out, acct)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) CreateCard(_ context.Context, card Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cards[card.ID]; exists {
		return errors.New("card exists")
	}
	r.cards[card.ID] = card
	return nil
}

func (r *memoryRepository) CardsByUser(_ context.Context, userID string) ([]Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Card
	for _, card := range r.cards {
		if card.UserID == userID {
			out = append(out, card)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
