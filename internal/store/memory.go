package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type walletRef struct {
	ownerID  string
	currency string
}

// MemoryStore is the in-process Store backend. Mutual exclusion is provided by
// keyed locks with ordered acquisition; staged changes of an Update are
// applied under a single mutex so plain readers only ever observe committed
// state.
type MemoryStore struct {
	locks    *keyLocks
	lockWait time.Duration

	mu           sync.RWMutex
	accounts     map[string]int64
	wallets      map[string]map[string]decimal.Decimal
	transactions map[string][]Transaction
	trades       map[string][]Trade
}

// NewMemory creates an empty in-memory store. lockWait bounds how long one
// Update may wait for its balance keys.
func NewMemory(lockWait time.Duration) *MemoryStore {
	return &MemoryStore{
		locks:        newKeyLocks(),
		lockWait:     lockWait,
		accounts:     make(map[string]int64),
		wallets:      make(map[string]map[string]decimal.Decimal),
		transactions: make(map[string][]Transaction),
		trades:       make(map[string][]Trade),
	}
}

// EnsureAccount provisions a zero balance for the account if absent.
func (s *MemoryStore) EnsureAccount(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[accountID]; !exists {
		s.accounts[accountID] = 0
	}
	return nil
}

// AccountBalance returns the committed balance for one account.
func (s *MemoryStore) AccountBalance(_ context.Context, accountID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, exists := s.accounts[accountID]
	if !exists {
		return 0, ErrNotFound
	}
	return balance, nil
}

// WalletBalances returns a copy of the owner's currency map. Owners without
// any wallet activity get an empty map.
func (s *MemoryStore) WalletBalances(_ context.Context, ownerID string) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(s.wallets[ownerID]))
	for currency, amount := range s.wallets[ownerID] {
		out[currency] = amount
	}
	return out, nil
}

// Transactions lists history entries for one account, newest first.
func (s *MemoryStore) Transactions(_ context.Context, accountID string) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.transactions[accountID]
	out := make([]Transaction, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}

// Trades lists trade records for one owner, newest first.
func (s *MemoryStore) Trades(_ context.Context, ownerID string) ([]Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.trades[ownerID]
	out := make([]Trade, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}

// Update implements the multi-key atomic primitive. The callback works on a
// staging transaction; a nil return applies all staged deltas and appends in
// one critical section, any error discards them.
func (s *MemoryStore) Update(ctx context.Context, keys []string, fn func(tx Tx) error) error {
	release, err := s.locks.acquire(ctx, keys, s.lockWait)
	if err != nil {
		return err
	}
	defer release()

	tx := &memoryTx{
		store:    s,
		accounts: make(map[string]int64),
		wallets:  make(map[walletRef]decimal.Decimal),
	}

	if err := fn(tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

type memoryTx struct {
	store *MemoryStore

	accounts     map[string]int64
	wallets      map[walletRef]decimal.Decimal
	transactions []Transaction
	trades       []Trade
}

func (tx *memoryTx) AccountBalance(_ context.Context, accountID string) (int64, error) {
	tx.store.mu.RLock()
	base, exists := tx.store.accounts[accountID]
	tx.store.mu.RUnlock()
	if !exists {
		return 0, ErrNotFound
	}
	return base + tx.accounts[accountID], nil
}

func (tx *memoryTx) AdjustAccount(ctx context.Context, accountID string, delta int64) (int64, error) {
	current, err := tx.AccountBalance(ctx, accountID)
	if err != nil {
		return 0, err
	}
	next := current + delta
	if next < 0 {
		return 0, ErrInsufficientFunds
	}
	tx.accounts[accountID] += delta
	return next, nil
}

func (tx *memoryTx) WalletBalance(_ context.Context, ownerID, currency string) (decimal.Decimal, error) {
	tx.store.mu.RLock()
	base := tx.store.wallets[ownerID][currency]
	tx.store.mu.RUnlock()
	return base.Add(tx.wallets[walletRef{ownerID, currency}]), nil
}

func (tx *memoryTx) AdjustWallet(ctx context.Context, ownerID, currency string, delta decimal.Decimal) (decimal.Decimal, error) {
	current, err := tx.WalletBalance(ctx, ownerID, currency)
	if err != nil {
		return decimal.Decimal{}, err
	}
	next := current.Add(delta)
	if next.IsNegative() {
		return decimal.Decimal{}, ErrInsufficientFunds
	}
	ref := walletRef{ownerID, currency}
	tx.wallets[ref] = tx.wallets[ref].Add(delta)
	return next, nil
}

func (tx *memoryTx) AppendTransaction(_ context.Context, rec Transaction) error {
	tx.transactions = append(tx.transactions, rec)
	return nil
}

func (tx *memoryTx) AppendTrade(_ context.Context, rec Trade) error {
	tx.trades = append(tx.trades, rec)
	return nil
}

func (tx *memoryTx) commit() {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for accountID, delta := range tx.accounts {
		s.accounts[accountID] += delta
	}
	for ref, delta := range tx.wallets {
		entries, ok := s.wallets[ref.ownerID]
		if !ok {
			entries = make(map[string]decimal.Decimal)
			s.wallets[ref.ownerID] = entries
		}
		entries[ref.currency] = entries[ref.currency].Add(delta)
	}
	for _, rec := range tx.transactions {
		s.transactions[rec.AccountID] = append(s.transactions[rec.AccountID], rec)
	}
	for _, rec := range tx.trades {
		s.trades[rec.OwnerID] = append(s.trades[rec.OwnerID], rec)
	}
}
