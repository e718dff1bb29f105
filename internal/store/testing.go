package store

import (
	"github.com/shopspring/decimal"
)

// SeedAccount is a test helper that sets an account balance directly when
// using the in-memory store.
func SeedAccount(s Store, accountID string, balance int64) {
	if mem, ok := s.(*MemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.accounts[accountID] = balance
	}
}

// SeedWallet is a test helper that sets one wallet currency entry directly
// when using the in-memory store.
func SeedWallet(s Store, ownerID, currency string, amount decimal.Decimal) {
	if mem, ok := s.(*MemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		entries, ok := mem.wallets[ownerID]
		if !ok {
			entries = make(map[string]decimal.Decimal)
			mem.wallets[ownerID] = entries
		}
		entries[currency] = amount
	}
}
