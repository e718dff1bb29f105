// Package store holds the live balance state and the append-only history of
// the ledger. It is the unit of concurrency control: every composite ledger
// operation runs inside a single Update call that owns exclusive holds on the
// involved balance keys for its whole duration.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the referenced balance key does not exist.
	ErrNotFound = errors.New("balance not found")

	// ErrInsufficientFunds occurs when an adjustment would drive a balance
	// below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrContended indicates the balance keys could not be locked within the
	// configured wait bound. The operation had no effect and is safe to retry.
	ErrContended = errors.New("balance keys contended")
)

// Transaction record kinds.
const (
	KindTransferOut = "transfer_out"
	KindTransferIn  = "transfer_in"
	KindWireOut     = "wire_out"
)

// Transaction is one immutable history entry on an account. The two legs of
// an internal transfer share one TransferID and timestamp but carry opposite
// kinds and amounts.
type Transaction struct {
	ID         string
	TransferID string
	AccountID  string
	Kind       string
	// Amount is signed by kind: negative for transfer_out and wire_out,
	// positive for transfer_in.
	Amount int64
	Memo   string
	// Counterparty references the other account for internal transfers, or
	// the external routing identifier for wire_out records.
	Counterparty string
	CreatedAt    time.Time
}

// Trade is one immutable record of an executed trade.
type Trade struct {
	ID        string
	OwnerID   string
	Side      string
	Symbol    string
	Amount    decimal.Decimal
	Price     decimal.Decimal
	CreatedAt time.Time
}

// Tx is the transactional view handed to an Update callback. All reads and
// adjustments observe earlier staged changes of the same callback; nothing
// becomes visible to other operations until the callback returns nil.
type Tx interface {
	AccountBalance(ctx context.Context, accountID string) (int64, error)
	// AdjustAccount applies a signed delta in minor currency units and returns
	// the resulting balance. It fails with ErrInsufficientFunds if the result
	// would be negative.
	AdjustAccount(ctx context.Context, accountID string, delta int64) (int64, error)

	WalletBalance(ctx context.Context, ownerID, currency string) (decimal.Decimal, error)
	// AdjustWallet applies a signed decimal delta to one wallet currency,
	// creating the entry at zero if absent, and returns the resulting amount.
	// It fails with ErrInsufficientFunds if the result would be negative.
	AdjustWallet(ctx context.Context, ownerID, currency string, delta decimal.Decimal) (decimal.Decimal, error)

	AppendTransaction(ctx context.Context, rec Transaction) error
	AppendTrade(ctx context.Context, rec Trade) error
}

// Store is the balance store plus history log contract implemented by the
// in-memory and Postgres backends.
type Store interface {
	// EnsureAccount provisions a zero balance for the account if absent.
	EnsureAccount(ctx context.Context, accountID string) error

	AccountBalance(ctx context.Context, accountID string) (int64, error)
	WalletBalances(ctx context.Context, ownerID string) (map[string]decimal.Decimal, error)

	// Transactions lists history entries for one account, newest first.
	Transactions(ctx context.Context, accountID string) ([]Transaction, error)
	// Trades lists trade records for one owner, newest first.
	Trades(ctx context.Context, ownerID string) ([]Trade, error)

	// Update runs fn atomically while holding exclusive access to every key in
	// keys. Keys are deduplicated and locked in lexicographic order so that
	// operations touching the same pair in opposite order cannot deadlock.
	// If fn returns nil all staged changes commit together; any error discards
	// them entirely. Lock acquisition is bounded: on contention timeout Update
	// returns ErrContended without running fn.
	Update(ctx context.Context, keys []string, fn func(tx Tx) error) error
}

// AccountKey names the lockable balance key for an account.
func AccountKey(accountID string) string {
	return "account:" + accountID
}

// WalletKey names the lockable balance key for one wallet currency entry.
func WalletKey(ownerID, currency string) string {
	return "wallet:" + ownerID + ":" + currency
}
