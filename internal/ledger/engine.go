// Package ledger implements the transactional balance-mutation core. Every
// operation is one atomic unit: validation is side-effect free, all balance
// reads and mutations happen under exclusive holds on the involved keys, and
// history appends commit together with the balance changes or not at all.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mosala-ledger/mosala/internal/account"
	"github.com/mosala-ledger/mosala/internal/logging"
	"github.com/mosala-ledger/mosala/internal/notification"
	"github.com/mosala-ledger/mosala/internal/pricing"
	"github.com/mosala-ledger/mosala/internal/store"
)

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Engine executes value-moving operations against the balance store. It is
// implemented once against the store interface; swapping persistence swaps
// only the store, never this logic.
type Engine struct {
	store    store.Store
	accounts account.Repository
	oracle   pricing.Oracle
	notifier notification.Notifier
	logger   *slog.Logger
}

// New constructs a ledger engine. notifier may be nil; a nil logger discards.
func New(st store.Store, accounts account.Repository, oracle pricing.Oracle, notifier notification.Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{store: st, accounts: accounts, oracle: oracle, notifier: notifier, logger: logger}
}

// TransferInput captures the data needed to move funds between two accounts
// of the same owner.
type TransferInput struct {
	OwnerID       string
	FromAccountID string
	ToAccountID   string
	// Amount is in minor currency units.
	Amount int64
	Memo   string
}

// TransferResult describes the outcome of an internal transfer.
type TransferResult struct {
	TransferID  string
	FromBalance int64
	ToBalance   int64
	CompletedAt time.Time
}

// InternalTransfer debits one account and credits another atomically,
// appending one linked history record per account. Transfers between accounts
// of different owners are rejected, as are self-transfers.
func (e *Engine) InternalTransfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if in.Amount <= 0 {
		return TransferResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}
	if in.FromAccountID == in.ToAccountID {
		return TransferResult{}, fmt.Errorf("%w: cannot transfer to the same account", ErrInvalidArgument)
	}

	from, err := e.ownedAccount(ctx, in.FromAccountID, in.OwnerID)
	if err != nil {
		return TransferResult{}, err
	}
	to, err := e.ownedAccount(ctx, in.ToAccountID, in.OwnerID)
	if err != nil {
		return TransferResult{}, err
	}

	transferID := uuid.NewString()
	now := time.Now().UTC()
	var res TransferResult

	keys := []string{store.AccountKey(from.ID), store.AccountKey(to.ID)}
	err = e.store.Update(ctx, keys, func(tx store.Tx) error {
		balance, err := tx.AccountBalance(ctx, from.ID)
		if err != nil {
			return err
		}
		if balance < in.Amount {
			return ErrInsufficientFunds
		}

		fromBalance, err := tx.AdjustAccount(ctx, from.ID, -in.Amount)
		if err != nil {
			return err
		}
		toBalance, err := tx.AdjustAccount(ctx, to.ID, in.Amount)
		if err != nil {
			return err
		}

		out := store.Transaction{
			ID:           uuid.NewString(),
			TransferID:   transferID,
			AccountID:    from.ID,
			Kind:         store.KindTransferOut,
			Amount:       -in.Amount,
			Memo:         in.Memo,
			Counterparty: to.ID,
			CreatedAt:    now,
		}
		if err := tx.AppendTransaction(ctx, out); err != nil {
			return err
		}
		incoming := store.Transaction{
			ID:           uuid.NewString(),
			TransferID:   transferID,
			AccountID:    to.ID,
			Kind:         store.KindTransferIn,
			Amount:       in.Amount,
			Memo:         in.Memo,
			Counterparty: from.ID,
			CreatedAt:    now,
		}
		if err := tx.AppendTransaction(ctx, incoming); err != nil {
			return err
		}

		res = TransferResult{TransferID: transferID, FromBalance: fromBalance, ToBalance: toBalance, CompletedAt: now}
		return nil
	})
	if err != nil {
		return TransferResult{}, e.mapStoreErr(err)
	}

	e.logger.Info("transfer applied", "transfer_id", transferID, "from", from.ID, "to", to.ID, "amount", in.Amount)
	if e.notifier != nil {
		_ = e.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransferReceived,
			Destination: to.UserID,
			Body:        fmt.Sprintf("You received %d from account %s", in.Amount, from.ID),
		})
	}

	return res, nil
}

// WireInput captures the data needed to debit an account toward an external
// destination.
type WireInput struct {
	OwnerID       string
	FromAccountID string
	// RoutingRef identifies the external receiving side. The external leg is
	// unmodeled: the record is final on commit with no settlement lifecycle.
	RoutingRef string
	Amount     int64
	Memo       string
}

// WireResult describes the outcome of an external wire debit.
type WireResult struct {
	TransactionID string
	Balance       int64
	CompletedAt   time.Time
}

// ExternalDebit debits a single account and appends one wire_out record
// carrying the external routing reference.
func (e *Engine) ExternalDebit(ctx context.Context, in WireInput) (WireResult, error) {
	if in.Amount <= 0 {
		return WireResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}
	if strings.TrimSpace(in.RoutingRef) == "" {
		return WireResult{}, fmt.Errorf("%w: routing reference is required", ErrInvalidArgument)
	}

	from, err := e.ownedAccount(ctx, in.FromAccountID, in.OwnerID)
	if err != nil {
		return WireResult{}, err
	}

	now := time.Now().UTC()
	var res WireResult

	err = e.store.Update(ctx, []string{store.AccountKey(from.ID)}, func(tx store.Tx) error {
		balance, err := tx.AccountBalance(ctx, from.ID)
		if err != nil {
			return err
		}
		if balance < in.Amount {
			return ErrInsufficientFunds
		}

		newBalance, err := tx.AdjustAccount(ctx, from.ID, -in.Amount)
		if err != nil {
			return err
		}

		rec := store.Transaction{
			ID:           uuid.NewString(),
			TransferID:   uuid.NewString(),
			AccountID:    from.ID,
			Kind:         store.KindWireOut,
			Amount:       -in.Amount,
			Memo:         in.Memo,
			Counterparty: in.RoutingRef,
			CreatedAt:    now,
		}
		if err := tx.AppendTransaction(ctx, rec); err != nil {
			return err
		}

		res = WireResult{TransactionID: rec.ID, Balance: newBalance, CompletedAt: now}
		return nil
	})
	if err != nil {
		return WireResult{}, e.mapStoreErr(err)
	}

	e.logger.Info("wire debit applied", "account", from.ID, "routing_ref", in.RoutingRef, "amount", in.Amount)
	return res, nil
}

// TradeInput captures the data needed to execute a trade against the current
// oracle price.
type TradeInput struct {
	OwnerID string
	Side    string
	Symbol  string
	// Amount is the quantity of the base asset.
	Amount decimal.Decimal
	// QuoteCurrency defaults to the symbol's quote leg when empty and must
	// match it when set; trades never settle in a third denomination.
	QuoteCurrency string
}

// TradeResult carries the appended trade record and the wallet snapshot after
// the trade committed.
type TradeResult struct {
	Trade    store.Trade
	Balances map[string]decimal.Decimal
}

// ExecuteTrade buys or sells the symbol's base asset against the owner's
// wallet at the oracle's current price. Both wallet legs move atomically.
func (e *Engine) ExecuteTrade(ctx context.Context, in TradeInput) (TradeResult, error) {
	if in.Side != SideBuy && in.Side != SideSell {
		return TradeResult{}, fmt.Errorf("%w: unknown side %q", ErrInvalidArgument, in.Side)
	}
	if !in.Amount.IsPositive() {
		return TradeResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}

	base, symbolQuote, err := splitSymbol(in.Symbol)
	if err != nil {
		return TradeResult{}, err
	}
	quote := strings.ToUpper(strings.TrimSpace(in.QuoteCurrency))
	if quote == "" {
		quote = symbolQuote
	}
	if quote != symbolQuote {
		return TradeResult{}, fmt.Errorf("%w: quote currency %s does not match symbol quote leg %s", ErrInvalidArgument, quote, symbolQuote)
	}
	if base == quote {
		return TradeResult{}, fmt.Errorf("%w: base and quote currency are identical", ErrInvalidArgument)
	}
	symbol := base + symbolSeparator + symbolQuote

	price, err := e.oracle.CurrentPrice(ctx, symbol)
	if err != nil {
		if errors.Is(err, pricing.ErrPriceUnavailable) {
			return TradeResult{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
		}
		return TradeResult{}, fmt.Errorf("%w: price lookup: %v", ErrOperationFailed, err)
	}
	cost := in.Amount.Mul(price)

	rec := store.Trade{
		ID:        uuid.NewString(),
		OwnerID:   in.OwnerID,
		Side:      in.Side,
		Symbol:    symbol,
		Amount:    in.Amount,
		Price:     price,
		CreatedAt: time.Now().UTC(),
	}

	keys := []string{store.WalletKey(in.OwnerID, base), store.WalletKey(in.OwnerID, quote)}
	err = e.store.Update(ctx, keys, func(tx store.Tx) error {
		switch in.Side {
		case SideBuy:
			held, err := tx.WalletBalance(ctx, in.OwnerID, quote)
			if err != nil {
				return err
			}
			if held.LessThan(cost) {
				return ErrInsufficientFunds
			}
			if _, err := tx.AdjustWallet(ctx, in.OwnerID, quote, cost.Neg()); err != nil {
				return err
			}
			if _, err := tx.AdjustWallet(ctx, in.OwnerID, base, in.Amount); err != nil {
				return err
			}
		case SideSell:
			held, err := tx.WalletBalance(ctx, in.OwnerID, base)
			if err != nil {
				return err
			}
			if held.LessThan(in.Amount) {
				return ErrInsufficientAsset
			}
			if _, err := tx.AdjustWallet(ctx, in.OwnerID, base, in.Amount.Neg()); err != nil {
				return err
			}
			if _, err := tx.AdjustWallet(ctx, in.OwnerID, quote, cost); err != nil {
				return err
			}
		}
		return tx.AppendTrade(ctx, rec)
	})
	if err != nil {
		return TradeResult{}, e.mapStoreErr(err)
	}

	e.logger.Info("trade executed", "trade_id", rec.ID, "owner", in.OwnerID,
		"side", in.Side, "symbol", symbol, "amount", in.Amount.String(), "price", price.String())

	balances, err := e.store.WalletBalances(ctx, in.OwnerID)
	if err != nil {
		return TradeResult{}, e.mapStoreErr(err)
	}
	return TradeResult{Trade: rec, Balances: balances}, nil
}

// DepositInput captures an external-funding credit into the owner's wallet.
type DepositInput struct {
	OwnerID  string
	Currency string
	Amount   decimal.Decimal
}

// Deposit credits the wallet currency unconditionally and returns the updated
// wallet snapshot. It is the funding stub: no debit leg exists.
func (e *Engine) Deposit(ctx context.Context, in DepositInput) (map[string]decimal.Decimal, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrInvalidArgument)
	}

	err := e.store.Update(ctx, []string{store.WalletKey(in.OwnerID, currency)}, func(tx store.Tx) error {
		_, err := tx.AdjustWallet(ctx, in.OwnerID, currency, in.Amount)
		return err
	})
	if err != nil {
		return nil, e.mapStoreErr(err)
	}

	e.logger.Info("deposit applied", "owner", in.OwnerID, "currency", currency, "amount", in.Amount.String())
	return e.store.WalletBalances(ctx, in.OwnerID)
}

// WalletBalances returns the owner's wallet snapshot.
func (e *Engine) WalletBalances(ctx context.Context, ownerID string) (map[string]decimal.Decimal, error) {
	balances, err := e.store.WalletBalances(ctx, ownerID)
	if err != nil {
		return nil, e.mapStoreErr(err)
	}
	return balances, nil
}

// Transactions lists history entries for one of the owner's accounts, newest
// first.
func (e *Engine) Transactions(ctx context.Context, ownerID, accountID string) ([]store.Transaction, error) {
	if _, err := e.ownedAccount(ctx, accountID, ownerID); err != nil {
		return nil, err
	}
	records, err := e.store.Transactions(ctx, accountID)
	if err != nil {
		return nil, e.mapStoreErr(err)
	}
	return records, nil
}

// Trades lists the owner's trade records, newest first.
func (e *Engine) Trades(ctx context.Context, ownerID string) ([]store.Trade, error) {
	records, err := e.store.Trades(ctx, ownerID)
	if err != nil {
		return nil, e.mapStoreErr(err)
	}
	return records, nil
}

// ownedAccount resolves account metadata and enforces ownership. A missing
// account and a foreign account fail identically.
func (e *Engine) ownedAccount(ctx context.Context, accountID, ownerID string) (account.Account, error) {
	acct, err := e.accounts.Account(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return account.Account{}, fmt.Errorf("%w: %s", ErrInvalidAccount, accountID)
		}
		return account.Account{}, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	if acct.UserID != ownerID {
		return account.Account{}, fmt.Errorf("%w: %s", ErrInvalidAccount, accountID)
	}
	return acct, nil
}

// mapStoreErr translates store failures into the ledger taxonomy. Taxonomy
// errors raised inside an Update callback pass through untouched.
func (e *Engine) mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrInvalidAccount),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInsufficientAsset),
		errors.Is(err, ErrUnknownSymbol),
		errors.Is(err, ErrOperationFailed):
		return err
	case errors.Is(err, store.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: balance missing", ErrInvalidAccount)
	case errors.Is(err, store.ErrContended):
		return fmt.Errorf("%w: balance keys contended", ErrOperationFailed)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The caller abandoned the request; nothing committed.
		return err
	default:
		e.logger.Error("store failure", "error", err)
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
}
