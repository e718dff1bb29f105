package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const pgLockNotAvailable = "55P03"

// PostgresStore persists balances and history in PostgreSQL. Each Update runs
// in one transaction; exclusive key access uses transaction-scoped advisory
// locks taken in sorted key order, so the locking discipline is identical to
// the in-memory backend and releases automatically on commit or rollback.
type PostgresStore struct {
	db       *pgxpool.Pool
	lockWait time.Duration
}

// NewPostgres constructs a Postgres-backed store implementation.
func NewPostgres(db *pgxpool.Pool, lockWait time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockWait: lockWait}
}

// EnsureAccount provisions a zero balance row for the account if absent.
func (s *PostgresStore) EnsureAccount(ctx context.Context, accountID string) error {
	_, err := s.db.Exec(ctx, `INSERT INTO account_balances (account_id, balance) VALUES ($1, 0)
        ON CONFLICT (account_id) DO NOTHING`, accountID)
	return err
}

// AccountBalance returns the committed balance for one account.
func (s *PostgresStore) AccountBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx, `SELECT balance FROM account_balances WHERE account_id = $1`, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// WalletBalances returns all currency entries for one owner.
func (s *PostgresStore) WalletBalances(ctx context.Context, ownerID string) (map[string]decimal.Decimal, error) {
	rows, err := s.db.Query(ctx, `SELECT currency, amount::text FROM wallet_balances WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var currency, amount string
		if err := rows.Scan(&currency, &amount); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("decode wallet amount: %w", err)
		}
		out[currency] = d
	}
	return out, rows.Err()
}

// Transactions lists history entries for one account, newest first.
func (s *PostgresStore) Transactions(ctx context.Context, accountID string) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `SELECT id, transfer_id, account_id, kind, amount, memo, counterparty, created_at
        FROM transactions WHERE account_id = $1 ORDER BY seq DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var rec Transaction
		if err := rows.Scan(&rec.ID, &rec.TransferID, &rec.AccountID, &rec.Kind, &rec.Amount, &rec.Memo, &rec.Counterparty, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Trades lists trade records for one owner, newest first.
func (s *PostgresStore) Trades(ctx context.Context, ownerID string) ([]Trade, error) {
	rows, err := s.db.Query(ctx, `SELECT id, owner_id, side, symbol, amount::text, price::text, created_at
        FROM trades WHERE owner_id = $1 ORDER BY seq DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var rec Trade
		var amount, price string
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Side, &rec.Symbol, &amount, &price, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("decode trade amount: %w", err)
		}
		if rec.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("decode trade price: %w", err)
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Update runs fn inside one database transaction holding advisory locks on
// every key. A lock wait beyond the configured bound surfaces as ErrContended.
func (s *PostgresStore) Update(ctx context.Context, keys []string, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockWait.Milliseconds())); err != nil {
		return err
	}

	for _, key := range dedupeSorted(keys) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			if isLockTimeout(err) {
				return ErrContended
			}
			return err
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) AccountBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, `SELECT balance FROM account_balances WHERE account_id = $1`, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (t *pgTx) AdjustAccount(ctx context.Context, accountID string, delta int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, `UPDATE account_balances SET balance = balance + $2
        WHERE account_id = $1 AND balance + $2 >= 0 RETURNING balance`, accountID, delta).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		// The guard rejected the adjustment: distinguish a missing row from an
		// insufficient balance.
		if _, balErr := t.AccountBalance(ctx, accountID); errors.Is(balErr, ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, ErrInsufficientFunds
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (t *pgTx) WalletBalance(ctx context.Context, ownerID, currency string) (decimal.Decimal, error) {
	var amount string
	err := t.tx.QueryRow(ctx, `SELECT amount::text FROM wallet_balances WHERE owner_id = $1 AND currency = $2`,
		ownerID, currency).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		// Wallet entries are created lazily; an absent row is a zero balance.
		return decimal.Decimal{}, nil
	}
	if err != nil {
		return decimal.Decimal{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode wallet amount: %w", err)
	}
	return d, nil
}

func (t *pgTx) AdjustWallet(ctx context.Context, ownerID, currency string, delta decimal.Decimal) (decimal.Decimal, error) {
	var amount string
	var err error
	if delta.IsNegative() {
		err = t.tx.QueryRow(ctx, `UPDATE wallet_balances SET amount = amount + $3::numeric
            WHERE owner_id = $1 AND currency = $2 AND amount + $3::numeric >= 0
            RETURNING amount::text`, ownerID, currency, delta.String()).Scan(&amount)
		if errors.Is(err, pgx.ErrNoRows) {
			// Either no row (zero balance) or the guard rejected it; both mean
			// the debit exceeds the available amount.
			return decimal.Decimal{}, ErrInsufficientFunds
		}
	} else {
		err = t.tx.QueryRow(ctx, `INSERT INTO wallet_balances (owner_id, currency, amount) VALUES ($1, $2, $3::numeric)
            ON CONFLICT (owner_id, currency) DO UPDATE SET amount = wallet_balances.amount + EXCLUDED.amount
            RETURNING amount::text`, ownerID, currency, delta.String()).Scan(&amount)
	}
	if err != nil {
		return decimal.Decimal{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode wallet amount: %w", err)
	}
	return d, nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, rec Transaction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO transactions (id, transfer_id, account_id, kind, amount, memo, counterparty, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.TransferID, rec.AccountID, rec.Kind, rec.Amount, rec.Memo, rec.Counterparty, rec.CreatedAt.UTC())
	return err
}

func (t *pgTx) AppendTrade(ctx context.Context, rec Trade) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO trades (id, owner_id, side, symbol, amount, price, created_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7)`,
		rec.ID, rec.OwnerID, rec.Side, rec.Symbol, rec.Amount.String(), rec.Price.String(), rec.CreatedAt.UTC())
	return err
}
