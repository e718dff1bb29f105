package account

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the referenced account or card does not exist.
var ErrNotFound = errors.New("account not found")

// Repository persists account and card metadata.
type Repository interface {
	CreateAccount(ctx context.Context, acct Account) error
	Account(ctx context.Context, id string) (Account, error)
	AccountsByUser(ctx context.Context, userID string) ([]Account, error)

	CreateCard(ctx context.Context, card Card) error
	CardsByUser(ctx context.Context, userID string) ([]Card, error)
}

// PostgresRepository stores accounts and cards in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAccount inserts an account record.
func (r *PostgresRepository) CreateAccount(ctx context.Context, acct Account) error {
	_, err := r.db.Exec(ctx, `INSERT INTO accounts (id, user_id, kind, name, created_at)
        VALUES ($1, $2, $3, $4, $5)`, acct.ID, acct.UserID, acct.Kind, acct.Name, acct.CreatedAt.UTC())
	return err
}

// Account fetches account metadata by identifier.
func (r *PostgresRepository) Account(ctx context.Context, id string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT id, user_id, kind, name, created_at FROM accounts WHERE id = $1`, id)
	var a Account
	if err := row.Scan(&a.ID, &a.UserID, &a.Kind, &a.Name, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

// AccountsByUser lists the user's accounts in creation order.
func (r *PostgresRepository) AccountsByUser(ctx context.Context, userID string) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id, kind, name, created_at FROM accounts
        WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Kind, &a.Name, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateCard inserts a card record.
func (r *PostgresRepository) CreateCard(ctx context.Context, card Card) error {
	_, err := r.db.Exec(ctx, `INSERT INTO cards (id, user_id, account_id, kind, masked_number, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		card.ID, card.UserID, card.AccountID, card.Kind, card.MaskedNumber, card.CreatedAt.UTC())
	return err
}

// CardsByUser lists the user's cards in creation order.
func (r *PostgresRepository) CardsByUser(ctx context.Context, userID string) ([]Card, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id, account_id, kind, masked_number, created_at FROM cards
        WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Card
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.ID, &c.UserID, &c.AccountID, &c.Kind, &c.MaskedNumber, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}
