package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mosala-ledger/mosala/internal/store"
)

// Service exposes account and card lifecycle operations. Balances are owned
// by the balance store; this service only provisions keys and reads them back.
type Service struct {
	repo  Repository
	store store.Store
}

// NewService builds an account service instance.
func NewService(repo Repository, st store.Store) *Service {
	return &Service{repo: repo, store: st}
}

// CreateInput captures data required to open an account.
type CreateInput struct {
	UserID string
	Kind   string
	Name   string
	// OpeningBalance seeds the account in minor currency units. It is a
	// provisioning amount, not a ledger operation, so no history entry exists
	// for it.
	OpeningBalance int64
}

// Summary pairs account metadata with its current store balance.
type Summary struct {
	Account Account
	Balance int64
}

// Create provisions an account and its balance store key.
func (s *Service) Create(ctx context.Context, input CreateInput) (Account, error) {
	if _, err := uuid.Parse(input.UserID); err != nil {
		return Account{}, fmt.Errorf("invalid user id: %w", err)
	}
	switch input.Kind {
	case KindChecking, KindSavings, KindOther:
	case "":
		input.Kind = KindChecking
	default:
		return Account{}, fmt.Errorf("unknown account kind %q", input.Kind)
	}
	if input.OpeningBalance < 0 {
		return Account{}, fmt.Errorf("opening balance must not be negative")
	}

	acct := Account{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		Kind:      input.Kind,
		Name:      strings.TrimSpace(input.Name),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.EnsureAccount(ctx, acct.ID); err != nil {
		return Account{}, err
	}
	if input.OpeningBalance > 0 {
		err := s.store.Update(ctx, []string{store.AccountKey(acct.ID)}, func(tx store.Tx) error {
			_, err := tx.AdjustAccount(ctx, acct.ID, input.OpeningBalance)
			return err
		})
		if err != nil {
			return Account{}, err
		}
	}

	if err := s.repo.CreateAccount(ctx, acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Get retrieves account metadata.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.repo.Account(ctx, id)
}

// List returns the user's accounts with their current balances.
func (s *Service) List(ctx context.Context, userID string) ([]Summary, error) {
	accounts, err := s.repo.AccountsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(accounts))
	for _, acct := range accounts {
		balance, err := s.store.AccountBalance(ctx, acct.ID)
		if err != nil {
			return nil, fmt.Errorf("balance for account %s: %w", acct.ID, err)
		}
		out = append(out, Summary{Account: acct, Balance: balance})
	}
	return out, nil
}

// CardInput captures data required to issue a card.
type CardInput struct {
	UserID    string
	AccountID string
	Kind      string
	Number    string
}

// CreateCard issues a card against one of the user's own accounts. The full
// number is masked before storage and never retained.
func (s *Service) CreateCard(ctx context.Context, input CardInput) (Card, error) {
	switch input.Kind {
	case CardVirtual, CardDebit, CardCredit:
	default:
		return Card{}, fmt.Errorf("unknown card kind %q", input.Kind)
	}

	masked, err := maskNumber(input.Number)
	if err != nil {
		return Card{}, err
	}

	acct, err := s.repo.Account(ctx, input.AccountID)
	if err != nil {
		return Card{}, err
	}
	if acct.UserID != input.UserID {
		return Card{}, fmt.Errorf("%w: account %s", ErrNotFound, input.AccountID)
	}

	card := Card{
		ID:           uuid.NewString(),
		UserID:       input.UserID,
		AccountID:    acct.ID,
		Kind:         input.Kind,
		MaskedNumber: masked,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateCard(ctx, card); err != nil {
		return Card{}, err
	}
	return card, nil
}

// ListCards returns the user's cards.
func (s *Service) ListCards(ctx context.Context, userID string) ([]Card, error) {
	return s.repo.CardsByUser(ctx, userID)
}

func maskNumber(number string) (string, error) {
	digits := strings.ReplaceAll(number, " ", "")
	if len(digits) < 12 || len(digits) > 19 {
		return "", fmt.Errorf("card number must be between 12 and 19 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("card number must be numeric")
		}
	}
	return "**** **** **** " + digits[len(digits)-4:], nil
}
