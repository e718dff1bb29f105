package account

import "time"

// Account kinds.
const (
	KindChecking = "checking"
	KindSavings  = "savings"
	KindOther    = "other"
)

// Card kinds.
const (
	CardVirtual = "virtual"
	CardDebit   = "debit"
	CardCredit  = "credit"
)

// Account is the metadata for one monetary account. Its balance lives in the
// balance store under the account's key and is mutated only by the ledger
// engine.
type Account struct {
	ID        string
	UserID    string
	Kind      string
	Name      string
	CreatedAt time.Time
}

// Card references exactly one account of the same user. Cards are immutable
// after creation.
type Card struct {
	ID           string
	UserID       string
	AccountID    string
	Kind         string
	MaskedNumber string
	CreatedAt    time.Time
}
