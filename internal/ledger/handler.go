package ledger

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/mosala-ledger/mosala/internal/middleware"
	"github.com/mosala-ledger/mosala/internal/store"
)

// Handler exposes the ledger engine operations over HTTP.
type Handler struct {
	engine *Engine
}

// NewHandler builds a ledger HTTP handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type transferRequest struct {
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        int64  `json:"amount"`
	Memo          string `json:"memo"`
}

// Transfer processes an internal account-to-account transfer.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.engine.InternalTransfer(c.UserContext(), TransferInput{
		OwnerID:       middleware.OwnerID(c),
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Memo:          req.Memo,
	})
	if err != nil {
		return httpError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transfer_id":  res.TransferID,
		"from_balance": res.FromBalance,
		"to_balance":   res.ToBalance,
		"completed_at": res.CompletedAt,
	})
}

type wireRequest struct {
	FromAccountID string `json:"from_account_id"`
	RoutingRef    string `json:"routing_ref"`
	Amount        int64  `json:"amount"`
	Memo          string `json:"memo"`
}

// Wire processes a one-sided external wire debit.
func (h *Handler) Wire(c *fiber.Ctx) error {
	var req wireRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.engine.ExternalDebit(c.UserContext(), WireInput{
		OwnerID:       middleware.OwnerID(c),
		FromAccountID: req.FromAccountID,
		RoutingRef:    req.RoutingRef,
		Amount:        req.Amount,
		Memo:          req.Memo,
	})
	if err != nil {
		return httpError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": res.TransactionID,
		"balance":        res.Balance,
		"completed_at":   res.CompletedAt,
	})
}

type tradeRequest struct {
	Side          string `json:"side"`
	Symbol        string `json:"symbol"`
	Amount        string `json:"amount"`
	QuoteCurrency string `json:"quote_currency"`
}

// Trade executes a buy or sell against the current oracle price.
func (h *Handler) Trade(c *fiber.Ctx) error {
	var req tradeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	res, err := h.engine.ExecuteTrade(c.UserContext(), TradeInput{
		OwnerID:       middleware.OwnerID(c),
		Side:          req.Side,
		Symbol:        req.Symbol,
		Amount:        amount,
		QuoteCurrency: req.QuoteCurrency,
	})
	if err != nil {
		return httpError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"trade":    tradeJSON(res.Trade),
		"balances": balancesJSON(res.Balances),
	})
}

type depositRequest struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// Deposit credits the owner's wallet from external funding.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	balances, err := h.engine.Deposit(c.UserContext(), DepositInput{
		OwnerID:  middleware.OwnerID(c),
		Currency: req.Currency,
		Amount:   amount,
	})
	if err != nil {
		return httpError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"balances": balancesJSON(balances)})
}

// Wallet returns the owner's wallet balances.
func (h *Handler) Wallet(c *fiber.Ctx) error {
	balances, err := h.engine.WalletBalances(c.UserContext(), middleware.OwnerID(c))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"balances":  balancesJSON(balances),
		"timestamp": time.Now().UTC(),
	})
}

// Transactions lists history entries for one of the owner's accounts.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	records, err := h.engine.Transactions(c.UserContext(), middleware.OwnerID(c), c.Params("accountId"))
	if err != nil {
		return httpError(err)
	}

	out := make([]fiber.Map, 0, len(records))
	for _, rec := range records {
		out = append(out, fiber.Map{
			"id":           rec.ID,
			"transfer_id":  rec.TransferID,
			"account_id":   rec.AccountID,
			"kind":         rec.Kind,
			"amount":       rec.Amount,
			"memo":         rec.Memo,
			"counterparty": rec.Counterparty,
			"created_at":   rec.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}

// Trades lists the owner's trade records.
func (h *Handler) Trades(c *fiber.Ctx) error {
	records, err := h.engine.Trades(c.UserContext(), middleware.OwnerID(c))
	if err != nil {
		return httpError(err)
	}

	out := make([]fiber.Map, 0, len(records))
	for _, rec := range records {
		out = append(out, tradeJSON(rec))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"trades": out})
}

func tradeJSON(rec store.Trade) fiber.Map {
	return fiber.Map{
		"id":         rec.ID,
		"side":       rec.Side,
		"symbol":     rec.Symbol,
		"amount":     rec.Amount.String(),
		"price":      rec.Price.String(),
		"created_at": rec.CreatedAt,
	}
}

func balancesJSON(balances map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(balances))
	for currency, amount := range balances {
		out[currency] = amount.String()
	}
	return out
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidAccount):
		return fiber.NewError(http.StatusNotFound, "invalid account")
	case errors.Is(err, ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, "insufficient funds")
	case errors.Is(err, ErrInsufficientAsset):
		return fiber.NewError(http.StatusBadRequest, "insufficient asset")
	case errors.Is(err, ErrUnknownSymbol):
		return fiber.NewError(http.StatusBadRequest, "unknown symbol")
	case errors.Is(err, ErrOperationFailed):
		return fiber.NewError(http.StatusServiceUnavailable, "operation failed, safe to retry")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
