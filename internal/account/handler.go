package account

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mosala-ledger/mosala/internal/middleware"
)

// Handler exposes account and card HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Kind           string `json:"kind"`
	Name           string `json:"name"`
	OpeningBalance int64  `json:"opening_balance"`
}

// Create opens an account for the authenticated owner.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	acct, err := h.service.Create(c.UserContext(), CreateInput{
		UserID:         middleware.OwnerID(c),
		Kind:           req.Kind,
		Name:           req.Name,
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(accountJSON(acct))
}

// List returns the owner's accounts with balances.
func (h *Handler) List(c *fiber.Ctx) error {
	summaries, err := h.service.List(c.UserContext(), middleware.OwnerID(c))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]fiber.Map, 0, len(summaries))
	for _, s := range summaries {
		entry := accountJSON(s.Account)
		entry["balance"] = s.Balance
		out = append(out, entry)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"accounts": out})
}

type cardRequest struct {
	AccountID string `json:"account_id"`
	Kind      string `json:"kind"`
	Number    string `json:"number"`
}

// CreateCard issues a card against one of the owner's accounts.
func (h *Handler) CreateCard(c *fiber.Ctx) error {
	var req cardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	card, err := h.service.CreateCard(c.UserContext(), CardInput{
		UserID:    middleware.OwnerID(c),
		AccountID: req.AccountID,
		Kind:      req.Kind,
		Number:    req.Number,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "invalid account")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(cardJSON(card))
}

// ListCards returns the owner's cards.
func (h *Handler) ListCards(c *fiber.Ctx) error {
	cards, err := h.service.ListCards(c.UserContext(), middleware.OwnerID(c))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]fiber.Map, 0, len(cards))
	for _, card := range cards {
		out = append(out, cardJSON(card))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"cards": out})
}

func accountJSON(acct Account) fiber.Map {
	return fiber.Map{
		"id":         acct.ID,
		"user_id":    acct.UserID,
		"kind":       acct.Kind,
		"name":       acct.Name,
		"created_at": acct.CreatedAt,
	}
}

func cardJSON(card Card) fiber.Map {
	return fiber.Map{
		"id":            card.ID,
		"user_id":       card.UserID,
		"account_id":    card.AccountID,
		"kind":          card.Kind,
		"masked_number": card.MaskedNumber,
		"created_at":    card.CreatedAt,
	}
}
