package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mosala-ledger/mosala/internal/ledger"
)

// RegisterLedgerRoutes wires the balance-mutating operations and their
// read-back surfaces.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler) {
	r.Post("/transfers", h.Transfer)
	r.Post("/transfers/wire", h.Wire)
	r.Post("/trades", h.Trade)
	r.Get("/trades", h.Trades)
	r.Post("/wallet/deposit", h.Deposit)
	r.Get("/wallet", h.Wallet)
	r.Get("/accounts/:accountId/transactions", h.Transactions)
}
