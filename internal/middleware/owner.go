package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	ownerIDHeader = "X-Owner-ID"
	ownerIDLocal  = "owner_id"
)

// OwnerIdentity extracts the already-authenticated owner identity supplied by
// the upstream auth layer. The ledger trusts this header as ground truth and
// performs its own ownership checks against accounts and wallets.
func OwnerIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID := c.Get(ownerIDHeader)
		if ownerID == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing "+ownerIDHeader+" header")
		}
		if _, err := uuid.Parse(ownerID); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "malformed "+ownerIDHeader+" header")
		}

		c.Locals(ownerIDLocal, ownerID)
		return c.Next()
	}
}

// OwnerID returns the owner identity bound to the request, or empty when the
// OwnerIdentity middleware did not run.
func OwnerID(c *fiber.Ctx) string {
	ownerID, _ := c.Locals(ownerIDLocal).(string)
	return ownerID
}
