package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestID binds a request identifier to the request and echoes it on the
// response, reusing a caller-supplied value so traces line up across hops.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(requestIDHeader, id)
		c.Set(requestIDHeader, id)

		return c.Next()
	}
}
