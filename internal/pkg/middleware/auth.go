package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AlbumFox/internal/pkg/auth"
	"github.com/ManuelReschke/AlbumFox/internal/pkg/usercontext"
)

// RequireAPIAuth verifies the bearer token of an API request and stores the
// caller in the user context. Requests without a valid identity get a JSON 401.
func RequireAPIAuth(verifier auth.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Missing bearer token",
			})
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			log.Debugf("api auth: rejected token from %s: %v", c.IP(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Invalid or expired token",
			})
		}

		usercontext.SetUserContext(c, usercontext.UserContext{
			UserID:     identity.UserID,
			Email:      identity.Email,
			IsLoggedIn: true,
		})
		return c.Next()
	}
}
