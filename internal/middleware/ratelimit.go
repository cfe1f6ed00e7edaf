package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Defaults for the widget's upgrade endpoint: a flapping network causing a
// burst of reconnects should be absorbed, a scripted connection flood
// should not. Agent connections are not limited; they carry a JWT.
const (
	VisitorUpgradeMax    = 30
	VisitorUpgradeWindow = time.Minute
)

// VisitorUpgradeLimit is the per-IP throttle in front of /ws/visitor.
func VisitorUpgradeLimit() fiber.Handler {
	return RateLimit(VisitorUpgradeMax, VisitorUpgradeWindow)
}

func RateLimit(max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			// The widget backs off and retries; tell it how long to wait.
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "too many connection attempts",
				"retry_after": int(window.Seconds()),
			})
		},
	})
}
