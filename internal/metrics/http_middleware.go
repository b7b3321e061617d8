package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

func FiberMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		ObserveHTTPRequest(c.Method(), route, c.Response().StatusCode(), time.Since(start))
		return err
	}
}
