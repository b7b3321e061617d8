package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/maheshrc27/postflow/pkg/utils"
)

type AuthMiddleware struct {
	jobSecret string
	log       *zap.Logger
}

func NewAuthMiddleware(jobSecret string, log *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{jobSecret: jobSecret, log: log}
}

// SchedulerAuth requires a scheduler token signed with the job secret. With no secret
// configured every request passes.
func (m *AuthMiddleware) SchedulerAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.jobSecret == "" || c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		header := c.Get(fiber.HeaderAuthorization)
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing scheduler token",
			})
		}

		claims, err := utils.ValidateToken(m.jobSecret, tokenString)
		if err != nil {
			m.log.Warn("scheduler token validation failed", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("trigger", claims.Trigger)
		return c.Next()
	}
}
