package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxUploadSize       int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects malformed requests before they reach the handlers:
// wrong content types, oversized uploads, and grade requests without a
// session id.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = 25 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json", "multipart/form-data"}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == "POST" || c.Method() == "PUT" {
			contentType := c.Get("Content-Type")
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		path := c.Path()

		if strings.Contains(path, "/api/v1/submissions") && c.Method() == "POST" {
			if len(c.Body()) > cfg.MaxUploadSize {
				if cfg.Logger != nil {
					cfg.Logger.Warn("Submission too large",
						zap.String("ip", c.IP()),
						zap.Int("size", len(c.Body())),
					)
				}
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Submission exceeds maximum size",
				})
			}
		}

		if strings.Contains(path, "/api/v1/grade") && c.Method() == "POST" {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			sessionID, ok := req["session_id"].(string)
			if !ok || sessionID == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "session_id is required and must be a string",
				})
			}
		}

		return c.Next()
	}
}
