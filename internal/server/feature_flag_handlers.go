package server

import (
	"gallery/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// GetFeatureFlags lists the configured flags as written and as they evaluate
// for the caller. Anonymous callers see partial rollouts as off.
// @Summary Feature flags
// @Tags flags
// @Produce json
// @Success 200 {object} object{raw=object,evaluated=object}
// @Router /feature-flags [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	flags := s.featureFlags
	return c.JSON(fiber.Map{
		"raw":       flags.Raw(),
		"evaluated": flags.Snapshot(middleware.UserID(c)),
	})
}
