package api

import (
	"github.com/gofiber/fiber/v2"

	"compliance-rag/config"
)

// ConfigHandler reports the effective configuration. Secrets are excluded
// by the config type's JSON tags.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

func (h *ConfigHandler) HandleGetConfig(c *fiber.Ctx) error {
	return c.JSON(h.cfg)
}
