package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

type Counter interface {
	Count(ctx context.Context) (int, error)
}

type CheckHandler struct {
	store Counter
}

func NewCheckHandler(store Counter) *CheckHandler {
	return &CheckHandler{store: store}
}

func (h *CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	n, err := h.store.Count(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": "ok", "chunks": n})
}
