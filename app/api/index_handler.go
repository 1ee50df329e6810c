package api

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"compliance-rag/types"
)

type IndexBuilder interface {
	Build(ctx context.Context, refresh bool) (*types.BuildResult, error)
}

type IndexHandler struct {
	builder IndexBuilder
}

func NewIndexHandler(b IndexBuilder) *IndexHandler {
	return &IndexHandler{builder: b}
}

func (h *IndexHandler) HandleRebuild(c *fiber.Ctx) error {
	var params types.RebuildParams
	if err := c.QueryParser(&params); err != nil {
		return ErrBadRequest("invalid query")
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	res, err := h.builder.Build(c.UserContext(), params.Refresh)
	if err != nil {
		return err
	}
	return c.JSON(res)
}
