package api

import (
	"context"
	"io"
	"path/filepath"

	"github.com/gofiber/fiber/v2"

	"compliance-rag/types"
)

type Reviewer interface {
	Review(ctx context.Context, filename string, data []byte) (*types.ReviewOutcome, error)
	Download(ref string) (string, error)
}

type FileHandler struct {
	reviewer Reviewer
}

func NewFileHandler(r Reviewer) *FileHandler {
	return &FileHandler{reviewer: r}
}

// HandleReview accepts a multipart upload in the "file" field and returns
// the review outcome with the names of the written artifacts.
func (h *FileHandler) HandleReview(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest("multipart field 'file' is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	outcome, err := h.reviewer.Review(c.UserContext(), fileHeader.Filename, data)
	if err != nil {
		return err
	}
	return c.JSON(outcome)
}

func (h *FileHandler) HandleDownload(c *fiber.Ctx) error {
	var params types.DownloadParams
	if err := c.QueryParser(&params); err != nil {
		return ErrBadRequest("invalid query")
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	path, err := h.reviewer.Download(params.Path)
	if err != nil {
		return err
	}
	return c.Download(path, filepath.Base(path))
}
