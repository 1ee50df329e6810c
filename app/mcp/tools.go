package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"compliance-rag/types"
)

type ReviewDocumentOutput struct {
	Analysis     string          `json:"analysis"`
	Provenance   string          `json:"provenance"`
	ReviewedDocx string          `json:"reviewed_docx"`
	CommentsJSON string          `json:"comments_json"`
	Comments     []CommentOutput `json:"comments"`
}

type CommentOutput struct {
	ID             string `json:"id"`
	Location       string `json:"location"`
	Original       string `json:"original"`
	Recommendation string `json:"comment"`
	Severity       string `json:"severity"`
}

type RebuildIndexInput struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"drop the existing index and rebuild it from the corpus"`
}

type RebuildIndexOutput struct {
	Rebuilt   bool     `json:"rebuilt"`
	Documents int      `json:"documents"`
	Chunks    int      `json:"chunks"`
	Skipped   []string `json:"skipped,omitempty"`
	Duration  string   `json:"duration"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "review_document",
		Description: "Review a corporate document against the ADGM reference corpus. Writes an annotated copy and a JSON comment ledger, and returns the comments.",
	}, s.handleReviewDocument)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "rebuild_index",
		Description: "Build the reference index from the corpus directory. Without refresh an existing index is kept.",
	}, s.handleRebuildIndex)
}

func (s *Server) handleReviewDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input types.ReviewDocumentParams,
) (*mcp.CallToolResult, ReviewDocumentOutput, error) {
	if errs := types.Validate(&input); len(errs) > 0 {
		return nil, ReviewDocumentOutput{}, fmt.Errorf("invalid input: %s", formatErrors(errs))
	}

	outcome, err := s.ports.Reviewer.ReviewFile(ctx, input.Path)
	if err != nil {
		return nil, ReviewDocumentOutput{}, err
	}

	out := ReviewDocumentOutput{
		Analysis:     outcome.Analysis,
		Provenance:   string(outcome.Provenance),
		ReviewedDocx: outcome.ReviewedDocx,
		CommentsJSON: outcome.CommentsJSON,
		Comments:     make([]CommentOutput, len(outcome.Comments)),
	}
	for i, c := range outcome.Comments {
		out.Comments[i] = CommentOutput{
			ID:             c.ID,
			Location:       c.Location,
			Original:       c.Original,
			Recommendation: c.Recommendation,
			Severity:       c.Severity.String(),
		}
	}
	return nil, out, nil
}

func (s *Server) handleRebuildIndex(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RebuildIndexInput,
) (*mcp.CallToolResult, RebuildIndexOutput, error) {
	res, err := s.ports.Builder.Build(ctx, input.Refresh)
	if err != nil {
		return nil, RebuildIndexOutput{}, err
	}

	out := RebuildIndexOutput{
		Rebuilt:   res.Rebuilt,
		Documents: res.Documents,
		Chunks:    res.Chunks,
		Duration:  res.Duration.String(),
	}
	for _, sk := range res.Skipped {
		out.Skipped = append(out.Skipped, sk.Path+": "+sk.Reason)
	}
	return nil, out, nil
}

func formatErrors(errs map[string]string) string {
	parts := make([]string, 0, len(errs))
	for field, msg := range errs {
		parts = append(parts, field+" "+msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
