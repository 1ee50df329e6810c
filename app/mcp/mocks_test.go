package mcp

import (
	"context"

	"compliance-rag/types"
)

type mockReviewer struct {
	outcome *types.ReviewOutcome
	err     error
	path    string
}

func (m *mockReviewer) ReviewFile(_ context.Context, path string) (*types.ReviewOutcome, error) {
	m.path = path
	return m.outcome, m.err
}

type mockBuilder struct {
	result  *types.BuildResult
	err     error
	refresh bool
}

func (m *mockBuilder) Build(_ context.Context, refresh bool) (*types.BuildResult, error) {
	m.refresh = refresh
	return m.result, m.err
}
