// Package mcp exposes the review pipeline and index builder as MCP tools.
package mcp

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"compliance-rag/types"
)

const Version = "0.1.0"

var (
	ErrMissingReviewer = errors.New("mcp: reviewer is required")
	ErrMissingBuilder  = errors.New("mcp: index builder is required")
)

type Reviewer interface {
	ReviewFile(ctx context.Context, path string) (*types.ReviewOutcome, error)
}

type IndexBuilder interface {
	Build(ctx context.Context, refresh bool) (*types.BuildResult, error)
}

type Ports struct {
	Reviewer Reviewer
	Builder  IndexBuilder
}

func (p *Ports) Validate() error {
	if p.Reviewer == nil {
		return ErrMissingReviewer
	}
	if p.Builder == nil {
		return ErrMissingBuilder
	}
	return nil
}

type Server struct {
	ports  *Ports
	server *mcp.Server
}

func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, err
	}
	impl := &mcp.Implementation{
		Name:    "compliance-rag",
		Version: Version,
	}
	s := &Server{
		ports:  ports,
		server: mcp.NewServer(impl, nil),
	}
	s.registerTools()
	return s, nil
}

// Handler serves the streamable HTTP transport. Sessions are not kept since
// every tool call is self-contained.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{Stateless: true})
}
