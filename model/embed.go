// Package model talks to embedding backends.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"compliance-rag/config"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// StatusError is a non-2xx answer from an HTTP embedding backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embedding backend returned status %d: %s", e.Code, e.Body)
}

// NewEmbedder builds the embedder selected by cfg.EmbedProvider, wrapped with
// retries for the network backed ones.
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	switch cfg.EmbedProvider {
	case "ollama":
		return NewRetrying(NewOllamaEmbedder(cfg.EmbedURL, cfg.EmbedModel).WithRateLimit(cfg.EmbedRPS)), nil
	case "openai":
		e, err := NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbedModel, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		return NewRetrying(e), nil
	case "hash":
		return NewHashEmbedder(cfg.EmbedDim), nil
	}
	return nil, fmt.Errorf("unknown embed provider %q", cfg.EmbedProvider)
}

// Retrying retries transient embedding failures with exponential backoff.
type Retrying struct {
	next       Embedder
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

func NewRetrying(next Embedder) *Retrying {
	return &Retrying{
		next: next,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
		logger: slog.Default(),
	}
}

func (r *Retrying) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	attempt := 0

	operation := func() error {
		attempt++
		vecs, err := r.next.Embed(ctx, texts)
		if err != nil {
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			r.logger.Warn("embedding failed, retrying", "attempt", attempt, "err", err)
			return err
		}
		out = vecs
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(r.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

// isTransient treats rate limits, server errors and transport failures as
// retryable. Client errors and cancellation are not.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == 429 || statusErr.Code >= 500
	}
	if code, ok := openAIStatus(err); ok {
		return code == 429 || code >= 500
	}
	return !errors.Is(err, errMismatchedCount)
}

var errMismatchedCount = errors.New("embedding count does not match input count")
