// Package agent composes the review prompt, calls the language model and
// turns its answer into findings.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"compliance-rag/config"
	"compliance-rag/types"
)

type Generator struct {
	capability Capability
	rules      []config.FallbackRule
	timeout    time.Duration
	maxTokens  int
	counter    TokenCounter
	logger     *slog.Logger
}

func NewGenerator(cfg *config.Config, capability Capability) *Generator {
	return &Generator{
		capability: capability,
		rules:      cfg.FallbackRules,
		timeout:    cfg.GenerationTimeout,
		maxTokens:  cfg.MaxPromptTokens,
		logger:     slog.Default(),
	}
}

// WithTokenCounter replaces the tiktoken based counter.
func (g *Generator) WithTokenCounter(c TokenCounter) *Generator {
	g.counter = c
	return g
}

// Prompt builds the prompt for snippet, dropping trailing context chunks
// that do not fit in the token budget.
func (g *Generator) Prompt(snippet string, refs []types.Chunk) string {
	if g.maxTokens <= 0 || len(refs) == 0 {
		return BuildPrompt(snippet, refs)
	}
	count := g.counter
	if count == nil {
		count = TiktokenCounter()
	}
	budget := g.maxTokens - count(BuildPrompt(snippet, nil))
	kept := fitContext(refs, budget, count)
	if len(kept) < len(refs) {
		g.logger.Debug("context truncated to fit prompt budget", "kept", len(kept), "retrieved", len(refs), "max_tokens", g.maxTokens)
	}
	return BuildPrompt(snippet, kept)
}

// Generate asks the model for a verdict on snippet. Hitting the generation
// deadline is an error; any other model failure degrades to the keyword
// scan over the snippet itself.
func (g *Generator) Generate(ctx context.Context, snippet string, refs []types.Chunk) (*types.ReviewResult, error) {
	prompt := g.Prompt(snippet, refs)

	genCtx, cancel := ctx, context.CancelFunc(func() {})
	if g.timeout > 0 {
		genCtx, cancel = context.WithTimeout(ctx, g.timeout)
	}
	defer cancel()

	start := time.Now()
	raw, err := g.capability.Generate(genCtx, prompt)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			g.logger.Error("generation timed out", "timeout", g.timeout, "elapsed", elapsed)
			return nil, types.NewStageError(types.ErrGenerationTimeout, "generate", g.timeout.String(), err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.logger.Warn("generation failed, falling back to keyword scan", "err", err, "elapsed", elapsed)
		return &types.ReviewResult{
			Raw:        "",
			Provenance: types.ProvenanceFallback,
			Findings:   scanKeywords(snippet, g.rules),
		}, nil
	}

	result := ParseVerdict(raw, g.rules)
	g.logger.Info("verdict generated",
		"provenance", result.Provenance,
		"findings", len(result.Findings),
		"context_chunks", len(refs),
		"elapsed", elapsed,
	)
	return &result, nil
}
