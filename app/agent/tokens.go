package agent

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"compliance-rag/types"
)

// TokenCounter reports the token length of a piece of prompt text.
type TokenCounter func(string) int

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// TiktokenCounter counts with the cl100k encoding. When the encoding cannot
// be loaded it falls back to EstimateTokens.
func TiktokenCounter() TokenCounter {
	encOnce.Do(func() {
		e, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
		if err != nil {
			slog.Warn("tiktoken unavailable, estimating prompt tokens", "err", err)
			return
		}
		enc = e
	})
	if enc == nil {
		return EstimateTokens
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}
}

// EstimateTokens assumes roughly four characters per token.
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// fitContext keeps the leading chunks whose rendered size fits in budget.
// A budget of zero or less keeps nothing.
func fitContext(chunks []types.Chunk, budget int, count TokenCounter) []types.Chunk {
	used := 0
	for i, c := range chunks {
		used += count(renderChunk(i, c))
		if used > budget {
			return chunks[:i]
		}
	}
	return chunks
}
