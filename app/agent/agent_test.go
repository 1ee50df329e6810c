package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-rag/config"
	"compliance-rag/types"
)

type stubCapability struct {
	answer string
	err    error
	prompt string
}

func (s *stubCapability) Generate(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.answer, s.err
}

type blockingCapability struct{}

func (blockingCapability) Generate(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MaxPromptTokens = 0
	cfg.GenerationTimeout = time.Second
	return cfg
}

func refs(contents ...string) []types.Chunk {
	out := make([]types.Chunk, len(contents))
	for i, c := range contents {
		out[i] = types.Chunk{Source: "regs.txt", Position: i, Content: c}
	}
	return out
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	chunks := refs("ADGM Courts have exclusive jurisdiction.", "Registered office in ADGM.")

	a := BuildPrompt("The parties submit to UAE courts.", chunks)
	b := BuildPrompt("The parties submit to UAE courts.", chunks)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "[1] regs.txt#0\nADGM Courts have exclusive jurisdiction.")
	assert.Contains(t, a, "[2] regs.txt#1\nRegistered office in ADGM.")
	assert.True(t, strings.HasSuffix(a, "DOCUMENT:\nThe parties submit to UAE courts.\n"))

	assert.Contains(t, BuildPrompt("x", nil), "(no reference material available)")
}

func TestGenerator_PromptRespectsTokenBudget(t *testing.T) {
	cfg := testConfig()
	base := EstimateTokens(BuildPrompt("snippet", nil))
	chunk := refs(strings.Repeat("a", 400))[0]
	per := EstimateTokens(renderChunk(0, chunk))
	cfg.MaxPromptTokens = base + per + per/2

	g := NewGenerator(cfg, &stubCapability{}).WithTokenCounter(EstimateTokens)
	prompt := g.Prompt("snippet", []types.Chunk{chunk, chunk, chunk})

	assert.Contains(t, prompt, "[1] regs.txt#0")
	assert.NotContains(t, prompt, "[2]")
}

func TestGenerator_Structured(t *testing.T) {
	capability := &stubCapability{answer: `Here you go:
{"findings": [{"anchor": "UAE Federal Courts", "comment": "Use ADGM Courts.", "severity": "high",
  "span": {"unit": 1, "start": 4, "end": 22}}]}`}

	res, err := NewGenerator(testConfig(), capability).Generate(context.Background(), "snippet", refs("ref"))
	require.NoError(t, err)
	assert.Equal(t, types.ProvenanceStructured, res.Provenance)
	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, "UAE Federal Courts", f.Anchor)
	assert.Equal(t, "Use ADGM Courts.", f.Recommendation)
	assert.Equal(t, types.SeverityHigh, f.Severity)
	assert.Equal(t, &types.SpanRef{Unit: 1, Start: 4, End: 22}, f.Span)
	assert.Contains(t, capability.prompt, "DOCUMENT:\nsnippet")
}

func TestGenerator_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.GenerationTimeout = 20 * time.Millisecond

	_, err := NewGenerator(cfg, blockingCapability{}).Generate(context.Background(), "jurisdiction", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrGenerationTimeout)
	assert.False(t, types.IsInputError(err))
}

func TestGenerator_CapabilityErrorFallsBackToSnippetScan(t *testing.T) {
	capability := &stubCapability{err: errors.New("connection refused")}

	res, err := NewGenerator(testConfig(), capability).Generate(context.Background(), "Governing law and Jurisdiction clause", nil)
	require.NoError(t, err)
	assert.Equal(t, types.ProvenanceFallback, res.Provenance)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "jurisdiction", res.Findings[0].Anchor)
	assert.Equal(t, types.SeverityHigh, res.Findings[0].Severity)
}

func TestGenerator_CancelledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGenerator(testConfig(), blockingCapability{}).Generate(ctx, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOllamaCapability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.Equal(t, "json", req.Format)
		_ = json.NewEncoder(w).Encode(GenerateResponse{Response: `{"findings": []}`})
	}))
	defer srv.Close()

	out, err := (&OllamaCapability{URL: srv.URL, Model: "llama3", Client: srv.Client()}).Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, `{"findings": []}`, out)
}

func TestOllamaCapability_Streamed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{\"response\":\"juris\"}\n{\"response\":\"diction\"}\n"))
	}))
	defer srv.Close()

	out, err := (&OllamaCapability{URL: srv.URL, Model: "m", Client: srv.Client()}).Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "jurisdiction", out)
}

func TestTGICapability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		w.Write([]byte(`[{"generated_text": "ok"}]`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.LLMProvider = "tgi"
	cfg.TGIURL = srv.URL + "/"
	capability, err := NewCapability(cfg)
	require.NoError(t, err)

	out, err := capability.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestCapability_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := (&OllamaCapability{URL: srv.URL, Model: "m", Client: srv.Client()}).Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestNewCapability_Unknown(t *testing.T) {
	cfg := testConfig()
	cfg.LLMProvider = "bard"
	_, err := NewCapability(cfg)
	assert.Error(t, err)
}
