package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-rag/annotate"
	"compliance-rag/app/agent"
	"compliance-rag/app/retriever"
	"compliance-rag/config"
	"compliance-rag/extract"
	"compliance-rag/loader/service"
	"compliance-rag/model"
	"compliance-rag/store"
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

type downEmbedder struct{}

func (downEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("dial tcp 127.0.0.1:11434: connection refused")
}

const contract = "Articles of Association\n" +
	"Disputes: the jurisdiction of the Dubai Courts applies.\n" +
	"Signed by the directors."

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = root
	cfg.CorpusDir = filepath.Join(root, "corpus")
	cfg.TemplatesDir = filepath.Join(root, "templates")
	cfg.UploadsDir = filepath.Join(root, "uploads")
	cfg.OutputDir = filepath.Join(root, "reviewed")
	cfg.VectorDir = filepath.Join(root, "vectors")
	cfg.EmbedProvider = "hash"
	cfg.EmbedDim = 64
	cfg.ChunkSize = 200
	cfg.ChunkOverlap = 20
	cfg.MaxPromptTokens = 0
	cfg.GenerationTimeout = time.Second
	require.NoError(t, cfg.EnsureDirectories())
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config, capability agent.Capability) *Pipeline {
	t.Helper()
	vs, err := store.NewSQLiteStore(cfg.VectorDir)
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })

	embedder := model.NewHashEmbedder(cfg.EmbedDim)
	entries, err := os.ReadDir(cfg.CorpusDir)
	require.NoError(t, err)
	if len(entries) > 0 {
		_, err := service.New(cfg, vs, embedder).Build(context.Background(), false)
		require.NoError(t, err)
	}
	return New(cfg, retriever.New(vs, embedder), agent.NewGenerator(cfg, capability))
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestReview_JurisdictionFallback(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CorpusDir, "courts.txt"),
		[]byte("The ADGM Courts have exclusive jurisdiction over disputes arising under the Companies Regulations."), 0o644))

	capability := &stubCapability{answer: "The governing jurisdiction should be ADGM."}
	p := newTestPipeline(t, cfg, capability)

	outcome, err := p.Review(context.Background(), "contract.txt", []byte(contract))
	require.NoError(t, err)

	assert.Equal(t, types.ProvenanceFallback, outcome.Provenance)
	assert.Equal(t, "The governing jurisdiction should be ADGM.", outcome.Analysis)
	require.Len(t, outcome.Comments, 1)
	c := outcome.Comments[0]
	assert.Equal(t, "jurisdiction", c.Original)
	assert.Equal(t, types.SeverityHigh, c.Severity)
	assert.Equal(t, 1, c.Unit)
	assert.Equal(t, "Disputes: the [!!jurisdiction!!] of the Dubai Courts applies.", c.Location)
	assert.Contains(t, c.Recommendation, "ADGM Courts")

	assert.Contains(t, capability.prompt, "courts.txt#0")
	assert.Contains(t, capability.prompt, "DOCUMENT:\n"+contract+"\n")

	assert.True(t, strings.HasSuffix(outcome.ReviewedDocx, "_contract_reviewed.docx"))
	assert.Equal(t, outcome.ReviewedDocx+".comments.json", outcome.CommentsJSON)
	assert.ElementsMatch(t, []string{outcome.ReviewedDocx, outcome.CommentsJSON}, dirNames(t, cfg.OutputDir))

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, outcome.ReviewedDocx))
	require.NoError(t, err)
	paras, err := extract.ParseDOCX(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, paras, 6)
	assert.Equal(t, "Articles of Association", paras[0])
	assert.Equal(t, "Disputes: the [!!jurisdiction!!] of the Dubai Courts applies.", paras[1])
	assert.Equal(t, "Signed by the directors.", paras[2])
	assert.Equal(t, "", paras[3])
	assert.Equal(t, annotate.TrailerTitle, paras[4])
	assert.True(t, strings.HasPrefix(paras[5], "ID: "+c.ID+" | Severity: High"), paras[5])
	assert.Contains(t, paras[5], "Issue: jurisdiction")

	raw, err := os.ReadFile(filepath.Join(cfg.OutputDir, outcome.CommentsJSON))
	require.NoError(t, err)
	var ledger []types.Comment
	require.NoError(t, json.Unmarshal(raw, &ledger))
	require.Len(t, ledger, 1)
	assert.Equal(t, "jurisdiction", ledger[0].Original)
	assert.Equal(t, types.SeverityHigh, ledger[0].Severity)
	assert.Equal(t, c.ID, ledger[0].ID)

	uploads := dirNames(t, cfg.UploadsDir)
	require.Len(t, uploads, 1)
	assert.Regexp(t, `^[0-9a-f]{32}_contract\.txt$`, uploads[0])

	path, err := p.Download(outcome.ReviewedDocx)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestReview_StructuredVerdict(t *testing.T) {
	cfg := testConfig(t)
	capability := &stubCapability{answer: `Here you go: {"findings": [{"anchor": "Dubai Courts", "comment": "Refer disputes to ADGM Courts.", "severity": "high"}]}`}
	p := newTestPipeline(t, cfg, capability)

	outcome, err := p.Review(context.Background(), "contract.txt", []byte(contract))
	require.NoError(t, err)

	assert.Equal(t, types.ProvenanceStructured, outcome.Provenance)
	require.Len(t, outcome.Comments, 1)
	assert.Equal(t, "Dubai Courts", outcome.Comments[0].Original)
	assert.Equal(t, "Refer disputes to ADGM Courts.", outcome.Comments[0].Recommendation)
	assert.Contains(t, capability.prompt, "(no reference material available)")
}

func TestReview_SnippetTruncated(t *testing.T) {
	cfg := testConfig(t)
	cfg.SnippetChars = 10
	capability := &stubCapability{answer: `{"findings": []}`}
	p := newTestPipeline(t, cfg, capability)

	outcome, err := p.Review(context.Background(), "contract.txt", []byte(contract))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(capability.prompt, "DOCUMENT:\nArticles o\n"))
	assert.Empty(t, outcome.Comments)
}

func TestReview_UnsupportedWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg, &stubCapability{})

	_, err := p.Review(context.Background(), "logo.png", []byte{0x89, 'P', 'N', 'G'})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUnsupportedFormat))

	assert.Empty(t, dirNames(t, cfg.UploadsDir))
	assert.Empty(t, dirNames(t, cfg.OutputDir))
}

func TestReview_TimeoutWritesNoArtifacts(t *testing.T) {
	cfg := testConfig(t)
	cfg.GenerationTimeout = 50 * time.Millisecond
	p := newTestPipeline(t, cfg, blockingCapability{})

	_, err := p.Review(context.Background(), "contract.txt", []byte(contract))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrGenerationTimeout))
	assert.Empty(t, dirNames(t, cfg.OutputDir))
}

func TestReview_CorruptDocument(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg, &stubCapability{})

	_, err := p.Review(context.Background(), "broken.docx", []byte("not a zip archive"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrExtractionFailed))
	assert.Empty(t, dirNames(t, cfg.OutputDir))
}

func TestReview_InvalidText(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg, &stubCapability{answer: `{"findings": []}`})

	_, err := p.Review(context.Background(), "notes.txt", []byte("bad \xff byte"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidDocument))
	assert.Empty(t, dirNames(t, cfg.OutputDir))
}

func TestReview_RetrievalFailure(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CorpusDir, "courts.txt"),
		[]byte("The ADGM Courts have exclusive jurisdiction over disputes."), 0o644))

	vs, err := store.NewSQLiteStore(cfg.VectorDir)
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })
	_, err = service.New(cfg, vs, model.NewHashEmbedder(cfg.EmbedDim)).Build(context.Background(), false)
	require.NoError(t, err)

	capability := &stubCapability{answer: "unused"}
	p := New(cfg, retriever.New(vs, downEmbedder{}), agent.NewGenerator(cfg, capability))

	_, err = p.Review(context.Background(), "contract.txt", []byte(contract))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRetrievalFailed)
	var se *types.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "retrieve", se.Stage)
	assert.Equal(t, "contract.txt", se.Subject)
	assert.False(t, se.InputError())
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, capability.prompt)
	assert.Empty(t, dirNames(t, cfg.OutputDir))
}

func TestReviewFile(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg, &stubCapability{answer: "jurisdiction"})

	src := filepath.Join(t.TempDir(), "memo.md")
	require.NoError(t, os.WriteFile(src, []byte("Court jurisdiction: onshore."), 0o644))

	outcome, err := p.ReviewFile(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, outcome.Comments, 1)
	assert.True(t, strings.HasSuffix(outcome.ReviewedDocx, "_memo_reviewed.docx"))

	_, err = p.ReviewFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestDownload_Unknown(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg, &stubCapability{})

	_, err := p.Download("nothing_reviewed.docx")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}
