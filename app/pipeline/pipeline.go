// Package pipeline runs one review request end to end: store the upload,
// extract it, retrieve reference context, ask for a verdict and write the
// annotated artifacts.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"compliance-rag/annotate"
	"compliance-rag/app/agent"
	"compliance-rag/app/retriever"
	"compliance-rag/config"
	"compliance-rag/extract"
	"compliance-rag/types"
)

type Pipeline struct {
	logger       *slog.Logger
	uploadsDir   string
	snippetChars int
	retrieveK    int
	retriever    *retriever.Retriever
	generator    *agent.Generator
	writer       *annotate.Writer
}

func New(cfg *config.Config, r *retriever.Retriever, g *agent.Generator) *Pipeline {
	return &Pipeline{
		logger:       slog.Default().With("component", "pipeline"),
		uploadsDir:   cfg.UploadsDir,
		snippetChars: cfg.SnippetChars,
		retrieveK:    cfg.RetrieveK,
		retriever:    r,
		generator:    g,
		writer:       annotate.NewWriter(cfg.OutputDir),
	}
}

// Review processes one uploaded document. An unsupported file is rejected
// before anything is written; a failure after the upload is stored leaves
// no review artifacts behind.
func (p *Pipeline) Review(ctx context.Context, filename string, data []byte) (*types.ReviewOutcome, error) {
	start := time.Now()
	name := filepath.Base(filename)
	if _, err := extract.Detect(name, ""); err != nil {
		return nil, err
	}

	stored, err := p.saveUpload(name, data)
	if err != nil {
		return nil, err
	}
	p.logger.Info("upload stored", "file", name, "path", stored, "bytes", len(data))

	text, err := extract.Extract(stored, "")
	if err != nil {
		return nil, err
	}

	snippet := firstRunes(text.Text(), p.snippetChars)
	refs, err := p.retriever.Retrieve(ctx, snippet, p.retrieveK)
	if err != nil {
		return nil, types.NewStageError(types.ErrRetrievalFailed, "retrieve", name, err)
	}

	result, err := p.generator.Generate(ctx, snippet, refs)
	if err != nil {
		return nil, err
	}

	doc, comments, err := annotate.Annotate(text.Units, result.Findings, result.Provenance)
	if err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(stored), filepath.Ext(stored))
	names, err := p.writer.Write(stem, doc, comments)
	if err != nil {
		return nil, err
	}

	p.logger.Info("review completed",
		"file", name,
		"provenance", result.Provenance,
		"comments", len(comments),
		"context_chunks", len(refs),
		"elapsed", time.Since(start),
	)
	return &types.ReviewOutcome{
		Analysis:     result.Raw,
		Provenance:   result.Provenance,
		ReviewedDocx: names.Document,
		CommentsJSON: names.Ledger,
		Comments:     comments,
	}, nil
}

// ReviewFile reviews a document already on the local filesystem.
func (p *Pipeline) ReviewFile(ctx context.Context, path string) (*types.ReviewOutcome, error) {
	if _, err := extract.Detect(path, ""); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewStageError(types.ErrNotFound, "upload", filepath.Base(path), err)
	}
	return p.Review(ctx, path, data)
}

// Download returns the path of a review artifact by the name Review reported.
func (p *Pipeline) Download(ref string) (string, error) {
	return p.writer.Resolve(ref)
}

func (p *Pipeline) saveUpload(name string, data []byte) (string, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	path := filepath.Join(p.uploadsDir, id+"_"+name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", types.NewStageError(types.ErrPersistFailed, "upload", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", types.NewStageError(types.ErrPersistFailed, "upload", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", types.NewStageError(types.ErrPersistFailed, "upload", name, err)
	}
	return path, nil
}

func firstRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
