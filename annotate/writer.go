package annotate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"compliance-rag/types"
)

const (
	reviewedSuffix = "_reviewed.docx"
	ledgerSuffix   = ".comments.json"
)

// Artifacts names the two files written for one review, relative to the
// writer's directory.
type Artifacts struct {
	Document string
	Ledger   string
}

// Writer publishes reviewed documents and their ledgers into one directory.
// Either both files of a review appear or neither does, and existing files
// are never replaced.
type Writer struct {
	dir    string
	logger *slog.Logger
}

func NewWriter(dir string) *Writer {
	return &Writer{
		dir:    dir,
		logger: slog.Default().With("component", "annotate"),
	}
}

func (w *Writer) Dir() string { return w.dir }

// ArtifactNames returns the document and ledger names for an upload stem.
func ArtifactNames(stem string) Artifacts {
	doc := stem + reviewedSuffix
	return Artifacts{Document: doc, Ledger: doc + ledgerSuffix}
}

func (w *Writer) Write(stem string, doc *types.AnnotatedDocument, comments []types.Comment) (*Artifacts, error) {
	names := ArtifactNames(stem)
	fail := func(err error) (*Artifacts, error) {
		return nil, types.NewStageError(types.ErrPersistFailed, "persist", names.Document, err)
	}

	var docBuf bytes.Buffer
	if err := RenderDOCX(&docBuf, doc); err != nil {
		return fail(err)
	}
	if comments == nil {
		comments = []types.Comment{}
	}
	ledger, err := json.MarshalIndent(comments, "", "  ")
	if err != nil {
		return fail(fmt.Errorf("encode ledger: %w", err))
	}

	docTmp, err := w.writeTemp(docBuf.Bytes())
	if err != nil {
		return fail(err)
	}
	defer os.Remove(docTmp)
	ledgerTmp, err := w.writeTemp(ledger)
	if err != nil {
		return fail(err)
	}
	defer os.Remove(ledgerTmp)

	docPath := filepath.Join(w.dir, names.Document)
	ledgerPath := filepath.Join(w.dir, names.Ledger)
	// os.Link fails on an existing target, so nothing is overwritten.
	if err := os.Link(docTmp, docPath); err != nil {
		return fail(fmt.Errorf("publish document: %w", err))
	}
	if err := os.Link(ledgerTmp, ledgerPath); err != nil {
		if rmErr := os.Remove(docPath); rmErr != nil {
			w.logger.Error("failed to roll back reviewed document", "path", docPath, "error", rmErr)
		}
		return fail(fmt.Errorf("publish ledger: %w", err))
	}

	w.logger.Info("review artifacts written", "document", names.Document, "comments", len(comments))
	return &names, nil
}

func (w *Writer) writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp(w.dir, ".pending-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return name, nil
}

// Resolve maps an artifact name returned by Write to its path. Names that
// leave the directory or point at nothing are ErrNotFound.
func (w *Writer) Resolve(ref string) (string, error) {
	notFound := types.NewStageError(types.ErrNotFound, "download", ref, nil)
	name := filepath.Base(ref)
	if ref == "" || name != ref || strings.HasPrefix(name, ".") {
		return "", notFound
	}
	path := filepath.Join(w.dir, name)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return "", notFound
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", name, err)
	}
	return path, nil
}
