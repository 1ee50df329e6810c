// Package internal reads the reference corpus and cuts it into chunks.
package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"compliance-rag/extract"
	"compliance-rag/types"
)

// CorpusDocument is one readable reference document.
type CorpusDocument struct {
	Path string
	Rel  string // path relative to the corpus root, slash separated
	Text string
}

// ScanCorpus walks root in lexical order and extracts every supported file.
// Files that cannot be read are reported, not fatal.
func ScanCorpus(root string) ([]CorpusDocument, []types.SkippedFile, error) {
	var (
		docs    []CorpusDocument
		skipped []types.SkippedFile
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			skipped = append(skipped, types.SkippedFile{Path: path, Reason: err.Error()})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if !extract.Supported(path) {
			skipped = append(skipped, types.SkippedFile{Path: rel, Reason: "unsupported format"})
			return nil
		}

		text, exErr := extract.Extract(path, "")
		if exErr != nil {
			skipped = append(skipped, types.SkippedFile{Path: rel, Reason: exErr.Error()})
			return nil
		}
		body := text.Text()
		if strings.TrimSpace(body) == "" {
			skipped = append(skipped, types.SkippedFile{Path: rel, Reason: "no text"})
			return nil
		}

		docs = append(docs, CorpusDocument{Path: path, Rel: rel, Text: body})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("corpus directory %s does not exist", root)
		}
		return nil, nil, fmt.Errorf("scanning corpus %s: %w", root, err)
	}
	return docs, skipped, nil
}
