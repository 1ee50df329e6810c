// Package extract turns stored documents into ordered plain-text units.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"compliance-rag/types"
)

var mimeFormats = map[string]types.Format{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": types.FormatDOCX,
	"application/pdf": types.FormatPDF,
	"text/plain":      types.FormatText,
	"text/markdown":   types.FormatText,
}

var extFormats = map[string]types.Format{
	".docx": types.FormatDOCX,
	".pdf":  types.FormatPDF,
	".txt":  types.FormatText,
	".md":   types.FormatText,
}

// Detect resolves the format of a file. A recognised declared type wins over
// the extension; a generic or empty declared type defers to the extension.
func Detect(filename, declared string) (types.Format, error) {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if f, ok := mimeFormats[declared]; ok {
		return f, nil
	}
	if f, ok := extFormats["."+strings.TrimPrefix(declared, ".")]; ok && declared != "" {
		return f, nil
	}
	if declared != "" && declared != "application/octet-stream" {
		return "", types.NewStageError(types.ErrUnsupportedFormat, "extract", fmt.Sprintf("%s: %s", filepath.Base(filename), declared), nil)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if f, ok := extFormats[ext]; ok {
		return f, nil
	}
	if ext == "" {
		ext = "no extension"
	}
	return "", types.NewStageError(types.ErrUnsupportedFormat, "extract", fmt.Sprintf("%s: %s", filepath.Base(filename), ext), nil)
}

// Supported reports whether Extract can handle filename by extension alone.
func Supported(filename string) bool {
	_, err := Detect(filename, "")
	return err == nil
}

// Extract reads the file at path and returns its text units.
func Extract(path, declared string) (*types.ExtractedText, error) {
	format, err := Detect(path, declared)
	if err != nil {
		return nil, err
	}

	var units []string
	switch format {
	case types.FormatDOCX:
		units, err = readDOCX(path)
	case types.FormatPDF:
		units, err = readPDF(path)
	case types.FormatText:
		units, err = readText(path)
	}
	if err != nil {
		return nil, types.NewStageError(types.ErrExtractionFailed, "extract", filepath.Base(path), err)
	}

	return &types.ExtractedText{
		Source: path,
		Format: format,
		Units:  units,
	}, nil
}

func readText(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return []string{}, nil
	}
	return strings.Split(text, "\n"), nil
}
