package extract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-rag/types"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		declared string
		want     types.Format
		wantErr  bool
	}{
		{"docx by extension", "Articles.DOCX", "", types.FormatDOCX, false},
		{"pdf by extension", "guide.pdf", "", types.FormatPDF, false},
		{"markdown is text", "notes.md", "", types.FormatText, false},
		{"octet stream defers to extension", "a.docx", "application/octet-stream", types.FormatDOCX, false},
		{"declared mime wins", "upload.bin", "application/pdf", types.FormatPDF, false},
		{"declared mime with params", "upload", "text/plain; charset=utf-8", types.FormatText, false},
		{"unknown extension", "image.png", "", "", true},
		{"no extension", "README", "", "", true},
		{"unknown declared type", "a.docx", "image/png", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.filename, tt.declared)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, types.ErrUnsupportedFormat)
				assert.True(t, types.IsInputError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("x.docx"))
	assert.True(t, Supported("x.txt"))
	assert.False(t, Supported("x.exe"))
}

func TestExtract_Text(t *testing.T) {
	path := writeFile(t, "clause.txt", []byte("Governing law\r\nThe courts of England.\n"))

	got, err := Extract(path, "")
	require.NoError(t, err)
	assert.Equal(t, types.FormatText, got.Format)
	assert.Equal(t, []string{"Governing law", "The courts of England."}, got.Units)
	assert.Equal(t, "Governing law\nThe courts of England.", got.Text())
}

func TestExtract_EmptyText(t *testing.T) {
	path := writeFile(t, "empty.txt", nil)

	got, err := Extract(path, "")
	require.NoError(t, err)
	assert.Empty(t, got.Units)
}

func TestExtract_Unsupported(t *testing.T) {
	path := writeFile(t, "photo.png", []byte{0x89, 'P', 'N', 'G'})

	_, err := Extract(path, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "photo.png")
}

func TestExtract_CorruptFiles(t *testing.T) {
	for _, name := range []string{"broken.docx", "broken.pdf"} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, name, []byte("this is not what the extension claims"))

			_, err := Extract(path, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrExtractionFailed)

			var stageErr *types.StageError
			require.True(t, errors.As(err, &stageErr))
			assert.Equal(t, "extract", stageErr.Stage)
			assert.Equal(t, name, stageErr.Subject)
		})
	}
}

func TestExtract_MissingFile(t *testing.T) {
	_, err := Extract(filepath.Join(t.TempDir(), "gone.txt"), "")
	assert.ErrorIs(t, err, types.ErrExtractionFailed)
}
