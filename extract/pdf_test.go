package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentStreamText(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   []string
	}{
		{
			name:   "lines from Td and TJ kerning",
			stream: "BT /F1 12 Tf 72 712 Td (Governing law and jurisdiction) Tj 0 -14 Td [(Hello) -250 (World)] TJ ET",
			want:   []string{"Governing law and jurisdiction", "Hello World"},
		},
		{
			name:   "escapes and octal",
			stream: `BT (a\(b\)c \101) Tj ET`,
			want:   []string{"a(b)c A"},
		},
		{
			name:   "nested parentheses",
			stream: "BT (clause (a) applies) Tj ET",
			want:   []string{"clause (a) applies"},
		},
		{
			name:   "hex string",
			stream: "BT <414447 4D> Tj ET",
			want:   []string{"ADGM"},
		},
		{
			name:   "utf16 hex string",
			stream: "BT <FEFF00410042> Tj ET",
			want:   []string{"AB"},
		},
		{
			name:   "small kerning does not split words",
			stream: "BT [(Juris) -20 (diction)] TJ ET",
			want:   []string{"Jurisdiction"},
		},
		{
			name:   "T star and quote start new lines",
			stream: "BT (one) Tj T* (two) Tj (three) ' ET",
			want:   []string{"one", "two", "three"},
		},
		{
			name:   "comments and graphics ignored",
			stream: "% header\nq 1 0 0 1 0 0 cm /Im1 Do Q BT (text) Tj ET",
			want:   []string{"text"},
		},
		{
			name:   "inline image skipped",
			stream: "BI /W 2 /H 2 /BPC 8 ID \x00\x01(\xff EI BT (after) Tj ET",
			want:   []string{"after"},
		},
		{
			name:   "empty",
			stream: "",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, contentStreamText([]byte(tt.stream)))
		})
	}
}

func TestDecodePDFString(t *testing.T) {
	assert.Equal(t, "café", decodePDFString([]byte{'c', 'a', 'f', 0xE9}))
	assert.Equal(t, "", decodePDFString(nil))
}
