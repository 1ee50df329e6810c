package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Format string

const (
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
	FormatText Format = "txt"
)

// Document is an uploaded file as stored on disk.
type Document struct {
	ID         uuid.UUID
	Filename   string // original filename as uploaded
	Path       string // stored path, <id>_<filename>
	Format     Format
	UploadedAt time.Time
}

// ExtractedText holds the text units (paragraphs) of a document in order.
type ExtractedText struct {
	Source string
	Format Format
	Units  []string
}

func (t *ExtractedText) Text() string {
	return strings.Join(t.Units, "\n")
}

// Chunk is a slice of a reference document used for embedding and retrieval.
type Chunk struct {
	ID        uuid.UUID
	Source    string // corpus-relative path of the source document
	Position  int    // index of the chunk inside its source
	Seq       int64  // global insertion order, used to break score ties
	Content   string
	Embedding []float32
	Score     float64
}

type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "Low"
	case SeverityHigh:
		return "High"
	default:
		return "Medium"
	}
}

// ParseSeverity is lenient: anything it does not recognise is Medium.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow
	case "high", "critical":
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	*s = ParseSeverity(string(b))
	return nil
}

// SpanRef pins a finding to a byte range of one text unit.
type SpanRef struct {
	Unit  int `json:"unit"`
	Start int `json:"start"`
	End   int `json:"end"`
}

type Finding struct {
	Anchor         string
	Span           *SpanRef
	Recommendation string
	Severity       Severity
}

type Provenance string

const (
	ProvenanceStructured Provenance = "structured"
	ProvenanceFallback   Provenance = "fallback"
)

// ReviewResult is the parsed verdict for one request.
type ReviewResult struct {
	Raw        string
	Provenance Provenance
	Findings   []Finding
}

// Comment is one ledger entry. The JSON form is the ledger side-file format.
type Comment struct {
	ID             string     `json:"id"`
	Unit           int        `json:"unit"`
	Location       string     `json:"location"`
	Original       string     `json:"original"`
	Recommendation string     `json:"comment"`
	Severity       Severity   `json:"severity"`
	Provenance     Provenance `json:"provenance"`
}

// AnnotatedDocument is the marked-up text units followed by the review trailer.
type AnnotatedDocument struct {
	Units   []string
	Trailer []TrailerBlock
}

// TrailerBlock is the rendering of one comment at the end of the document.
type TrailerBlock struct {
	Header string
	Lines  []string
}

type ReviewOutcome struct {
	Analysis     string     `json:"analysis"`
	Provenance   Provenance `json:"provenance"`
	ReviewedDocx string     `json:"reviewed_docx"`
	CommentsJSON string     `json:"comments_json"`
	Comments     []Comment  `json:"comments"`
}

type BuildResult struct {
	Rebuilt   bool          `json:"rebuilt"`
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Skipped   []SkippedFile `json:"skipped,omitempty"`
	Duration  time.Duration `json:"duration"`
}

type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}
