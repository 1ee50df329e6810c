// Package annotate marks findings inside document text and keeps the
// matching comment ledger.
package annotate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"compliance-rag/types"
)

const (
	markOpen  = "[!!"
	markClose = "!!]"

	locationRunes = 120

	TrailerTitle = "=== REVIEW COMMENTS ==="
	trailerRule  = "----------------------------------------"
)

// newCommentID is swapped in tests.
var newCommentID = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Mark wraps anchor in the in-place review marker.
func Mark(anchor string) string {
	return markOpen + anchor + markClose
}

// Annotate walks units in order and, for each unit, applies findings in the
// order given. Every marked occurrence produces one comment, so the ledger
// follows document order. Units no finding touches are returned unchanged.
func Annotate(units []string, findings []types.Finding, provenance types.Provenance) (*types.AnnotatedDocument, []types.Comment, error) {
	for i, u := range units {
		if !utf8.ValidString(u) {
			return nil, nil, types.NewStageError(types.ErrInvalidDocument, "annotate", fmt.Sprintf("unit %d", i), fmt.Errorf("text is not valid UTF-8"))
		}
	}

	spans := make([]*types.SpanRef, len(findings))
	for i, f := range findings {
		if spanMatches(units, f) {
			spans[i] = f.Span
		}
	}

	out := make([]string, len(units))
	comments := []types.Comment{}
	for i, unit := range units {
		ed := &unitEditor{text: unit}
		for fi, f := range findings {
			if strings.TrimSpace(f.Anchor) == "" {
				continue
			}

			var n int
			if span := spans[fi]; span != nil {
				if span.Unit != i {
					continue
				}
				if ed.markSpan(span.Start, span.End, f.Anchor) {
					n = 1
				} else {
					n = ed.markAll(f.Anchor)
				}
			} else {
				n = ed.markAll(f.Anchor)
			}

			for range n {
				comments = append(comments, types.Comment{
					ID:             newCommentID(),
					Unit:           i,
					Location:       truncateRunes(ed.text, locationRunes),
					Original:       f.Anchor,
					Recommendation: f.Recommendation,
					Severity:       f.Severity,
					Provenance:     provenance,
				})
			}
		}
		out[i] = ed.text
	}

	return &types.AnnotatedDocument{Units: out, Trailer: Trailer(comments)}, comments, nil
}

// Trailer renders the review section appended after the document body.
func Trailer(comments []types.Comment) []types.TrailerBlock {
	blocks := make([]types.TrailerBlock, 0, len(comments))
	for _, c := range comments {
		blocks = append(blocks, types.TrailerBlock{
			Header: fmt.Sprintf("ID: %s | Severity: %s", c.ID, c.Severity),
			Lines: []string{
				"Location snippet: " + c.Location,
				"Issue: " + c.Original,
				"Recommendation: " + c.Recommendation,
				trailerRule,
			},
		})
	}
	return blocks
}

// spanMatches reports whether f.Span addresses exactly f.Anchor in the
// original units.
func spanMatches(units []string, f types.Finding) bool {
	s := f.Span
	if s == nil || s.Unit < 0 || s.Unit >= len(units) {
		return false
	}
	text := units[s.Unit]
	if s.Start < 0 || s.End <= s.Start || s.End > len(text) {
		return false
	}
	return text[s.Start:s.End] == f.Anchor
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

type insertion struct {
	at, n int
}

// unitEditor applies markers to one unit and remembers where it inserted
// them, so byte offsets into the original unit can be followed.
type unitEditor struct {
	text    string
	inserts []insertion
}

func (e *unitEditor) mapPos(pos int, isEnd bool) int {
	for _, in := range e.inserts {
		if in.at < pos || (!isEnd && in.at == pos) {
			pos += in.n
		}
	}
	return pos
}

// markSpan marks the original byte range [start, end) if it still holds
// anchor in the current text.
func (e *unitEditor) markSpan(start, end int, anchor string) bool {
	s, t := e.mapPos(start, false), e.mapPos(end, true)
	if s < 0 || t > len(e.text) || s >= t || e.text[s:t] != anchor {
		return false
	}
	e.text = e.text[:s] + Mark(anchor) + e.text[t:]
	e.inserts = append(e.inserts, insertion{s, len(markOpen)}, insertion{t + len(markOpen), len(markClose)})
	return true
}

// markAll marks every non-overlapping occurrence of anchor, left to right,
// and returns how many it marked.
func (e *unitEditor) markAll(anchor string) int {
	var (
		b     strings.Builder
		count int
		from  int
	)
	for {
		idx := strings.Index(e.text[from:], anchor)
		if idx < 0 {
			break
		}
		at := from + idx
		b.WriteString(e.text[from:at])

		shift := count * (len(markOpen) + len(markClose))
		e.inserts = append(e.inserts,
			insertion{at + shift, len(markOpen)},
			insertion{at + shift + len(markOpen) + len(anchor), len(markClose)},
		)
		b.WriteString(Mark(anchor))

		from = at + len(anchor)
		count++
	}
	if count == 0 {
		return 0
	}
	b.WriteString(e.text[from:])
	e.text = b.String()
	return count
}
