package agent

import (
	"fmt"
	"strings"

	"compliance-rag/types"
)

const systemPrompt = `You are a compliance reviewer for corporate documents submitted to the Abu Dhabi Global Market (ADGM) registration authority.
Compare the DOCUMENT with the REFERENCE excerpts and report every compliance issue you find.`

const answerFormat = `Respond with JSON only, in exactly this shape:
{"findings": [{"anchor": "<text copied verbatim from the DOCUMENT>", "comment": "<the issue and how to fix it>", "severity": "Low|Medium|High"}]}
Each anchor must be a short exact quote from the DOCUMENT. Return {"findings": []} when there are no issues.`

func renderChunk(i int, c types.Chunk) string {
	return fmt.Sprintf("[%d] %s#%d\n%s\n", i+1, c.Source, c.Position, c.Content)
}

// BuildPrompt renders the review prompt. The output depends only on its
// arguments.
func BuildPrompt(snippet string, refs []types.Chunk) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	b.WriteString(answerFormat)
	b.WriteString("\n\nREFERENCE:\n")
	if len(refs) == 0 {
		b.WriteString("(no reference material available)\n")
	}
	for i, c := range refs {
		b.WriteString(renderChunk(i, c))
	}
	b.WriteString("\nDOCUMENT:\n")
	b.WriteString(snippet)
	b.WriteString("\n")
	return b.String()
}
