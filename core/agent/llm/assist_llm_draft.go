package llm

import (
	"fmt"
	"strings"

	"assist_server/core/domain"
)

const draftSystemPrompt = `You are an email assistant drafting a reply for a support team.
Answer only from the numbered sources provided. Cite sources inline as [n].
If the sources do not answer the question, say so plainly instead of guessing.
When a source is marked as an approved answer, prefer it over document excerpts.
Output only the reply body.`

// maxSourceChars bounds each source body in the prompt.
const maxSourceChars = 2000

// BuildDraftPrompt renders the full (unredacted) payload into prompts.
// Source numbers are 1-based positions in payload.Sources.
func BuildDraftPrompt(payload *domain.CitationPayload, instructions string) (system, user string) {
	var b strings.Builder

	b.WriteString("Question:\n")
	b.WriteString(payload.Query)
	b.WriteString("\n\n")

	if len(payload.Sources) == 0 {
		b.WriteString("Sources: none found.\n")
	} else {
		b.WriteString("Sources:\n")
		for i, src := range payload.Sources {
			switch s := src.(type) {
			case *domain.CanonicalQASource:
				label := "canonical answer"
				if s.Status == domain.CanonicalQAStatusApproved {
					label = "approved answer"
				}
				fmt.Fprintf(&b, "[%d] (%s) Q: %s\nA: %s\n\n", i+1, label, s.Question, truncateBody(s.Answer, maxSourceChars))
			case *domain.DocChunkSource:
				body := s.Content
				if body == "" {
					body = s.Excerpt
				}
				fmt.Fprintf(&b, "[%d] (document excerpt) %s\n\n", i+1, truncateBody(strings.TrimSpace(body), maxSourceChars))
			}
		}
	}

	if instructions = strings.TrimSpace(instructions); instructions != "" {
		b.WriteString("Additional instructions:\n")
		b.WriteString(instructions)
		b.WriteString("\n")
	}

	return draftSystemPrompt, b.String()
}

func truncateBody(body string, maxLen int) string {
	r := []rune(body)
	if len(r) <= maxLen {
		return body
	}
	return string(r[:maxLen]) + "..."
}
