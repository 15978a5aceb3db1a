package rag

import (
	"fmt"
	"strings"

	"github.com/ternarybob/sermo/internal/models"
)

// DefaultSessionDocumentCap bounds the characters taken from a
// session-attached document before it is injected into the prompt.
const DefaultSessionDocumentCap = 50000

// Assembler merges the available context inputs into one block for the
// prompt's system section. Ordering is deliberate: the material the user
// attached explicitly outranks background retrieval, which outranks web
// results. Assemble is a pure function of its inputs.
type Assembler struct {
	sessionDocumentCap int
}

// NewAssembler creates an assembler. A non-positive cap falls back to
// DefaultSessionDocumentCap.
func NewAssembler(sessionDocumentCap int) *Assembler {
	if sessionDocumentCap <= 0 {
		sessionDocumentCap = DefaultSessionDocumentCap
	}
	return &Assembler{sessionDocumentCap: sessionDocumentCap}
}

// AssemblyInput carries the optional context sources for one query
type AssemblyInput struct {
	SessionDocumentName string
	SessionDocument     string // raw attached text, not chunked
	KnowledgeContext    string // output of Engine.GetContext
	WebResults          []models.WebSearchResult
}

// Assemble produces the combined context block, or an empty string when no
// input is present. Callers targeting a fixed model context window should
// apply an outer cap sized to the window minus the generation budget.
func (a *Assembler) Assemble(input AssemblyInput) string {
	var sections []string

	if doc := strings.TrimSpace(input.SessionDocument); doc != "" {
		if len(doc) > a.sessionDocumentCap {
			doc = doc[:a.sessionDocumentCap]
		}
		name := input.SessionDocumentName
		if name == "" {
			name = "attached"
		}
		sections = append(sections, fmt.Sprintf("## Attached Document: %s\n%s", name, doc))
	}

	if kb := strings.TrimSpace(input.KnowledgeContext); kb != "" {
		sections = append(sections, "## Knowledge Base Context\n"+kb)
	}

	if len(input.WebResults) > 0 {
		var builder strings.Builder
		builder.WriteString("## Web Search Results\n")
		for i, result := range input.WebResults {
			if i > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(fmt.Sprintf("%d. %s (%s)\n%s\n", i+1, result.Title, result.URL, result.Snippet))
		}
		sections = append(sections, strings.TrimRight(builder.String(), "\n"))
	}

	return strings.Join(sections, "\n\n")
}
