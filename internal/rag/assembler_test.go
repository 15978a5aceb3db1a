package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/sermo/internal/models"
)

func TestAssembler_Empty(t *testing.T) {
	assembler := NewAssembler(0)
	assert.Equal(t, "", assembler.Assemble(AssemblyInput{}))
	assert.Equal(t, "", assembler.Assemble(AssemblyInput{SessionDocument: "   \n"}))
}

func TestAssembler_SectionOrdering(t *testing.T) {
	assembler := NewAssembler(0)

	got := assembler.Assemble(AssemblyInput{
		SessionDocumentName: "contract.pdf",
		SessionDocument:     "Full contract text.",
		KnowledgeContext:    "[report.txt, part 1]\nRetrieved chunk.",
		WebResults: []models.WebSearchResult{
			{Title: "Result One", URL: "https://example.com/1", Snippet: "first snippet"},
			{Title: "Result Two", URL: "https://example.com/2", Snippet: "second snippet"},
		},
	})

	attached := strings.Index(got, "## Attached Document: contract.pdf")
	knowledge := strings.Index(got, "## Knowledge Base Context")
	web := strings.Index(got, "## Web Search Results")

	require.GreaterOrEqual(t, attached, 0)
	require.Greater(t, knowledge, attached)
	require.Greater(t, web, knowledge)

	assert.Contains(t, got, "1. Result One (https://example.com/1)\nfirst snippet")
	assert.Contains(t, got, "2. Result Two (https://example.com/2)\nsecond snippet")
}

func TestAssembler_SessionDocumentCap(t *testing.T) {
	assembler := NewAssembler(10)

	got := assembler.Assemble(AssemblyInput{
		SessionDocument: strings.Repeat("a", 100),
	})

	assert.Contains(t, got, "## Attached Document: attached")
	assert.Contains(t, got, strings.Repeat("a", 10))
	assert.NotContains(t, got, strings.Repeat("a", 11))
}

func TestAssembler_SingleSection(t *testing.T) {
	assembler := NewAssembler(0)

	got := assembler.Assemble(AssemblyInput{KnowledgeContext: "some context"})
	assert.Equal(t, "## Knowledge Base Context\nsome context", got)
}
