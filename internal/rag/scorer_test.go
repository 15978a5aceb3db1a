package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/sermo/internal/models"
)

func makeDocument(name, content string, chunkSize int) *models.Document {
	return &models.Document{
		Name:    name,
		Content: content,
		Chunks:  NewChunker(chunkSize).Chunk(content),
	}
}

func TestScorer_Tokenize(t *testing.T) {
	scorer := NewScorer(ScorerConfig{})

	tests := []struct {
		name string
		text string
		want []string
		drop []string
	}{
		{
			name: "lowercases and splits punctuation",
			text: "What was the Q1 revenue, really?",
			want: []string{"what", "was", "the", "q1", "revenue", "really"},
		},
		{
			name: "drops short noise tokens",
			text: "a an of to revenue",
			want: []string{"revenue"},
			drop: []string{"a", "an", "of", "to"},
		},
		{
			name: "keeps numerics and date tokens",
			text: "12 q3 dec 2025 ok",
			want: []string{"12", "q3", "dec", "2025"},
			drop: []string{"ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := scorer.Tokenize(tt.text)
			for _, w := range tt.want {
				assert.True(t, tokens[w], "expected token %q", w)
			}
			for _, d := range tt.drop {
				assert.False(t, tokens[d], "expected token %q to be dropped", d)
			}
		})
	}
}

func TestScorer_SmallCorpusBoundary(t *testing.T) {
	scorer := NewScorer(ScorerConfig{SmallCorpusThreshold: 8000})

	under := []*models.Document{makeDocument("a", strings.Repeat("x", 7999), 1500)}
	atThreshold := []*models.Document{makeDocument("a", strings.Repeat("x", 8000), 1500)}

	assert.True(t, scorer.IsSmallCorpus(under))
	assert.False(t, scorer.IsSmallCorpus(atThreshold))
}

func TestScorer_RetrievalContext_SmallCorpus(t *testing.T) {
	scorer := NewScorer(ScorerConfig{})
	docs := []*models.Document{
		makeDocument("payslip.txt", "Gross salary 50000 per month.", 1500),
		makeDocument("notes.txt", "Meeting notes from January.", 1500),
	}

	got := scorer.RetrievalContext(docs, "anything at all", 3)

	assert.Contains(t, got, "=== Document: payslip.txt ===")
	assert.Contains(t, got, "=== Document: notes.txt ===")
	assert.Contains(t, got, "Gross salary 50000 per month.")
	assert.Contains(t, got, "Meeting notes from January.")
}

func TestScorer_Score_RanksByOverlap(t *testing.T) {
	scorer := NewScorer(ScorerConfig{})

	docs := []*models.Document{
		makeDocument("relevant", "quarterly revenue grew while operating expenses declined sharply", 1500),
		makeDocument("noise", "the weather yesterday featured scattered showers and light wind", 1500),
	}

	scored := scorer.Score(docs, "revenue and expenses this quarter", 1)
	require.Len(t, scored, 1)
	assert.Equal(t, "relevant", scored[0].Document.Name)
	assert.Greater(t, scored[0].Score, 0)
}

// A chunk matching a superset of another chunk's query tokens can never
// rank below it.
func TestScorer_Score_SupersetNeverRanksLower(t *testing.T) {
	scorer := NewScorer(ScorerConfig{})

	docs := []*models.Document{
		makeDocument("subset", "alpha beta filler words", 1500),
		makeDocument("superset", "alpha beta gamma filler words", 1500),
	}

	scored := scorer.Score(docs, "alpha beta gamma", 2)
	require.Len(t, scored, 2)
	assert.Equal(t, "superset", scored[0].Document.Name)
	assert.GreaterOrEqual(t, scored[0].Score, scored[1].Score)
}

func TestScorer_LargeCorpus_ScoredRetrieval(t *testing.T) {
	scorer := NewScorer(ScorerConfig{})

	filler := strings.Repeat("The committee reviewed staffing and facilities during the annual offsite meeting.\n\n", 120)
	withTax := makeDocument("filings", filler+"Q1 tax deducted was 5000", 1500)
	withoutTax := makeDocument("minutes", filler, 1500)
	docs := []*models.Document{withoutTax, withTax}

	require.Greater(t, len(withTax.Content), DefaultSmallCorpusThreshold)
	require.Greater(t, len(withoutTax.Content), DefaultSmallCorpusThreshold)
	require.False(t, scorer.IsSmallCorpus(docs))

	scored := scorer.Score(docs, "Q1 tax", 3)
	require.NotEmpty(t, scored)
	assert.Equal(t, "filings", scored[0].Document.Name)
	assert.Contains(t, scored[0].Chunk.Content, "Q1 tax deducted was 5000")
	assert.Greater(t, scored[0].Score, 0)

	got := scorer.RetrievalContext(docs, "Q1 tax", 3)
	assert.NotContains(t, got, "=== Document:")
	assert.Contains(t, got, "[filings, part")
	assert.Contains(t, got, "Q1 tax deducted was 5000")
}

func TestScorer_Score_FallbackWhenNothingMatches(t *testing.T) {
	scorer := NewScorer(ScorerConfig{})

	docs := []*models.Document{
		makeDocument("first", "alpha content here\n\nbeta content here\n\ngamma content here\n\ndelta content here", 10),
		makeDocument("second", "epsilon content here", 1500),
		makeDocument("third", "zeta content here", 1500),
	}

	scored := scorer.Score(docs, "zzzzzz qqqqqq", 5)

	// First fallbackDocuments documents contribute up to
	// fallbackChunksPerDocument chunks each; scores stay zero.
	require.NotEmpty(t, scored)
	assert.LessOrEqual(t, len(scored), fallbackDocuments*fallbackChunksPerDocument)
	for _, sc := range scored {
		assert.Zero(t, sc.Score)
		assert.NotEqual(t, "third", sc.Document.Name)
	}
}

func TestScorer_Score_EmptyInputs(t *testing.T) {
	scorer := NewScorer(ScorerConfig{})

	assert.Nil(t, scorer.Score(nil, "query", 3))
	assert.Nil(t, scorer.Score([]*models.Document{makeDocument("a", "text", 1500)}, "query", 0))
}

func TestScorer_KeywordExpansion(t *testing.T) {
	// "tax" in the query expands to tds/deducted/... so a chunk that never
	// mentions "tax" still matches.
	withExpansion := NewScorer(ScorerConfig{
		SmallCorpusThreshold: 1,
		KeywordExpansions:    DefaultKeywordExpansions(),
	})
	withoutExpansion := NewScorer(ScorerConfig{SmallCorpusThreshold: 1})

	docs := []*models.Document{
		makeDocument("form16", "TDS deducted quarterly from salary payments", 1500),
	}

	expanded := withExpansion.Score(docs, "how much tax", 3)
	require.Len(t, expanded, 1)
	assert.Greater(t, expanded[0].Score, 0)

	plain := withoutExpansion.Score(docs, "how much tax", 3)
	require.Len(t, plain, 1)
	assert.Zero(t, plain[0].Score, "without expansion this is a fallback hit")
}

func TestScorer_RetrievalContext_ChunkLabels(t *testing.T) {
	scorer := NewScorer(ScorerConfig{SmallCorpusThreshold: 1})
	docs := []*models.Document{
		makeDocument("report.txt", "Annual revenue summary for shareholders.", 1500),
	}

	got := scorer.RetrievalContext(docs, "revenue summary", 3)
	assert.Contains(t, got, "[report.txt, part 1]")
}

func TestScorer_RetrievalContext_EmptyCorpus(t *testing.T) {
	scorer := NewScorer(ScorerConfig{})
	assert.Equal(t, "", scorer.RetrievalContext(nil, "query", 3))
}
