package rag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/sermo/internal/models"
)

const (
	// DefaultSmallCorpusThreshold is the total corpus size in characters
	// below which scoring is skipped and the full corpus returned. Full
	// inclusion beats lossy retrieval for small document sets.
	DefaultSmallCorpusThreshold = 8000

	// fallbackChunksPerDocument and fallbackDocuments bound the
	// zero-score fallback: the model always receives something.
	fallbackChunksPerDocument = 3
	fallbackDocuments         = 2
)

// tokenDelimiters are the characters a query or chunk is split on, in
// addition to whitespace.
const tokenDelimiters = ".,?!"

// keepShortTokens whitelists short tokens that carry high retrieval value
// in financial and tabular documents: quarter markers, month
// abbreviations and recent years.
var keepShortTokens = map[string]bool{
	"q1": true, "q2": true, "q3": true, "q4": true,
	"jan": true, "feb": true, "mar": true, "apr": true,
	"may": true, "jun": true, "jul": true, "aug": true,
	"sep": true, "oct": true, "nov": true, "dec": true,
	"2024": true, "2025": true, "2026": true,
}

// DefaultKeywordExpansions maps trigger substrings to keyword sets that are
// unioned into the query token set before scoring. Tuned for tax and
// payroll documents; replace via ScorerConfig for other domains.
func DefaultKeywordExpansions() map[string][]string {
	return map[string][]string{
		"tax":       {"tds", "deducted", "deduction", "taxable", "income"},
		"tds":       {"tax", "deducted", "quarterly", "salary"},
		"quarter":   {"q1", "q2", "q3", "q4", "quarterly"},
		"salary":    {"income", "gross", "net", "pay", "earnings"},
		"income":    {"salary", "gross", "taxable", "earnings"},
		"deduction": {"section", "exemption", "deducted", "80c"},
		"section":   {"deduction", "exemption"},
	}
}

// ScorerConfig configures the relevance scorer
type ScorerConfig struct {
	SmallCorpusThreshold int
	KeywordExpansions    map[string][]string // nil disables expansion
}

// Scorer ranks chunks against a query by keyword overlap. Scoring is a
// plain set-intersection count, deliberately not TF-IDF and not normalized
// by chunk length.
type Scorer struct {
	smallCorpusThreshold int
	expansions           map[string][]string
}

// NewScorer creates a scorer from config. Zero-value fields take defaults.
func NewScorer(cfg ScorerConfig) *Scorer {
	threshold := cfg.SmallCorpusThreshold
	if threshold <= 0 {
		threshold = DefaultSmallCorpusThreshold
	}
	return &Scorer{
		smallCorpusThreshold: threshold,
		expansions:           cfg.KeywordExpansions,
	}
}

// ScoredChunk pairs a chunk with the document it came from and its score
type ScoredChunk struct {
	Document *models.Document
	Chunk    models.Chunk
	Score    int
}

// IsSmallCorpus reports whether the documents' combined raw text is under
// the full-context threshold.
func (s *Scorer) IsSmallCorpus(docs []*models.Document) bool {
	total := 0
	for _, doc := range docs {
		total += len(doc.Content)
	}
	return total < s.smallCorpusThreshold
}

// Tokenize lower-cases text, splits it on whitespace and sentence
// punctuation, and drops low-value short tokens. Numeric tokens and the
// date/quarter whitelist survive regardless of length.
func (s *Scorer) Tokenize(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || strings.ContainsRune(tokenDelimiters, r)
	})

	tokens := make(map[string]bool, len(fields))
	for _, field := range fields {
		if field == "" {
			continue
		}
		if len(field) <= 2 && !isNumeric(field) && !keepShortTokens[field] {
			continue
		}
		tokens[field] = true
	}
	return tokens
}

// expandQueryTokens unions domain keyword sets into the query tokens when
// the raw query contains a trigger substring.
func (s *Scorer) expandQueryTokens(query string, tokens map[string]bool) {
	if s.expansions == nil {
		return
	}
	lower := strings.ToLower(query)
	for trigger, keywords := range s.expansions {
		if !strings.Contains(lower, trigger) {
			continue
		}
		for _, keyword := range keywords {
			tokens[keyword] = true
		}
	}
}

// Score ranks every chunk of every document against the query and returns
// the top maxChunks, ties broken by insertion order. When no chunk scores
// above zero it falls back to the leading chunks of the leading documents
// rather than returning nothing.
func (s *Scorer) Score(docs []*models.Document, query string, maxChunks int) []ScoredChunk {
	if maxChunks <= 0 || len(docs) == 0 {
		return nil
	}

	queryTokens := s.Tokenize(query)
	s.expandQueryTokens(query, queryTokens)

	var scored []ScoredChunk
	for _, doc := range docs {
		for _, chunk := range doc.Chunks {
			score := 0
			for token := range s.Tokenize(chunk.Content) {
				if queryTokens[token] {
					score++
				}
			}
			scored = append(scored, ScoredChunk{Document: doc, Chunk: chunk, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) == 0 || scored[0].Score == 0 {
		return s.fallbackChunks(docs)
	}

	if len(scored) > maxChunks {
		scored = scored[:maxChunks]
	}
	return scored
}

// fallbackChunks returns the first few chunks from the first documents so
// the model always receives some context.
func (s *Scorer) fallbackChunks(docs []*models.Document) []ScoredChunk {
	var out []ScoredChunk
	for d, doc := range docs {
		if d >= fallbackDocuments {
			break
		}
		for c, chunk := range doc.Chunks {
			if c >= fallbackChunksPerDocument {
				break
			}
			out = append(out, ScoredChunk{Document: doc, Chunk: chunk})
		}
	}
	return out
}

// RetrievalContext builds the retrieval context string for a query: the
// full labeled corpus for small document sets, otherwise the top scored
// chunks labeled per document.
func (s *Scorer) RetrievalContext(docs []*models.Document, query string, maxChunks int) string {
	if len(docs) == 0 {
		return ""
	}

	if s.IsSmallCorpus(docs) {
		return FullCorpusContext(docs)
	}

	var builder strings.Builder
	for i, sc := range s.Score(docs, query, maxChunks) {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(fmt.Sprintf("[%s, part %d]\n%s", sc.Document.Name, sc.Chunk.Index+1, sc.Chunk.Content))
	}
	return builder.String()
}

// FullCorpusContext concatenates every document's full text with a
// per-document marker.
func FullCorpusContext(docs []*models.Document) string {
	var builder strings.Builder
	for i, doc := range docs {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(fmt.Sprintf("=== Document: %s ===\n%s", doc.Name, doc.Content))
	}
	return builder.String()
}

// isNumeric reports whether the token is all digits
func isNumeric(token string) bool {
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(token) > 0
}
