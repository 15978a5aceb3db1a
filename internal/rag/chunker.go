package rag

import (
	"regexp"
	"strings"

	"github.com/ternarybob/sermo/internal/models"
)

const (
	// DefaultChunkSize is the flush threshold in characters. Paragraphs are
	// accumulated until appending the next one would push the buffer past
	// this size.
	DefaultChunkSize = 1500

	// chunkOverlap is reserved for an overlap pass between adjacent chunks.
	// The paragraph chunker does not apply it; retrieval quality has been
	// acceptable without it so far.
	chunkOverlap = 200
)

// paragraphPattern matches paragraph boundaries: two or more consecutive
// line breaks in any of the common newline conventions.
var paragraphPattern = regexp.MustCompile(`(?:\r\n|\r|\n){2,}`)

// Chunker splits raw document text into paragraph-aligned, size-bounded
// chunks. A single paragraph longer than the threshold becomes its own
// oversized chunk; paragraphs are never split internally.
type Chunker struct {
	chunkSize int
}

// NewChunker creates a chunker with the given flush threshold. A
// non-positive size falls back to DefaultChunkSize.
func NewChunker(chunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunker{chunkSize: chunkSize}
}

// Chunk splits text into an ordered chunk sequence. Empty or
// whitespace-only input produces no chunks.
//
// StartPos/EndPos record the cumulative buffer length consumed at flush
// time, not true offsets into the source text. The numbering is used for
// display only; do not change it without flagging the behavioral change.
func (c *Chunker) Chunk(text string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []models.Chunk
	var buffer string
	consumed := 0

	flush := func() {
		if buffer == "" {
			return
		}
		chunks = append(chunks, models.Chunk{
			Index:    len(chunks),
			Content:  buffer,
			StartPos: consumed,
			EndPos:   consumed + len(buffer),
		})
		consumed += len(buffer)
		buffer = ""
	}

	for _, raw := range paragraphPattern.Split(text, -1) {
		paragraph := strings.TrimSpace(raw)
		if paragraph == "" {
			continue
		}

		if buffer == "" {
			buffer = paragraph
			continue
		}

		if len(buffer)+len(paragraph)+2 > c.chunkSize {
			flush()
			buffer = paragraph
		} else {
			buffer = buffer + "\n\n" + paragraph
		}
	}

	flush()

	return chunks
}
