package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_EmptyInput(t *testing.T) {
	chunker := NewChunker(100)

	assert.Nil(t, chunker.Chunk(""))
	assert.Nil(t, chunker.Chunk("   \n\n\t  "))
}

func TestChunker_SingleParagraph(t *testing.T) {
	chunker := NewChunker(100)

	chunks := chunker.Chunk("Just one short paragraph.")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "Just one short paragraph.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].StartPos)
	assert.Equal(t, len(chunks[0].Content), chunks[0].EndPos)
}

func TestChunker_PacksParagraphsUpToThreshold(t *testing.T) {
	// Two paragraphs of 40 chars join (40+40+2=82 <= 100); a third would
	// push past the threshold and starts a new chunk.
	para := strings.Repeat("x", 40)
	text := para + "\n\n" + para + "\n\n" + para

	chunker := NewChunker(100)
	chunks := chunker.Chunk(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, para+"\n\n"+para, chunks[0].Content)
	assert.Equal(t, para, chunks[1].Content)
}

func TestChunker_OversizedParagraphKeptWhole(t *testing.T) {
	big := strings.Repeat("y", 500)
	text := "small one\n\n" + big + "\n\nsmall two"

	chunker := NewChunker(100)
	chunks := chunker.Chunk(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, "small one", chunks[0].Content)
	assert.Equal(t, big, chunks[1].Content)
	assert.Equal(t, "small two", chunks[2].Content)
}

func TestChunker_CoversAllParagraphs(t *testing.T) {
	paragraphs := []string{
		"First paragraph with some words.",
		"Second paragraph, a little longer than the first one here.",
		"Third.",
		strings.Repeat("long ", 80),
		"Fifth and final paragraph.",
	}
	text := strings.Join(paragraphs, "\n\n")

	chunker := NewChunker(120)
	chunks := chunker.Chunk(text)
	require.NotEmpty(t, chunks)

	joined := strings.Join(func() []string {
		var out []string
		for _, c := range chunks {
			out = append(out, c.Content)
		}
		return out
	}(), "\n\n")

	for _, p := range paragraphs {
		assert.Contains(t, joined, strings.TrimSpace(p))
	}

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestChunker_NewlineConventions(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"unix", "one\n\ntwo"},
		{"windows", "one\r\n\r\ntwo"},
		{"old mac", "one\r\rtwo"},
		{"extra blank lines", "one\n\n\n\n\ntwo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := NewChunker(4).Chunk(tt.text)
			require.Len(t, chunks, 2)
			assert.Equal(t, "one", chunks[0].Content)
			assert.Equal(t, "two", chunks[1].Content)
		})
	}
}

func TestNewChunker_DefaultSize(t *testing.T) {
	chunker := NewChunker(0)
	assert.Equal(t, DefaultChunkSize, chunker.chunkSize)

	chunker = NewChunker(-5)
	assert.Equal(t, DefaultChunkSize, chunker.chunkSize)
}
