package models

import (
	"time"
)

// DocumentType tags how a document's content was extracted
type DocumentType string

const (
	DocumentTypeText    DocumentType = "text" // plain text read
	DocumentTypeWord    DocumentType = "word" // word-processor extraction
	DocumentTypePDF     DocumentType = "pdf"  // PDF extraction
	DocumentTypeWeb     DocumentType = "web"  // fetched and stripped HTML
	DocumentTypeUnknown DocumentType = "unknown"
)

// Document represents one ingested unit of source material.
// Documents are materialized from Sources at ingestion time and live in
// memory inside the engine that ingested them; nothing is persisted by the
// engine itself.
type Document struct {
	ID        string       `json:"id"`        // doc_{uuid}
	SourceID  string       `json:"source_id"` // src_{uuid} of the source it came from
	Name      string       `json:"name"`
	Origin    string       `json:"origin"` // path, URL, or "inline" for literal text
	Content   string       `json:"content"`
	Type      DocumentType `json:"type"`
	Chunks    []Chunk      `json:"chunks"`
	CreatedAt time.Time    `json:"created_at"`
}

// Chunk is a contiguous slice of a document's text, the unit of retrieval.
// Index is 0-based and contiguous per document. StartPos/EndPos track the
// running buffer length at flush time rather than true source offsets; the
// numbering is display-only and existing consumers depend on it, so it is
// kept as-is.
type Chunk struct {
	Index    int    `json:"index"`
	Content  string `json:"content"`
	StartPos int    `json:"start_pos"`
	EndPos   int    `json:"end_pos"`
}

// DocumentStats summarizes a knowledge base's in-memory document set
type DocumentStats struct {
	TotalDocuments  int       `json:"total_documents"`
	TotalChunks     int       `json:"total_chunks"`
	TotalCharacters int       `json:"total_characters"`
	LastIngested    time.Time `json:"last_ingested"`
}
