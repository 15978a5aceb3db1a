package common

import (
	"github.com/google/uuid"
)

// NewKnowledgeBaseID generates a unique knowledge base ID
// Format: kb_<uuid>
func NewKnowledgeBaseID() string {
	return "kb_" + uuid.New().String()
}

// NewSourceID generates a unique source ID
// Format: src_<uuid>
func NewSourceID() string {
	return "src_" + uuid.New().String()
}

// NewDocumentID generates a unique document ID
// Format: doc_<uuid>
func NewDocumentID() string {
	return "doc_" + uuid.New().String()
}
