package models

import (
	"fmt"
	"strings"
	"time"
)

// SourceType constants
const (
	SourceTypeFile = "file"
	SourceTypeWeb  = "web"
	SourceTypeText = "text"
)

// Source is a declarative descriptor of where a document's content comes
// from. Sources are configuration; Documents are the materialized result of
// resolving a Source. Sources belong to exactly one knowledge base and are
// cascade-deleted with it.
type Source struct {
	ID              string            `json:"id"` // src_{uuid}
	KnowledgeBaseID string            `json:"knowledge_base_id"`
	Type            string            `json:"type"` // file, web, text
	Name            string            `json:"name"`
	Location        string            `json:"location"` // path, URL, or literal text
	Enabled         bool              `json:"enabled"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Validate validates the source configuration
func (s *Source) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("source name is required")
	}

	if s.KnowledgeBaseID == "" {
		return fmt.Errorf("source knowledge base ID is required")
	}

	validTypes := map[string]bool{
		SourceTypeFile: true,
		SourceTypeWeb:  true,
		SourceTypeText: true,
	}
	if !validTypes[s.Type] {
		return fmt.Errorf("invalid source type: %s", s.Type)
	}

	if strings.TrimSpace(s.Location) == "" {
		return fmt.Errorf("source location is required")
	}

	if s.Type == SourceTypeWeb && !strings.HasPrefix(s.Location, "http://") && !strings.HasPrefix(s.Location, "https://") {
		return fmt.Errorf("web source location must be an http or https URL")
	}

	return nil
}
