package models

import (
	"fmt"
	"time"
)

// KnowledgeBase is a named, independently servable collection of sources.
// Each knowledge base carries its own listener port and system prompt; the
// API server manager holds at most one running listener per knowledge base
// id at a time.
type KnowledgeBase struct {
	ID           string    `json:"id"` // kb_{uuid}
	Name         string    `json:"name"`
	Port         int       `json:"port"`
	SystemPrompt string    `json:"system_prompt"`
	Description  string    `json:"description,omitempty"` // markdown, rendered on the status page
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate validates the knowledge base configuration
func (k *KnowledgeBase) Validate() error {
	if k.Name == "" {
		return fmt.Errorf("knowledge base name is required")
	}

	if k.Port < 1 || k.Port > 65535 {
		return fmt.Errorf("invalid port: %d", k.Port)
	}

	return nil
}
