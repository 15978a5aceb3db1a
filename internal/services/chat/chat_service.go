package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/common"
	"github.com/ternarybob/sermo/internal/interfaces"
	"github.com/ternarybob/sermo/internal/models"
	"github.com/ternarybob/sermo/internal/rag"
	"github.com/ternarybob/sermo/internal/services/search"
)

// cancelledMarker is appended to partial output when the user stops a
// streaming response mid-generation.
const cancelledMarker = " [cancelled]"

// unavailableMessage is shown inline in the conversation when the
// inference backend is down; the chat session itself stays usable.
const unavailableMessage = "The language model is currently unavailable. Check the inference backend and try again."

// ChatService runs one interactive conversation: it keeps history, an
// optional session-attached document, and an optional knowledge base
// selection, and assembles all of it into context for each completion.
type ChatService struct {
	llm       interfaces.LLMService
	assembler *rag.Assembler
	search    *search.WebSearchService
	config    *common.RAGConfig
	logger    arbor.ILogger

	mu              sync.Mutex
	history         []models.ChatMessage
	engine          *rag.Engine
	systemPrompt    string
	sessionDocName  string
	sessionDocument string
}

// NewChatService creates a chat service. The search service may be nil
// when web search is not configured.
func NewChatService(llm interfaces.LLMService, assembler *rag.Assembler, searchService *search.WebSearchService, config *common.RAGConfig, logger arbor.ILogger) *ChatService {
	return &ChatService{
		llm:       llm,
		assembler: assembler,
		search:    searchService,
		config:    config,
		logger:    logger,
	}
}

// SelectKnowledgeBase points the conversation at a knowledge base engine.
// A nil engine deselects; the system prompt travels with the selection.
func (s *ChatService) SelectKnowledgeBase(engine *rag.Engine, systemPrompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
	s.systemPrompt = systemPrompt

	if engine != nil {
		s.logger.Info().Str("knowledge_base", engine.Name()).Msg("Knowledge base selected for chat")
	}
}

// AttachDocument attaches a document to the session. Content beyond the
// session cap is truncated; the attachment replaces any previous one.
func (s *ChatService) AttachDocument(name, content string) {
	limit := s.config.SessionDocumentCap
	if limit > 0 && len(content) > limit {
		s.logger.Warn().
			Str("name", name).
			Int("original_chars", len(content)).
			Int("cap", limit).
			Msg("Session document truncated")
		content = content[:limit]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionDocName = name
	s.sessionDocument = content
}

// DetachDocument removes the session attachment
func (s *ChatService) DetachDocument() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionDocName = ""
	s.sessionDocument = ""
}

// History returns a snapshot of the conversation so far
func (s *ChatService) History() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

// Reset clears the conversation history, keeping the knowledge base
// selection and attachment.
func (s *ChatService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Send submits a user message and returns the assistant response. When the
// inference backend is unavailable the response is an inline notice and
// the error is not propagated; the conversation remains usable.
func (s *ChatService) Send(ctx context.Context, content string, useWebSearch bool) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("message content cannot be empty")
	}

	messages := s.prepare(ctx, content, useWebSearch)

	response, err := s.llm.Chat(ctx, messages)
	if err != nil {
		if errors.Is(err, models.ErrInferenceUnavailable) {
			s.logger.Warn().Err(err).Msg("Inference backend unavailable, responding inline")
			s.appendAssistant(unavailableMessage)
			return unavailableMessage, nil
		}
		return "", err
	}

	s.appendAssistant(response)
	return response, nil
}

// SendStream submits a user message and streams the assistant response
// token by token. Cancelling the context keeps the partial output in
// history with a cancellation marker appended.
func (s *ChatService) SendStream(ctx context.Context, content string, useWebSearch bool) (<-chan string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("message content cannot be empty")
	}

	messages := s.prepare(ctx, content, useWebSearch)

	stream, err := s.llm.ChatStream(ctx, messages)
	if err != nil {
		if errors.Is(err, models.ErrInferenceUnavailable) {
			s.logger.Warn().Err(err).Msg("Inference backend unavailable, responding inline")
			out := make(chan string, 1)
			out <- unavailableMessage
			close(out)
			s.appendAssistant(unavailableMessage)
			return out, nil
		}
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)

		var builder strings.Builder
		for chunk := range stream {
			if chunk.Err != nil {
				s.logger.Warn().Err(chunk.Err).Msg("Stream failed mid-generation")
				break
			}
			builder.WriteString(chunk.Content)

			select {
			case out <- chunk.Content:
			case <-ctx.Done():
			}
		}

		response := builder.String()
		if ctx.Err() != nil && response != "" {
			response += cancelledMarker
		}
		if response != "" {
			s.appendAssistant(response)
		}
	}()

	return out, nil
}

// prepare records the user message and builds the full message list with
// assembled context for the backend.
func (s *ChatService) prepare(ctx context.Context, content string, useWebSearch bool) []interfaces.Message {
	var webResults []models.WebSearchResult
	if useWebSearch && s.search != nil && s.search.Enabled() {
		results, err := s.search.Search(ctx, content)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Web search failed, continuing without results")
		} else {
			webResults = results
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var knowledgeContext string
	if s.engine != nil {
		knowledgeContext = s.engine.GetContext(content, s.config.ChatTopChunks)
	}

	assembled := s.assembler.Assemble(rag.AssemblyInput{
		SessionDocumentName: s.sessionDocName,
		SessionDocument:     s.sessionDocument,
		KnowledgeContext:    knowledgeContext,
		WebResults:          webResults,
	})

	systemPrompt := s.systemPrompt
	if systemPrompt == "" {
		systemPrompt = "You are a helpful assistant. Answer using the provided context when it is relevant."
	}

	messages := []interfaces.Message{{Role: models.RoleSystem, Content: systemPrompt}}
	if assembled != "" {
		messages = append(messages, interfaces.Message{
			Role:    models.RoleSystem,
			Content: "Context for this conversation:\n\n" + assembled,
		})
	}

	for _, msg := range s.history {
		messages = append(messages, interfaces.Message{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, interfaces.Message{Role: models.RoleUser, Content: content})

	s.history = append(s.history, models.NewChatMessage(models.RoleUser, content))

	return messages
}

// appendAssistant records an assistant response in history
func (s *ChatService) appendAssistant(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, models.NewChatMessage(models.RoleAssistant, content))
}
