package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/common"
	"github.com/ternarybob/sermo/internal/interfaces"
	"github.com/ternarybob/sermo/internal/models"
	"github.com/ternarybob/sermo/internal/rag"
)

// InstanceState tracks the lifecycle of one knowledge base listener
type InstanceState string

const (
	StateStopped  InstanceState = "stopped"
	StateStarting InstanceState = "starting"
	StateRunning  InstanceState = "running"
	StateStopping InstanceState = "stopping"
)

// Instance is one knowledge base's HTTP listener. It serves an
// OpenAI-style chat surface backed by the knowledge base's corpus and the
// shared LLM service.
type Instance struct {
	kb        *models.KnowledgeBase
	engine    *rag.Engine
	llm       interfaces.LLMService
	ragConfig *common.RAGConfig
	modelName string
	logger    arbor.ILogger

	mu        sync.Mutex
	state     InstanceState
	listener  net.Listener
	server    *http.Server
	startedAt time.Time

	requestCount atomic.Int64
}

// NewInstance creates an instance in the stopped state
func NewInstance(kb *models.KnowledgeBase, engine *rag.Engine, llm interfaces.LLMService, ragConfig *common.RAGConfig, modelName string, logger arbor.ILogger) *Instance {
	return &Instance{
		kb:        kb,
		engine:    engine,
		llm:       llm,
		ragConfig: ragConfig,
		modelName: modelName,
		logger:    logger,
		state:     StateStopped,
	}
}

// State returns the current lifecycle state
func (i *Instance) State() InstanceState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// RequestCount returns how many requests the instance has served
func (i *Instance) RequestCount() int64 {
	return i.requestCount.Load()
}

// KnowledgeBase returns the configuration the instance serves
func (i *Instance) KnowledgeBase() *models.KnowledgeBase {
	return i.kb
}

// Start binds the configured port and begins serving. Bind failures are
// returned to the caller; a silently dead listener would be worse than a
// loud startup error.
func (i *Instance) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != StateStopped {
		return fmt.Errorf("instance %s is %s, cannot start", i.kb.ID, i.state)
	}
	i.state = StateStarting

	addr := fmt.Sprintf(":%d", i.kb.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		i.state = StateStopped
		return fmt.Errorf("failed to bind port %d for %s: %w", i.kb.Port, i.kb.Name, err)
	}

	server := &http.Server{
		Handler:           i.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	i.listener = listener
	i.server = server

	// The goroutine must not touch i.server or i.listener: Stop nils
	// both under the mutex once Shutdown returns.
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			i.logger.Error().
				Err(err).
				Str("knowledge_base", i.kb.Name).
				Msg("Instance server stopped unexpectedly")
		}
	}()

	i.state = StateRunning
	i.startedAt = time.Now()

	i.logger.Info().
		Str("knowledge_base", i.kb.Name).
		Str("id", i.kb.ID).
		Int("port", i.kb.Port).
		Msg("Knowledge base API instance started")

	return nil
}

// Stop shuts the listener down gracefully
func (i *Instance) Stop(ctx context.Context) error {
	i.mu.Lock()
	if i.state != StateRunning {
		i.mu.Unlock()
		return nil
	}
	i.state = StateStopping
	server := i.server
	i.mu.Unlock()

	err := server.Shutdown(ctx)

	i.mu.Lock()
	i.state = StateStopped
	i.server = nil
	i.listener = nil
	i.mu.Unlock()

	i.logger.Info().
		Str("knowledge_base", i.kb.Name).
		Int("port", i.kb.Port).
		Msg("Knowledge base API instance stopped")

	if err != nil {
		return fmt.Errorf("shutdown of %s: %w", i.kb.Name, err)
	}
	return nil
}

// routes builds the instance mux wrapped in the middleware chain
func (i *Instance) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", i.handleStatus)
	mux.HandleFunc("/health", i.handleHealth)
	mux.HandleFunc("/chat", i.handleChat)
	mux.HandleFunc("/chat/stream", i.handleChatStream)

	return i.withMiddleware(mux)
}

// withMiddleware wraps the mux with counting, CORS and panic recovery
func (i *Instance) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i.requestCount.Add(1)

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		defer func() {
			if err := recover(); err != nil {
				i.logger.Error().
					Str("error", fmt.Sprintf("%v", err)).
					Str("path", r.URL.Path).
					Msg("Panic recovered")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// chatMessage is one message in an incoming chat request
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the POST /chat and /chat/stream payload
type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

// chatResponse is the POST /chat result
type chatResponse struct {
	Model      string `json:"model"`
	Content    string `json:"content"`
	TokenCount int    `json:"token_count"`
}

// streamFrame is one SSE data payload on /chat/stream
type streamFrame struct {
	Content string `json:"content"`
}

// handleHealth reports liveness for port scanners and launchers
func (i *Instance) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": i.kb.Name,
	})
}

// inferenceErrorStatus maps backend failures to the wire status. A
// backend with no model loaded is a 503; anything else is unhandled and
// stays a bare 500.
func inferenceErrorStatus(err error) int {
	if errors.Is(err, models.ErrInferenceUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// handleChat runs one completion over the knowledge base
func (i *Instance) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	messages, ok := i.decodeChatRequest(w, r)
	if !ok {
		return
	}

	response, err := i.llm.Chat(r.Context(), messages)
	if err != nil {
		i.logger.Error().
			Err(err).
			Str("knowledge_base", i.kb.Name).
			Msg("Chat completion failed")
		// Clients poll /health for diagnosis; the error body stays empty
		w.WriteHeader(inferenceErrorStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Model:      i.modelName,
		Content:    response,
		TokenCount: len(strings.Fields(response)),
	})
}

// handleChatStream runs one completion and delivers it as SSE frames. The
// stream always terminates with a literal [DONE] frame, including after
// mid-stream failures, so clients can rely on it as the end marker.
func (i *Instance) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	messages, ok := i.decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	stream, err := i.llm.ChatStream(r.Context(), messages)
	if err != nil {
		i.logger.Error().
			Err(err).
			Str("knowledge_base", i.kb.Name).
			Msg("Chat stream failed to start")
		w.WriteHeader(inferenceErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for chunk := range stream {
		if chunk.Err != nil {
			i.logger.Warn().
				Err(chunk.Err).
				Str("knowledge_base", i.kb.Name).
				Msg("Stream failed mid-generation")
			break
		}

		payload, err := json.Marshal(streamFrame{Content: chunk.Content})
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// decodeChatRequest parses and validates the request body, then builds
// the backend message list: system prompt, retrieval context, and the
// conversation with roles normalized to user/assistant.
func (i *Instance) decodeChatRequest(w http.ResponseWriter, r *http.Request) ([]interfaces.Message, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return nil, false
	}

	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages cannot be empty")
		return nil, false
	}

	// The latest user message drives retrieval
	query := ""
	for idx := len(req.Messages) - 1; idx >= 0; idx-- {
		if req.Messages[idx].Role == models.RoleUser {
			query = req.Messages[idx].Content
			break
		}
	}
	if query == "" {
		query = req.Messages[len(req.Messages)-1].Content
	}

	systemPrompt := i.kb.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = fmt.Sprintf("You are the API assistant for the %s knowledge base. Answer from the provided context.", i.kb.Name)
	}

	messages := []interfaces.Message{{Role: models.RoleSystem, Content: systemPrompt}}

	if retrieved := i.engine.GetContext(query, i.ragConfig.APITopChunks); retrieved != "" {
		messages = append(messages, interfaces.Message{
			Role:    models.RoleSystem,
			Content: "Knowledge base context:\n\n" + retrieved,
		})
	}

	for _, msg := range req.Messages {
		role := models.RoleAssistant
		if msg.Role == models.RoleUser {
			role = models.RoleUser
		}
		messages = append(messages, interfaces.Message{Role: role, Content: msg.Content})
	}

	return messages, true
}

// writeJSON writes a JSON response with the specified status code and data
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a standard error JSON response
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}
