package offline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/interfaces"
	"github.com/ternarybob/sermo/internal/models"
)

// OfflineLLMService provides local chat completions using a llama-server
// subprocess on localhost HTTP.
// SECURITY: Guarantees 100% local operation with NO external network calls
type OfflineLLMService struct {
	modelManager    *ModelManager
	contextSize     int
	threadCount     int
	gpuLayers       int
	logger          arbor.ILogger
	llamaServerPath string
	chatServerCmd   *exec.Cmd
	chatServerURL   string
	chatServerReady bool
	mockMode        bool

	// genMu serializes generation; one model instance handles one request
	// at a time and concurrent callers queue behind it
	genMu sync.Mutex

	cachedHealthStatus error
	healthCheckTime    time.Time
	healthCheckMutex   *sync.RWMutex
}

// llamaServerChatRequest represents chat request to llama-server
type llamaServerChatRequest struct {
	Messages    []llamaServerMessage `json:"messages"`
	Temperature float32              `json:"temperature,omitempty"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	Stream      bool                 `json:"stream"`
}

// llamaServerMessage represents a single message in chat request
type llamaServerMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// llamaServerChatResponse represents a non-streaming chat response
type llamaServerChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// llamaServerStreamResponse represents one streamed completion delta
type llamaServerStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// NewOfflineLLMService creates a new offline LLM service instance.
// Returns error if llama-server binary not found or the model is missing.
func NewOfflineLLMService(
	llamaDir string,
	modelDir string,
	chatModel string,
	contextSize int,
	threadCount int,
	gpuLayers int,
	logger arbor.ILogger,
) (*OfflineLLMService, error) {
	llamaServerPath, err := findLlamaBinary(llamaDir, "llama-server", logger)
	if err != nil {
		return nil, fmt.Errorf("llama-server binary not found: %w", err)
	}

	logger.Info().
		Str("server_path", llamaServerPath).
		Msg("Found llama-server binary")

	modelManager := NewModelManager(modelDir, chatModel, logger)
	if err := modelManager.VerifyModels(); err != nil {
		return nil, fmt.Errorf("model verification failed: %w", err)
	}

	service := &OfflineLLMService{
		modelManager:     modelManager,
		contextSize:      contextSize,
		threadCount:      threadCount,
		gpuLayers:        gpuLayers,
		logger:           logger,
		llamaServerPath:  llamaServerPath,
		chatServerURL:    "http://127.0.0.1:8087", // Local-only
		healthCheckMutex: &sync.RWMutex{},
	}

	// Clean up any orphaned llama-server processes from previous runs
	logger.Info().Msg("Checking for orphaned llama-server processes")
	if err := service.cleanupOrphanedProcesses(); err != nil {
		logger.Warn().Err(err).Msg("Failed to cleanup orphaned processes (non-critical)")
	}

	if err := service.startChatServer(); err != nil {
		return nil, fmt.Errorf("failed to start chat server: %w", err)
	}

	service.refreshHealthCheck(context.Background())

	// Background health check updater (refreshes every 60 seconds)
	go service.healthCheckUpdater()

	logger.Info().
		Str("mode", "offline").
		Int("context_size", contextSize).
		Int("threads", threadCount).
		Int("gpu_layers", gpuLayers).
		Str("chat_server_url", service.chatServerURL).
		Msg("Offline LLM service initialized")

	return service, nil
}

// NewMockOfflineLLMService creates an offline LLM service in mock mode for
// testing. This bypasses llama-server binary and model file requirements.
func NewMockOfflineLLMService(logger arbor.ILogger) *OfflineLLMService {
	service := &OfflineLLMService{
		contextSize:      2048,
		threadCount:      4,
		logger:           logger,
		mockMode:         true,
		healthCheckTime:  time.Now(),
		healthCheckMutex: &sync.RWMutex{},
	}

	logger.Warn().Msg("Created offline LLM service in MOCK mode - using fake responses")

	return service
}

// findLlamaBinary locates a llama binary in configured directory or standard locations
func findLlamaBinary(llamaDir string, binaryName string, logger arbor.ILogger) (string, error) {
	locations := []string{}

	// 1. Configured llama directory (highest priority)
	if llamaDir != "" {
		locations = append(locations, llamaDir+"/"+binaryName)
		locations = append(locations, llamaDir+"/"+binaryName+".exe")
	}

	// 2. Fallback locations
	locations = append(locations,
		"./bin/"+binaryName,
		"./bin/"+binaryName+".exe",
		"./"+binaryName,
		"./"+binaryName+".exe",
		binaryName, // Will search PATH
	)

	for _, location := range locations {
		path, err := exec.LookPath(location)
		if err == nil {
			info, err := os.Stat(path)
			if err == nil && !info.IsDir() {
				logger.Debug().
					Str("location", location).
					Str("resolved_path", path).
					Msg("Found llama binary")
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("%s not found in: %v", binaryName, locations)
}

// localhostClient builds an HTTP client whose transport refuses any
// connection that is not to localhost.
func localhostClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				if !strings.HasPrefix(addr, "127.0.0.1:") && !strings.HasPrefix(addr, "localhost:") {
					return nil, fmt.Errorf("security violation: attempt to connect to non-localhost address: %s", addr)
				}
				return (&net.Dialer{}).DialContext(ctx, network, addr)
			},
		},
	}
}

// startChatServer starts llama-server in chat mode
// SECURITY: Server binds to 127.0.0.1 only - no external access possible
func (s *OfflineLLMService) startChatServer() error {
	s.logger.Info().
		Str("model", s.modelManager.GetChatModelPath()).
		Str("url", s.chatServerURL).
		Msg("Starting chat server")

	args := []string{
		"-m", s.modelManager.GetChatModelPath(),
		"--host", "127.0.0.1", // SECURITY: localhost only
		"--port", "8087",
		"-c", strconv.Itoa(s.contextSize),
		"-t", strconv.Itoa(s.threadCount),
		"-ngl", strconv.Itoa(s.gpuLayers),
		"-b", "2048",
		"--log-disable",
	}

	cmd := exec.Command(s.llamaServerPath, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start chat server: %w", err)
	}

	s.chatServerCmd = cmd
	s.logger.Info().
		Int("pid", cmd.Process.Pid).
		Msg("Chat server started, waiting for ready")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopChatServer()
			return fmt.Errorf("chat server did not become ready within 60 seconds")
		case <-ticker.C:
			if s.checkChatServerHealth() {
				s.chatServerReady = true
				s.logger.Info().Msg("Chat server is ready")
				return nil
			}
		}
	}
}

// checkChatServerHealth checks if chat server is responding
func (s *OfflineLLMService) checkChatServerHealth() bool {
	client := localhostClient(1 * time.Second)

	resp, err := client.Get(s.chatServerURL + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// stopChatServer stops the background chat server
func (s *OfflineLLMService) stopChatServer() error {
	if s.chatServerCmd == nil || s.chatServerCmd.Process == nil {
		s.logger.Debug().Msg("Chat server not running, nothing to stop")
		return nil
	}

	pid := s.chatServerCmd.Process.Pid
	s.logger.Info().
		Int("pid", pid).
		Msg("Stopping chat server")

	// Try graceful shutdown first (Unix-like systems only)
	if !isWindows() {
		if err := s.chatServerCmd.Process.Signal(os.Interrupt); err != nil {
			s.logger.Debug().
				Err(err).
				Int("pid", pid).
				Msg("Failed to send interrupt signal (expected on some platforms)")
		}
	}

	// Windows doesn't support signals, so skip straight to kill
	timeout := 2 * time.Second
	if isWindows() {
		timeout = 500 * time.Millisecond
	}

	done := make(chan error, 1)
	go func() {
		done <- s.chatServerCmd.Wait()
	}()

	var shutdownErr error
	select {
	case <-time.After(timeout):
		s.logger.Info().
			Int("pid", pid).
			Msg("Terminating chat server")
		if err := s.chatServerCmd.Process.Kill(); err != nil {
			s.logger.Error().
				Err(err).
				Int("pid", pid).
				Msg("Failed to kill chat server")
			shutdownErr = fmt.Errorf("failed to kill chat server (pid %d): %w", pid, err)
		}
	case err := <-done:
		if err != nil && !isProcessExitError(err) {
			s.logger.Warn().
				Err(err).
				Int("pid", pid).
				Msg("Chat server exited with error")
			shutdownErr = fmt.Errorf("chat server exit error (pid %d): %w", pid, err)
		} else {
			s.logger.Info().
				Int("pid", pid).
				Msg("Chat server stopped")
		}
	}

	s.chatServerReady = false
	return shutdownErr
}

// buildChatRequest converts messages and encodes the llama-server payload
func (s *OfflineLLMService) buildChatRequest(messages []interfaces.Message, stream bool) ([]byte, error) {
	llamaMessages := make([]llamaServerMessage, len(messages))
	for i, msg := range messages {
		llamaMessages[i] = llamaServerMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	reqBody := llamaServerChatRequest{
		Messages:    llamaMessages,
		Temperature: 0.8,
		MaxTokens:   512,
		Stream:      stream,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return jsonData, nil
}

// Chat generates a completion response based on conversation history
// SECURITY: Uses llama-server on localhost:8087 ONLY - no external network access
func (s *OfflineLLMService) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	if s.mockMode {
		return s.generateMockResponse(messages), nil
	}

	if !s.chatServerReady {
		return "", fmt.Errorf("chat server not ready: %w", models.ErrInferenceUnavailable)
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()

	s.logger.Debug().
		Int("message_count", len(messages)).
		Msg("Generating chat completion")

	jsonData, err := s.buildChatRequest(messages, false)
	if err != nil {
		return "", err
	}

	client := localhostClient(240 * time.Second)

	req, err := http.NewRequestWithContext(ctx, "POST", s.chatServerURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("Chat completion failed")
		return "", fmt.Errorf("llama-server request failed: %v: %w", err, models.ErrInferenceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		s.logger.Error().
			Int("status_code", resp.StatusCode).
			Str("response", string(body)).
			Msg("Chat server returned error")
		return "", fmt.Errorf("llama-server returned status %d: %w", resp.StatusCode, models.ErrInferenceUnavailable)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var chatResponse llamaServerChatResponse
	if err := json.Unmarshal(bodyBytes, &chatResponse); err != nil {
		s.logger.Error().
			Err(err).
			Msg("Failed to parse chat response")
		return "", fmt.Errorf("failed to parse chat JSON: %w", err)
	}

	if len(chatResponse.Choices) == 0 {
		return "", fmt.Errorf("no choices in chat response")
	}

	response := chatResponse.Choices[0].Message.Content

	s.logger.Debug().
		Int("response_length", len(response)).
		Msg("Chat completion generated")

	return response, nil
}

// ChatStream generates a completion and delivers tokens as llama-server
// emits them. The generation lock is held inside the worker goroutine, so
// concurrent streams queue rather than interleave.
func (s *OfflineLLMService) ChatStream(ctx context.Context, messages []interfaces.Message) (<-chan interfaces.StreamChunk, error) {
	if s.mockMode {
		return s.mockStream(ctx, messages), nil
	}

	if !s.chatServerReady {
		return nil, fmt.Errorf("chat server not ready: %w", models.ErrInferenceUnavailable)
	}

	jsonData, err := s.buildChatRequest(messages, true)
	if err != nil {
		return nil, err
	}

	out := make(chan interfaces.StreamChunk)
	go func() {
		defer close(out)

		s.genMu.Lock()
		defer s.genMu.Unlock()

		if ctx.Err() != nil {
			return
		}

		client := localhostClient(240 * time.Second)

		req, err := http.NewRequestWithContext(ctx, "POST", s.chatServerURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
		if err != nil {
			out <- interfaces.StreamChunk{Err: fmt.Errorf("failed to create request: %w", err)}
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			out <- interfaces.StreamChunk{Err: fmt.Errorf("llama-server request failed: %v: %w", err, models.ErrInferenceUnavailable)}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			out <- interfaces.StreamChunk{Err: fmt.Errorf("llama-server returned status %d: %s: %w", resp.StatusCode, string(body), models.ErrInferenceUnavailable)}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}

			var delta llamaServerStreamResponse
			if err := json.Unmarshal([]byte(payload), &delta); err != nil {
				s.logger.Debug().Err(err).Msg("Skipping unparseable stream line")
				continue
			}
			if len(delta.Choices) == 0 || delta.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case out <- interfaces.StreamChunk{Content: delta.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}

		// Cancellation surfaces as a scanner error; delivered tokens stand
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			out <- interfaces.StreamChunk{Err: fmt.Errorf("stream read failed: %v: %w", err, models.ErrInferenceUnavailable)}
		}
	}()

	return out, nil
}

// mockStream emits the mock response word by word
func (s *OfflineLLMService) mockStream(ctx context.Context, messages []interfaces.Message) <-chan interfaces.StreamChunk {
	out := make(chan interfaces.StreamChunk)
	go func() {
		defer close(out)
		words := strings.SplitAfter(s.generateMockResponse(messages), " ")
		for _, word := range words {
			select {
			case out <- interfaces.StreamChunk{Content: word}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// HealthCheck verifies the LLM service is operational.
// Returns cached health status to avoid expensive checks on every request;
// a background goroutine updates the cache every 60 seconds.
func (s *OfflineLLMService) HealthCheck(ctx context.Context) error {
	if s.mockMode {
		return nil
	}

	s.healthCheckMutex.RLock()
	defer s.healthCheckMutex.RUnlock()

	return s.cachedHealthStatus
}

// refreshHealthCheck performs the actual health check and updates the cache
func (s *OfflineLLMService) refreshHealthCheck(ctx context.Context) {
	s.logger.Trace().Msg("Refreshing health check cache")

	var err error

	info, statErr := os.Stat(s.llamaServerPath)
	if statErr != nil {
		err = fmt.Errorf("llama-server binary not accessible: %w", statErr)
	} else if info.IsDir() {
		err = fmt.Errorf("llama-server path is a directory: %s", s.llamaServerPath)
	}

	if err == nil {
		if verifyErr := s.modelManager.VerifyModels(); verifyErr != nil {
			err = fmt.Errorf("model verification failed: %w", verifyErr)
		}
	}

	if err == nil && !s.checkChatServerHealth() {
		err = fmt.Errorf("chat server not responding: %w", models.ErrInferenceUnavailable)
	}

	s.healthCheckMutex.Lock()
	s.cachedHealthStatus = err
	s.healthCheckTime = time.Now()
	s.healthCheckMutex.Unlock()

	if err != nil {
		s.logger.Info().Err(err).Msg("LLM service health check failed")
	}
}

// healthCheckUpdater runs in background and refreshes the health cache
func (s *OfflineLLMService) healthCheckUpdater() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		s.refreshHealthCheck(ctx)
		cancel()
	}
}

// GetMode returns the operational mode (always offline)
func (s *OfflineLLMService) GetMode() interfaces.LLMMode {
	return interfaces.LLMModeOffline
}

// Close releases resources and stops the chat server
func (s *OfflineLLMService) Close() error {
	if s.mockMode {
		return nil
	}

	s.logger.Info().Msg("Closing offline LLM service")

	err := s.stopChatServer()

	if cleanupErr := s.cleanupOrphanedProcesses(); cleanupErr != nil {
		s.logger.Warn().Err(cleanupErr).Msg("Error during final cleanup (non-critical)")
	}

	if err != nil {
		return fmt.Errorf("llm service shutdown: %w", err)
	}

	s.logger.Info().Msg("Offline LLM service closed")
	return nil
}

// generateMockResponse creates a fake chat response for testing
func (s *OfflineLLMService) generateMockResponse(messages []interfaces.Message) string {
	if len(messages) == 0 {
		return "Mock response: No messages provided"
	}

	lastMsg := messages[len(messages)-1]
	return fmt.Sprintf("Mock response to: %s", lastMsg.Content)
}

// cleanupOrphanedProcesses finds and kills any orphaned llama-server
// processes, excluding the one this service currently manages.
func (s *OfflineLLMService) cleanupOrphanedProcesses() error {
	managedPIDs := make(map[int]bool)
	if s.chatServerCmd != nil && s.chatServerCmd.Process != nil {
		managedPIDs[s.chatServerCmd.Process.Pid] = true
	}

	if isWindows() {
		cmd := exec.Command("tasklist", "/FI", "IMAGENAME eq llama-server.exe", "/NH")
		output, err := cmd.Output()
		if err != nil {
			s.logger.Debug().Err(err).Msg("Failed to list processes (non-critical)")
			return nil
		}

		killed := 0
		for _, line := range strings.Split(string(output), "\n") {
			if !strings.Contains(line, "llama-server.exe") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			pid, err := strconv.Atoi(fields[1])
			if err != nil || managedPIDs[pid] {
				continue
			}
			s.logger.Warn().Int("pid", pid).Msg("Found orphaned llama-server process, killing")
			if exec.Command("taskkill", "/F", "/PID", fields[1]).Run() == nil {
				killed++
			}
		}
		if killed > 0 {
			s.logger.Info().Int("count", killed).Msg("Cleaned up orphaned llama-server processes")
		}
		return nil
	}

	// Unix-like: pgrep returns exit code 1 when no processes match
	output, err := exec.Command("pgrep", "llama-server").Output()
	if err != nil {
		s.logger.Debug().Msg("No orphaned llama-server processes found")
		return nil
	}

	killed := 0
	for _, pidStr := range strings.Fields(string(output)) {
		pid, err := strconv.Atoi(pidStr)
		if err != nil || managedPIDs[pid] {
			continue
		}
		s.logger.Warn().Int("pid", pid).Msg("Found orphaned llama-server process, killing")
		if exec.Command("kill", "-9", pidStr).Run() == nil {
			killed++
		}
	}
	if killed > 0 {
		s.logger.Info().Int("count", killed).Msg("Cleaned up orphaned llama-server processes")
	}

	return nil
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return os.PathSeparator == '\\' && os.PathListSeparator == ';'
}

// isProcessExitError returns true if the error is a normal process exit
func isProcessExitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "signal: killed") ||
		strings.Contains(errStr, "exit status 0")
}
