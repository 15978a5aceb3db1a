package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sermo/internal/common"
	"github.com/ternarybob/sermo/internal/interfaces"
	"github.com/ternarybob/sermo/internal/models"
	"github.com/ternarybob/sermo/internal/rag"
	"github.com/ternarybob/sermo/internal/services/sources"
)

// stubLLM replays a fixed response through both completion paths
type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubLLM) ChatStream(ctx context.Context, messages []interfaces.Message) (<-chan interfaces.StreamChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(chan interfaces.StreamChunk)
	go func() {
		defer close(out)
		for _, word := range strings.SplitAfter(s.response, " ") {
			out <- interfaces.StreamChunk{Content: word}
		}
	}()
	return out, nil
}

func (s *stubLLM) HealthCheck(ctx context.Context) error { return nil }
func (s *stubLLM) GetMode() interfaces.LLMMode           { return interfaces.LLMModeOffline }
func (s *stubLLM) Close() error                          { return nil }

func testRAGConfig() *common.RAGConfig {
	return &common.RAGConfig{
		ChunkSize:            1500,
		SmallCorpusThreshold: 8000,
		ChatTopChunks:        3,
		APITopChunks:         5,
		SessionDocumentCap:   50000,
	}
}

func newTestInstance(t *testing.T, llm interfaces.LLMService) *Instance {
	t.Helper()

	registry := sources.NewRegistry()
	registry.Register(models.SourceTypeText, sources.NewTextProvider())

	engine := rag.NewEngine("payroll", registry, rag.NewChunker(1500), rag.NewScorer(rag.ScorerConfig{}), arbor.NewLogger())
	_, err := engine.AddSource(context.Background(), &models.Source{
		ID:              "src_1",
		KnowledgeBaseID: "kb_1",
		Type:            models.SourceTypeText,
		Name:            "payslips",
		Location:        "Gross salary 50000. TDS deducted 4000 per quarter.",
		Enabled:         true,
	})
	require.NoError(t, err)

	kb := &models.KnowledgeBase{
		ID:           "kb_1",
		Name:         "payroll",
		Port:         18087,
		SystemPrompt: "You answer payroll questions.",
	}

	return NewInstance(kb, engine, llm, testRAGConfig(), "test-model", arbor.NewLogger())
}

func chatBody(t *testing.T, messages ...chatMessage) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(chatRequest{Messages: messages})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestInstance_Health(t *testing.T) {
	instance := newTestInstance(t, &stubLLM{response: "ok"})
	server := httptest.NewServer(instance.routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, "payroll", payload["service"])
}

func TestInstance_StatusPage(t *testing.T) {
	instance := newTestInstance(t, &stubLLM{response: "ok"})
	server := httptest.NewServer(instance.routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestInstance_UnknownPath(t *testing.T) {
	instance := newTestInstance(t, &stubLLM{response: "ok"})
	server := httptest.NewServer(instance.routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/no/such/path")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInstance_CORSPreflight(t *testing.T) {
	instance := newTestInstance(t, &stubLLM{response: "ok"})
	server := httptest.NewServer(instance.routes())
	defer server.Close()

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/chat", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestInstance_Chat(t *testing.T) {
	instance := newTestInstance(t, &stubLLM{response: "The quarterly TDS is 4000."})
	server := httptest.NewServer(instance.routes())
	defer server.Close()

	resp, err := http.Post(server.URL+"/chat", "application/json",
		chatBody(t, chatMessage{Role: "user", Content: "How much TDS?"}))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload chatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "test-model", payload.Model)
	assert.Equal(t, "The quarterly TDS is 4000.", payload.Content)
	assert.Equal(t, 5, payload.TokenCount)
}

func TestInstance_Chat_EmptyMessages(t *testing.T) {
	instance := newTestInstance(t, &stubLLM{response: "unused"})
	server := httptest.NewServer(instance.routes())
	defer server.Close()

	resp, err := http.Post(server.URL+"/chat", "application/json", chatBody(t))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInstance_Chat_InvalidJSON(t *testing.T) {
	instance := newTestInstance(t, &stubLLM{response: "unused"})
	server := httptest.NewServer(instance.routes())
	defer server.Close()

	resp, err := http.Post(server.URL+"/chat", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInstance_Chat_InferenceFailure(t *testing.T) {
	llm := &stubLLM{err: fmt.Errorf("backend gone: %w", models.ErrInferenceUnavailable)}
	instance := newTestInstance(t, llm)
	server := httptest.NewServer(instance.routes())
	defer server.Close()

	resp, err := http.Post(server.URL+"/chat", "application/json",
		chatBody(t, chatMessage{Role: "user", Content: "hello"}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, buf.String(), "error responses carry no body")
}

func TestInstance_ChatStream_InferenceFailure(t *testing.T) {
	llm := &stubLLM{err: fmt.Errorf("backend gone: %w", models.ErrInferenceUnavailable)}
	instance := newTestInstance(t, llm)
	server := httptest.NewServer(instance.routes())
	defer server.Close()

	resp, err := http.Post(server.URL+"/chat/stream", "application/json",
		chatBody(t, chatMessage{Role: "user", Content: "hello"}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestInstance_Chat_UnexpectedFailure(t *testing.T) {
	llm := &stubLLM{err: fmt.Errorf("connection reset")}
	instance := newTestInstance(t, llm)
	server := httptest.NewServer(instance.routes())
	defer server.Close()

	resp, err := http.Post(server.URL+"/chat", "application/json",
		chatBody(t, chatMessage{Role: "user", Content: "hello"}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestInstance_ChatStream(t *testing.T) {
	instance := newTestInstance(t, &stubLLM{response: "streamed words here"})
	server := httptest.NewServer(instance.routes())
	defer server.Close()

	resp, err := http.Post(server.URL+"/chat/stream", "application/json",
		chatBody(t, chatMessage{Role: "user", Content: "hello"}))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	raw := buf.String()

	var builder strings.Builder
	sawDone := false
	for _, line := range strings.Split(raw, "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if payload == "[DONE]" {
			sawDone = true
			break
		}
		var frame streamFrame
		require.NoError(t, json.Unmarshal([]byte(payload), &frame))
		builder.WriteString(frame.Content)
	}

	assert.True(t, sawDone, "stream must terminate with a [DONE] frame")
	assert.Equal(t, "streamed words here", builder.String())
}

func TestInstance_RequestCounting(t *testing.T) {
	instance := newTestInstance(t, &stubLLM{response: "ok"})
	server := httptest.NewServer(instance.routes())
	defer server.Close()

	for range 3 {
		resp, err := http.Get(server.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, int64(3), instance.RequestCount())
}

func TestInstance_StartStop(t *testing.T) {
	instance := newTestInstance(t, &stubLLM{response: "ok"})
	assert.Equal(t, StateStopped, instance.State())

	require.NoError(t, instance.Start())
	assert.Equal(t, StateRunning, instance.State())

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", instance.KnowledgeBase().Port))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, instance.Stop(context.Background()))
	assert.Equal(t, StateStopped, instance.State())
}

// Rapid restart cycles exercise the serve goroutine racing Stop, which
// nils the server fields as soon as Shutdown returns.
func TestInstance_StartStopCycling(t *testing.T) {
	instance := newTestInstance(t, &stubLLM{response: "ok"})

	for cycle := 0; cycle < 50; cycle++ {
		require.NoError(t, instance.Start(), "cycle %d", cycle)
		require.NoError(t, instance.Stop(context.Background()), "cycle %d", cycle)
	}
	assert.Equal(t, StateStopped, instance.State())
}

func TestInstance_Start_PortInUse(t *testing.T) {
	first := newTestInstance(t, &stubLLM{response: "ok"})
	require.NoError(t, first.Start())
	defer first.Stop(context.Background())

	second := newTestInstance(t, &stubLLM{response: "ok"})
	err := second.Start()
	require.Error(t, err, "binding an occupied port must fail loudly")
	assert.Equal(t, StateStopped, second.State())
}
