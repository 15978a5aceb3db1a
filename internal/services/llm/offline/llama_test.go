package offline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sermo/internal/interfaces"
)

func TestMockService_Chat(t *testing.T) {
	service := NewMockOfflineLLMService(arbor.NewLogger())
	defer service.Close()

	ctx := context.Background()

	response, err := service.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: "You are helpful"},
		{Role: "user", Content: "Hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: Hello", response)

	assert.Equal(t, interfaces.LLMModeOffline, service.GetMode())
	assert.NoError(t, service.HealthCheck(ctx))
}

func TestMockService_ChatStream(t *testing.T) {
	service := NewMockOfflineLLMService(arbor.NewLogger())
	defer service.Close()

	stream, err := service.ChatStream(context.Background(), []interfaces.Message{
		{Role: "user", Content: "stream this"},
	})
	require.NoError(t, err)

	var builder strings.Builder
	for chunk := range stream {
		require.NoError(t, chunk.Err)
		builder.WriteString(chunk.Content)
	}
	assert.Equal(t, "Mock response to: stream this", builder.String())
}

func TestMockService_ChatStream_Cancelled(t *testing.T) {
	service := NewMockOfflineLLMService(arbor.NewLogger())
	defer service.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := service.ChatStream(ctx, []interfaces.Message{
		{Role: "user", Content: "a reply with several words in it"},
	})
	require.NoError(t, err)

	<-stream
	cancel()

	// Channel closes without an error chunk
	for chunk := range stream {
		assert.NoError(t, chunk.Err)
	}
}

func TestBuildChatRequest(t *testing.T) {
	service := NewMockOfflineLLMService(arbor.NewLogger())
	defer service.Close()

	payload, err := service.buildChatRequest([]interfaces.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	}, true)
	require.NoError(t, err)

	body := string(payload)
	assert.Contains(t, body, `"stream":true`)
	assert.Contains(t, body, `"role":"system"`)
	assert.Contains(t, body, `"content":"hi"`)
}

func TestModelManager_VerifyModels(t *testing.T) {
	logger := arbor.NewLogger()
	tmpDir := t.TempDir()

	manager := NewModelManager(tmpDir, "missing.gguf", logger)
	assert.Error(t, manager.VerifyModels(), "missing model file must fail verification")

	chatPath := filepath.Join(tmpDir, "chat.gguf")
	require.NoError(t, os.WriteFile(chatPath, []byte("model bytes"), 0644))

	manager = NewModelManager(tmpDir, "chat.gguf", logger)
	assert.NoError(t, manager.VerifyModels())
	assert.Equal(t, chatPath, manager.GetChatModelPath())
}

func TestModelManager_EmptyModelFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "empty.gguf"), nil, 0644))

	manager := NewModelManager(tmpDir, "empty.gguf", arbor.NewLogger())
	assert.Error(t, manager.VerifyModels(), "zero-byte model file must fail verification")
}
