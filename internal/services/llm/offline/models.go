package offline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
)

// ModelManager handles model file verification and path management
type ModelManager struct {
	modelDir  string
	chatModel string
	logger    arbor.ILogger
}

// NewModelManager creates a new model manager instance
func NewModelManager(modelDir, chatModel string, logger arbor.ILogger) *ModelManager {
	return &ModelManager{
		modelDir:  modelDir,
		chatModel: chatModel,
		logger:    logger,
	}
}

// VerifyModels checks that the chat model file exists and is readable
func (m *ModelManager) VerifyModels() error {
	chatPath := m.GetChatModelPath()

	info, err := os.Stat(chatPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("chat model not found: %s", chatPath)
		}
		return fmt.Errorf("cannot access chat model: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("chat model path is a directory: %s", chatPath)
	}
	if info.Size() == 0 {
		return fmt.Errorf("chat model file is empty: %s", chatPath)
	}

	m.logger.Debug().
		Str("path", chatPath).
		Int64("size", info.Size()).
		Msg("Verified chat model")

	return nil
}

// GetChatModelPath returns the full path to the chat model file
func (m *ModelManager) GetChatModelPath() string {
	return filepath.Join(m.modelDir, m.chatModel)
}
