package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/sermo/internal/interfaces"
)

type stubKeyStore map[string]string

func (s stubKeyStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := s[key]
	if !ok {
		return "", interfaces.ErrKeyNotFound
	}
	return value, nil
}

func TestResolveAPIKey(t *testing.T) {
	ctx := context.Background()

	t.Run("store wins over fallback", func(t *testing.T) {
		key, err := ResolveAPIKey(ctx, stubKeyStore{"anthropic_api_key": "sk-stored"}, "anthropic_api_key", "sk-config")
		require.NoError(t, err)
		assert.Equal(t, "sk-stored", key)
	})

	t.Run("fallback when store misses", func(t *testing.T) {
		key, err := ResolveAPIKey(ctx, stubKeyStore{}, "anthropic_api_key", "sk-config")
		require.NoError(t, err)
		assert.Equal(t, "sk-config", key)
	})

	t.Run("nil store uses fallback", func(t *testing.T) {
		key, err := ResolveAPIKey(ctx, nil, "gemini_api_key", " sk-config ")
		require.NoError(t, err)
		assert.Equal(t, "sk-config", key, "fallback is trimmed")
	})

	t.Run("whitespace store value skipped", func(t *testing.T) {
		key, err := ResolveAPIKey(ctx, stubKeyStore{"gemini_api_key": "   "}, "gemini_api_key", "sk-config")
		require.NoError(t, err)
		assert.Equal(t, "sk-config", key)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := ResolveAPIKey(ctx, stubKeyStore{}, "gemini_api_key", "")
		assert.Error(t, err)
	})
}
