package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/sermo/internal/interfaces"
)

// ResolveAPIKey resolves an API key with KV-first resolution order: the
// key-value store wins over the config fallback. The store may be nil when
// storage is not wired, in which case only the fallback is consulted.
func ResolveAPIKey(ctx context.Context, store interfaces.KeyValueStore, name, fallback string) (string, error) {
	if store != nil {
		if value, err := store.Get(ctx, name); err == nil && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), nil
		}
	}

	if strings.TrimSpace(fallback) != "" {
		return strings.TrimSpace(fallback), nil
	}

	return "", fmt.Errorf("API key %q not found in store or configuration", name)
}
