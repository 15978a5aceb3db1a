package apiserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sermo/internal/interfaces"
	"github.com/ternarybob/sermo/internal/models"
	"github.com/ternarybob/sermo/internal/services/sources"
)

// memoryStorage is an in-memory StorageManager for manager tests
type memoryStorage struct {
	kb  map[string]*models.KnowledgeBase
	src map[string]*models.Source
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{
		kb:  make(map[string]*models.KnowledgeBase),
		src: make(map[string]*models.Source),
	}
}

func (m *memoryStorage) KnowledgeBaseStorage() interfaces.KnowledgeBaseStorage {
	return &memoryKBStore{m}
}
func (m *memoryStorage) SourceStorage() interfaces.SourceStorage     { return &memorySourceStore{m} }
func (m *memoryStorage) KeyValueStorage() interfaces.KeyValueStorage { return nil }
func (m *memoryStorage) Close() error                                { return nil }

type memoryKBStore struct{ parent *memoryStorage }

func (s *memoryKBStore) Save(ctx context.Context, kb *models.KnowledgeBase) error {
	s.parent.kb[kb.ID] = kb
	return nil
}

func (s *memoryKBStore) Get(ctx context.Context, id string) (*models.KnowledgeBase, error) {
	kb, ok := s.parent.kb[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return kb, nil
}

func (s *memoryKBStore) List(ctx context.Context) ([]*models.KnowledgeBase, error) {
	var out []*models.KnowledgeBase
	for _, kb := range s.parent.kb {
		out = append(out, kb)
	}
	return out, nil
}

func (s *memoryKBStore) Delete(ctx context.Context, id string) error {
	delete(s.parent.kb, id)
	return nil
}

type memorySourceStore struct{ parent *memoryStorage }

func (s *memorySourceStore) Save(ctx context.Context, source *models.Source) error {
	s.parent.src[source.ID] = source
	return nil
}

func (s *memorySourceStore) Get(ctx context.Context, id string) (*models.Source, error) {
	src, ok := s.parent.src[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return src, nil
}

func (s *memorySourceStore) ListByKnowledgeBase(ctx context.Context, knowledgeBaseID string) ([]*models.Source, error) {
	var out []*models.Source
	for _, src := range s.parent.src {
		if src.KnowledgeBaseID == knowledgeBaseID {
			out = append(out, src)
		}
	}
	return out, nil
}

func (s *memorySourceStore) Delete(ctx context.Context, id string) error {
	delete(s.parent.src, id)
	return nil
}

func (s *memorySourceStore) DeleteByKnowledgeBase(ctx context.Context, knowledgeBaseID string) (int, error) {
	count := 0
	for id, src := range s.parent.src {
		if src.KnowledgeBaseID == knowledgeBaseID {
			delete(s.parent.src, id)
			count++
		}
	}
	return count, nil
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	return port
}

func newTestManager(t *testing.T) (*Manager, *memoryStorage) {
	t.Helper()

	registry := sources.NewRegistry()
	registry.Register(models.SourceTypeText, sources.NewTextProvider())

	storage := newMemoryStorage()
	manager := NewManager(storage, registry, &stubLLM{response: "ok"}, testRAGConfig(), "test-model", arbor.NewLogger())
	return manager, storage
}

func seedKnowledgeBase(storage *memoryStorage, id string, port int) {
	storage.kb[id] = &models.KnowledgeBase{ID: id, Name: "kb " + id, Port: port}
	storage.src["src_"+id+"_1"] = &models.Source{
		ID:              "src_" + id + "_1",
		KnowledgeBaseID: id,
		Type:            models.SourceTypeText,
		Name:            "inline",
		Location:        "Some corpus text for " + id + ".",
		Enabled:         true,
	}
	storage.src["src_"+id+"_disabled"] = &models.Source{
		ID:              "src_" + id + "_disabled",
		KnowledgeBaseID: id,
		Type:            models.SourceTypeText,
		Name:            "disabled",
		Location:        "Never ingested.",
		Enabled:         false,
	}
}

func TestManager_StartInstance(t *testing.T) {
	manager, storage := newTestManager(t)
	ctx := context.Background()

	port := freePort(t)
	seedKnowledgeBase(storage, "kb_1", port)

	require.NoError(t, manager.StartInstance(ctx, "kb_1"))
	defer manager.StopAll(ctx)

	assert.Equal(t, StateRunning, manager.State("kb_1"))

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Disabled sources never reach the corpus
	engine, ok := manager.Engine("kb_1")
	require.True(t, ok)
	assert.Equal(t, 1, engine.Stats().TotalDocuments)
}

func TestManager_StartInstance_AlreadyRunning(t *testing.T) {
	manager, storage := newTestManager(t)
	ctx := context.Background()

	seedKnowledgeBase(storage, "kb_1", freePort(t))

	require.NoError(t, manager.StartInstance(ctx, "kb_1"))
	defer manager.StopAll(ctx)

	// Second start is a silent no-op, not an error
	require.NoError(t, manager.StartInstance(ctx, "kb_1"))
	assert.Equal(t, StateRunning, manager.State("kb_1"))
}

func TestManager_StartInstance_UnknownKnowledgeBase(t *testing.T) {
	manager, _ := newTestManager(t)

	err := manager.StartInstance(context.Background(), "kb_missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestManager_StartInstance_FailedSourceExcluded(t *testing.T) {
	manager, storage := newTestManager(t)
	ctx := context.Background()

	port := freePort(t)
	seedKnowledgeBase(storage, "kb_1", port)
	storage.src["src_bad"] = &models.Source{
		ID:              "src_bad",
		KnowledgeBaseID: "kb_1",
		Type:            "unsupported-kind",
		Name:            "bad",
		Location:        "x",
		Enabled:         true,
	}

	// One bad source does not keep the knowledge base offline
	require.NoError(t, manager.StartInstance(ctx, "kb_1"))
	defer manager.StopAll(ctx)

	engine, ok := manager.Engine("kb_1")
	require.True(t, ok)
	assert.Equal(t, 1, engine.Stats().TotalDocuments)
}

func TestManager_StopInstance(t *testing.T) {
	manager, storage := newTestManager(t)
	ctx := context.Background()

	seedKnowledgeBase(storage, "kb_1", freePort(t))
	require.NoError(t, manager.StartInstance(ctx, "kb_1"))

	require.NoError(t, manager.StopInstance(ctx, "kb_1"))
	assert.Equal(t, StateStopped, manager.State("kb_1"))

	_, ok := manager.Instance("kb_1")
	assert.False(t, ok)
}

func TestManager_StopInstance_NotRunning(t *testing.T) {
	manager, _ := newTestManager(t)
	assert.NoError(t, manager.StopInstance(context.Background(), "kb_never_started"))
}

func TestManager_StopAll(t *testing.T) {
	manager, storage := newTestManager(t)
	ctx := context.Background()

	seedKnowledgeBase(storage, "kb_1", freePort(t))
	seedKnowledgeBase(storage, "kb_2", freePort(t))

	require.NoError(t, manager.StartInstance(ctx, "kb_1"))
	require.NoError(t, manager.StartInstance(ctx, "kb_2"))

	manager.StopAll(ctx)

	assert.Equal(t, StateStopped, manager.State("kb_1"))
	assert.Equal(t, StateStopped, manager.State("kb_2"))
}
