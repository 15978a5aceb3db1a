package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sermo/internal/common"
	"github.com/ternarybob/sermo/internal/interfaces"
	"github.com/ternarybob/sermo/internal/storage/badger"
)

func newKVServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := arbor.NewLogger()
	storage, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	handler := NewKVHandler(storage.KeyValueStorage(), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/keys", handler.CollectionHandler)
	mux.HandleFunc("/api/keys/", handler.ItemHandler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "****", maskValue("abc"))
	assert.Equal(t, "****", maskValue("abcd"))
	assert.Equal(t, "********6789", maskValue("sk-123456789"))
}

func TestKVHandler_SetListDelete(t *testing.T) {
	server := newKVServer(t)

	body, _ := json.Marshal(map[string]string{
		"key":         "anthropic_api_key",
		"value":       "sk-super-secret-1234",
		"description": "cloud key",
	})
	resp, err := http.Post(server.URL+"/api/keys", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/api/keys")
	require.NoError(t, err)
	defer resp.Body.Close()

	var pairs []interfaces.KeyValuePair
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pairs))
	require.Len(t, pairs, 1)
	assert.Equal(t, "anthropic_api_key", pairs[0].Key)
	assert.NotContains(t, pairs[0].Value, "secret", "stored values are masked on read")
	assert.Equal(t, "1234", pairs[0].Value[len(pairs[0].Value)-4:])

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/keys/anthropic_api_key", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)
}

func TestKVHandler_DeleteMissing(t *testing.T) {
	server := newKVServer(t)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/keys/never_set", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestKVHandler_SetValidation(t *testing.T) {
	server := newKVServer(t)

	body, _ := json.Marshal(map[string]string{"key": "", "value": "x"})
	resp, err := http.Post(server.URL+"/api/keys", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
