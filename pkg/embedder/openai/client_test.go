package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recallkit-go/pkg/embedder/openai"
	"github.com/recallkit/recallkit-go/pkg/ledger"
	"github.com/recallkit/recallkit-go/pkg/retry"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := openai.NewClient(&openai.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestEmbed(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": [{"embedding": [0.25, -0.5, 0.75], "index": 0}],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer server.Close()

	usage := ledger.New()
	client, err := openai.NewClient(&openai.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Ledger:  usage,
	})
	require.NoError(t, err)
	defer client.Close()

	vector, err := client.Embed(context.Background(), "the wifi password is potato123")

	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, -0.5, 0.75}, vector)
	assert.Equal(t, "text-embedding-3-large", gotBody["model"], "default model")
	assert.Equal(t, int64(4), usage.Snapshot().Tokens[openai.ProviderName])
}

func TestEmbedConcatenatesChunksInIndexOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Chunks deliberately out of order.
		_, _ = w.Write([]byte(`{
			"data": [
				{"embedding": [0.3, 0.4], "index": 1},
				{"embedding": [0.1, 0.2], "index": 0}
			],
			"usage": {"total_tokens": 8}
		}`))
	}))
	defer server.Close()

	client, err := openai.NewClient(&openai.Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	vector, err := client.Embed(context.Background(), "long text")

	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4}, vector)
}

func TestEmbedRetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data": [{"embedding": [0.5], "index": 0}], "usage": {"total_tokens": 2}}`))
	}))
	defer server.Close()

	client, err := openai.NewClient(&openai.Config{
		APIKey:  "k",
		BaseURL: server.URL,
		Retry:   retry.Policy{MaxAttempts: 3, Delay: time.Millisecond},
	})
	require.NoError(t, err)

	vector, err := client.Embed(context.Background(), "text")

	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, vector)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestEmbedExhaustionReturnsError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error": {"message": "broken"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := openai.NewClient(&openai.Config{
		APIKey:  "k",
		BaseURL: server.URL,
		Retry:   retry.Policy{MaxAttempts: 2, Delay: time.Millisecond},
	})
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "text")

	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDimensions(t *testing.T) {
	client, err := openai.NewClient(&openai.Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, 3072, client.Dimensions(), "text-embedding-3-large default")

	client, err = openai.NewClient(&openai.Config{APIKey: "k", Dimensions: 1536})
	require.NoError(t, err)
	assert.Equal(t, 1536, client.Dimensions())
}
