package embedding

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

	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
)

func TestOllamaAdapter_Embed(t *testing.T) {
	// Mock Ollama server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "test-model" || req.Prompt != "hello" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": []float32{0.1, 0.2, 0.3},
		})
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(server.URL, "test-model")
	emb, err := adapter.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Len(t, emb, 3)
	assert.Equal(t, "test-model", adapter.Model())
}

func TestOllamaAdapter_EmbedBatch(t *testing.T) {
	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&callCount, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": []float32{float32(n) * 0.1, 1},
		})
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(server.URL, "test-model")
	results, err := adapter.EmbedBatch(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.EqualValues(t, 3, atomic.LoadInt32(&callCount))
}

func TestOllamaAdapter_EmbedBatchDimensionMismatch(t *testing.T) {
	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&callCount, 1)
		vec := []float32{1, 2}
		if n == 2 {
			vec = []float32{1, 2, 3}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": vec})
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(server.URL, "test-model")
	_, err := adapter.EmbedBatch(context.Background(), []string{"a", "b"})

	assert.ErrorIs(t, err, errs.ErrEmbeddingDimensionMismatch)
}

func TestOllamaAdapter_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(server.URL, "test")
	_, err := adapter.Embed(context.Background(), "test")

	assert.ErrorIs(t, err, errs.ErrEmbeddingUnavailable)
}

func TestOllamaAdapter_ModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"missing\" not found, try pulling it first"}`))
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(server.URL, "missing")
	_, err := adapter.Embed(context.Background(), "test")

	require.ErrorIs(t, err, errs.ErrEmbeddingUnavailable)
	assert.Contains(t, err.Error(), "not found")
}

func TestOllamaAdapter_EmptyEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[]}`))
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(server.URL, "test")
	_, err := adapter.Embed(context.Background(), "test")

	assert.ErrorIs(t, err, errs.ErrEmbeddingUnavailable)
}

func TestOllamaAdapter_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	adapter := NewOllamaAdapter(url, "test")
	_, err := adapter.Embed(context.Background(), "test")

	assert.ErrorIs(t, err, errs.ErrEmbeddingUnavailable)
}

func TestOllamaAdapter_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(server.URL, "test")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := adapter.Embed(ctx, "test")

	require.ErrorIs(t, err, errs.ErrEmbeddingUnavailable)
	assert.True(t, errs.IsTimeout(err))
}

func TestOllamaAdapter_DefaultValues(t *testing.T) {
	adapter := NewOllamaAdapter("", "")
	assert.Equal(t, "http://localhost:11434", adapter.baseURL)
	assert.Equal(t, "nomic-embed-text", adapter.model)
}
