package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
)

func TestOpenAIAdapter_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "test-chat",
			"choices": []map[string]interface{}{
				{"index": 0, "finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": "Row 0 says disk full."}},
			},
		})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(server.URL, "", "test-chat", time.Second)
	answer, err := adapter.Generate(context.Background(), "what failed?")

	require.NoError(t, err)
	assert.Equal(t, "Row 0 says disk full.", answer)
	assert.Equal(t, "test-chat", adapter.Model())
}

func TestOpenAIAdapter_GenerateNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(server.URL, "", "test-chat", time.Second)
	_, err := adapter.Generate(context.Background(), "q")

	assert.ErrorIs(t, err, errs.ErrChatModelUnavailable)
}

func TestOpenAIAdapter_GenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"disk", " full"} {
			chunk, _ := json.Marshal(map[string]interface{}{
				"id":      "cmpl-1",
				"object":  "chat.completion.chunk",
				"choices": []map[string]interface{}{{"index": 0, "delta": map[string]string{"content": part}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(server.URL, "", "test-chat", time.Second)
	ch, err := adapter.GenerateStream(context.Background(), "q")
	require.NoError(t, err)

	answer, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "disk full", answer)
}

func TestOpenAIAdapter_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(server.URL, "", "test-chat", time.Second)
	_, err := adapter.Generate(context.Background(), "q")

	assert.ErrorIs(t, err, errs.ErrChatModelUnavailable)
}
