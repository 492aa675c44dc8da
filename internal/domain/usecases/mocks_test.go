package usecases

import (
	"context"
	"strings"
	"sync"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/ports"
)

// keywords spans the vector space of mockEmbedder.
var keywords = []string{"error", "info", "disk", "startup", "timeout"}

// mockEmbedder implements ports.EmbeddingService by counting keywords.
type mockEmbedder struct {
	model   string
	embedFn func(ctx context.Context, text string) (entities.EmbeddingVector, error)

	mu         sync.Mutex
	calls      int
	batchCalls int
	texts      []string
}

func (m *mockEmbedder) Model() string {
	if m.model == "" {
		return "mock-embed"
	}
	return m.model
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (entities.EmbeddingVector, error) {
	m.mu.Lock()
	m.calls++
	m.texts = append(m.texts, text)
	m.mu.Unlock()

	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return keywordVector(text), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]entities.EmbeddingVector, error) {
	m.mu.Lock()
	m.batchCalls++
	m.mu.Unlock()

	result := make([]entities.EmbeddingVector, len(texts))
	for i := range texts {
		emb, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		result[i] = emb
	}
	return result, nil
}

func (m *mockEmbedder) embedded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func keywordVector(text string) entities.EmbeddingVector {
	lower := strings.ToLower(text)
	v := make(entities.EmbeddingVector, len(keywords))
	for i, k := range keywords {
		v[i] = float32(strings.Count(lower, k))
	}
	return v
}

// mockLLM implements ports.LLMService for testing.
type mockLLM struct {
	response   string
	err        error
	generateFn func(ctx context.Context, prompt string) (string, error)
	tokens     []ports.StreamToken

	mu      sync.Mutex
	prompts []string
}

func (m *mockLLM) Model() string { return "mock-chat" }

func (m *mockLLM) record(prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
}

func (m *mockLLM) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

func (m *mockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.record(prompt)
	if m.generateFn != nil {
		return m.generateFn(ctx, prompt)
	}
	if m.err != nil {
		return "", m.err
	}
	if m.response != "" {
		return m.response, nil
	}
	return "mocked answer", nil
}

func (m *mockLLM) GenerateStream(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	m.record(prompt)
	if m.err != nil {
		return nil, m.err
	}
	tokens := m.tokens
	if tokens == nil {
		tokens = []ports.StreamToken{{Content: "mocked "}, {Content: "answer", Done: true}}
	}
	ch := make(chan ports.StreamToken, len(tokens))
	go func() {
		defer close(ch)
		for _, tok := range tokens {
			ch <- tok
		}
	}()
	return ch, nil
}

// mockCache implements ports.EmbeddingCache in memory.
type mockCache struct {
	mu      sync.Mutex
	entries map[string]entities.EmbeddingVector
	getErr  error
	puts    int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]entities.EmbeddingVector)}
}

func (c *mockCache) Get(ctx context.Context, model string, hashes []string) (map[string]entities.EmbeddingVector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	found := make(map[string]entities.EmbeddingVector)
	for _, h := range hashes {
		if v, ok := c.entries[model+"/"+h]; ok {
			found[h] = v
		}
	}
	return found, nil
}

func (c *mockCache) Put(ctx context.Context, model string, entries []ports.CachedEmbedding) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	for _, e := range entries {
		c.entries[model+"/"+e.ContentHash] = e.Vector
	}
	return nil
}

// progressRecorder collects progress reports.
type progressRecorder struct {
	mu      sync.Mutex
	reports []entities.Progress
}

func (p *progressRecorder) ReportProgress(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, entities.Progress{RowsDone: done, RowsTotal: total})
}

func rowsOf(texts ...string) []entities.RowRecord {
	rows := make([]entities.RowRecord, len(texts))
	for i, t := range texts {
		rows[i] = entities.RowRecord{ID: i, Text: t, SourceRowIndex: i}
	}
	return rows
}
