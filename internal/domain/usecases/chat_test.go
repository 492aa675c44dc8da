package usecases

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
	"github.com/0xcro3dile/lograg-go/internal/domain/ports"
)

var sampleRows = entities.RetrievalResult{
	{Row: entities.RowRecord{ID: 4, Text: "level: error | message: disk full"}, Score: 0.91234},
	{Row: entities.RowRecord{ID: 1, Text: "level: info | message: startup"}, Score: 0.5},
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("Why did the service stop?", sampleRows)

	assert.Contains(t, prompt, "using only the log rows below")
	assert.Contains(t, prompt, "does not contain")
	assert.Contains(t, prompt, "[row 4] similarity=0.9123\nlevel: error | message: disk full")
	assert.Contains(t, prompt, "[row 1] similarity=0.5000\nlevel: info | message: startup")
	assert.True(t, strings.Index(prompt, "[row 4]") < strings.Index(prompt, "[row 1]"), "rows keep retrieval order")
	assert.True(t, strings.HasSuffix(prompt, "Question: Why did the service stop?\n\nAnswer:"))
}

func TestChatEngine_Answer(t *testing.T) {
	llm := &mockLLM{response: "Row 4 shows the disk filled up."}
	engine := NewChatEngine(llm, time.Second)

	answer, err := engine.Answer(context.Background(), "why?", sampleRows)

	require.NoError(t, err)
	assert.Equal(t, "Row 4 shows the disk filled up.", answer)
	assert.Contains(t, llm.lastPrompt(), "Question: why?")
}

func TestChatEngine_EmptyAnswer(t *testing.T) {
	engine := NewChatEngine(&mockLLM{generateFn: func(ctx context.Context, prompt string) (string, error) {
		return "  \n", nil
	}}, time.Second)

	_, err := engine.Answer(context.Background(), "why?", sampleRows)

	assert.ErrorIs(t, err, errs.ErrChatModelUnavailable)
}

func TestChatEngine_Timeout(t *testing.T) {
	engine := NewChatEngine(&mockLLM{generateFn: func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}, 20*time.Millisecond)

	_, err := engine.Answer(context.Background(), "why?", sampleRows)

	assert.ErrorIs(t, err, errs.ErrChatModelTimeout)
}

func TestChatEngine_Unavailable(t *testing.T) {
	engine := NewChatEngine(&mockLLM{err: errors.New("connection refused")}, time.Second)

	_, err := engine.Answer(context.Background(), "why?", sampleRows)

	assert.ErrorIs(t, err, errs.ErrChatModelUnavailable)
}

func drain(ch <-chan ports.StreamToken) (string, error) {
	var sb strings.Builder
	for tok := range ch {
		if tok.Error != nil {
			return sb.String(), tok.Error
		}
		sb.WriteString(tok.Content)
	}
	return sb.String(), nil
}

func TestChatEngine_AnswerStream(t *testing.T) {
	engine := NewChatEngine(&mockLLM{tokens: []ports.StreamToken{
		{Content: "disk "}, {Content: "full"}, {Content: "", Done: true},
	}}, time.Second)

	ch, err := engine.AnswerStream(context.Background(), "why?", sampleRows)
	require.NoError(t, err)

	answer, err := drain(ch)
	require.NoError(t, err)
	assert.Equal(t, "disk full", answer)
}

func TestChatEngine_AnswerStreamEmpty(t *testing.T) {
	engine := NewChatEngine(&mockLLM{tokens: []ports.StreamToken{{Done: true}}}, time.Second)

	ch, err := engine.AnswerStream(context.Background(), "why?", sampleRows)
	require.NoError(t, err)

	_, err = drain(ch)
	assert.ErrorIs(t, err, errs.ErrChatModelUnavailable)
}

func TestChatEngine_AnswerStreamTruncated(t *testing.T) {
	engine := NewChatEngine(&mockLLM{tokens: []ports.StreamToken{{Content: "disk"}}}, time.Second)

	ch, err := engine.AnswerStream(context.Background(), "why?", sampleRows)
	require.NoError(t, err)

	_, err = drain(ch)
	assert.ErrorIs(t, err, errs.ErrChatModelUnavailable)
}

func TestChatEngine_AnswerStreamOpenFailure(t *testing.T) {
	engine := NewChatEngine(&mockLLM{err: errors.New("refused")}, time.Second)

	_, err := engine.AnswerStream(context.Background(), "why?", sampleRows)

	assert.ErrorIs(t, err, errs.ErrChatModelUnavailable)
}
