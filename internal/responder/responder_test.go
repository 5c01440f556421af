package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/lead-router/internal/models"
	"go.uber.org/zap"
)

type fakeCompleter struct {
	out    string
	err    error
	prompt string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.prompt = prompt
	return f.out, f.err
}

func ledger(n int) []*models.Message {
	msgs := make([]*models.Message, n)
	for i := range msgs {
		dir := models.DirectionInbound
		if i%2 == 1 {
			dir = models.DirectionOutbound
		}
		msgs[i] = &models.Message{Content: fmt.Sprintf("msg-%02d", i), Direction: dir}
	}
	return msgs
}

func TestRenderHistoryKeepsMostRecentWindow(t *testing.T) {
	out := RenderHistory(ledger(60))

	lines := strings.Split(out, "\n")
	require.Len(t, lines, MaxHistory+1)
	assert.Equal(t, "Cliente: msg-10", lines[1])
	assert.Equal(t, "Hotel: msg-59", lines[len(lines)-1])
	assert.NotContains(t, out, "msg-09")
}

func TestRenderHistoryEmpty(t *testing.T) {
	assert.Equal(t, "Esta é a primeira mensagem do cliente.", RenderHistory(nil))
}

func TestGPTResponderPrompt(t *testing.T) {
	fc := &fakeCompleter{out: "Claro, posso ajudar!"}
	r := NewGPTResponder(fc, 300, zap.NewNop())

	reply, err := r.Generate(context.Background(), "Quero reservar", ledger(2),
		models.Classification{Category: models.CategoryHot, Confidence: 0.9, Rationale: "data"})
	require.NoError(t, err)
	assert.Equal(t, "Claro, posso ajudar!", reply)
	assert.Contains(t, fc.prompt, "CLASSIFICAÇÃO: HOT - data")
	assert.Contains(t, fc.prompt, hotInstruction)
	assert.Contains(t, fc.prompt, "Mensagem atual do cliente: Quero reservar")

	_, err = r.Generate(context.Background(), "Oi", nil, models.Classification{Category: models.CategoryCold})
	require.NoError(t, err)
	assert.NotContains(t, fc.prompt, hotInstruction)
}

func TestGPTResponderError(t *testing.T) {
	r := NewGPTResponder(&fakeCompleter{err: errors.New("rate limited")}, 300, zap.NewNop())
	_, err := r.Generate(context.Background(), "Oi", nil, models.Classification{Category: models.CategoryCold})
	assert.Error(t, err)
}
