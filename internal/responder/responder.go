// Package responder drafts the bot reply for an inbound lead message.
package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/lead-router/internal/llm"
	"github.com/xaenox/lead-router/internal/models"
	"go.uber.org/zap"
)

// MaxHistory is the number of most recent ledger entries rendered into the
// reply prompt.
const MaxHistory = 50

// Responder produces the default reply text for a message.
type Responder interface {
	Generate(ctx context.Context, text string, history []*models.Message, classification models.Classification) (string, error)
}

const systemPrompt = `Você é um assistente virtual de um hotel de luxo em São Paulo. Atenda o cliente com educação e dê informações apenas quando perguntado, sempre tentando entender o que o cliente precisa. Quando houver grande chance de venda, peça para o cliente aguardar que você chamará um humano. Responda sempre com mensagens curtas.

INFORMAÇÕES DO HOTEL:
- Nome: Hotel Paradise São Paulo
- Localização: Zona Sul de São Paulo
- Check-in: 14h | Check-out: 12h
- Amenidades: Piscina, Academia, Restaurante, Spa, Wi-Fi gratuito
- Quartos: Standard (R$ 350/diária), Luxo (R$ 500/diária), Suíte Master (R$ 800/diária)
- Café da manhã incluso em todas as diárias

REGRAS IMPORTANTES:
- NUNCA confirme uma reserva diretamente (sempre passe para humano)
- Não invente preços, promoções ou disponibilidade
- Seja breve mas completo, com linguagem natural`

const hotInstruction = "IMPORTANTE: O cliente quer reservar. Seja proativo, mas informe que vai conectar com um especialista para confirmar a reserva."

type GPTResponder struct {
	completer llm.Completer
	maxTokens int
	logger    *zap.Logger
}

func NewGPTResponder(completer llm.Completer, maxTokens int, logger *zap.Logger) *GPTResponder {
	return &GPTResponder{
		completer: completer,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

func (r *GPTResponder) Generate(ctx context.Context, text string, history []*models.Message, classification models.Classification) (string, error) {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	b.WriteString(RenderHistory(history))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "CLASSIFICAÇÃO: %s - %s\n", classification.Category, classification.Rationale)
	if classification.IsHot() {
		b.WriteString(hotInstruction)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nMensagem atual do cliente: %s\n\n", text)
	b.WriteString("Responda de forma natural e contextualizada, considerando todo o histórico da conversa.")

	reply, err := r.completer.Complete(ctx, b.String(), r.maxTokens)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return reply, nil
}

// RenderHistory formats the most recent MaxHistory entries as alternating
// speaker lines.
func RenderHistory(history []*models.Message) string {
	if len(history) == 0 {
		return "Esta é a primeira mensagem do cliente."
	}
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}

	var b strings.Builder
	b.WriteString("HISTÓRICO DA CONVERSA:\n")
	for _, msg := range history {
		speaker := "Hotel"
		if msg.Direction == models.DirectionInbound {
			speaker = "Cliente"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, msg.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
