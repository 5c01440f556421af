package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xaenox/lead-router/internal/llm"
	"github.com/xaenox/lead-router/internal/models"
	"github.com/xaenox/lead-router/internal/textutil"
	"go.uber.org/zap"
)

// MaxInputRunes bounds the text sent for classification.
const MaxInputRunes = 2000

const classifyPrompt = `Classifique esta mensagem de cliente de hotel em uma das categorias:

HOT: Quer reservar agora, tem data específica, urgente
WARM: Interessado, pesquisando opções
COLD: Apenas tirando dúvidas gerais
BOOKING_READY: Pronto para fechar reserva

Mensagem: "%s"

Responda APENAS um JSON: {"category": "...", "confidence": 0.0-1.0, "reasoning": "..."}`

// gptResponse mirrors the JSON contract of the classification prompt.
type gptResponse struct {
	Category   *string  `json:"category"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Rationale  string   `json:"rationale"`
}

type GPTClassifier struct {
	completer llm.Completer
	maxTokens int
	logger    *zap.Logger
}

func NewGPTClassifier(completer llm.Completer, maxTokens int, logger *zap.Logger) *GPTClassifier {
	return &GPTClassifier{
		completer: completer,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

func (c *GPTClassifier) Classify(ctx context.Context, text string) (models.Classification, error) {
	prompt := fmt.Sprintf(classifyPrompt, textutil.Truncate(text, MaxInputRunes))

	raw, err := c.completer.Complete(ctx, prompt, c.maxTokens)
	if err != nil {
		return models.Classification{}, fmt.Errorf("classify: %w", err)
	}

	result, err := ParseClassification(raw)
	if err != nil {
		c.logger.Error("Failed to parse classification",
			zap.Error(err),
			zap.String("response", raw))
		return models.Classification{}, err
	}
	return result, nil
}

// ParseClassification decodes the structured classifier output. Markdown code
// fences around the JSON are tolerated; any other deviation is an error.
func ParseClassification(raw string) (models.Classification, error) {
	body := strings.TrimSpace(raw)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
		body = strings.TrimSpace(body)
	}

	var resp gptResponse
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&resp); err != nil {
		return models.Classification{}, fmt.Errorf("%w: %v", models.ErrMalformedClassification, err)
	}
	if dec.More() {
		return models.Classification{}, fmt.Errorf("%w: trailing data after JSON object", models.ErrMalformedClassification)
	}
	if resp.Category == nil || resp.Confidence == nil {
		return models.Classification{}, fmt.Errorf("%w: missing category or confidence", models.ErrMalformedClassification)
	}

	result := models.Classification{
		Category:   models.Category(*resp.Category),
		Confidence: *resp.Confidence,
		Rationale:  resp.Reasoning,
	}
	if result.Rationale == "" {
		result.Rationale = resp.Rationale
	}
	if err := result.Validate(); err != nil {
		return models.Classification{}, err
	}
	return result, nil
}

