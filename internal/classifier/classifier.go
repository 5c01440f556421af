package classifier

import (
	"context"
	"regexp"
	"strings"

	"github.com/xaenox/lead-router/internal/models"
)

// Classifier assigns a lead category to inbound text.
type Classifier interface {
	Classify(ctx context.Context, text string) (models.Classification, error)
}

// KeywordClassifier is an offline classifier for local runs without a
// completion service. It matches booking vocabulary only.
type KeywordClassifier struct {
	keywords map[models.Category][]string
	// dates marks a concrete stay date ("dia 10", "15/07") as hot intent.
	dates *regexp.Regexp
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		keywords: map[models.Category][]string{
			models.CategoryBookingReady: {"fechar reserva", "confirmar reserva", "pode reservar", "vou pagar", "pagamento"},
			models.CategoryHot:          {"reservar", "reserva", "disponibilidade para", "check-in"},
			models.CategoryWarm:         {"preço", "valor", "diária", "quanto custa", "pacote", "suíte"},
		},
		dates: regexp.MustCompile(`\bdia\s+\d{1,2}\b|\b\d{1,2}/\d{1,2}\b`),
	}
}

func (c *KeywordClassifier) Classify(ctx context.Context, text string) (models.Classification, error) {
	content := strings.ToLower(text)

	for _, category := range []models.Category{models.CategoryBookingReady, models.CategoryHot, models.CategoryWarm} {
		for _, keyword := range c.keywords[category] {
			if strings.Contains(content, keyword) {
				return models.Classification{
					Category:   category,
					Confidence: 0.6,
					Rationale:  "keyword match: " + strings.TrimSpace(keyword),
				}, nil
			}
		}
		if category == models.CategoryHot && c.dates.MatchString(content) {
			return models.Classification{
				Category:   category,
				Confidence: 0.6,
				Rationale:  "date mentioned",
			}, nil
		}
	}

	return models.Classification{
		Category:   models.CategoryCold,
		Confidence: 0.5,
		Rationale:  "no booking intent keywords",
	}, nil
}
