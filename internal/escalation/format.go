package escalation

import (
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/lead-router/internal/models"
	"github.com/xaenox/lead-router/internal/textutil"
)

// Contact is a lead's reference rendered for operators.
type Contact struct {
	Label   string
	Display string
	Link    string
}

func FormatContact(channel models.ChannelType, ref string) Contact {
	switch channel {
	case models.ChannelEmail:
		return Contact{
			Label:   "📧 EMAIL",
			Display: "📧 " + ref,
			Link:    "mailto:" + ref,
		}
	case models.ChannelInstagram:
		user := strings.TrimPrefix(ref, "@")
		return Contact{
			Label:   "📸 INSTAGRAM",
			Display: "📸 @" + user,
			Link:    "https://instagram.com/" + user,
		}
	default:
		digits := strings.NewReplacer("+", "", " ", "").Replace(ref)
		return Contact{
			Label:   "📱 WHATSAPP",
			Display: "📱 wa.me/" + digits,
			Link:    "https://wa.me/" + digits,
		}
	}
}

// ticketReason labels a handoff the way operators read it in the queue.
func ticketReason(channel models.ChannelType, c models.Classification) string {
	label := "Lead"
	switch channel {
	case models.ChannelEmail:
		label = "Email"
	case models.ChannelInstagram:
		label = "Instagram"
	}
	return fmt.Sprintf("%s %s: %s", label, c.Category, c.Rationale)
}

func urgency(c models.Category) string {
	if c == models.CategoryHot {
		return "🔥🔥🔥"
	}
	return "💳✅"
}

func groupAnnouncement(req Request, op, next models.Operator, at time.Time) string {
	contact := FormatContact(req.Channel, req.ContactRef)
	rationale := req.Classification.Rationale
	if rationale == "" {
		rationale = "Cliente interessado"
	}
	u := urgency(req.Classification.Category)

	var b strings.Builder
	fmt.Fprintf(&b, "%s *LEAD %s* %s\n", u, req.Classification.Category, u)
	fmt.Fprintf(&b, "%s - NOVO LEAD!\n\n", contact.Label)
	fmt.Fprintf(&b, "%s *VEZ DE: %s* %s\n\n", op.Glyph, strings.ToUpper(op.Name), op.Glyph)
	fmt.Fprintf(&b, "*Contato do Cliente:*\n%s\n\n", contact.Display)
	fmt.Fprintf(&b, "💬 *Mensagem:*\n_%s_\n\n", textutil.Excerpt(req.MessageText, 200))
	b.WriteString("📊 *Análise da IA:*\n")
	fmt.Fprintf(&b, "• Classificação: %s\n", req.Classification.Category)
	fmt.Fprintf(&b, "• Confiança: %d%%\n", int(req.Classification.Confidence*100))
	fmt.Fprintf(&b, "• Motivo: %s\n\n", rationale)
	fmt.Fprintf(&b, "⏰ *Recebido às:* %s\n\n", at.Format("15:04"))
	fmt.Fprintf(&b, "⚡ *%s, RESPONDA AGORA!*\n", op.Name)
	fmt.Fprintf(&b, "👉 %s\n\n", contact.Link)
	b.WriteString("━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "📌 Próximo da fila: %s", next.Name)
	return b.String()
}

func privateDirective(req Request) string {
	contact := FormatContact(req.Channel, req.ContactRef)

	switch req.Channel {
	case models.ChannelEmail:
		return fmt.Sprintf("🚨 *EMAIL URGENTE!* 🚨\n\n📧 Cliente esperando resposta por EMAIL!\n\nDe: %s\nAssunto: %s...\n\n✉️ Responda o email AGORA!\n%s",
			req.ContactRef, textutil.Truncate(req.MessageText, 50), contact.Link)
	case models.ChannelInstagram:
		return fmt.Sprintf("🚨 *INSTAGRAM URGENTE!* 🚨\n\n📸 Cliente esperando no Instagram!\n\nClique para abrir:\n%s\n\nMensagem: \"%s\"",
			contact.Link, textutil.Excerpt(req.MessageText, 100))
	default:
		return fmt.Sprintf("🚨 *SUA VEZ!* 🚨\n\n📱 Cliente esperando no WhatsApp!\n\nClique para abrir:\n%s\n\nMensagem: \"%s\"",
			contact.Link, textutil.Excerpt(req.MessageText, 100))
	}
}
