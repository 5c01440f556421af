// Package telegram delivers operator notifications through a Telegram bot
// and answers operator commands about the rotation.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/lead-router/internal/models"
	"github.com/xaenox/lead-router/internal/rotation"
	"go.uber.org/zap"
)

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// RotationView is the read side of the rotation used by operator commands.
type RotationView interface {
	Roster() []models.Operator
	NextTurn(ctx context.Context) (int, error)
	Stats(ctx context.Context, now time.Time) ([]rotation.OperatorStats, error)
}

type Bot struct {
	api      botAPI
	rotation RotationView
	logger   *zap.Logger
}

func New(token string, rotation RotationView, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))

	return &Bot{
		api:      api,
		rotation: rotation,
		logger:   logger,
	}, nil
}

// Send delivers a notification. msg.To is a numeric chat ID.
func (b *Bot) Send(ctx context.Context, msg models.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.To), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.To, err)
	}

	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, msg.Content)); err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}

// Start answers operator commands until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start", "help":
		b.handleHelp(message)
	case "stats":
		b.handleStats(ctx, message)
	case "next":
		b.handleNext(ctx, message)
	case "chatid":
		b.sendMessage(message.Chat.ID, fmt.Sprintf("Chat ID: %d", message.Chat.ID))
	default:
		b.sendMessage(message.Chat.ID, "Comando desconhecido. Use /help para ver os comandos.")
	}
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Comandos disponíveis:
/stats - Atendimentos por vendedor (total e hoje)
/next - Quem é o próximo da fila
/chatid - ID deste chat para configurar notificações`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleStats(ctx context.Context, message *tgbotapi.Message) {
	stats, err := b.rotation.Stats(ctx, time.Now())
	if err != nil {
		b.logger.Error("Failed to get rotation stats",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, "Não consegui carregar as estatísticas agora.")
		return
	}

	response := "*Atendimentos:*\n"
	for _, st := range stats {
		response += escapeMarkdown(fmt.Sprintf("%s %s: %d total, %d hoje", st.Glyph, st.Name, st.Total, st.Today)) + "\n"
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, response)
	msg.ParseMode = "MarkdownV2"
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send stats message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleNext(ctx context.Context, message *tgbotapi.Message) {
	idx, err := b.rotation.NextTurn(ctx)
	if err != nil {
		b.sendErrorMessage(message.Chat.ID, "Nenhum vendedor configurado.")
		return
	}
	op := b.rotation.Roster()[idx]
	b.sendMessage(message.Chat.ID, fmt.Sprintf("📌 Próximo da fila: %s %s", op.Glyph, op.Name))
}

func escapeMarkdown(text string) string {
	specialChars := []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	b.sendMessage(chatID, "⚠️ "+text)
}
