package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xaenox/lead-router/internal/channels"
	"github.com/xaenox/lead-router/internal/models"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://apinocode01.megaapi.com.br/rest"

type Config struct {
	BaseURL  string
	Instance string
	Token    string
}

// Sender posts text messages to the MegaAPI gateway. Without an instance or
// token it only logs what it would have sent.
type Sender struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

func NewSender(config Config, client *http.Client, logger *zap.Logger) *Sender {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Sender{
		config: config,
		client: client,
		logger: logger,
	}
}

func (s *Sender) Simulated() bool {
	return s.config.Instance == "" || s.config.Token == ""
}

func (s *Sender) Status() channels.Status {
	if s.Simulated() {
		return channels.Status{State: channels.StateReady, Reason: "simulated sends, megaapi instance or token missing"}
	}
	return channels.Ready()
}

type sendRequest struct {
	MessageData messageData `json:"messageData"`
}

type messageData struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (s *Sender) Send(ctx context.Context, msg models.OutboundMessage) error {
	to := FormatJID(msg.To)
	if s.Simulated() {
		s.logger.Info("Simulated WhatsApp send",
			zap.String("to", to),
			zap.String("text", msg.Content))
		return nil
	}

	body, err := json.Marshal(sendRequest{MessageData: messageData{To: to, Text: msg.Content}})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/sendMessage/%s/text", strings.TrimRight(s.config.BaseURL, "/"), s.config.Instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send to %s: megaapi status %d: %s", to, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	s.logger.Info("WhatsApp message sent", zap.String("to", to))
	return nil
}

// FormatJID turns a phone number into a WhatsApp user JID, adding the
// Brazilian country code when missing. Addresses that already carry a JID
// suffix, such as groups, are kept.
func FormatJID(phone string) string {
	if strings.Contains(phone, "@") {
		return phone
	}
	digits := strings.NewReplacer("+", "", " ", "", "-", "").Replace(phone)
	if !strings.HasPrefix(digits, "55") {
		digits = "55" + digits
	}
	return digits + userSuffix
}
