// Package mailbox polls an IMAP inbox for lead emails and answers them over
// SMTP.
package mailbox

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
	"github.com/xaenox/lead-router/internal/models"

	_ "github.com/emersion/go-message/charset"
)

// Message is a fetched inbox message.
type Message struct {
	UID       uint32
	MessageID string
	From      string
	FromName  string
	Subject   string
	Body      string
	Date      time.Time
}

// Event converts the message into an inbound event. The Message-ID is the
// dedup key; messages without one fall back to their UID.
func (m Message) Event() models.InboundEvent {
	key := m.MessageID
	if key == "" {
		key = fmt.Sprintf("uid:%d", m.UID)
	}
	return models.InboundEvent{
		Channel:     models.ChannelEmail,
		DedupKey:    key,
		ContactRef:  m.From,
		DisplayName: m.FromName,
		Text:        m.Body,
		Subject:     m.Subject,
		ThreadID:    m.MessageID,
		ReceivedAt:  m.Date,
	}
}

var stripPolicy = bluemonday.StrictPolicy()

// ParseMessage reads an RFC 5322 message. The body is the first text/plain
// part; without one, the first text/html part with markup removed.
// Attachments are ignored.
func ParseMessage(r io.Reader) (Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return Message{}, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	var msg Message
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
		msg.FromName = from[0].Name
	}
	msg.Subject, _ = mr.Header.Subject()
	msg.MessageID, _ = mr.Header.MessageID()
	msg.Date, _ = mr.Header.Date()

	var plain, htmlBody string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Message{}, fmt.Errorf("read part: %w", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		b, err := io.ReadAll(p.Body)
		if err != nil {
			return Message{}, fmt.Errorf("read %s part: %w", ct, err)
		}

		switch {
		case ct == "text/plain" && plain == "":
			plain = string(b)
		case ct == "text/html" && htmlBody == "":
			htmlBody = string(b)
		case ct == "" && plain == "":
			plain = string(b)
		}
	}

	if strings.TrimSpace(plain) != "" {
		msg.Body = strings.TrimSpace(plain)
	} else if htmlBody != "" {
		msg.Body = StripHTML(htmlBody)
	}
	return msg, nil
}

func StripHTML(s string) string {
	text := stripPolicy.SanitizeReader(strings.NewReader(s))
	return strings.TrimSpace(html.UnescapeString(text.String()))
}

// composeReply builds a plain-text reply threaded under inReplyTo.
func composeReply(from, to, subject, body, inReplyTo string, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	if inReplyTo != "" {
		id := strings.Trim(inReplyTo, "<>")
		h.SetMsgIDList("In-Reply-To", []string{id})
		h.SetMsgIDList("References", []string{id})
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create writer: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
