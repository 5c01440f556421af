package mailbox

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/lead-router/internal/models"
	"github.com/xaenox/lead-router/internal/orchestrator"
	"go.uber.org/zap"
)

const multipartMail = "From: Ana Souza <ana@example.com>\r\n" +
	"To: reservas@hotel.example\r\n" +
	"Subject: Reserva em junho\r\n" +
	"Message-ID: <abc123@example.com>\r\n" +
	"Date: Sat, 01 Jun 2024 10:00:00 -0300\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Versão <b>HTML</b></p>\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Gostaria de reservar a suíte para 12/06.\r\n" +
	"--XYZ--\r\n"

const htmlOnlyMail = "From: bruno@example.com\r\n" +
	"Subject: =?UTF-8?Q?D=C3=BAvida?=\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><body><p>Qual o pre&ccedil;o da di&aacute;ria?</p><script>x()</script></body></html>\r\n"

const plainMail = "From: carla@example.com\r\n" +
	"Subject: Oi\r\n" +
	"\r\n" +
	"Tem estacionamento?\r\n"

func TestParseMessagePrefersPlainText(t *testing.T) {
	msg, err := ParseMessage(strings.NewReader(multipartMail))
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", msg.From)
	assert.Equal(t, "Ana Souza", msg.FromName)
	assert.Equal(t, "Reserva em junho", msg.Subject)
	assert.Equal(t, "abc123@example.com", msg.MessageID)
	assert.Equal(t, "Gostaria de reservar a suíte para 12/06.", msg.Body)
}

func TestParseMessageStripsHTML(t *testing.T) {
	msg, err := ParseMessage(strings.NewReader(htmlOnlyMail))
	require.NoError(t, err)
	assert.Equal(t, "Dúvida", msg.Subject)
	assert.Equal(t, "Qual o preço da diária?", msg.Body)
}

func TestParseMessageSinglePart(t *testing.T) {
	msg, err := ParseMessage(strings.NewReader(plainMail))
	require.NoError(t, err)
	assert.Equal(t, "Tem estacionamento?", msg.Body)

	ev := msg.Event()
	assert.Equal(t, models.ChannelEmail, ev.Channel)
	assert.Equal(t, "uid:0", ev.DedupKey)
	assert.Equal(t, "carla@example.com", ev.ContactRef)
}

func TestSendReplyComposesThreadedMail(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	p := NewIMAPPort(Config{
		Address:    "reservas@hotel.example",
		Password:   "secret",
		SMTPServer: "smtp.hotel.example",
	}, zap.NewNop())
	p.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	p.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	s := NewSender(p)
	err := s.Send(context.Background(), models.OutboundMessage{
		To:       "ana@example.com",
		Subject:  "Re: Reserva em junho",
		ThreadID: "abc123@example.com",
		Content:  "Olá! Recebi seu email.",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.hotel.example:587", gotAddr)
	assert.Equal(t, "reservas@hotel.example", gotFrom)
	assert.Equal(t, []string{"ana@example.com"}, gotTo)

	reply, err := ParseMessage(strings.NewReader(string(gotMsg)))
	require.NoError(t, err)
	assert.Equal(t, "Re: Reserva em junho", reply.Subject)
	assert.Equal(t, "Olá! Recebi seu email.", reply.Body)
	assert.Contains(t, string(gotMsg), "In-Reply-To: <abc123@example.com>")
}

func TestSendReplyWithoutSMTP(t *testing.T) {
	p := NewIMAPPort(Config{Address: "a@b.c"}, zap.NewNop())
	assert.Error(t, p.SendReply(context.Background(), "x@y.z", "Re:", "oi", ""))
}

type fakePort struct {
	unseen   []uint32
	messages map[uint32]Message
	listErr  error
	seen     []uint32
}

func (f *fakePort) ListUnseen(ctx context.Context) ([]uint32, error) { return f.unseen, f.listErr }

func (f *fakePort) Fetch(ctx context.Context, uid uint32) (Message, error) {
	m, ok := f.messages[uid]
	if !ok {
		return Message{}, errors.New("gone")
	}
	m.UID = uid
	return m, nil
}

func (f *fakePort) MarkSeen(ctx context.Context, uid uint32) error {
	f.seen = append(f.seen, uid)
	return nil
}

func (f *fakePort) SendReply(ctx context.Context, to, subject, body, inReplyTo string) error {
	return nil
}

type fakeHandler struct {
	events []models.InboundEvent
	failOn string
}

func (f *fakeHandler) Handle(ctx context.Context, channel models.ChannelType, ev models.InboundEvent) (orchestrator.Result, error) {
	f.events = append(f.events, ev)
	if ev.ContactRef == f.failOn {
		return orchestrator.Result{Skipped: true, SkipReason: orchestrator.SkipError}, errors.New("classifier down")
	}
	if ev.Text == "" {
		return orchestrator.Result{Skipped: true, SkipReason: orchestrator.SkipEmpty}, nil
	}
	return orchestrator.Result{ConversationID: "conv"}, nil
}

func TestPollerMarksOnlyHandledMessages(t *testing.T) {
	port := &fakePort{
		unseen: []uint32{1, 2, 3, 4},
		messages: map[uint32]Message{
			1: {MessageID: "m1", From: "ana@example.com", Subject: "Reserva", Body: "Quero reservar"},
			2: {MessageID: "m2", From: "erro@example.com", Subject: "x", Body: "y"},
			3: {MessageID: "m3", From: "vazio@example.com", Subject: "Sem corpo"},
		},
	}
	h := &fakeHandler{failOn: "erro@example.com"}

	err := NewPoller(port, h, zap.NewNop()).Poll(context.Background())
	require.NoError(t, err)

	assert.Len(t, h.events, 3)
	assert.Equal(t, "m1", h.events[0].DedupKey)
	assert.Equal(t, "Reserva", h.events[0].Subject)
	assert.Equal(t, []uint32{1, 3}, port.seen)
}

func TestPollerListError(t *testing.T) {
	port := &fakePort{listErr: errors.New("connection reset")}
	err := NewPoller(port, &fakeHandler{}, zap.NewNop()).Poll(context.Background())
	assert.Error(t, err)
}
