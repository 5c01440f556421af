package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"
)

// Port is the mailbox the poller reads from and replies through.
type Port interface {
	ListUnseen(ctx context.Context) ([]uint32, error)
	Fetch(ctx context.Context, uid uint32) (Message, error)
	MarkSeen(ctx context.Context, uid uint32) error
	SendReply(ctx context.Context, to, subject, body, inReplyTo string) error
}

type Config struct {
	Address    string
	Password   string
	IMAPServer string
	IMAPPort   int
	SMTPServer string
	SMTPPort   int
	Mailbox    string
}

func (c Config) Enabled() bool {
	return c.Address != "" && c.Password != "" && c.IMAPServer != ""
}

// IMAPPort keeps one IMAP session open across polls and reconnects after a
// failed command. Replies go out over SMTP with STARTTLS when offered.
type IMAPPort struct {
	config   Config
	mu       sync.Mutex
	conn     *client.Client
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now      func() time.Time
	logger   *zap.Logger
}

func NewIMAPPort(config Config, logger *zap.Logger) *IMAPPort {
	if config.IMAPPort == 0 {
		config.IMAPPort = 993
	}
	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}
	if config.Mailbox == "" {
		config.Mailbox = "INBOX"
	}
	return &IMAPPort{
		config:   config,
		sendMail: smtp.SendMail,
		now:      time.Now,
		logger:   logger,
	}
}

// Check opens the IMAP session, reporting login failures.
func (p *IMAPPort) Check(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.session(ctx)
	return err
}

func (p *IMAPPort) session(ctx context.Context) (*client.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.conn != nil {
		return p.conn, nil
	}

	addr := net.JoinHostPort(p.config.IMAPServer, strconv.Itoa(p.config.IMAPPort))
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", addr, err)
	}
	if err := c.Login(p.config.Address, p.config.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(p.config.Mailbox, false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("select %s: %w", p.config.Mailbox, err)
	}

	p.logger.Info("IMAP session opened", zap.String("server", addr))
	p.conn = c
	return c, nil
}

// drop discards the session after a failed command.
func (p *IMAPPort) drop() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Logout(); err != nil {
		p.logger.Debug("IMAP logout failed", zap.Error(err))
	}
	p.conn = nil
}

func (p *IMAPPort) ListUnseen(ctx context.Context) ([]uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.session(ctx)
	if err != nil {
		return nil, err
	}
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		p.drop()
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	return uids, nil
}

// Fetch reads a message without setting the \Seen flag.
func (p *IMAPPort) Fetch(ctx context.Context, uid uint32) (Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.session(ctx)
	if err != nil {
		return Message{}, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var raw *imap.Message
	for m := range messages {
		raw = m
	}
	if err := <-done; err != nil {
		p.drop()
		return Message{}, fmt.Errorf("fetch uid %d: %w", uid, err)
	}
	if raw == nil {
		return Message{}, fmt.Errorf("fetch uid %d: message not found", uid)
	}

	body := raw.GetBody(section)
	if body == nil {
		return Message{}, fmt.Errorf("fetch uid %d: empty body", uid)
	}
	msg, err := ParseMessage(body)
	if err != nil {
		return Message{}, fmt.Errorf("parse uid %d: %w", uid, err)
	}
	msg.UID = uid
	return msg, nil
}

func (p *IMAPPort) MarkSeen(ctx context.Context, uid uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.session(ctx)
	if err != nil {
		return err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		p.drop()
		return fmt.Errorf("mark uid %d seen: %w", uid, err)
	}
	return nil
}

func (p *IMAPPort) SendReply(ctx context.Context, to, subject, body, inReplyTo string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.config.SMTPServer == "" {
		return errors.New("smtp server not configured")
	}

	msg, err := composeReply(p.config.Address, to, subject, body, inReplyTo, p.now())
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(p.config.SMTPServer, strconv.Itoa(p.config.SMTPPort))
	auth := smtp.PlainAuth("", p.config.Address, p.config.Password, p.config.SMTPServer)
	if err := p.sendMail(addr, auth, p.config.Address, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	p.logger.Info("Email reply sent", zap.String("to", to))
	return nil
}

func (p *IMAPPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drop()
	return nil
}
