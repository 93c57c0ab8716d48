package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"github.com/wpsteward/steward/internal/config"
)

const defaultMessageDomain = "steward.local"

// Message is one outgoing HTML mail.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a message and returns its Message-ID.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SenderFactory builds a Sender from the mail transport settings.
type SenderFactory func(cfg config.MailConfig) (Sender, error)

// SMTPSender delivers mail over SMTP.
type SMTPSender struct {
	client   *mail.Client
	fromName string
	fromAddr string
	domain   string
}

// NewSMTPSender is the default SenderFactory.
func NewSMTPSender(cfg config.MailConfig) (Sender, error) {
	if cfg.Host == "" {
		return nil, errors.New("mail host is not configured")
	}
	if cfg.FromAddress == "" {
		return nil, errors.New("mail from address is not configured")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(30 * time.Second),
	}
	if cfg.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Pass))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	return &SMTPSender{
		client:   client,
		fromName: cfg.FromName,
		fromAddr: cfg.FromAddress,
		domain:   messageDomain(cfg.FromAddress),
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(s.fromName, s.fromAddr); err != nil {
		return "", fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)

	messageID := fmt.Sprintf("%s@%s", uuid.NewString(), s.domain)
	m.SetMessageIDWithValue(messageID)

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return "", err
	}
	return "<" + messageID + ">", nil
}

func messageDomain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return defaultMessageDomain
}
