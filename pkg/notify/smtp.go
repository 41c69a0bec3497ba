package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/psantana5/smartworking/pkg/retry"
	smtptls "github.com/psantana5/smartworking/pkg/tls"
)

// SMTPConfig describes the outgoing mail server
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	FromName  string
	TLSPolicy string // "mandatory", "opportunistic" or "none"
	CAFile    string // optional PEM bundle for servers behind a private CA
	Timeout   time.Duration
}

// SMTPSender delivers emails over SMTP, one connection per message
type SMTPSender struct {
	client   *mail.Client
	from     string
	fromName string
}

// NewSMTPSender validates cfg and prepares a client
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp sender address is required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(tlsPolicy(cfg.TLSPolicy)),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.CAFile != "" {
		tlsConfig, err := smtptls.LoadClientConfig(cfg.Host, cfg.CAFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, mail.WithTLSConfig(tlsConfig))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}

	fromName := cfg.FromName
	if fromName == "" {
		fromName = "Smart Working App"
	}
	return &SMTPSender{client: client, from: cfg.From, fromName: fromName}, nil
}

func (s *SMTPSender) Send(ctx context.Context, email Email) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.from); err != nil {
		return retry.Permanent(fmt.Errorf("invalid sender address: %w", err))
	}
	if err := msg.To(email.To); err != nil {
		return retry.Permanent(fmt.Errorf("invalid recipient address: %w", err))
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextHTML, email.HTML)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		var sendErr *mail.SendError
		if errors.As(err, &sendErr) && !sendErr.IsTemp() {
			return retry.Permanent(err)
		}
		return err
	}
	return nil
}

func tlsPolicy(name string) mail.TLSPolicy {
	switch name {
	case "none":
		return mail.NoTLS
	case "opportunistic":
		return mail.TLSOpportunistic
	default:
		return mail.TLSMandatory
	}
}
