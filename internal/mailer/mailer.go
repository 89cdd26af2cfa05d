package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"EMAScreener/internal/logging"
	"EMAScreener/internal/report"
)

// TLS modes.
const (
	TLSStartTLS = "starttls"
	TLSImplicit = "implicit"
	TLSNone     = "none"
)

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	TLS      string
}

// Mailer delivers screen reports by email.
type Mailer struct {
	cfg    Config
	logger *zap.Logger

	Now       func() time.Time
	TLSConfig *tls.Config
}

func New(cfg Config, logger *zap.Logger) *Mailer {
	return &Mailer{
		cfg:       cfg,
		logger:    logging.OrNop(logger),
		Now:       time.Now,
		TLSConfig: &tls.Config{ServerName: cfg.Host},
	}
}

// SendReport mails the summary with the CSV attached to every recipient.
func (m *Mailer) SendReport(ctx context.Context, sum report.Summary, csv []byte) error {
	msg, err := BuildMessage(m.cfg.From, m.cfg.To, sum, csv, m.Now())
	if err != nil {
		return err
	}
	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("smtp %s: %w", m.cfg.Host, err)
	}
	m.logger.Info("report emailed",
		zap.Strings("to", m.cfg.To),
		zap.String("file", sum.Filename),
		zap.Int("bytes", len(msg)))
	return nil
}

func (m *Mailer) send(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := &net.Dialer{Timeout: 30 * time.Second}

	var (
		conn net.Conn
		err  error
	)
	if m.cfg.TLS == TLSImplicit {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: m.TLSConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("create client: %w", err)
	}
	defer client.Close()

	if m.cfg.TLS == TLSStartTLS {
		if err := client.StartTLS(m.TLSConfig); err != nil {
			return fmt.Errorf("start TLS: %w", err)
		}
	}
	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
	}

	from, err := mail.ParseAddress(m.cfg.From)
	if err != nil {
		return fmt.Errorf("parse from: %w", err)
	}
	if err := client.Mail(from.Address); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, to := range m.cfg.To {
		rcpt, err := mail.ParseAddress(to)
		if err != nil {
			return fmt.Errorf("parse to: %w", err)
		}
		if err := client.Rcpt(rcpt.Address); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt.Address, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return client.Quit()
}
