// Package notify delivers the per-run HTML summary to the operator over
// SMTP.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propbooks/invoice-cli/internal/config"
)

// Notifier sends a run summary to the operator.
type Notifier interface {
	SendSummary(ctx context.Context, subject, htmlBody string) error
}

// SMTPNotifier sends summaries through a plain SMTP submission endpoint,
// upgrading to TLS when the server offers STARTTLS.
type SMTPNotifier struct {
	cfg config.NotifyConfig
}

// NewSMTPNotifier builds a notifier from SMTP settings.
func NewSMTPNotifier(cfg config.NotifyConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

// SendSummary connects, authenticates if the server supports it, and sends
// one HTML message to the configured recipients.
func (n *SMTPNotifier) SendSummary(ctx context.Context, subject, htmlBody string) error {
	address := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))

	dialer := net.Dialer{}
	if n.cfg.TimeoutSecs > 0 {
		dialer.Timeout = time.Duration(n.cfg.TimeoutSecs) * time.Second
	}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return eris.Wrapf(err, "notify: dial %s", address)
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return eris.Wrap(err, "notify: smtp handshake")
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
			return eris.Wrap(err, "notify: starttls")
		}
	}
	if ok, _ := client.Extension("AUTH"); ok && n.cfg.Username != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return eris.Wrap(err, "notify: auth")
		}
	}

	recipients := splitRecipients(n.cfg.To)
	if len(recipients) == 0 {
		return eris.New("notify: no recipients configured")
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return eris.Wrap(err, "notify: mail from")
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return eris.Wrapf(err, "notify: rcpt %s", rcpt)
		}
	}

	w, err := client.Data()
	if err != nil {
		return eris.Wrap(err, "notify: data")
	}
	if _, err := w.Write(buildMessage(n.cfg.From, recipients, subject, htmlBody)); err != nil {
		return eris.Wrap(err, "notify: write body")
	}
	if err := w.Close(); err != nil {
		return eris.Wrap(err, "notify: finish data")
	}

	if err := client.Quit(); err != nil {
		zap.L().Debug("smtp quit failed", zap.Error(err))
	}

	zap.L().Info("sent run summary",
		zap.Strings("to", recipients),
		zap.String("subject", subject))
	return nil
}

func splitRecipients(to string) []string {
	var out []string
	for _, part := range strings.Split(to, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func buildMessage(from string, to []string, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}
