// Package mailer delivers account notifications over SMTP.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	auth "github.com/classiqueozofficial1-web/stockfx-auth"
)

// Sender is satisfied by *gomail.Dialer
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Config holds the SMTP settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	AppName  string
}

// SMTPNotifier implements auth.Notifier by sending plain text and HTML mail
type SMTPNotifier struct {
	sender Sender
	cfg    Config
	logger auth.Logger
}

var _ auth.Notifier = (*SMTPNotifier)(nil)

// New returns an SMTP notifier dialing cfg.Host
func New(cfg Config, logger auth.Logger) *SMTPNotifier {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return NewWithSender(d, cfg, logger)
}

// NewWithSender uses a custom sender, handy for tests
func NewWithSender(sender Sender, cfg Config, logger auth.Logger) *SMTPNotifier {
	if cfg.AppName == "" {
		cfg.AppName = "StockFx"
	}
	if cfg.FromName == "" {
		cfg.FromName = cfg.AppName
	}
	if logger == nil {
		logger = auth.NopLogger()
	}
	return &SMTPNotifier{sender: sender, cfg: cfg, logger: logger}
}

func (n *SMTPNotifier) SendVerification(ctx context.Context, email, secretOrLink string) error {
	subject := fmt.Sprintf("Verify your %s account", n.cfg.AppName)

	var text string
	if isLink(secretOrLink) {
		text = fmt.Sprintf("Confirm your email address by opening the link below:\n\n%s\n", secretOrLink)
	} else {
		text = fmt.Sprintf("Your verification code is: %s\n", formatCode(secretOrLink))
	}

	return n.send(ctx, email, subject, text)
}

func (n *SMTPNotifier) SendWelcome(ctx context.Context, email string) error {
	subject := fmt.Sprintf("Welcome to %s", n.cfg.AppName)
	text := fmt.Sprintf("Your email is verified and your %s account is now active.\n", n.cfg.AppName)
	return n.send(ctx, email, subject, text)
}

func (n *SMTPNotifier) SendTerminationNotice(ctx context.Context, email, reason string) error {
	subject := fmt.Sprintf("Your %s account has been terminated", n.cfg.AppName)
	text := fmt.Sprintf("Your %s account has been terminated.\n", n.cfg.AppName)
	if reason != "" {
		text += fmt.Sprintf("\nReason: %s\n", reason)
	}
	return n.send(ctx, email, subject, text)
}

func (n *SMTPNotifier) send(ctx context.Context, to, subject, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(n.cfg.From, n.cfg.FromName))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", toHTML(text))

	if err := n.sender.DialAndSend(m); err != nil {
		n.logger.Error("smtp send failed", "to", to, "subject", subject, "error", err)
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	n.logger.Debug("smtp message sent", "to", to, "subject", subject)
	return nil
}

func isLink(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// formatCode renders six digit codes as XXX-XXX
func formatCode(code string) string {
	if len(code) != 6 {
		return code
	}
	return code[:3] + "-" + code[3:]
}

func toHTML(text string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><body style=\"font-family: sans-serif;\">")
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if line == "" {
			continue
		}
		line = htmlLine(line)
		b.WriteString("<p>")
		b.WriteString(line)
		b.WriteString("</p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func htmlLine(line string) string {
	escaped := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;").Replace(line)
	if isLink(line) {
		return fmt.Sprintf("<a href=\"%s\">%s</a>", escaped, escaped)
	}
	return escaped
}
