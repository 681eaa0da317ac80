package adapter

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/aelexs/clinic-otp/internal/auth"
)

// mailDialer is the subset of *gomail.Dialer the email provider uses.
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

var _ auth.EmailProvider = (*SMTPEmailProvider)(nil)

// SMTPEmailProvider delivers OTP codes as an HTML email with a plaintext
// alternative.
type SMTPEmailProvider struct {
	dialer   mailDialer
	from     string
	messages Messages
}

// NewSMTPEmailProvider creates an SMTPEmailProvider. Use NewSMTPDialer for a
// real server.
func NewSMTPEmailProvider(dialer mailDialer, from string, messages Messages) *SMTPEmailProvider {
	return &SMTPEmailProvider{dialer: dialer, from: from, messages: messages}
}

// NewSMTPDialer returns a gomail dialer for host:port.
func NewSMTPDialer(host string, port int, username, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, username, password)
}

// SendOTP builds and sends the message. gomail has no context support, so
// the caller's deadline is enforced by the dispatcher.
func (p *SMTPEmailProvider) SendOTP(ctx context.Context, email, code string) error {
	_, span := tracer.Start(ctx, "smtp.email.send")
	defer span.End()

	html, err := p.messages.EmailHTML(code)
	if err != nil {
		return fmt.Errorf("smtp email: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", p.from)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", p.messages.Subject())
	msg.SetBody("text/plain", p.messages.EmailText(code))
	msg.AddAlternative("text/html", html)

	if err := p.dialer.DialAndSend(msg); err != nil {
		failSpan(span, err)
		return fmt.Errorf("smtp email: send otp to %s: %w", maskEmail(email), err)
	}
	return nil
}
