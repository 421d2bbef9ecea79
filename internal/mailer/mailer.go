// Package mailer は検証メールのSMTP送信を提供する。
package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// Config はSMTP接続の設定。
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer はgomailを使用したメール送信の実装。
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewMailer はMailerを生成する。
func NewMailer(cfg Config) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// SendVerificationEmail は検証リンクつきのメールを送信する。
// verifyURLはトークンを含む完全なURL。
func (m *Mailer) SendVerificationEmail(to, verifyURL string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Verify your UWaterloo email")

	body := fmt.Sprintf(
		"Welcome to the campus ride board!\n\n"+
			"Click the link below to verify your email address:\n\n%s\n\n"+
			"The link can only be used once. If you did not sign up, you can ignore this email.\n",
		verifyURL,
	)
	msg.SetBody("text/plain", body)

	htmlBody := fmt.Sprintf(
		`<p>Welcome to the campus ride board!</p>`+
			`<p><a href="%s">Verify your email address</a></p>`+
			`<p>The link can only be used once. If you did not sign up, you can ignore this email.</p>`,
		verifyURL,
	)
	msg.AddAlternative("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}
