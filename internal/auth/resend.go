package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"time"

	"go.uber.org/zap"

	"github.com/kidandcat/communityconnect/internal/config"
)

const appName = "Community Connect"

// Mailer delivers magic sign-in links.
type Mailer interface {
	SendMagicLink(ctx context.Context, email, token string) error
}

// NewMailer picks SMTP when enabled, Resend when an API key is set, and
// otherwise a mailer that only logs the link for local development.
func NewMailer(cfg config.Config, logger *zap.Logger) Mailer {
	switch {
	case cfg.Email.SMTPEnabled:
		return &smtpMailer{cfg: cfg.Email, baseURL: cfg.BaseURL}
	case cfg.Email.ResendAPIKey != "":
		return &resendMailer{
			cfg:      cfg.Email,
			baseURL:  cfg.BaseURL,
			endpoint: "https://api.resend.com/emails",
			client:   &http.Client{Timeout: 10 * time.Second},
		}
	default:
		return &logMailer{baseURL: cfg.BaseURL, logger: logger}
	}
}

func verifyLink(baseURL, token string) string {
	return fmt.Sprintf("%s/auth/verify?token=%s", baseURL, token)
}

func magicLinkEmail(baseURL, token string) (subject, html string) {
	subject = "Your " + appName + " sign-in link"
	html = fmt.Sprintf(
		`<p>Click the link below to approve your sign-in:</p>`+
			`<p><a href="%s">Approve sign-in to %s</a></p>`+
			`<p>This link expires in 15 minutes.</p>`,
		verifyLink(baseURL, token), appName,
	)
	return subject, html
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendMailer struct {
	cfg      config.EmailConfig
	baseURL  string
	endpoint string
	client   *http.Client
}

func (m *resendMailer) SendMagicLink(ctx context.Context, to, token string) error {
	subject, html := magicLinkEmail(m.baseURL, token)
	body := resendRequest{
		From:    m.cfg.FromEmail,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.cfg.ResendAPIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("resend API error: status %d", resp.StatusCode)
	}

	return nil
}

type smtpMailer struct {
	cfg     config.EmailConfig
	baseURL string
}

func (m *smtpMailer) SendMagicLink(_ context.Context, to, token string) error {
	subject, html := magicLinkEmail(m.baseURL, token)
	addr := m.cfg.SMTPHost + ":" + m.cfg.SMTPPort

	msg := "From: " + m.cfg.FromEmail + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=\"UTF-8\"\r\n" +
		"\r\n" +
		html

	var auth smtp.Auth
	if m.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPass, m.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.SMTPUser, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

type logMailer struct {
	baseURL string
	logger  *zap.Logger
}

func (m *logMailer) SendMagicLink(_ context.Context, to, token string) error {
	m.logger.Info("no email transport configured, sign-in link logged",
		zap.String("email", to),
		zap.String("link", verifyLink(m.baseURL, token)))
	return nil
}
