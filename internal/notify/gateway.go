package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"
)

// GatewayConfig configures the real delivery channels.
type GatewayConfig struct {
	// SMS gateway: codes are POSTed as form values to
	// <SMSGatewayURL>/<SMSAPIKey>/sms/send.json.
	SMSGatewayURL string
	SMSAPIKey     string
	SMSSender     string

	// Email: codes are sent through SMTPAddr (host:port) from SMTPFrom.
	SMTPAddr string
	SMTPFrom string
}

// Gateway delivers codes over an HTTP SMS provider and plain SMTP.
type Gateway struct {
	cfg    GatewayConfig
	client *http.Client
}

// NewGateway creates a delivery gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// SendSMSCode posts the code to the SMS provider.
func (g *Gateway) SendSMSCode(ctx context.Context, phoneNumber, code string) error {
	if g.cfg.SMSGatewayURL == "" || g.cfg.SMSAPIKey == "" {
		return fmt.Errorf("sms gateway is not configured")
	}

	endpoint := fmt.Sprintf("%s/%s/sms/send.json",
		strings.TrimRight(g.cfg.SMSGatewayURL, "/"), g.cfg.SMSAPIKey)
	form := url.Values{
		"sender":   {g.cfg.SMSSender},
		"receptor": {phoneNumber},
		"message":  {code},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms to %s: %w", MaskContact(phoneNumber), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// SendEmailCode mails the code over SMTP.
func (g *Gateway) SendEmailCode(ctx context.Context, email, code string) error {
	if g.cfg.SMTPAddr == "" || g.cfg.SMTPFrom == "" {
		return fmt.Errorf("smtp is not configured")
	}

	msg := strings.Join([]string{
		"From: " + g.cfg.SMTPFrom,
		"To: " + email,
		"Subject: Verification code",
		"",
		code,
		"",
	}, "\r\n")

	if err := smtp.SendMail(g.cfg.SMTPAddr, nil, g.cfg.SMTPFrom, []string{email}, []byte(msg)); err != nil {
		return fmt.Errorf("send email to %s: %w", MaskContact(email), err)
	}
	return nil
}

var _ Notifier = (*Gateway)(nil)
