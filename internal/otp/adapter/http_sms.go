package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aelexs/clinic-otp/internal/auth"
	"github.com/aelexs/clinic-otp/internal/domain"
)

var _ auth.SMSProvider = (*HTTPSMSProvider)(nil)

// HTTPSMSConfig configures an HTTP SMS gateway that accepts a form POST with
// apikey, number, message and sendername fields.
type HTTPSMSConfig struct {
	URL        string
	APIKey     domain.SecretString
	SenderName string
	Messages   Messages
	Client     *http.Client // defaults to a client with domain.HTTPGatewayTimeout
}

// HTTPSMSProvider delivers OTP codes through a form-based HTTP SMS gateway.
type HTTPSMSProvider struct {
	url        string
	apiKey     domain.SecretString
	senderName string
	messages   Messages
	client     *http.Client
}

// NewHTTPSMSProvider creates an HTTPSMSProvider.
func NewHTTPSMSProvider(cfg HTTPSMSConfig) *HTTPSMSProvider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: domain.HTTPGatewayTimeout}
	}
	return &HTTPSMSProvider{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		senderName: cfg.SenderName,
		messages:   cfg.Messages,
		client:     client,
	}
}

// SendOTP posts the code to the gateway. Any non-2xx status is an error.
func (p *HTTPSMSProvider) SendOTP(ctx context.Context, phone, code string) error {
	ctx, span := tracer.Start(ctx, "http.sms.send")
	defer span.End()

	form := url.Values{}
	form.Set("apikey", p.apiKey.Expose())
	form.Set("number", phone)
	form.Set("message", p.messages.SMS(code))
	if p.senderName != "" {
		form.Set("sendername", p.senderName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("http sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		failSpan(span, err)
		return fmt.Errorf("http sms: send otp to %s: %w", maskPhone(phone), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("http sms: send otp to %s: status %d after %s: %s",
			maskPhone(phone), resp.StatusCode, time.Since(start).Round(time.Millisecond), strings.TrimSpace(string(body)))
		failSpan(span, err)
		return err
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
