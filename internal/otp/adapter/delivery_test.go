package adapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

var testMessages = NewMessages("verification", 5*time.Minute)

// snsPublisherStub records the last input and returns err.
type snsPublisherStub struct {
	err  error
	last *sns.PublishInput
}

func (s *snsPublisherStub) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	s.last = params
	if s.err != nil {
		return nil, s.err
	}
	return &sns.PublishOutput{}, nil
}

func TestSNSSMSProvider_SendOTP(t *testing.T) {
	t.Run("publishes transactional sms", func(t *testing.T) {
		stub := &snsPublisherStub{}
		provider := NewSNSSMSProvider(stub, testMessages, "CLINIC")

		err := provider.SendOTP(context.Background(), "+639171234567", "123456")

		require.NoError(t, err)
		require.NotNil(t, stub.last)
		assert.Equal(t, "+639171234567", *stub.last.PhoneNumber)
		assert.Contains(t, *stub.last.Message, "123456")
		assert.Equal(t, "Transactional", *stub.last.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue)
		assert.Equal(t, "CLINIC", *stub.last.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue)
	})

	t.Run("omits sender id when unset", func(t *testing.T) {
		stub := &snsPublisherStub{}
		provider := NewSNSSMSProvider(stub, testMessages, "")

		require.NoError(t, provider.SendOTP(context.Background(), "+639171234567", "123456"))

		_, ok := stub.last.MessageAttributes["AWS.SNS.SMS.SenderID"]
		assert.False(t, ok)
	})

	t.Run("wraps publish error without exposing the number", func(t *testing.T) {
		publishErr := errors.New("sns throttled")
		provider := NewSNSSMSProvider(&snsPublisherStub{err: publishErr}, testMessages, "")

		err := provider.SendOTP(context.Background(), "+639171234567", "123456")

		require.ErrorIs(t, err, publishErr)
		assert.Contains(t, err.Error(), "sns sms: send otp")
		assert.NotContains(t, err.Error(), "+639171234567")
	})
}

func TestHTTPSMSProvider_SendOTP(t *testing.T) {
	t.Run("posts form fields", func(t *testing.T) {
		var got url.Values
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			require.NoError(t, r.ParseForm())
			got = r.PostForm
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		provider := NewHTTPSMSProvider(HTTPSMSConfig{
			URL:        srv.URL,
			APIKey:     "key-123",
			SenderName: "CLINIC",
			Messages:   testMessages,
			Client:     srv.Client(),
		})

		err := provider.SendOTP(context.Background(), "+639171234567", "654321")

		require.NoError(t, err)
		assert.Equal(t, "key-123", got.Get("apikey"))
		assert.Equal(t, "+639171234567", got.Get("number"))
		assert.Equal(t, "CLINIC", got.Get("sendername"))
		assert.Contains(t, got.Get("message"), "654321")
	})

	t.Run("non-2xx status is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, "invalid apikey")
		}))
		t.Cleanup(srv.Close)

		provider := NewHTTPSMSProvider(HTTPSMSConfig{URL: srv.URL, APIKey: "bad", Messages: testMessages, Client: srv.Client()})

		err := provider.SendOTP(context.Background(), "+639171234567", "654321")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 401")
		assert.Contains(t, err.Error(), "invalid apikey")
		assert.NotContains(t, err.Error(), "+639171234567")
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(func() {
			close(release)
			srv.Close()
		})

		provider := NewHTTPSMSProvider(HTTPSMSConfig{URL: srv.URL, Messages: testMessages, Client: srv.Client()})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := provider.SendOTP(ctx, "+639171234567", "654321")

		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

// mailDialerStub captures sent messages.
type mailDialerStub struct {
	err  error
	sent []*gomail.Message
}

func (s *mailDialerStub) DialAndSend(m ...*gomail.Message) error {
	s.sent = append(s.sent, m...)
	return s.err
}

func TestSMTPEmailProvider_SendOTP(t *testing.T) {
	t.Run("sends html with plaintext alternative", func(t *testing.T) {
		dialer := &mailDialerStub{}
		provider := NewSMTPEmailProvider(dialer, "no-reply@clinic.example", testMessages)

		err := provider.SendOTP(context.Background(), "patient@example.com", "112233")

		require.NoError(t, err)
		require.Len(t, dialer.sent, 1)
		msg := dialer.sent[0]
		assert.Equal(t, []string{"no-reply@clinic.example"}, msg.GetHeader("From"))
		assert.Equal(t, []string{"patient@example.com"}, msg.GetHeader("To"))
		assert.Equal(t, []string{"Your Verification Code"}, msg.GetHeader("Subject"))

		var raw bytes.Buffer
		_, err = msg.WriteTo(&raw)
		require.NoError(t, err)
		body := raw.String()
		assert.Contains(t, body, "multipart/alternative")
		assert.Contains(t, body, "text/plain")
		assert.Contains(t, body, "text/html")
		assert.Contains(t, body, "112233")
	})

	t.Run("wraps dial error with masked address", func(t *testing.T) {
		dialErr := errors.New("535 auth failed")
		provider := NewSMTPEmailProvider(&mailDialerStub{err: dialErr}, "no-reply@clinic.example", testMessages)

		err := provider.SendOTP(context.Background(), "patient@example.com", "112233")

		require.ErrorIs(t, err, dialErr)
		assert.Contains(t, err.Error(), "p***@example.com")
		assert.NotContains(t, err.Error(), "patient@example.com")
	})
}

func TestLogProviders(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	require.NoError(t, NewLogSMSProvider(logger).SendOTP(context.Background(), "+639171234567", "987654"))
	require.NoError(t, NewLogEmailProvider(logger).SendOTP(context.Background(), "patient@example.com", "123123"))

	output := buf.String()
	assert.Equal(t, 2, strings.Count(output, "otp delivery (log-only)"))
	assert.Contains(t, output, "***4567")
	assert.Contains(t, output, "987654")
	assert.Contains(t, output, "p***@example.com")
	assert.Contains(t, output, "123123")
	assert.NotContains(t, output, "+639171234567")
	assert.NotContains(t, output, "patient@example.com")
}

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{name: "standard phone number", phone: "+639171234567", want: "***4567"},
		{name: "exactly 5 characters", phone: "12345", want: "***2345"},
		{name: "exactly 4 characters", phone: "1234", want: "****"},
		{name: "empty string", phone: "", want: "****"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maskPhone(tt.phone))
		})
	}
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "p***@example.com", maskEmail("patient@example.com"))
	assert.Equal(t, "a***@b.co", maskEmail("a@b.co"))
	assert.Equal(t, "****", maskEmail("@example.com"))
	assert.Equal(t, "****", maskEmail("not-an-email"))
}

func TestMessages(t *testing.T) {
	t.Run("sms names purpose and lifetime", func(t *testing.T) {
		m := NewMessages("password_reset", 10*time.Minute)
		assert.Equal(t, "Your OTP code for Password Reset is 123456. It is valid for 10 minutes.", m.SMS("123456"))
		assert.Equal(t, "Your Password Reset Code", m.Subject())
	})

	t.Run("empty purpose falls back to verification", func(t *testing.T) {
		m := NewMessages("", 5*time.Minute)
		assert.Equal(t, "Your Verification Code", m.Subject())
		assert.Contains(t, m.EmailText("123456"), "Your verification code is: 123456")
	})

	t.Run("sub-minute ttl reports one minute", func(t *testing.T) {
		m := NewMessages("verification", 30*time.Second)
		assert.Contains(t, m.SMS("123456"), "valid for 1 minutes")
	})

	t.Run("html escapes purpose", func(t *testing.T) {
		m := NewMessages("<script>", 5*time.Minute)
		html, err := m.EmailHTML("123456")
		require.NoError(t, err)
		assert.NotContains(t, html, "<Script>")
		assert.Contains(t, html, "&lt;Script&gt;")
		assert.Contains(t, html, "123456")
		assert.Contains(t, html, "expire in 5 minutes")
	})
}
