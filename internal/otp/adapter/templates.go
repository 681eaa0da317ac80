package adapter

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aelexs/clinic-otp/internal/domain"
)

var emailHTML = template.Must(template.New("otp_email").Parse(`<div style="font-family: Arial, sans-serif; padding: 20px;">
  <h2>{{.Purpose}} Code</h2>
  <p>Your {{.PurposeLower}} code is:</p>
  <h1 style="color: #4CAF50; font-size: 32px;">{{.Code}}</h1>
  <p>This code will expire in {{.Minutes}} minutes.</p>
</div>
`))

// Messages renders the text sent to users. Purpose names what the code is
// for, e.g. "verification" or "password_reset".
type Messages struct {
	purpose string
	ttl     time.Duration
}

// NewMessages creates Messages for purpose with codes valid for ttl. An empty
// purpose falls back to domain.DefaultOTPPurpose.
func NewMessages(purpose string, ttl time.Duration) Messages {
	if purpose == "" {
		purpose = domain.DefaultOTPPurpose
	}
	return Messages{purpose: purpose, ttl: ttl}
}

// formatPurpose turns "password_reset" into "Password Reset".
func formatPurpose(purpose string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(purpose, "_", " "))
}

func (m Messages) minutes() int {
	n := int(m.ttl.Minutes())
	if n < 1 {
		return 1
	}
	return n
}

// SMS returns the SMS body for code.
func (m Messages) SMS(code string) string {
	return fmt.Sprintf("Your OTP code for %s is %s. It is valid for %d minutes.",
		formatPurpose(m.purpose), code, m.minutes())
}

// Subject returns the email subject line.
func (m Messages) Subject() string {
	return fmt.Sprintf("Your %s Code", formatPurpose(m.purpose))
}

// EmailText returns the plaintext email body for code.
func (m Messages) EmailText(code string) string {
	return fmt.Sprintf("Your %s code is: %s\nThis code will expire in %d minutes.\n",
		strings.ToLower(formatPurpose(m.purpose)), code, m.minutes())
}

// EmailHTML returns the HTML email body for code.
func (m Messages) EmailHTML(code string) (string, error) {
	var buf bytes.Buffer
	err := emailHTML.Execute(&buf, struct {
		Purpose      string
		PurposeLower string
		Code         string
		Minutes      int
	}{
		Purpose:      formatPurpose(m.purpose),
		PurposeLower: strings.ToLower(formatPurpose(m.purpose)),
		Code:         code,
		Minutes:      m.minutes(),
	})
	if err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}
