package adapter

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/aelexs/clinic-otp/internal/auth"
)

// snsPublisher is a narrow, consumer-defined interface for the subset of SNS
// operations required by the SMS provider. The real *sns.Client satisfies it.
type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var _ auth.SMSProvider = (*SNSSMSProvider)(nil)

// SNSSMSProvider delivers OTP codes via Amazon SNS SMS.
type SNSSMSProvider struct {
	client   snsPublisher
	messages Messages
	senderID string
}

// NewSNSSMSProvider creates an SNSSMSProvider backed by the given SNS client.
// senderID is optional; carriers that support alphanumeric sender ids show
// it instead of a number.
func NewSNSSMSProvider(client snsPublisher, messages Messages, senderID string) *SNSSMSProvider {
	return &SNSSMSProvider{client: client, messages: messages, senderID: senderID}
}

// SendOTP publishes a transactional SMS with the code to phone.
func (p *SNSSMSProvider) SendOTP(ctx context.Context, phone, code string) error {
	message := p.messages.SMS(code)

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    strPtr("String"),
			StringValue: strPtr("Transactional"),
		},
	}
	if p.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    strPtr("String"),
			StringValue: strPtr(p.senderID),
		}
	}

	_, err := p.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       &phone,
		Message:           &message,
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns sms: send otp to %s: %w", maskPhone(phone), err)
	}

	return nil
}

func strPtr(s string) *string { return &s }
