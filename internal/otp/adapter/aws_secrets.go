package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/aelexs/clinic-otp/internal/domain"
)

// smClient is the narrow consumer-defined interface for Secrets Manager operations.
type smClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ssmClient is the narrow consumer-defined interface for SSM Parameter Store operations.
type ssmClient interface {
	GetParameter(ctx context.Context, params *awsssm.GetParameterInput, optFns ...func(*awsssm.Options)) (*awsssm.GetParameterOutput, error)
}

const (
	secretsManagerRefPrefix = domain.SecretsManagerRefPrefix
	ssmRefPrefix            = domain.SSMRefPrefix
)

// SecretResolver turns secret references from config into values.
//
// Reference forms:
//
//	sm:<secret-id>        whole SecretString from Secrets Manager
//	sm:<secret-id>#<key>  one key of a JSON SecretString
//	ssm:<parameter-name>  SecureString parameter, decrypted
//
// Either client may be nil when that kind of reference is not used.
type SecretResolver struct {
	sm  smClient
	ssm ssmClient
}

// NewSecretResolver creates a SecretResolver.
func NewSecretResolver(sm smClient, ssm ssmClient) *SecretResolver {
	return &SecretResolver{sm: sm, ssm: ssm}
}

// Resolve fetches the secret named by ref.
func (r *SecretResolver) Resolve(ctx context.Context, ref string) (domain.SecretString, error) {
	switch {
	case strings.HasPrefix(ref, secretsManagerRefPrefix):
		return r.fromSecretsManager(ctx, strings.TrimPrefix(ref, secretsManagerRefPrefix))
	case strings.HasPrefix(ref, ssmRefPrefix):
		return r.fromSSM(ctx, strings.TrimPrefix(ref, ssmRefPrefix))
	default:
		return "", fmt.Errorf("resolve secret: unsupported reference %q: %w", ref, domain.ErrInvalidInput)
	}
}

func (r *SecretResolver) fromSecretsManager(ctx context.Context, id string) (domain.SecretString, error) {
	if r.sm == nil {
		return "", fmt.Errorf("resolve secret %q: secrets manager not configured: %w", id, domain.ErrConfigRequired)
	}

	name, key, _ := strings.Cut(id, "#")
	out, err := r.sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("fetching secret %q from Secrets Manager: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no secret string", name)
	}
	if key == "" {
		return domain.SecretString(*out.SecretString), nil
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &fields); err != nil {
		return "", fmt.Errorf("secret %q is not a JSON object: %w", name, err)
	}
	v, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("secret %q has no key %q", name, key)
	}
	return domain.SecretString(v), nil
}

func (r *SecretResolver) fromSSM(ctx context.Context, name string) (domain.SecretString, error) {
	if r.ssm == nil {
		return "", fmt.Errorf("resolve secret %q: ssm not configured: %w", name, domain.ErrConfigRequired)
	}

	out, err := r.ssm.GetParameter(ctx, &awsssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("fetching parameter %q from SSM: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %s has no value", name)
	}
	return domain.SecretString(*out.Parameter.Value), nil
}
