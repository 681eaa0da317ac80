// Package awsclient loads the shared AWS SDK configuration and builds the
// non-DynamoDB service clients otpd uses: SNS for SMS delivery and Secrets
// Manager / SSM Parameter Store for secret references.
package awsclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Config holds the AWS connection parameters shared by all service clients.
type Config struct {
	// Region is the AWS region (e.g. "ap-southeast-1").
	Region string

	// Endpoint overrides every service endpoint, e.g. a LocalStack URL.
	// Static test credentials are used when it is set.
	Endpoint string

	// Timeout is the HTTP client timeout for SDK requests.
	Timeout time.Duration
}

// LoadConfig resolves an aws.Config from the default credential chain, or
// from static LocalStack credentials when cfg.Endpoint is set.
func LoadConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.Endpoint != "" {
		opts = append(opts,
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("test", "test", ""),
			),
		)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}

	if cfg.Timeout > 0 {
		awsCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return awsCfg, nil
}

// Clients bundles the service clients built from one aws.Config.
type Clients struct {
	SNS            *sns.Client
	SecretsManager *secretsmanager.Client
	SSM            *ssm.Client
}

// NewClients builds SNS, Secrets Manager and SSM clients, pointing each at
// endpoint when it is non-empty.
func NewClients(awsCfg aws.Config, endpoint string) *Clients {
	c := &Clients{}
	if endpoint == "" {
		c.SNS = sns.NewFromConfig(awsCfg)
		c.SecretsManager = secretsmanager.NewFromConfig(awsCfg)
		c.SSM = ssm.NewFromConfig(awsCfg)
		return c
	}

	c.SNS = sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	c.SecretsManager = secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	c.SSM = ssm.NewFromConfig(awsCfg, func(o *ssm.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return c
}
