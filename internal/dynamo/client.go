// Package dynamo provides a shared DynamoDB client factory.
// Only this package imports the DynamoDB SDK; adapters use the re-exported
// types and helpers defined here.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/aelexs/clinic-otp/internal/awsclient"
)

// Config holds DynamoDB connection parameters.
type Config struct {
	// Endpoint overrides the default AWS endpoint.
	// Set to a LocalStack URL (e.g. "http://localhost:4566") for local development.
	// When empty, the default AWS endpoint resolver is used.
	Endpoint string

	// Region is the AWS region for the DynamoDB client (e.g. "ap-southeast-1").
	Region string

	// Timeout is the HTTP client timeout for DynamoDB requests.
	Timeout time.Duration
}

// Client wraps the AWS DynamoDB SDK client.
// Adapters access the underlying SDK client via the DB field.
type Client struct {
	DB *dynamodb.Client
}

// NewClient creates a DynamoDB client configured from cfg.
// When cfg.Endpoint is non-empty, BaseEndpoint is set on the service client
// and static credentials are used for LocalStack compatibility.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := awsclient.LoadConfig(ctx, awsclient.Config{
		Region:   cfg.Region,
		Endpoint: cfg.Endpoint,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	var dbOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		dbOpts = append(dbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = &endpoint
		})
	}

	return &Client{
		DB: dynamodb.NewFromConfig(awsCfg, dbOpts...),
	}, nil
}

// ---------------------------------------------------------------------------
// Type aliases: adapters import dynamo.GetItemInput instead of the SDK.
// ---------------------------------------------------------------------------

type (
	GetItemInput     = dynamodb.GetItemInput
	GetItemOutput    = dynamodb.GetItemOutput
	PutItemInput     = dynamodb.PutItemInput
	PutItemOutput    = dynamodb.PutItemOutput
	DeleteItemInput  = dynamodb.DeleteItemInput
	DeleteItemOutput = dynamodb.DeleteItemOutput
)

type (
	AttributeValue        = types.AttributeValue
	AttributeValueMemberS = types.AttributeValueMemberS
	AttributeValueMemberN = types.AttributeValueMemberN
)

// Options is the DynamoDB client options type.
// Re-exported so adapter-defined interfaces can reference optFns variadic params.
type Options = dynamodb.Options

// ReturnValueAllOld asks DeleteItem to return the item as it was before the
// delete. Together they form an atomic read-and-remove.
const ReturnValueAllOld = types.ReturnValueAllOld

// Bool returns a pointer to a bool value.
var Bool = aws.Bool

// MarshalMap serializes a Go value into a DynamoDB attribute value map.
var MarshalMap = attributevalue.MarshalMap

// UnmarshalMap deserializes a DynamoDB attribute value map into a Go value.
var UnmarshalMap = attributevalue.UnmarshalMap

// ---------------------------------------------------------------------------
// Condition expressions.
// ---------------------------------------------------------------------------

// Expression is a compiled condition with its name and value placeholders.
type Expression struct {
	Condition *string
	Names     map[string]string
	Values    map[string]types.AttributeValue
}

// AbsentOrExpiredBefore builds the condition "item does not exist, or its
// numeric expiryAttr is below now". It lets a conditional PutItem replace a
// stale item while refusing to overwrite a live one.
func AbsentOrExpiredBefore(keyAttr, expiryAttr string, now int64) (Expression, error) {
	cond := expression.AttributeNotExists(expression.Name(keyAttr)).
		Or(expression.Name(expiryAttr).LessThan(expression.Value(now)))

	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return Expression{}, fmt.Errorf("build condition: %w", err)
	}
	return Expression{
		Condition: expr.Condition(),
		Names:     expr.Names(),
		Values:    expr.Values(),
	}, nil
}

// AttributeEquals builds the condition "string attr equals value". A
// conditional DeleteItem uses it to remove an item only while it still holds
// the expected value.
func AttributeEquals(attr, value string) (Expression, error) {
	cond := expression.Name(attr).Equal(expression.Value(value))

	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return Expression{}, fmt.Errorf("build condition: %w", err)
	}
	return Expression{
		Condition: expr.Condition(),
		Names:     expr.Names(),
		Values:    expr.Values(),
	}, nil
}

// ---------------------------------------------------------------------------
// Error classification helpers: adapters check error types without SDK import.
// ---------------------------------------------------------------------------

// IsConditionalCheckFailed reports whether err is a DynamoDB
// ConditionalCheckFailedException.
func IsConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// ErrConditionalCheckFailed returns a ConditionalCheckFailedException for
// adapter tests. DynamoDB is the only producer of this error in production.
func ErrConditionalCheckFailed() error {
	return &types.ConditionalCheckFailedException{
		Message: aws.String("The conditional request failed"),
	}
}
