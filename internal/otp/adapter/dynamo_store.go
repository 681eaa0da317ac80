package adapter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/clinic-otp/internal/domain"
	"github.com/aelexs/clinic-otp/internal/dynamo"
	"github.com/aelexs/clinic-otp/internal/otp/app"
)

var _ app.RecordStore = (*DynamoStore)(nil)

// otpDynamoDB is a narrow, consumer-defined interface for the DynamoDB
// operations the OTP store needs. *dynamodb.Client satisfies it and test
// stubs implement it directly.
type otpDynamoDB interface {
	GetItem(ctx context.Context, params *dynamo.GetItemInput, optFns ...func(*dynamo.Options)) (*dynamo.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamo.PutItemInput, optFns ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamo.DeleteItemInput, optFns ...func(*dynamo.Options)) (*dynamo.DeleteItemOutput, error)
}

// otpItem is the DynamoDB item shape for the OTP table. Timestamps are Unix
// milliseconds; ttl is Unix seconds as DynamoDB TTL requires.
type otpItem struct {
	Target    string `dynamodbav:"target"`
	ID        string `dynamodbav:"otp_id"`
	Code      string `dynamodbav:"code"`
	Channel   string `dynamodbav:"channel"`
	IssuedAt  int64  `dynamodbav:"issued_at"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
	TTL       int64  `dynamodbav:"ttl"`
}

func (it otpItem) toRecord() (*domain.OTPRecord, error) {
	if it.Code == "" {
		return nil, fmt.Errorf("%w: missing code", errCorruptRecord)
	}
	if it.ExpiresAt == 0 {
		return nil, fmt.Errorf("%w: missing expires_at", errCorruptRecord)
	}
	ch, err := domain.ParseChannel(it.Channel)
	if err != nil {
		return nil, fmt.Errorf("%w: channel %q", errCorruptRecord, it.Channel)
	}
	return &domain.OTPRecord{
		ID:        it.ID,
		Target:    it.Target,
		Code:      it.Code,
		Channel:   ch,
		IssuedAt:  domain.FromMillis(it.IssuedAt),
		ExpiresAt: domain.FromMillis(it.ExpiresAt),
	}, nil
}

// DynamoStore keeps one item per target in a DynamoDB table. Create is a
// conditional PutItem and Take is a DeleteItem returning the old item, so
// both are atomic per key.
type DynamoStore struct {
	db        otpDynamoDB
	tableName string
	clock     domain.Clock
	retention time.Duration
}

// NewDynamoStore creates a DynamoStore backed by db.
func NewDynamoStore(db otpDynamoDB, tableName string, clock domain.Clock, retention time.Duration) *DynamoStore {
	return &DynamoStore{
		db:        db,
		tableName: tableName,
		clock:     clock,
		retention: retention,
	}
}

func (s *DynamoStore) keyOf(target string) map[string]dynamo.AttributeValue {
	return map[string]dynamo.AttributeValue{
		"target": &dynamo.AttributeValueMemberS{Value: target},
	}
}

// Create writes rec unless a live item exists. An item whose expires_at is
// already past is overwritten.
func (s *DynamoStore) Create(ctx context.Context, rec domain.OTPRecord) error {
	ctx, span := startDynamoSpan(ctx, "dynamodb.otp.create", "PutItem")
	defer span.End()

	av, err := dynamo.MarshalMap(otpItem{
		Target:    rec.Target,
		ID:        rec.ID,
		Code:      rec.Code,
		Channel:   rec.Channel.String(),
		IssuedAt:  domain.ToMillis(rec.IssuedAt),
		ExpiresAt: domain.ToMillis(rec.ExpiresAt),
		TTL:       rec.ExpiresAt.Add(s.retention).Unix(),
	})
	if err != nil {
		return fmt.Errorf("dynamo otp store: marshal item: %w", err)
	}

	cond, err := dynamo.AbsentOrExpiredBefore("target", "expires_at", domain.NowUTCMillis(s.clock))
	if err != nil {
		return fmt.Errorf("dynamo otp store: create: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamo.PutItemInput{
		TableName:                 &s.tableName,
		Item:                      av,
		ConditionExpression:       cond.Condition,
		ExpressionAttributeNames:  cond.Names,
		ExpressionAttributeValues: cond.Values,
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return fmt.Errorf("dynamo otp store: create: %w", domain.ErrAlreadyPending)
		}
		failSpan(span, err)
		return fmt.Errorf("dynamo otp store: create: %w", err)
	}
	return nil
}

// Get reads the item for target with a strongly consistent read.
func (s *DynamoStore) Get(ctx context.Context, target string) (*domain.OTPRecord, error) {
	ctx, span := startDynamoSpan(ctx, "dynamodb.otp.get", "GetItem")
	defer span.End()

	out, err := s.db.GetItem(ctx, &dynamo.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.keyOf(target),
		ConsistentRead: dynamo.Bool(true),
	})
	if err != nil {
		failSpan(span, err)
		return nil, fmt.Errorf("dynamo otp store: get: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("dynamo otp store: get: %w", domain.ErrNotFound)
	}

	rec, err := decodeItem(out.Item)
	if err != nil {
		return nil, fmt.Errorf("dynamo otp store: get: %w", err)
	}
	return rec, nil
}

// Take deletes the item for target and returns what was deleted.
func (s *DynamoStore) Take(ctx context.Context, target string) (*domain.OTPRecord, error) {
	ctx, span := startDynamoSpan(ctx, "dynamodb.otp.take", "DeleteItem")
	defer span.End()

	out, err := s.db.DeleteItem(ctx, &dynamo.DeleteItemInput{
		TableName:    &s.tableName,
		Key:          s.keyOf(target),
		ReturnValues: dynamo.ReturnValueAllOld,
	})
	if err != nil {
		failSpan(span, err)
		return nil, fmt.Errorf("dynamo otp store: take: %w", err)
	}
	if len(out.Attributes) == 0 {
		return nil, fmt.Errorf("dynamo otp store: take: %w", domain.ErrNotFound)
	}

	rec, err := decodeItem(out.Attributes)
	if err != nil {
		return nil, fmt.Errorf("dynamo otp store: take: %w", err)
	}
	return rec, nil
}

// DeleteIfID removes the item for target only while it still carries id. A
// missing item or one with another id is left alone.
func (s *DynamoStore) DeleteIfID(ctx context.Context, target, id string) error {
	ctx, span := startDynamoSpan(ctx, "dynamodb.otp.delete", "DeleteItem")
	defer span.End()

	cond, err := dynamo.AttributeEquals("otp_id", id)
	if err != nil {
		return fmt.Errorf("dynamo otp store: delete: %w", err)
	}

	_, err = s.db.DeleteItem(ctx, &dynamo.DeleteItemInput{
		TableName:                 &s.tableName,
		Key:                       s.keyOf(target),
		ConditionExpression:       cond.Condition,
		ExpressionAttributeNames:  cond.Names,
		ExpressionAttributeValues: cond.Values,
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return nil
		}
		failSpan(span, err)
		return fmt.Errorf("dynamo otp store: delete: %w", err)
	}
	return nil
}

func decodeItem(av map[string]dynamo.AttributeValue) (*domain.OTPRecord, error) {
	var item otpItem
	if err := dynamo.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptRecord, err)
	}
	return item.toRecord()
}

func startDynamoSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "dynamodb"),
		attribute.String("db.operation", op),
	)
	return ctx, span
}
