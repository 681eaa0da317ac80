package adapter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/clinic-otp/internal/domain"
	"github.com/aelexs/clinic-otp/internal/otp/app"
	redisclient "github.com/aelexs/clinic-otp/internal/redis"
)

var _ app.RecordStore = (*RedisStore)(nil)

// createScript writes the record hash unless a live one exists. A record
// whose expires_at is unreadable or already past counts as absent. The key
// gets a PEXPIRE covering the TTL plus the retention window.
//
// KEYS[1] record key
// ARGV    now_ms, id, code, channel, issued_at_ms, expires_at_ms, pexpire_ms
const createScript = `
local exp = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if exp and exp >= tonumber(ARGV[1]) then
  return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'id', ARGV[2], 'code', ARGV[3], 'channel', ARGV[4], 'issued_at', ARGV[5], 'expires_at', ARGV[6])
redis.call('PEXPIRE', KEYS[1], ARGV[7])
return 1
`

// takeScript returns the record hash as a flat field/value list and deletes
// it in the same step.
const takeScript = `
local fields = redis.call('HGETALL', KEYS[1])
if #fields > 0 then
  redis.call('DEL', KEYS[1])
end
return fields
`

// deleteIfIDScript deletes the record hash only while its id field equals
// ARGV[1].
//
// KEYS[1] record key
// ARGV    id
const deleteIfIDScript = `
if redis.call('HGET', KEYS[1], 'id') == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisStore keeps each OTP record in a Redis hash keyed by prefix+target.
// Create, Take and DeleteIfID run as Lua scripts, so they are atomic across
// every process sharing the Redis instance.
type RedisStore struct {
	cmd       redisclient.Cmdable
	prefix    string
	clock     domain.Clock
	retention time.Duration
}

// NewRedisStore creates a RedisStore. Keys are written as prefix+target.
func NewRedisStore(cmd redisclient.Cmdable, prefix string, clock domain.Clock, retention time.Duration) *RedisStore {
	return &RedisStore{
		cmd:       cmd,
		prefix:    prefix,
		clock:     clock,
		retention: retention,
	}
}

func (s *RedisStore) key(target string) string {
	return s.prefix + target
}

// Create stores rec unless a live record exists for its target.
func (s *RedisStore) Create(ctx context.Context, rec domain.OTPRecord) error {
	ctx, span := startRedisSpan(ctx, "redis.otp.create", "EVAL")
	defer span.End()

	keep := rec.ExpiresAt.Sub(rec.IssuedAt) + s.retention
	if keep <= 0 {
		keep = time.Millisecond
	}

	created, err := s.cmd.Eval(ctx, createScript, []string{s.key(rec.Target)},
		domain.NowUTCMillis(s.clock),
		rec.ID,
		rec.Code,
		rec.Channel.String(),
		domain.ToMillis(rec.IssuedAt),
		domain.ToMillis(rec.ExpiresAt),
		keep.Milliseconds(),
	).Int64()
	if err != nil {
		failSpan(span, err)
		return fmt.Errorf("redis otp store: create: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("redis otp store: create: %w", domain.ErrAlreadyPending)
	}
	return nil
}

// Get returns the record for target without removing it.
func (s *RedisStore) Get(ctx context.Context, target string) (*domain.OTPRecord, error) {
	ctx, span := startRedisSpan(ctx, "redis.otp.get", "HGETALL")
	defer span.End()

	fields, err := s.cmd.HGetAll(ctx, s.key(target)).Result()
	if err != nil {
		failSpan(span, err)
		return nil, fmt.Errorf("redis otp store: get: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("redis otp store: get: %w", domain.ErrNotFound)
	}

	rec, err := decodeFields(target, fields)
	if err != nil {
		return nil, fmt.Errorf("redis otp store: get: %w", err)
	}
	return rec, nil
}

// Take removes and returns the record for target.
func (s *RedisStore) Take(ctx context.Context, target string) (*domain.OTPRecord, error) {
	ctx, span := startRedisSpan(ctx, "redis.otp.take", "EVAL")
	defer span.End()

	pairs, err := s.cmd.Eval(ctx, takeScript, []string{s.key(target)}).StringSlice()
	if err != nil {
		failSpan(span, err)
		return nil, fmt.Errorf("redis otp store: take: %w", err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("redis otp store: take: %w", domain.ErrNotFound)
	}

	rec, err := decodeFields(target, pairsToMap(pairs))
	if err != nil {
		return nil, fmt.Errorf("redis otp store: take: %w", err)
	}
	return rec, nil
}

// DeleteIfID removes the record for target only while it still carries id.
func (s *RedisStore) DeleteIfID(ctx context.Context, target, id string) error {
	ctx, span := startRedisSpan(ctx, "redis.otp.delete", "EVAL")
	defer span.End()

	if err := s.cmd.Eval(ctx, deleteIfIDScript, []string{s.key(target)}, id).Err(); err != nil {
		failSpan(span, err)
		return fmt.Errorf("redis otp store: delete: %w", err)
	}
	return nil
}

func startRedisSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", op),
	)
	return ctx, span
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
