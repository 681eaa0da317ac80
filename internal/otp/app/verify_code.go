package app

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/clinic-otp/internal/auth"
	"github.com/aelexs/clinic-otp/internal/domain"
	"github.com/aelexs/clinic-otp/internal/observability"
)

// VerifyCode checks code against the pending record for the target. Any
// outcome consumes the record, so a second call always fails with
// domain.ErrOTPNotFound. Unknown targets are a typed failure, never a panic.
func (g *Gate) VerifyCode(ctx context.Context, req VerifyRequest) error {
	ctx, span := tracer.Start(ctx, "otp.verify_code")
	defer span.End()

	logger := observability.WithTraceID(ctx, g.logger)

	ch, err := domain.ParseChannel(req.Method)
	if err != nil {
		otpVerificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "invalid_target")))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	target, err := g.normalizer.NormalizeFor(req.Target, ch)
	if err != nil {
		otpVerificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "invalid_target")))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	targetHash := auth.HashTarget(target)
	span.SetAttributes(attribute.String("otp.channel", ch.String()))

	err = g.store.Consume(ctx, target, req.Code)
	outcome := verifyOutcome(err)
	otpVerificationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("channel", ch.String()),
	))
	span.SetAttributes(attribute.String("otp.outcome", outcome))

	if err != nil {
		logger.InfoContext(ctx, "otp.verify_failed", "target_hash", targetHash, "outcome", outcome)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if domain.IsVerificationFailure(err) {
			return err
		}
		return fmt.Errorf("verify code: %w", err)
	}

	logger.InfoContext(ctx, "otp.verified", "target_hash", targetHash, "channel", ch.String())
	return nil
}

func verifyOutcome(err error) string {
	switch {
	case err == nil:
		return "verified"
	case errors.Is(err, domain.ErrOTPExpired):
		return "expired"
	case errors.Is(err, domain.ErrOTPMismatch):
		return "rejected"
	case errors.Is(err, domain.ErrOTPNotFound):
		return "not_found"
	default:
		return "error"
	}
}
