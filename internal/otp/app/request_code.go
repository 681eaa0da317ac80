package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/clinic-otp/internal/auth"
	"github.com/aelexs/clinic-otp/internal/domain"
	"github.com/aelexs/clinic-otp/internal/observability"
)

// RequestCode normalizes the target, issues a code and delivers it. Issuance
// and delivery succeed or fail together: when delivery fails the record is
// discarded so the caller can request again immediately.
func (g *Gate) RequestCode(ctx context.Context, req SendRequest) (*SendResult, error) {
	ctx, span := tracer.Start(ctx, "otp.request_code")
	defer span.End()

	logger := observability.WithTraceID(ctx, g.logger)

	// 1. Validate method and target.
	ch, err := domain.ParseChannel(req.Method)
	if err != nil {
		otpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "invalid_target")))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	target, err := g.normalizer.NormalizeFor(req.Target, ch)
	if err != nil {
		otpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "invalid_target")))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	targetHash := auth.HashTarget(target)
	span.SetAttributes(attribute.String("otp.channel", ch.String()))

	// 2. Per-client throttle (fail-open: a limiter outage must not block sign-ups).
	if err := g.checkSendRateLimit(ctx, req.ClientIP); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// 3. Issue (conditional create: fails while a live code exists).
	rec, err := g.store.Issue(ctx, target, ch, g.ttls[ch])
	if err != nil {
		status := "error"
		if errors.Is(err, domain.ErrAlreadyPending) {
			status = "already_pending"
		}
		otpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("request code: %w", err)
	}

	// 4. Deliver synchronously; roll back on failure.
	start := time.Now()
	deliverErr := g.deliverer.Deliver(ctx, target, ch, rec.Code)
	deliveryDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("channel", ch.String())))

	if deliverErr != nil {
		// The request context may already be done (that can be why delivery
		// failed), so the rollback runs detached from its cancellation.
		if discardErr := g.store.Discard(context.WithoutCancel(ctx), target, rec.ID); discardErr != nil {
			logger.ErrorContext(ctx, "otp.rollback_failed",
				"error", discardErr, "target_hash", targetHash, "otp", rec)
			deliverErr = errors.Join(deliverErr, discardErr)
		}
		deliveryFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", ch.String())))
		otpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "delivery_failed")))
		logger.WarnContext(ctx, "otp.delivery_failed",
			"error", deliverErr, "target_hash", targetHash, "otp", rec)
		span.RecordError(deliverErr)
		span.SetStatus(codes.Error, deliverErr.Error())
		return nil, fmt.Errorf("request code: %w", deliverErr)
	}

	otpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "success")))
	logger.InfoContext(ctx, "otp.issued", "target_hash", targetHash, "otp", rec)

	return &SendResult{
		Target:    target,
		Channel:   ch,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// checkSendRateLimit enforces the per-client send limit. Limiter errors are
// logged and the request proceeds.
func (g *Gate) checkSendRateLimit(ctx context.Context, clientIP string) error {
	if g.rateLimiter == nil || clientIP == "" {
		return nil
	}

	allowed, err := g.rateLimiter.CheckAndIncrement(
		ctx,
		"otp_send:ip:"+clientIP,
		g.sendLimit,
		int(g.sendWindow.Seconds()),
	)
	if err != nil {
		observability.WithTraceID(ctx, g.logger).WarnContext(ctx,
			"send rate limit check failed, proceeding (fail-open)",
			"error", err, "client_ip", clientIP)
		return nil
	}
	if !allowed {
		rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("endpoint", "send_otp"),
			attribute.String("limit_type", "ip"),
		))
		return domain.ErrRateLimited
	}
	return nil
}
