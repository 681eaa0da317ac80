package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/clinic-otp/internal/domain"
)

var tracer = otel.Tracer("otp/app")

var (
	otpRequestsTotal      metric.Int64Counter
	otpVerificationsTotal metric.Int64Counter
	deliveryFailuresTotal metric.Int64Counter
	rateLimitsTotal       metric.Int64Counter
	deliveryDuration      metric.Float64Histogram
)

func init() {
	m := otel.Meter("otp/app")

	otpRequestsTotal, _ = m.Int64Counter("otp_requests_total",
		metric.WithDescription("Total OTP issuance requests by status"))
	otpVerificationsTotal, _ = m.Int64Counter("otp_verifications_total",
		metric.WithDescription("Total OTP verifications by outcome"))
	deliveryFailuresTotal, _ = m.Int64Counter("otp_delivery_failures_total",
		metric.WithDescription("Total OTP deliveries that failed and were rolled back"))
	rateLimitsTotal, _ = m.Int64Counter("security_rate_limits_total",
		metric.WithDescription("Total rate limit hits"))
	deliveryDuration, _ = m.Float64Histogram("otp_delivery_duration_seconds",
		metric.WithDescription("Time spent waiting on delivery providers"),
		metric.WithUnit("s"))
}

// CodeStore is the subset of Store the gate drives.
type CodeStore interface {
	Issue(ctx context.Context, target string, ch domain.Channel, ttl time.Duration) (*domain.OTPRecord, error)
	Consume(ctx context.Context, target, code string) error
	Discard(ctx context.Context, target, id string) error
}

// Deliverer sends an issued code out of band.
type Deliverer interface {
	Deliver(ctx context.Context, target string, ch domain.Channel, code string) error
}

// RateLimiter counts requests per key inside a fixed window.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, key string, limit, windowSeconds int) (bool, error)
}

var (
	_ CodeStore = (*Store)(nil)
	_ Deliverer = (*Dispatcher)(nil)
)

// SendRequest is the input to RequestCode.
type SendRequest struct {
	Target   string
	Method   string
	ClientIP string
}

// SendResult is returned by RequestCode on success.
type SendResult struct {
	Target    string
	Channel   domain.Channel
	ExpiresAt time.Time
}

// VerifyRequest is the input to VerifyCode.
type VerifyRequest struct {
	Target string
	Code   string
	Method string
}

// GateConfig holds the dependencies for Gate.
type GateConfig struct {
	Store       CodeStore
	Deliverer   Deliverer
	RateLimiter RateLimiter // optional; nil disables per-client send throttling
	Normalizer  domain.Normalizer
	PhoneTTL    time.Duration
	EmailTTL    time.Duration
	SendLimit   int
	SendWindow  time.Duration
	Logger      *slog.Logger
}

// Gate exposes requestCode and verifyCode to the registration and profile
// flows. It composes issuance with delivery and rolls the record back when
// delivery fails.
type Gate struct {
	store       CodeStore
	deliverer   Deliverer
	rateLimiter RateLimiter
	normalizer  domain.Normalizer
	ttls        map[domain.Channel]time.Duration
	sendLimit   int
	sendWindow  time.Duration
	logger      *slog.Logger
}

// NewGate creates a Gate with the given dependencies.
func NewGate(cfg GateConfig) *Gate {
	g := &Gate{
		store:       cfg.Store,
		deliverer:   cfg.Deliverer,
		rateLimiter: cfg.RateLimiter,
		normalizer:  cfg.Normalizer,
		ttls: map[domain.Channel]time.Duration{
			domain.ChannelPhone: orDefault(cfg.PhoneTTL, domain.DefaultOTPTTL),
			domain.ChannelEmail: orDefault(cfg.EmailTTL, domain.DefaultOTPTTL),
		},
		sendLimit:  cfg.SendLimit,
		sendWindow: orDefault(cfg.SendWindow, domain.SendRateLimitWindow),
		logger:     cfg.Logger,
	}
	if g.sendLimit <= 0 {
		g.sendLimit = domain.SendRateLimitPerIP
	}
	if g.normalizer == (domain.Normalizer{}) {
		g.normalizer = domain.NewNormalizer("", "")
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
