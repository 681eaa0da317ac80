package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aelexs/clinic-otp/internal/auth"
	"github.com/aelexs/clinic-otp/internal/awsclient"
	"github.com/aelexs/clinic-otp/internal/config"
	"github.com/aelexs/clinic-otp/internal/domain"
	"github.com/aelexs/clinic-otp/internal/dynamo"
	"github.com/aelexs/clinic-otp/internal/otp/adapter"
	"github.com/aelexs/clinic-otp/internal/otp/app"
	"github.com/aelexs/clinic-otp/internal/otp/port"
	"github.com/aelexs/clinic-otp/internal/redis"
	"github.com/aelexs/clinic-otp/internal/server"
)

// rateLimitKeyPrefix separates limiter counters from OTP records when both
// live in the same Redis database.
const rateLimitKeyPrefix = "ratelimit:"

// errAWSNotSelected is returned when AWS clients are requested but no
// configured backend, provider or secret reference uses AWS.
var errAWSNotSelected = errors.New("no configured component uses AWS")

// infra holds the lazily created infrastructure clients shared by the
// store, limiter and providers.
type infra struct {
	cfg    *config.Config
	logger *slog.Logger

	redis *redis.Client
	aws   *awsclient.Clients

	closers []func() error
}

func (in *infra) close() error {
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		errs = append(errs, in.closers[i]())
	}
	return errors.Join(errs...)
}

func (in *infra) redisClient(ctx context.Context) (*redis.Client, error) {
	if in.redis != nil {
		return in.redis, nil
	}
	c := redis.NewClient(redis.Config{
		Addr:         in.cfg.Redis.Addr,
		Password:     in.cfg.Redis.Password.Expose(),
		DB:           in.cfg.Redis.DB,
		ReadTimeout:  in.cfg.Redis.Timeout,
		WriteTimeout: in.cfg.Redis.Timeout,
	})
	in.closers = append(in.closers, c.Close)
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	in.redis = c
	return c, nil
}

func (in *infra) awsClients(ctx context.Context) (*awsclient.Clients, error) {
	if in.aws != nil {
		return in.aws, nil
	}
	if !in.cfg.NeedsAWS() {
		return nil, errAWSNotSelected
	}
	awsCfg, err := awsclient.LoadConfig(ctx, awsclient.Config{
		Region:   in.cfg.AWS.Region,
		Endpoint: in.cfg.AWS.Endpoint,
		Timeout:  in.cfg.DynamoDB.Timeout,
	})
	if err != nil {
		return nil, err
	}
	in.aws = awsclient.NewClients(awsCfg, in.cfg.AWS.Endpoint)
	return in.aws, nil
}

// setup is the otpd composition root. It resolves secrets, selects the
// store, limiter and delivery providers from config, and registers the
// OTP routes.
func setup(ctx context.Context, deps server.SetupDeps) (func(context.Context) error, error) {
	cfg := deps.Config
	logger := deps.Logger
	in := &infra{cfg: cfg, logger: logger}

	fail := func(step string, err error) (func(context.Context) error, error) {
		_ = in.close()
		return nil, fmt.Errorf("otpd setup: %s: %w", step, err)
	}

	if err := resolveSecrets(ctx, in); err != nil {
		return fail("resolve secrets", err)
	}

	clock := domain.RealClock{}

	records, err := newRecordStore(ctx, in, clock, deps.Go)
	if err != nil {
		return fail("create otp store", err)
	}

	limiter, err := newRateLimiter(ctx, in, clock)
	if err != nil {
		return fail("create rate limiter", err)
	}

	smsProvider, err := newSMSProvider(ctx, in)
	if err != nil {
		return fail("create sms provider", err)
	}
	emailProvider := newEmailProvider(in)

	store := app.NewStore(app.StoreConfig{
		Records: records,
		Clock:   clock,
	})
	dispatcher := app.NewDispatcher(app.DispatcherConfig{
		SMS:     smsProvider,
		Email:   emailProvider,
		Timeout: cfg.OTP.Timeout,
	})
	gate := app.NewGate(app.GateConfig{
		Store:       store,
		Deliverer:   dispatcher,
		RateLimiter: limiter,
		Normalizer:  domain.NewNormalizer(cfg.OTP.Country, cfg.OTP.Trunk),
		PhoneTTL:    cfg.OTP.TTL,
		EmailTTL:    cfg.OTP.EmailTTL,
		SendLimit:   cfg.OTP.Limit,
		SendWindow:  cfg.OTP.Window,
		Logger:      logger,
	})

	port.NewHandler(gate, logger).Register(deps.HTTPMux)

	logger.InfoContext(ctx, "otp service initialized",
		slog.String("store", cfg.OTP.Store),
		slog.String("limiter", cfg.OTP.Limiter),
		slog.String("sms_provider", cfg.SMS.Provider),
		slog.String("email_provider", cfg.Email.Provider),
	)

	return func(context.Context) error { return in.close() }, nil
}

// resolveSecrets replaces every secret reference in cfg with its value.
func resolveSecrets(ctx context.Context, in *infra) error {
	if !in.cfg.HasSecretRefs() {
		return nil
	}
	clients, err := in.awsClients(ctx)
	if err != nil {
		return err
	}
	resolver := adapter.NewSecretResolver(clients.SecretsManager, clients.SSM)
	for _, s := range in.cfg.Secrets() {
		if !s.IsRef() {
			continue
		}
		v, err := resolver.Resolve(ctx, s.Expose())
		if err != nil {
			return err
		}
		*s = v
	}
	return nil
}

func newRecordStore(ctx context.Context, in *infra, clock domain.Clock, goFn func(server.Worker)) (app.RecordStore, error) {
	cfg := in.cfg
	switch cfg.OTP.Store {
	case config.StoreRedis:
		c, err := in.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return adapter.NewRedisStore(c.RDB, cfg.Redis.Prefix, clock, cfg.OTP.Retention), nil

	case config.StoreDynamoDB:
		db, err := dynamo.NewClient(ctx, dynamo.Config{
			Endpoint: firstNonEmpty(cfg.DynamoDB.Endpoint, cfg.AWS.Endpoint),
			Region:   cfg.AWS.Region,
			Timeout:  cfg.DynamoDB.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return adapter.NewDynamoStore(db.DB, cfg.DynamoDB.Table, clock, cfg.OTP.Retention), nil

	default:
		mem := adapter.NewMemoryStore(clock, cfg.OTP.Retention)
		goFn(func(ctx context.Context) error {
			return mem.RunSweeper(ctx, cfg.OTP.Sweep)
		})
		return mem, nil
	}
}

func newRateLimiter(ctx context.Context, in *infra, clock domain.Clock) (app.RateLimiter, error) {
	switch in.cfg.OTP.Limiter {
	case config.LimiterNone:
		return nil, nil
	case config.LimiterRedis:
		c, err := in.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return adapter.NewRedisRateLimiter(c.RDB, in.cfg.Redis.Prefix+rateLimitKeyPrefix), nil
	default:
		return adapter.NewLocalRateLimiter(clock), nil
	}
}

func newSMSProvider(ctx context.Context, in *infra) (auth.SMSProvider, error) {
	cfg := in.cfg
	messages := adapter.NewMessages(cfg.OTP.Purpose, cfg.OTP.TTL)
	switch cfg.SMS.Provider {
	case config.ProviderSNS:
		clients, err := in.awsClients(ctx)
		if err != nil {
			return nil, err
		}
		return adapter.NewSNSSMSProvider(clients.SNS, messages, cfg.SMS.Sender), nil
	case config.ProviderHTTP:
		return adapter.NewHTTPSMSProvider(adapter.HTTPSMSConfig{
			URL:        cfg.SMS.URL,
			APIKey:     cfg.SMS.APIKey,
			SenderName: cfg.SMS.Sender,
			Messages:   messages,
		}), nil
	default:
		in.logger.Info("using log-only SMS provider")
		return adapter.NewLogSMSProvider(in.logger), nil
	}
}

func newEmailProvider(in *infra) auth.EmailProvider {
	cfg := in.cfg
	if cfg.Email.Provider == config.ProviderSMTP {
		dialer := adapter.NewSMTPDialer(cfg.Email.Host, cfg.Email.Port, cfg.Email.Username, cfg.Email.Password.Expose())
		return adapter.NewSMTPEmailProvider(dialer, cfg.Email.From, adapter.NewMessages(cfg.OTP.Purpose, cfg.OTP.EmailTTL))
	}
	in.logger.Info("using log-only email provider")
	return adapter.NewLogEmailProvider(in.logger)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
