package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aelexs/clinic-otp/internal/auth"
	"github.com/aelexs/clinic-otp/internal/domain"
)

// DispatcherConfig holds the dependencies for Dispatcher.
type DispatcherConfig struct {
	SMS     auth.SMSProvider
	Email   auth.EmailProvider
	Timeout time.Duration // defaults to domain.DeliveryTimeout
}

// Dispatcher routes a code to the provider for its channel and bounds the
// call with a timeout.
type Dispatcher struct {
	sms     auth.SMSProvider
	email   auth.EmailProvider
	timeout time.Duration
}

// NewDispatcher creates a Dispatcher. A nil provider disables its channel.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		sms:     cfg.SMS,
		email:   cfg.Email,
		timeout: cfg.Timeout,
	}
	if d.timeout <= 0 {
		d.timeout = domain.DeliveryTimeout
	}
	return d
}

// Deliver sends code to target over ch. Provider errors and timeouts are
// returned joined with domain.ErrDelivery. Deliver returns when the timeout
// elapses even if the provider ignores ctx.
func (d *Dispatcher) Deliver(ctx context.Context, target string, ch domain.Channel, code string) error {
	var send func(context.Context, string, string) error
	switch ch {
	case domain.ChannelPhone:
		if d.sms != nil {
			send = d.sms.SendOTP
		}
	case domain.ChannelEmail:
		if d.email != nil {
			send = d.email.SendOTP
		}
	default:
		return fmt.Errorf("deliver: unsupported channel %q: %w", ch, domain.ErrInvalidTarget)
	}
	if send == nil {
		return fmt.Errorf("deliver: no provider configured for %s: %w", ch, domain.ErrDelivery)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// Buffered so the sender goroutine can always finish after a timeout.
	done := make(chan error, 1)
	go func() {
		done <- send(ctx, target, code)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("provider did not respond within %s: %w", d.timeout, ctx.Err())
	}
	if err != nil {
		return fmt.Errorf("deliver via %s: %w", ch, errors.Join(domain.ErrDelivery, err))
	}
	return nil
}
