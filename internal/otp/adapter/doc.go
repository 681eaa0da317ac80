// Package adapter contains implementations of the interfaces defined in app:
// record stores (memory, Redis, DynamoDB), rate limiters, delivery providers
// (SNS, HTTP gateway, SMTP, log-only) and the AWS secret resolver.
package adapter

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("otp/adapter")
