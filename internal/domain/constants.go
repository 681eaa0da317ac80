package domain

import "time"

// Compiled defaults. Most can be overridden via configuration.
const (
	// Code shape
	OTPCodeLength = 6
	OTPCodeMin    = 100000
	OTPCodeMax    = 999999

	// Lifetimes
	DefaultOTPTTL          = 5 * time.Minute  // How long an issued code remains valid
	ExpiredRecordRetention = 15 * time.Minute // How long an expired record is kept so reads report Expired
	ExpirySweepInterval    = 1 * time.Minute  // Memory store sweep cadence

	// Delivery
	DeliveryTimeout    = 10 * time.Second // Max time a provider may take before issuance is rolled back
	DefaultOTPPurpose  = "verification"
	HTTPGatewayTimeout = 15 * time.Second // Transport-level ceiling for the HTTP SMS gateway client

	// Phone normalization
	DefaultCountryCode = "63" // Philippines
	DefaultTrunkPrefix = "0"

	// Send throttling per client IP, on top of the single-pending-code rule
	SendRateLimitPerIP  = 10
	SendRateLimitWindow = 15 * time.Minute

	// Timeout contracts
	DynamoDBTimeout = 5 * time.Second // Max time for DynamoDB operations
	RedisTimeout    = 2 * time.Second // Max time for Redis operations

	// HTTP limits
	MaxRequestBodyBytes = 4 << 10

	// Graceful shutdown
	GracefulShutdownTimeout = 30 * time.Second // Max time to drain connections on shutdown
	ShutdownDrainDelay      = 1 * time.Second  // Health checks report 503 before the listener closes
	ShutdownHTTPTimeout     = 15 * time.Second
	ShutdownOTELTimeout     = 5 * time.Second
)
