// Package main is the entrypoint for otpd, the OTP issuance and
// verification service behind the clinic booking flows.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aelexs/clinic-otp/internal/server"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return server.Run(ctx, server.Params{
		Name:    "otpd",
		Version: version,
		Setup:   setup,
	}, nil)
}
