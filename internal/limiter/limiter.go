// Package limiter throttles credential-guessing attempts at the login boundary.
package limiter

import (
	"context"
	"time"
)

// Limiter tracks failed login attempts per (identifier, client) pair and
// enforces temporary lockouts.
type Limiter interface {
	// Allow reports whether a login attempt may proceed and, when blocked,
	// how long until the block lifts.
	Allow(ctx context.Context, identifier string, clientHash []byte) (bool, time.Duration, error)
	// Success clears the failure counter after a successful login.
	Success(ctx context.Context, identifier string, clientHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, identifier string, clientHash []byte) (bool, time.Duration, error)
}
