// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Failures returned by SessionManager operations and mapped to transport
// status codes at the boundary.
var (
	// ErrInvalidInput indicates a missing required field combination.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates a duplicate username or email.
	ErrConflict = errors.New("username or email already in use")

	// ErrInvalidState indicates an upgrade attempted on a non-anonymous account.
	ErrInvalidState = errors.New("only anonymous accounts can be upgraded")

	// ErrInvalidCredentials is returned for every login failure; callers must
	// not be able to distinguish "no such user", "no password set" and
	// "wrong password".
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefreshToken is returned for every refresh/logout failure;
	// the specific cause (malformed, expired, revoked, hash mismatch,
	// not found) is logged internally, never surfaced.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrInvalidToken indicates a bad access token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidConfig indicates unusable startup configuration
	// (unparseable TTL, bad key material). Fatal, never per-request.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Refresh-token ledger failure modes. These never cross the SessionManager
// boundary: each collapses to ErrInvalidRefreshToken there.
var (
	// ErrTokenNotFound indicates no ledger record exists for the jti.
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrTokenRevoked indicates the record was already revoked or rotated.
	ErrTokenRevoked = errors.New("refresh token revoked")

	// ErrTokenExpired indicates the record's expiry has passed.
	ErrTokenExpired = errors.New("refresh token expired")

	// ErrTokenHashMismatch indicates the presented bearer string does not
	// hash to the stored value. The token's signature still verifies, so
	// this is the primary theft/replay signal.
	ErrTokenHashMismatch = errors.New("refresh token hash mismatch")
)
