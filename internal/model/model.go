// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the authorization level carried in access-token claims.
type Role string

// Account roles, ordered roughly by privilege.
const (
	RoleAnonymous         Role = "anonymous"
	RoleUser              Role = "user"
	RoleContributor       Role = "contributor"
	RoleHardwareSupporter Role = "hardware_supporter"
	RoleAdmin             Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAnonymous, RoleUser, RoleContributor, RoleHardwareSupporter, RoleAdmin:
		return true
	}
	return false
}

// DeviceType classifies the client that holds a session.
type DeviceType string

// Known device types. Device identity is (userID, type, name) — no fingerprinting.
const (
	DeviceCLI    DeviceType = "cli"
	DeviceWeb    DeviceType = "web"
	DeviceMobile DeviceType = "mobile"
)

// Valid reports whether t is one of the known device types.
func (t DeviceType) Valid() bool {
	switch t {
	case DeviceCLI, DeviceWeb, DeviceMobile:
		return true
	}
	return false
}

// User is an account record. PasswordHash is empty exactly for anonymous
// accounts; Username and Email are each unique when set.
type User struct {
	ID           uuid.UUID
	Username     string // empty if not set
	Email        string // empty if not set
	PasswordHash string // bcrypt; empty for anonymous
	Role         Role
	Verified     bool
	CreatedAt    time.Time
}

// Anonymous reports whether the account has no credential.
func (u *User) Anonymous() bool { return u.Role == RoleAnonymous }

// Profile is the public projection of a user; it never carries the password hash.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

// PublicProfile returns the projection of u safe to return to clients.
func (u *User) PublicProfile() Profile {
	return Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt,
	}
}

// Device is a client device bound to a user session.
type Device struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Type       DeviceType
	Name       string
	LastSeenAt time.Time
}

// DeviceInfo is the client-supplied device descriptor accompanying an
// authentication request.
type DeviceInfo struct {
	Type DeviceType
	Name string
}

// RefreshToken is the persisted metadata of one issued refresh token.
// ID equals the token's jti claim. TokenHash is a one-way hash of the
// bearer string; the raw token is never stored. Records are never deleted:
// a revoked record is kept for replay detection and audit history.
type RefreshToken struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	TokenHash    string
	DeviceID     uuid.UUID // Nil if the token is not bound to a device
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	ReplacedByID *uuid.UUID // set once, at rotation, alongside RevokedAt
	CreatedAt    time.Time
}

// Active reports whether the record can still be rotated.
func (t *RefreshToken) Active() bool {
	return t.RevokedAt == nil && t.ReplacedByID == nil
}

// AuditEvent names a security-relevant lifecycle transition.
type AuditEvent string

// Audit events recorded by the session core.
const (
	EventUserAnonCreated AuditEvent = "USER_ANON_CREATED"
	EventUserRegistered  AuditEvent = "USER_REGISTERED"
	EventUserUpgraded    AuditEvent = "USER_UPGRADED"
	EventLoginFailed     AuditEvent = "LOGIN_FAILED"
	EventLoginSuccess    AuditEvent = "LOGIN_SUCCESS"
	EventTokenRefreshed  AuditEvent = "TOKEN_REFRESHED"
	EventLogout          AuditEvent = "LOGOUT"
	EventLogoutAll       AuditEvent = "LOGOUT_ALL"
	EventUserVerified    AuditEvent = "USER_VERIFIED"
	EventUserUnverified  AuditEvent = "USER_UNVERIFIED"
)

// AuditEntry is one append-only audit record. UserID is Nil for
// pre-authentication failures.
type AuditEntry struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Event     AuditEvent
	Meta      map[string]any
	CreatedAt time.Time
}

// Session is the result of every token-issuing operation: the account,
// a fresh access/refresh pair, and the refresh token's expiry.
type Session struct {
	User                  *User
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}
