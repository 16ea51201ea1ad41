// Package token issues and verifies the signed access and refresh tokens of
// the session lifecycle. The signing key pair is loaded once at startup and
// held immutably, so an Issuer is safe for unlimited concurrent use.
package token

import (
	"crypto"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/offgrid-labs/authd/internal/errs"
)

// AccessClaims is the claim set of an access token: identity plus role for
// a single request window. Access tokens are never persisted.
type AccessClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// RefreshClaims is the claim set of a refresh token. The jti (RegisteredClaims.ID)
// is the ledger primary key of the persisted record.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// Config holds the deployment-fixed token parameters. TTLs are duration
// strings ("15m", "720h"); an unparseable value is a startup error.
type Config struct {
	PrivateKeyPEM string
	PublicKeyPEM  string
	Issuer        string
	Audience      string
	AccessTTL     string
	RefreshTTL    string
}

// Issuer signs and verifies access and refresh tokens with an asymmetric
// key pair (RS256 or ES256).
type Issuer struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	method     jwt.SigningMethod
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration

	// now is swappable in tests to exercise expiry.
	now func() time.Time
}

// New parses key material and TTLs and returns an Issuer. Any failure here
// wraps errs.ErrInvalidConfig and must abort startup.
func New(cfg Config) (*Issuer, error) {
	priv, err := ParsePrivateKey(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKey(cfg.PublicKeyPEM)
	if err != nil {
		return nil, err
	}
	alg, err := signingMethodFor(pub)
	if err != nil {
		return nil, err
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("%w: issuer and audience are required", errs.ErrInvalidConfig)
	}
	accessTTL, err := time.ParseDuration(cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: access TTL %q: %v", errs.ErrInvalidConfig, cfg.AccessTTL, err)
	}
	refreshTTL, err := time.ParseDuration(cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: refresh TTL %q: %v", errs.ErrInvalidConfig, cfg.RefreshTTL, err)
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("%w: TTLs must be positive", errs.ErrInvalidConfig)
	}
	return &Issuer{
		privateKey: priv,
		publicKey:  pub,
		method:     jwt.GetSigningMethod(alg),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// RefreshTTL returns the configured refresh-token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// AccessTTL returns the configured access-token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// SignAccess issues an access token for subject with the given role.
// Returns the compact token and its expiry.
func (i *Issuer) SignAccess(subject uuid.UUID, role string) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(i.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// SignRefresh issues a refresh token for subject. If jti is uuid.Nil a fresh
// random identifier is generated. Returns the compact token, its jti and expiry.
func (i *Issuer) SignRefresh(subject, jti uuid.UUID) (string, uuid.UUID, time.Time, error) {
	if jti == uuid.Nil {
		var err error
		jti, err = uuid.NewV4()
		if err != nil {
			return "", uuid.Nil, time.Time{}, err
		}
	}
	now := i.now().UTC()
	exp := now.Add(i.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Subject:   subject.String(),
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.privateKey)
	if err != nil {
		return "", uuid.Nil, time.Time{}, err
	}
	return signed, jti, exp, nil
}

// VerifyAccess validates signature, issuer, audience and expiry of an access
// token. Every failure collapses to errs.ErrInvalidToken.
func (i *Issuer) VerifyAccess(tokenString string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := i.parse(tokenString, &claims); err != nil {
		return nil, errs.ErrInvalidToken
	}
	if claims.Subject == "" || claims.Role == "" {
		return nil, errs.ErrInvalidToken
	}
	return &claims, nil
}

// VerifyRefresh validates a refresh token the same way as an access token
// and additionally requires a jti claim. Every failure collapses to
// errs.ErrInvalidToken; the session manager maps that to its own boundary error.
func (i *Issuer) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := i.parse(tokenString, &claims); err != nil {
		return nil, errs.ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, errs.ErrInvalidToken
	}
	return &claims, nil
}

// VerifyRefreshExpired validates a refresh token like VerifyRefresh but
// accepts a past exp claim; signature, issuer, audience and claim shape are
// still enforced. Logout uses it so the holder of an idled-out session can
// still revoke it.
func (i *Issuer) VerifyRefreshExpired(tokenString string) (*RefreshClaims, error) {
	var claims RefreshClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, i.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, errs.ErrInvalidToken
	}
	if claims.Issuer != i.issuer || claims.ExpiresAt == nil {
		return nil, errs.ErrInvalidToken
	}
	audOK := false
	for _, a := range claims.Audience {
		if a == i.audience {
			audOK = true
		}
	}
	if !audOK || claims.Subject == "" || claims.ID == "" {
		return nil, errs.ErrInvalidToken
	}
	return &claims, nil
}

func (i *Issuer) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != i.method.Alg() {
		return nil, errs.ErrInvalidToken
	}
	return i.publicKey, nil
}

func (i *Issuer) parse(tokenString string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc,
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
	)
	if err != nil || !parsed.Valid {
		return errs.ErrInvalidToken
	}
	return nil
}
