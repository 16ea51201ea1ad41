package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/offgrid-labs/authd/internal/errs"
)

// testKeyPairPEM generates a fresh RSA key pair encoded as PEM.
func testKeyPairPEM(t *testing.T) (privPEM, pubPEM string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	privPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privPEM, pubPEM
}

func testIssuer(t *testing.T) *Issuer {
	t.Helper()
	priv, pub := testKeyPairPEM(t)
	iss, err := New(Config{
		PrivateKeyPEM: priv,
		PublicKeyPEM:  pub,
		Issuer:        "offgrid-auth",
		Audience:      "offgrid-clients",
		AccessTTL:     "15m",
		RefreshTTL:    "720h",
	})
	require.NoError(t, err)
	return iss
}

func TestIssuer_AccessRoundTrip(t *testing.T) {
	t.Parallel()
	iss := testIssuer(t)
	sub := uuid.Must(uuid.NewV4())

	tok, exp, err := iss.SignAccess(sub, "user")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	claims, err := iss.VerifyAccess(tok)
	require.NoError(t, err)
	require.Equal(t, sub.String(), claims.Subject)
	require.Equal(t, "user", claims.Role)
}

func TestIssuer_RefreshRoundTrip(t *testing.T) {
	t.Parallel()
	iss := testIssuer(t)
	sub := uuid.Must(uuid.NewV4())

	tok, jti, exp, err := iss.SignRefresh(sub, uuid.Nil)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, jti)
	require.WithinDuration(t, time.Now().Add(720*time.Hour), exp, 5*time.Second)

	claims, err := iss.VerifyRefresh(tok)
	require.NoError(t, err)
	require.Equal(t, sub.String(), claims.Subject)
	require.Equal(t, jti.String(), claims.ID)
}

func TestIssuer_SignRefresh_ExplicitJTI(t *testing.T) {
	t.Parallel()
	iss := testIssuer(t)
	sub := uuid.Must(uuid.NewV4())
	want := uuid.Must(uuid.NewV4())

	_, jti, _, err := iss.SignRefresh(sub, want)
	require.NoError(t, err)
	require.Equal(t, want, jti)
}

func TestIssuer_JTIUnique(t *testing.T) {
	t.Parallel()
	iss := testIssuer(t)
	sub := uuid.Must(uuid.NewV4())

	seen := make(map[uuid.UUID]struct{}, 50)
	for range 50 {
		_, jti, _, err := iss.SignRefresh(sub, uuid.Nil)
		require.NoError(t, err)
		if _, dup := seen[jti]; dup {
			t.Fatalf("duplicate jti %s", jti)
		}
		seen[jti] = struct{}{}
	}
}

func TestIssuer_VerifyFailsAfterExpiry(t *testing.T) {
	t.Parallel()
	iss := testIssuer(t)
	sub := uuid.Must(uuid.NewV4())

	access, _, err := iss.SignAccess(sub, "user")
	require.NoError(t, err)
	refresh, _, _, err := iss.SignRefresh(sub, uuid.Nil)
	require.NoError(t, err)

	iss.now = func() time.Time { return time.Now().Add(10000 * time.Hour) }

	_, err = iss.VerifyAccess(access)
	require.ErrorIs(t, err, errs.ErrInvalidToken)
	_, err = iss.VerifyRefresh(refresh)
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestIssuer_VerifyRefreshExpired_AcceptsPastExp(t *testing.T) {
	t.Parallel()
	iss := testIssuer(t)
	sub := uuid.Must(uuid.NewV4())

	refresh, jti, _, err := iss.SignRefresh(sub, uuid.Nil)
	require.NoError(t, err)

	iss.now = func() time.Time { return time.Now().Add(10000 * time.Hour) }

	// The strict path rejects the idled-out token, the logout path does not.
	_, err = iss.VerifyRefresh(refresh)
	require.ErrorIs(t, err, errs.ErrInvalidToken)

	claims, err := iss.VerifyRefreshExpired(refresh)
	require.NoError(t, err)
	require.Equal(t, jti.String(), claims.ID)
	require.Equal(t, sub.String(), claims.Subject)
}

func TestIssuer_VerifyRefreshExpired_StillStrictOtherwise(t *testing.T) {
	t.Parallel()
	issA := testIssuer(t)
	issB := testIssuer(t)
	sub := uuid.Must(uuid.NewV4())

	// Wrong signing key.
	refresh, _, _, err := issA.SignRefresh(sub, uuid.Nil)
	require.NoError(t, err)
	_, err = issB.VerifyRefreshExpired(refresh)
	require.ErrorIs(t, err, errs.ErrInvalidToken)

	// Wrong shape: an access token carries no jti.
	access, _, err := issA.SignAccess(sub, "user")
	require.NoError(t, err)
	_, err = issA.VerifyRefreshExpired(access)
	require.ErrorIs(t, err, errs.ErrInvalidToken)

	_, err = issA.VerifyRefreshExpired("not-a-jwt")
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestIssuer_VerifyFailsWithMismatchedKey(t *testing.T) {
	t.Parallel()
	issA := testIssuer(t)
	issB := testIssuer(t)
	sub := uuid.Must(uuid.NewV4())

	tok, _, err := issA.SignAccess(sub, "user")
	require.NoError(t, err)

	_, err = issB.VerifyAccess(tok)
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestIssuer_VerifyRejectsWrongTokenShape(t *testing.T) {
	t.Parallel()
	iss := testIssuer(t)
	sub := uuid.Must(uuid.NewV4())

	// A refresh token carries no role, an access token carries no jti.
	refresh, _, _, err := iss.SignRefresh(sub, uuid.Nil)
	require.NoError(t, err)
	_, err = iss.VerifyAccess(refresh)
	require.ErrorIs(t, err, errs.ErrInvalidToken)

	access, _, err := iss.SignAccess(sub, "user")
	require.NoError(t, err)
	_, err = iss.VerifyRefresh(access)
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestIssuer_VerifyGarbage(t *testing.T) {
	t.Parallel()
	iss := testIssuer(t)
	_, err := iss.VerifyAccess("not-a-jwt")
	require.ErrorIs(t, err, errs.ErrInvalidToken)
	_, err = iss.VerifyRefresh("")
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestNew_BadTTLIsConfigError(t *testing.T) {
	t.Parallel()
	priv, pub := testKeyPairPEM(t)
	_, err := New(Config{
		PrivateKeyPEM: priv,
		PublicKeyPEM:  pub,
		Issuer:        "offgrid-auth",
		Audience:      "offgrid-clients",
		AccessTTL:     "15 minutes",
		RefreshTTL:    "720h",
	})
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestNew_MissingIssuerAudience(t *testing.T) {
	t.Parallel()
	priv, pub := testKeyPairPEM(t)
	_, err := New(Config{
		PrivateKeyPEM: priv,
		PublicKeyPEM:  pub,
		AccessTTL:     "15m",
		RefreshTTL:    "720h",
	})
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestNew_ECDSAKeyPair(t *testing.T) {
	t.Parallel()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	privDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	iss, err := New(Config{
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER})),
		PublicKeyPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		Issuer:        "offgrid-auth",
		Audience:      "offgrid-clients",
		AccessTTL:     "15m",
		RefreshTTL:    "720h",
	})
	require.NoError(t, err)

	sub := uuid.Must(uuid.NewV4())
	tok, _, err := iss.SignAccess(sub, "admin")
	require.NoError(t, err)
	claims, err := iss.VerifyAccess(tok)
	require.NoError(t, err)
	require.Equal(t, "admin", claims.Role)
}
