// Package proof implements a stateless public-key challenge/response check:
// a client proves possession of a private key by signing a server-issued
// nonce. It is deliberately separate from the session lifecycle — no state,
// no tokens, no persistence.
package proof

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"

	pkgcrypto "github.com/offgrid-labs/authd/internal/crypto"
)

// ErrInvalidProof is returned when the detached signature does not verify.
var ErrInvalidProof = errors.New("invalid signature")

// challengeBytes is the nonce length.
const challengeBytes = 32

// Proof carries a base64 SPKI/DER Ed25519 public key, a base64 detached
// signature and the challenge string that was signed.
type Proof struct {
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	Challenge string `json:"challenge"`
}

// Result is the verified outcome: a stable actor identifier derived from
// the public key, plus the proof itself.
type Result struct {
	ActorID string `json:"actorId"`
	Proof   Proof  `json:"proof"`
}

// GenerateChallenge returns a fresh base64-encoded random nonce.
func GenerateChallenge() (string, error) {
	b, err := pkgcrypto.RandBytes(challengeBytes)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DeriveActorID returns the hex SHA-256 of the raw public key bytes. The
// same key always maps to the same actor.
func DeriveActorID(publicKeyB64 string) (string, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return "", ErrInvalidProof
	}
	sum := sha256.Sum256(keyBytes)
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether p's signature over the challenge verifies with the
// embedded Ed25519 public key.
func Verify(p Proof) bool {
	keyBytes, err := base64.StdEncoding.DecodeString(p.PublicKey)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil {
		return false
	}
	parsed, err := x509.ParsePKIXPublicKey(keyBytes)
	if err != nil {
		return false
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return false
	}
	return ed25519.Verify(pub, []byte(p.Challenge), sig)
}

// Authenticate verifies p and returns the derived actor identity, or
// ErrInvalidProof.
func Authenticate(p Proof) (*Result, error) {
	if !Verify(p) {
		return nil, ErrInvalidProof
	}
	actorID, err := DeriveActorID(p.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Result{ActorID: actorID, Proof: p}, nil
}
