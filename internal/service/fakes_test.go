package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	pkgcrypto "github.com/offgrid-labs/authd/internal/crypto"
	"github.com/offgrid-labs/authd/internal/errs"
	"github.com/offgrid-labs/authd/internal/model"
	"github.com/offgrid-labs/authd/internal/repository"
	"github.com/offgrid-labs/authd/internal/token"
)

type fakeUsers struct {
	byID map[uuid.UUID]*model.User

	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[uuid.UUID]*model.User{}}
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, ex := range f.byID {
		if (u.Username != "" && ex.Username == u.Username) || (u.Email != "" && ex.Email == u.Email) {
			return errs.ErrConflict
		}
	}
	cpy := *u
	cpy.CreatedAt = time.Now()
	f.byID[u.ID] = &cpy
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) GetByUsernameOrEmail(_ context.Context, v string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if (u.Username != "" && u.Username == v) || (u.Email != "" && u.Email == v) {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) Upgrade(_ context.Context, id uuid.UUID, username, email, passwordHash string, role model.Role) error {
	u, ok := f.byID[id]
	if !ok || u.Role != model.RoleAnonymous {
		return errs.ErrInvalidState
	}
	for oid, ex := range f.byID {
		if oid == id {
			continue
		}
		if (username != "" && ex.Username == username) || (email != "" && ex.Email == email) {
			return errs.ErrConflict
		}
	}
	if username != "" {
		u.Username = username
	}
	if email != "" {
		u.Email = email
	}
	u.PasswordHash = passwordHash
	u.Role = role
	return nil
}

func (f *fakeUsers) SetVerified(_ context.Context, id uuid.UUID, verified bool) error {
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.Verified = verified
	return nil
}

type fakeDevices struct {
	byID map[uuid.UUID]*model.Device
}

var _ repository.DeviceRepository = (*fakeDevices)(nil)

func newFakeDevices() *fakeDevices {
	return &fakeDevices{byID: map[uuid.UUID]*model.Device{}}
}

func (f *fakeDevices) Create(_ context.Context, d *model.Device) error {
	cpy := *d
	f.byID[d.ID] = &cpy
	return nil
}

func (f *fakeDevices) GetByID(_ context.Context, id uuid.UUID) (*model.Device, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *d
	return &c, nil
}

func (f *fakeDevices) FindByTriple(_ context.Context, userID uuid.UUID, typ model.DeviceType, name string) (*model.Device, error) {
	for _, d := range f.byID {
		if d.UserID == userID && d.Type == typ && d.Name == name {
			c := *d
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeDevices) Touch(_ context.Context, id uuid.UUID, name string, seenAt time.Time) error {
	d, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	d.LastSeenAt = seenAt
	if name != "" {
		d.Name = name
	}
	return nil
}

type fakeTokens struct {
	byID map[uuid.UUID]*model.RefreshToken
}

var _ repository.RefreshTokenRepository = (*fakeTokens)(nil)

func newFakeTokens() *fakeTokens {
	return &fakeTokens{byID: map[uuid.UUID]*model.RefreshToken{}}
}

func (f *fakeTokens) Create(_ context.Context, t *model.RefreshToken) error {
	cpy := *t
	cpy.CreatedAt = time.Now()
	f.byID[t.ID] = &cpy
	return nil
}

func (f *fakeTokens) GetByID(_ context.Context, id uuid.UUID) (*model.RefreshToken, error) {
	rec, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrTokenNotFound
	}
	c := *rec
	return &c, nil
}

func (f *fakeTokens) Rotate(ctx context.Context, oldID uuid.UUID, next *model.RefreshToken) error {
	old, ok := f.byID[oldID]
	if !ok || !old.Active() {
		return errs.ErrTokenRevoked
	}
	now := time.Now()
	old.RevokedAt = &now
	nid := next.ID
	old.ReplacedByID = &nid
	return f.Create(ctx, next)
}

func (f *fakeTokens) Revoke(_ context.Context, id uuid.UUID) error {
	rec, ok := f.byID[id]
	if !ok || rec.RevokedAt != nil {
		return errs.ErrTokenRevoked
	}
	now := time.Now()
	rec.RevokedAt = &now
	return nil
}

func (f *fakeTokens) RevokeAllForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	now := time.Now()
	var n int64
	for _, rec := range f.byID {
		if rec.UserID == userID && rec.RevokedAt == nil {
			rec.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

type fakeAudit struct {
	entries   []model.AuditEntry
	appendErr error
}

var _ repository.AuditRepository = (*fakeAudit)(nil)

func (f *fakeAudit) Append(_ context.Context, e *model.AuditEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeAudit) ListForUser(_ context.Context, userID uuid.UUID, limit int) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].UserID == userID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeAudit) last() *model.AuditEntry {
	if len(f.entries) == 0 {
		return nil
	}
	return &f.entries[len(f.entries)-1]
}

// testIssuer builds a token issuer with a fresh RSA key pair.
func testIssuer(t *testing.T) *token.Issuer {
	t.Helper()
	return testIssuerRefreshTTL(t, "720h")
}

func testIssuerRefreshTTL(t *testing.T, refreshTTL string) *token.Issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	iss, err := token.New(token.Config{
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
		PublicKeyPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		Issuer:        "offgrid-auth",
		Audience:      "offgrid-clients",
		AccessTTL:     "15m",
		RefreshTTL:    refreshTTL,
	})
	require.NoError(t, err)
	return iss
}

type testEnv struct {
	svc     *SessionServiceImpl
	users   *fakeUsers
	devices *fakeDevices
	tokens  *fakeTokens
	audit   *fakeAudit
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithIssuer(t, testIssuer(t))
}

func newTestEnvWithIssuer(t *testing.T, iss *token.Issuer) *testEnv {
	t.Helper()
	users := newFakeUsers()
	devices := newFakeDevices()
	tokens := newFakeTokens()
	audit := &fakeAudit{}
	svc := NewSessionService(
		users,
		NewDeviceRegistry(devices),
		NewRefreshTokenLedger(tokens),
		NewAuditTrail(audit, zap.NewNop()),
		iss,
		pkgcrypto.NewBcryptHasher(bcrypt.MinCost),
		zap.NewNop(),
	)
	return &testEnv{svc: svc, users: users, devices: devices, tokens: tokens, audit: audit}
}
