package service

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/offgrid-labs/authd/internal/crypto"
	"github.com/offgrid-labs/authd/internal/errs"
	"github.com/offgrid-labs/authd/internal/model"
	"github.com/offgrid-labs/authd/internal/repository"
	"github.com/offgrid-labs/authd/internal/token"
)

// RegisterInput is the pre-validated payload for SessionService.Register.
// An empty Password creates an anonymous account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Device   *model.DeviceInfo
}

// UpgradeInput is the payload for SessionService.UpgradeAnonymous.
type UpgradeInput struct {
	Username string
	Email    string
	Password string
}

// SessionService orchestrates credential verification, token issuance,
// rotation and revocation. It is the only component with cross-entity
// business logic; boundary layers call it with already-validated input.
type SessionService interface {
	// Register creates an anonymous account (no password) or a credentialed
	// user account and issues a fresh token pair.
	Register(ctx context.Context, in RegisterInput) (*model.Session, error)
	// UpgradeAnonymous promotes an anonymous account to a credentialed one,
	// exactly once, and issues a new token pair.
	UpgradeAnonymous(ctx context.Context, userID uuid.UUID, in UpgradeInput) (*model.Session, error)
	// Login authenticates by username or email. Every failure mode returns
	// the same ErrInvalidCredentials.
	Login(ctx context.Context, usernameOrEmail, password string, device model.DeviceInfo) (*model.Session, error)
	// Refresh exchanges a refresh token for a new pair, rotating the old
	// one. Every failure mode returns the same ErrInvalidRefreshToken.
	Refresh(ctx context.Context, refreshToken string, device *model.DeviceInfo) (*model.Session, error)
	// Logout revokes the presented refresh token, or every active token of
	// its user when allDevices is set.
	Logout(ctx context.Context, refreshToken string, allDevices bool) error
	// GetProfile returns the public projection of a user.
	GetProfile(ctx context.Context, userID uuid.UUID) (model.Profile, error)
	// VerifyToken validates an access token and returns its claims; used by
	// other services as an authorization boundary check.
	VerifyToken(tokenString string) (*token.AccessClaims, error)
	// MarkVerification sets or clears the account's verified flag.
	MarkVerification(ctx context.Context, userID uuid.UUID, verified bool) (model.Profile, error)
}

// SessionServiceImpl implements SessionService on top of explicitly
// constructed collaborators; no hidden globals.
type SessionServiceImpl struct {
	users   repository.UserRepository
	devices *DeviceRegistry
	ledger  *RefreshTokenLedger
	audit   *AuditTrail
	issuer  *token.Issuer
	hasher  pkgcrypto.PasswordHasher
	log     *zap.Logger
}

// NewSessionService constructs the session manager with its dependencies.
func NewSessionService(
	users repository.UserRepository,
	devices *DeviceRegistry,
	ledger *RefreshTokenLedger,
	audit *AuditTrail,
	issuer *token.Issuer,
	hasher pkgcrypto.PasswordHasher,
	log *zap.Logger,
) *SessionServiceImpl {
	return &SessionServiceImpl{
		users:   users,
		devices: devices,
		ledger:  ledger,
		audit:   audit,
		issuer:  issuer,
		hasher:  hasher,
		log:     log,
	}
}

// issueSession mints an access/refresh pair for u and persists the refresh
// record, optionally bound to deviceID.
func (s *SessionServiceImpl) issueSession(ctx context.Context, u *model.User, deviceID uuid.UUID) (*model.Session, error) {
	refresh, jti, refreshExp, err := s.issuer.SignRefresh(u.ID, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Issue(ctx, jti, u.ID, refresh, deviceID, refreshExp); err != nil {
		return nil, err
	}
	access, _, err := s.issuer.SignAccess(u.ID, string(u.Role))
	if err != nil {
		return nil, err
	}
	return &model.Session{
		User:                  u,
		AccessToken:           access,
		RefreshToken:          refresh,
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

// Register creates a user and issues the first token pair of its lineage.
func (s *SessionServiceImpl) Register(ctx context.Context, in RegisterInput) (*model.Session, error) {
	anonymous := in.Password == ""
	if !anonymous && in.Username == "" && in.Email == "" {
		return nil, errs.ErrInvalidInput
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	u := &model.User{ID: id, Username: in.Username, Email: in.Email, Role: model.RoleAnonymous}
	if !anonymous {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
		u.Role = model.RoleUser
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	deviceID := uuid.Nil
	meta := map[string]any{}
	if in.Device != nil {
		dev, err := s.devices.Upsert(ctx, u.ID, *in.Device)
		if err != nil {
			return nil, err
		}
		deviceID = dev.ID
		meta["deviceId"] = dev.ID.String()
	}

	event := model.EventUserRegistered
	if anonymous {
		event = model.EventUserAnonCreated
	}
	s.audit.Record(ctx, u.ID, event, meta)

	return s.issueSession(ctx, u, deviceID)
}

// UpgradeAnonymous promotes an anonymous account to role user. Refresh
// tokens issued while the account was anonymous are left untouched.
func (s *SessionServiceImpl) UpgradeAnonymous(ctx context.Context, userID uuid.UUID, in UpgradeInput) (*model.Session, error) {
	if in.Password == "" {
		return nil, errs.ErrInvalidInput
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrInvalidState
		}
		return nil, err
	}
	if !u.Anonymous() {
		return nil, errs.ErrInvalidState
	}
	if in.Username == "" && in.Email == "" {
		return nil, errs.ErrInvalidInput
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	if err := s.users.Upgrade(ctx, userID, in.Username, in.Email, hash, model.RoleUser); err != nil {
		return nil, err
	}
	u, err = s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, userID, model.EventUserUpgraded, map[string]any{})
	return s.issueSession(ctx, u, uuid.Nil)
}

// Login authenticates by username or email. "No such user", "no password
// set" and "wrong password" are indistinguishable to the caller; each is
// audited with its own reason.
func (s *SessionServiceImpl) Login(ctx context.Context, usernameOrEmail, password string, device model.DeviceInfo) (*model.Session, error) {
	u, err := s.users.GetByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.audit.Record(ctx, uuid.Nil, model.EventLoginFailed, map[string]any{"reason": "USER_NOT_FOUND"})
			return nil, errs.ErrInvalidCredentials
		}
		return nil, err
	}
	if u.PasswordHash == "" {
		s.audit.Record(ctx, u.ID, model.EventLoginFailed, map[string]any{"reason": "NO_PASSWORD_SET"})
		return nil, errs.ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		s.audit.Record(ctx, u.ID, model.EventLoginFailed, map[string]any{"reason": "INVALID_PASSWORD"})
		return nil, errs.ErrInvalidCredentials
	}

	dev, err := s.devices.Upsert(ctx, u.ID, device)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, u.ID, model.EventLoginSuccess, map[string]any{"deviceId": dev.ID.String()})

	return s.issueSession(ctx, u, dev.ID)
}

// Refresh rotates the presented refresh token into a new pair. The ledger's
// failure modes and every verification failure collapse to
// ErrInvalidRefreshToken at this boundary; the cause is logged.
func (s *SessionServiceImpl) Refresh(ctx context.Context, refreshToken string, device *model.DeviceInfo) (*model.Session, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		s.log.Info("refresh rejected", zap.String("cause", "verification failed"))
		return nil, errs.ErrInvalidRefreshToken
	}
	jti, err := uuid.FromString(claims.ID)
	if err != nil {
		s.log.Info("refresh rejected", zap.String("cause", "malformed jti"))
		return nil, errs.ErrInvalidRefreshToken
	}

	rec, err := s.ledger.CheckPresented(ctx, jti, refreshToken)
	if err != nil {
		if ledgerFailure(err) {
			s.log.Warn("refresh rejected",
				zap.String("cause", err.Error()),
				zap.String("jti", jti.String()),
			)
			return nil, errs.ErrInvalidRefreshToken
		}
		return nil, err
	}

	u, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.log.Warn("refresh rejected", zap.String("cause", "user gone"), zap.String("jti", jti.String()))
			return nil, errs.ErrInvalidRefreshToken
		}
		return nil, err
	}

	// The existing binding wins over newly supplied device info; a new
	// device is bound only when the record carries none.
	deviceID := rec.DeviceID
	if deviceID != uuid.Nil {
		if err := s.devices.Seen(ctx, deviceID); err != nil {
			if !errors.Is(err, errs.ErrNotFound) {
				return nil, err
			}
			deviceID = uuid.Nil
		}
	}
	if deviceID == uuid.Nil && device != nil {
		dev, err := s.devices.Upsert(ctx, u.ID, *device)
		if err != nil {
			return nil, err
		}
		deviceID = dev.ID
	}

	newRefresh, newJTI, refreshExp, err := s.issuer.SignRefresh(u.ID, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Rotate(ctx, rec.ID, newJTI, u.ID, newRefresh, deviceID, refreshExp); err != nil {
		if ledgerFailure(err) {
			s.log.Warn("refresh rotation lost race", zap.String("jti", jti.String()))
			return nil, errs.ErrInvalidRefreshToken
		}
		return nil, err
	}
	access, _, err := s.issuer.SignAccess(u.ID, string(u.Role))
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, u.ID, model.EventTokenRefreshed, map[string]any{"previousTokenId": rec.ID.String()})

	return &model.Session{
		User:                  u,
		AccessToken:           access,
		RefreshToken:          newRefresh,
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

// Logout revokes the presented token's lineage, or every active lineage of
// the user when allDevices is set. An expired token is still accepted here:
// revoking a session you hold must not fail just because it idled out.
func (s *SessionServiceImpl) Logout(ctx context.Context, refreshToken string, allDevices bool) error {
	claims, err := s.issuer.VerifyRefreshExpired(refreshToken)
	if err != nil {
		return errs.ErrInvalidRefreshToken
	}
	jti, err := uuid.FromString(claims.ID)
	if err != nil {
		return errs.ErrInvalidRefreshToken
	}

	rec, err := s.ledger.Confirm(ctx, jti, refreshToken)
	if err != nil {
		if ledgerFailure(err) {
			s.log.Info("logout rejected", zap.String("cause", err.Error()), zap.String("jti", jti.String()))
			return errs.ErrInvalidRefreshToken
		}
		return err
	}

	if allDevices {
		n, err := s.ledger.RevokeAllForUser(ctx, rec.UserID)
		if err != nil {
			return err
		}
		s.audit.Record(ctx, rec.UserID, model.EventLogoutAll, map[string]any{"revoked": n})
		return nil
	}

	if err := s.ledger.Revoke(ctx, rec.ID); err != nil {
		if ledgerFailure(err) {
			return errs.ErrInvalidRefreshToken
		}
		return err
	}
	s.audit.Record(ctx, rec.UserID, model.EventLogout, map[string]any{"tokenId": rec.ID.String()})
	return nil
}

// GetProfile returns the public projection of a user.
func (s *SessionServiceImpl) GetProfile(ctx context.Context, userID uuid.UUID) (model.Profile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.Profile{}, err
	}
	return u.PublicProfile(), nil
}

// VerifyToken validates an access token for other services.
func (s *SessionServiceImpl) VerifyToken(tokenString string) (*token.AccessClaims, error) {
	return s.issuer.VerifyAccess(tokenString)
}

// MarkVerification sets or clears the verified flag and audits the change.
// SetVerified reports ErrNotFound itself, so no existence pre-check is needed.
func (s *SessionServiceImpl) MarkVerification(ctx context.Context, userID uuid.UUID, verified bool) (model.Profile, error) {
	if err := s.users.SetVerified(ctx, userID, verified); err != nil {
		return model.Profile{}, err
	}
	event := model.EventUserVerified
	if !verified {
		event = model.EventUserUnverified
	}
	s.audit.Record(ctx, userID, event, map[string]any{})

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.Profile{}, err
	}
	return u.PublicProfile(), nil
}

// ledgerFailure reports whether err is one of the ledger's internal failure
// modes, all of which collapse to ErrInvalidRefreshToken at this boundary.
func ledgerFailure(err error) bool {
	return errors.Is(err, errs.ErrTokenNotFound) ||
		errors.Is(err, errs.ErrTokenRevoked) ||
		errors.Is(err, errs.ErrTokenExpired) ||
		errors.Is(err, errs.ErrTokenHashMismatch)
}
