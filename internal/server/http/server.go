// Package httpserver exposes the session lifecycle as a JSON HTTP API.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/offgrid-labs/authd/internal/errs"
	"github.com/offgrid-labs/authd/internal/limiter"
	"github.com/offgrid-labs/authd/internal/model"
	"github.com/offgrid-labs/authd/internal/proof"
	"github.com/offgrid-labs/authd/internal/service"
)

// Server wires the session service into HTTP handlers.
type Server struct {
	svc service.SessionService
	lim limiter.Limiter
	log *zap.Logger
}

// New constructs a Server. lim may be nil to disable login throttling.
func New(svc service.SessionService, lim limiter.Limiter, log *zap.Logger) *Server {
	return &Server{svc: svc, lim: lim, log: log}
}

// Handler builds the routed handler with logging and recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.Handle("POST /auth/upgrade", s.requireAuth(http.HandlerFunc(s.handleUpgrade)))
	mux.Handle("GET /auth/me", s.requireAuth(http.HandlerFunc(s.handleMe)))
	mux.Handle("GET /auth/verify", s.requireAuth(http.HandlerFunc(s.handleVerify)))
	mux.HandleFunc("GET /auth/challenge", s.handleChallenge)
	mux.HandleFunc("POST /auth/proof", s.handleProof)
	mux.Handle("PUT /admin/users/{id}/verification",
		s.requireRole(model.RoleAdmin, http.HandlerFunc(s.handleSetVerification)))

	return Recover(s.log, Logging(s.log, mux))
}

type deviceDTO struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

func (d *deviceDTO) toInfo() *model.DeviceInfo {
	if d == nil {
		return nil
	}
	return &model.DeviceInfo{Type: model.DeviceType(d.Type), Name: d.Name}
}

type sessionResponse struct {
	User                  model.Profile `json:"user"`
	AccessToken           string        `json:"accessToken"`
	RefreshToken          string        `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time     `json:"refreshTokenExpiresAt"`
}

func toSessionResponse(s *model.Session) sessionResponse {
	return sessionResponse{
		User:                  s.User.PublicProfile(),
		AccessToken:           s.AccessToken,
		RefreshToken:          s.RefreshToken,
		RefreshTokenExpiresAt: s.RefreshTokenExpiresAt,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string     `json:"username"`
		Email    string     `json:"email"`
		Password string     `json:"password"`
		Device   *deviceDTO `json:"device"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	sess, err := s.svc.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Device:   req.Device.toInfo(),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string    `json:"identifier"`
		Password   string    `json:"password"`
		Device     deviceDTO `json:"device"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Identifier == "" || req.Password == "" {
		s.writeError(w, errs.ErrInvalidInput)
		return
	}

	clientHash := limiter.HashClient(r.RemoteAddr)
	if s.lim != nil {
		ok, retryAfter, err := s.lim.Allow(r.Context(), req.Identifier, clientHash)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			s.writeError(w, errs.ErrRateLimited)
			return
		}
	}

	sess, err := s.svc.Login(r.Context(), req.Identifier, req.Password,
		model.DeviceInfo{Type: model.DeviceType(req.Device.Type), Name: req.Device.Name})
	if err != nil {
		if s.lim != nil && errors.Is(err, errs.ErrInvalidCredentials) {
			if _, _, lerr := s.lim.Failure(r.Context(), req.Identifier, clientHash); lerr != nil {
				s.log.Warn("limiter failure not recorded", zap.Error(lerr))
			}
		}
		s.writeError(w, err)
		return
	}
	if s.lim != nil {
		if lerr := s.lim.Success(r.Context(), req.Identifier, clientHash); lerr != nil {
			s.log.Warn("limiter reset failed", zap.Error(lerr))
		}
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string     `json:"refreshToken"`
		Device       *deviceDTO `json:"device"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		s.writeError(w, errs.ErrInvalidInput)
		return
	}
	sess, err := s.svc.Refresh(r.Context(), req.RefreshToken, req.Device.toInfo())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
		AllDevices   bool   `json:"allDevices"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		s.writeError(w, errs.ErrInvalidInput)
		return
	}
	if err := s.svc.Logout(r.Context(), req.RefreshToken, req.AllDevices); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromCtx(r.Context())
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	sess, err := s.svc.UpgradeAnonymous(r.Context(), id.UserID, service.UpgradeInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromCtx(r.Context())
	p, err := s.svc.GetProfile(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromCtx(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{
		"userId": id.UserID,
		"role":   id.Role,
	})
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := proof.GenerateChallenge()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"challenge": c})
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	var p proof.Proof
	if !s.decode(w, r, &p) {
		return
	}
	res, err := proof.Authenticate(p)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid proof"})
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSetVerification(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.FromString(r.PathValue("id"))
	if err != nil {
		s.writeError(w, errs.ErrInvalidInput)
		return
	}
	var req struct {
		Verified bool `json:"verified"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.svc.MarkVerification(r.Context(), userID, req.Verified)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// requireAuth verifies the bearer access token and attaches the caller
// identity to the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			s.writeError(w, errs.ErrInvalidToken)
			return
		}
		claims, err := s.svc.VerifyToken(raw)
		if err != nil {
			s.writeError(w, errs.ErrInvalidToken)
			return
		}
		userID, err := uuid.FromString(claims.Subject)
		if err != nil {
			s.writeError(w, errs.ErrInvalidToken)
			return
		}
		ctx := WithIdentity(r.Context(), Identity{UserID: userID, Role: claims.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(role model.Role, next http.Handler) http.Handler {
	return s.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		if id.Role != string(role) {
			s.writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return h[len(prefix):], true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	msg := "internal"
	switch {
	case errors.Is(err, errs.ErrInvalidInput) || errors.Is(err, errs.ErrInvalidState):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrInvalidCredentials) ||
		errors.Is(err, errs.ErrInvalidRefreshToken) ||
		errors.Is(err, errs.ErrInvalidToken):
		code, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, errs.ErrNotFound):
		code, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, errs.ErrConflict):
		code, msg = http.StatusConflict, err.Error()
	case errors.Is(err, errs.ErrRateLimited):
		code, msg = http.StatusTooManyRequests, err.Error()
	default:
		s.log.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, code, map[string]string{"error": msg})
}
