// Package service implements sign-in, session refresh and logout, password reset and the
// caller's profile. Every path that hands out credentials asks the login gate first.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	accountdomain "account-mirror/internal/account/domain"
	"account-mirror/internal/audit"
	"account-mirror/internal/metrics"
	"account-mirror/internal/otp"
	"account-mirror/internal/platform/validate"
	policyengine "account-mirror/internal/policy/engine"
	"account-mirror/internal/security"
	"account-mirror/internal/server/middleware"
	sessiondomain "account-mirror/internal/session/domain"
	"account-mirror/internal/telemetry"
	telemetrydomain "account-mirror/internal/telemetry/domain"
)

var tracer = otel.Tracer("account-mirror/identity")

// Sentinel errors for the auth service; the HTTP handler maps them to status codes.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrRefreshTokenReuse   = errors.New("refresh token reuse detected; all sessions revoked")
	ErrSessionExpired      = errors.New("session has expired; sign in again")
	ErrInvalidAccessToken  = errors.New("invalid or expired access token")
	// ErrAccountNotEligible is returned by every login path for an inactive, unverified or
	// unapproved account. The failed checks are logged, never returned.
	ErrAccountNotEligible = errors.New("account is not allowed to sign in")
	ErrOTPInvalid         = errors.New("invalid or expired code")
	ErrAccountNotFound    = errors.New("account not found")
)

// AuthResult holds the credentials issued by a login or refresh.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	AccountID    string
	Kind         accountdomain.Kind
	SessionID    string
}

// AccountRepo is the subset of the account repository used by the auth service.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
	GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error)
	GetByPhone(ctx context.Context, phone string) (*accountdomain.Account, error)
	UpdateProfile(ctx context.Context, id string, p accountdomain.Profile, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
}

// SessionRepo is the session repository needed by the auth service.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	Create(ctx context.Context, s *sessiondomain.Session) error
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllByAccount(ctx context.Context, accountID string, at time.Time) error
	RotateRefresh(ctx context.Context, id, oldJti, newJti, newHash string, seenAt time.Time) (bool, error)
}

// Notifier delivers login and reset codes.
type Notifier interface {
	LoginOTP(ctx context.Context, phone, code string) error
	PasswordResetOTP(ctx context.Context, identifier, code string) error
}

// Deps are the collaborators of AuthService. Notifier, Events and Audit may be nil.
type Deps struct {
	Accounts AccountRepo
	Sessions SessionRepo
	OTP      otp.Store
	Hasher   *security.Hasher
	Tokens   *security.TokenProvider
	Gate     policyengine.LoginGate
	Notifier Notifier
	Events   telemetry.EventEmitter
	Audit    audit.AuditLogger
	Log      *zap.Logger
	// SessionAbsoluteTTL caps how long a session can be refreshed after login; 0 disables the cap.
	SessionAbsoluteTTL time.Duration
}

// AuthService implements password and phone OTP login, refresh, logout, password reset and profile access.
type AuthService struct {
	accounts    AccountRepo
	sessions    SessionRepo
	otps        otp.Store
	hasher      *security.Hasher
	tokens      *security.TokenProvider
	gate        policyengine.LoginGate
	notifier    Notifier
	events      telemetry.EventEmitter
	audit       audit.AuditLogger
	log         *zap.Logger
	absoluteTTL time.Duration
	now         func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(d Deps) *AuthService {
	s := &AuthService{
		accounts:    d.Accounts,
		sessions:    d.Sessions,
		otps:        d.OTP,
		hasher:      d.Hasher,
		tokens:      d.Tokens,
		gate:        d.Gate,
		notifier:    d.Notifier,
		events:      d.Events,
		audit:       d.Audit,
		log:         d.Log,
		absoluteTTL: d.SessionAbsoluteTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Login authenticates with email and password and starts a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, span := tracer.Start(ctx, "identity.Login")
	defer span.End()

	email = validate.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, s.loginFailed(ctx, "", policyengine.MethodPassword, ErrInvalidCredentials)
	}
	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.PasswordHash == "" {
		s.hasher.CompareDummy([]byte(password))
		return nil, s.loginFailed(ctx, "", policyengine.MethodPassword, ErrInvalidCredentials)
	}
	if err := s.hasher.Compare(acc.PasswordHash, []byte(password)); err != nil {
		return nil, s.loginFailed(ctx, acc.ID, policyengine.MethodPassword, ErrInvalidCredentials)
	}
	if err := s.checkEligible(ctx, acc, policyengine.MethodPassword); err != nil {
		return nil, s.loginFailed(ctx, acc.ID, policyengine.MethodPassword, err)
	}
	return s.startSession(ctx, acc, policyengine.MethodPassword)
}

// RequestLoginOTP sends a LOGIN code to phone. Unknown numbers get no code but the same answer.
func (s *AuthService) RequestLoginOTP(ctx context.Context, phone string) error {
	phone = validate.NormalizePhone(phone)
	if err := validate.Phone(phone); err != nil {
		return validate.Field("phone", err.Error())
	}
	acc, err := s.accounts.GetByPhone(ctx, phone)
	if err != nil {
		return err
	}
	if acc == nil {
		s.log.Debug("identity: login code requested for unknown phone")
		return nil
	}
	code, err := s.otps.Issue(ctx, phone, otp.PurposeLogin)
	if err != nil {
		return fmt.Errorf("issue login code: %w", err)
	}
	if s.notifier != nil {
		if err := s.notifier.LoginOTP(context.WithoutCancel(ctx), phone, code); err != nil {
			s.log.Warn("identity: send login code failed", zap.String("account_id", acc.ID), zap.Error(err))
		}
	}
	return nil
}

// LoginWithOTP authenticates with phone and a LOGIN code and starts a session.
func (s *AuthService) LoginWithOTP(ctx context.Context, phone, code string) (*AuthResult, error) {
	ctx, span := tracer.Start(ctx, "identity.LoginWithOTP")
	defer span.End()

	phone = validate.NormalizePhone(phone)
	code = strings.TrimSpace(code)
	if phone == "" || code == "" {
		return nil, s.loginFailed(ctx, "", policyengine.MethodPhoneOTP, ErrInvalidCredentials)
	}
	purpose, ok, err := s.otps.Verify(ctx, phone, code)
	if err != nil {
		return nil, fmt.Errorf("verify login code: %w", err)
	}
	metrics.RecordOTPVerification(ok && purpose == otp.PurposeLogin)
	if !ok || purpose != otp.PurposeLogin {
		return nil, s.loginFailed(ctx, "", policyengine.MethodPhoneOTP, ErrInvalidCredentials)
	}
	acc, err := s.accounts.GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, s.loginFailed(ctx, "", policyengine.MethodPhoneOTP, ErrInvalidCredentials)
	}
	if err := s.checkEligible(ctx, acc, policyengine.MethodPhoneOTP); err != nil {
		return nil, s.loginFailed(ctx, acc.ID, policyengine.MethodPhoneOTP, err)
	}
	return s.startSession(ctx, acc, policyengine.MethodPhoneOTP)
}

// Refresh validates the refresh token, rotates it and returns new tokens.
// Presenting a superseded refresh token revokes every session of the account.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	ctx, span := tracer.Start(ctx, "identity.Refresh")
	defer span.End()

	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	sessionID, jti, accountID, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Revoked() || sess.AccountID != accountID {
		return nil, ErrInvalidRefreshToken
	}
	now := s.now()
	if sess.PastAbsoluteLifetime(now, s.absoluteTTL) {
		_ = s.sessions.Revoke(ctx, sess.ID, now)
		return nil, ErrSessionExpired
	}
	if !now.Before(sess.ExpiresAt) {
		return nil, ErrInvalidRefreshToken
	}
	if sess.RefreshJti != jti {
		return nil, s.reuseDetected(ctx, accountID, sessionID)
	}
	if sess.RefreshTokenHash != "" && !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		return nil, ErrInvalidRefreshToken
	}

	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEligible(ctx, acc, policyengine.MethodRefresh); err != nil {
		_ = s.sessions.Revoke(ctx, sess.ID, now)
		metrics.RecordLogin(policyengine.MethodRefresh, false)
		return nil, err
	}

	newRefresh, newJti, _, err := s.tokens.IssueRefresh(sessionID, accountID)
	if err != nil {
		return nil, err
	}
	rotated, err := s.sessions.RotateRefresh(ctx, sessionID, jti, newJti, security.HashRefreshToken(newRefresh), now)
	if err != nil {
		return nil, err
	}
	if !rotated {
		// Another request rotated this token first.
		return nil, s.reuseDetected(ctx, accountID, sessionID)
	}
	accessToken, accessExp, err := s.tokens.IssueAccess(sessionID, accountID, string(acc.Kind))
	if err != nil {
		return nil, err
	}
	metrics.RecordLogin(policyengine.MethodRefresh, true)
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    accessExp,
		AccountID:    accountID,
		Kind:         acc.Kind,
		SessionID:    sessionID,
	}, nil
}

// Logout revokes the session identified by the refresh token or by the access token in context.
// If refreshToken is non-empty, validates it and revokes that session.
// If refreshToken is empty and the auth middleware set session_id in context, revokes that session.
// Otherwise no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	var sessionID, accountID string
	if refreshToken != "" {
		sid, _, aid, err := s.tokens.ValidateRefresh(refreshToken)
		if err != nil {
			return nil
		}
		sessionID, accountID = sid, aid
	} else {
		sid, ok := middleware.GetSessionID(ctx)
		if !ok {
			return nil
		}
		sessionID = sid
		accountID, _ = middleware.GetAccountID(ctx)
	}
	if err := s.sessions.Revoke(ctx, sessionID, s.now()); err != nil {
		return err
	}
	telemetry.EmitAsync(s.events, s.log, &telemetrydomain.Event{
		Type:      telemetrydomain.EventAuthLogout,
		AccountID: accountID,
		SessionID: sessionID,
		Source:    "identity",
	})
	return nil
}

// VerifyAccess validates an access token and checks that its session is still live.
func (s *AuthService) VerifyAccess(ctx context.Context, accessToken string) (*security.AccessIdentity, error) {
	id, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}
	sess, err := s.sessions.GetByID(ctx, id.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Revoked() || sess.AccountID != id.AccountID {
		return nil, ErrInvalidAccessToken
	}
	return id, nil
}

// RequestPasswordReset sends a RESET_PASSWORD code to the email or phone of an existing account.
// Unknown identifiers get no code but the same answer.
func (s *AuthService) RequestPasswordReset(ctx context.Context, identifier string) error {
	acc, identifier, err := s.lookupIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if acc == nil {
		s.log.Debug("identity: password reset requested for unknown identifier")
		return nil
	}
	code, err := s.otps.Issue(ctx, identifier, otp.PurposeResetPassword)
	if err != nil {
		return fmt.Errorf("issue reset code: %w", err)
	}
	if s.notifier != nil {
		if err := s.notifier.PasswordResetOTP(context.WithoutCancel(ctx), identifier, code); err != nil {
			s.log.Warn("identity: send reset code failed", zap.String("account_id", acc.ID), zap.Error(err))
		}
	}
	return nil
}

// ResetPassword sets a new password after checking a RESET_PASSWORD code, then revokes every
// session of the account.
func (s *AuthService) ResetPassword(ctx context.Context, identifier, code, password, confirmPassword string) error {
	if password != confirmPassword {
		return validate.Field("confirm_password", "passwords do not match")
	}
	acc, identifier, err := s.lookupIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if acc == nil {
		return ErrOTPInvalid
	}
	if err := security.ValidatePassword(password, acc.Email); err != nil {
		return validate.Field("password", err.Error())
	}
	purpose, ok, err := s.otps.Verify(ctx, identifier, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("verify reset code: %w", err)
	}
	metrics.RecordOTPVerification(ok && purpose == otp.PurposeResetPassword)
	if !ok || purpose != otp.PurposeResetPassword {
		return ErrOTPInvalid
	}
	hash, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return err
	}
	now := s.now()
	if err := s.accounts.UpdatePassword(ctx, acc.ID, hash, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.sessions.RevokeAllByAccount(ctx, acc.ID, now); err != nil {
		s.log.Warn("identity: revoke sessions after reset failed", zap.String("account_id", acc.ID), zap.Error(err))
	}
	s.audit.LogEvent(ctx, acc.ID, audit.ActionPasswordReset, audit.ResourceAuth, "")
	return nil
}

// Profile returns the account of accountID.
func (s *AuthService) Profile(ctx context.Context, accountID string) (*accountdomain.Account, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// UpdateProfile replaces the editable profile fields of accountID.
func (s *AuthService) UpdateProfile(ctx context.Context, accountID string, p accountdomain.Profile) (*accountdomain.Account, error) {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	errs := validate.Errors{}
	if !p.Gender.Valid() {
		errs.Add("gender", errors.New("gender must be Male, Female or Other"))
	}
	if p.Birthday != nil && p.Birthday.After(s.now()) {
		errs.Add("birthday", errors.New("birthday cannot be in the future"))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	acc, err := s.Profile(ctx, accountID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.accounts.UpdateProfile(ctx, acc.ID, p, now); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	acc.Profile = p
	acc.UpdatedAt = now
	return acc, nil
}

// checkEligible asks the login gate. Evaluation errors deny.
func (s *AuthService) checkEligible(ctx context.Context, acc *accountdomain.Account, method string) error {
	if s.gate == nil {
		return ErrAccountNotEligible
	}
	decision, err := s.gate.EvaluateLogin(ctx, acc, method)
	if err != nil {
		s.log.Error("identity: login gate failed", zap.String("method", method), zap.Error(err))
		return ErrAccountNotEligible
	}
	if !decision.Allowed {
		var id string
		if acc != nil {
			id = acc.ID
		}
		s.log.Info("identity: login denied by gate",
			zap.String("account_id", id), zap.String("method", method), zap.Strings("reasons", decision.Reasons))
		return ErrAccountNotEligible
	}
	return nil
}

func (s *AuthService) startSession(ctx context.Context, acc *accountdomain.Account, method string) (*AuthResult, error) {
	sessionID := uuid.New().String()
	refreshToken, jti, refreshExp, err := s.tokens.IssueRefresh(sessionID, acc.ID)
	if err != nil {
		return nil, err
	}
	accessToken, accessExp, err := s.tokens.IssueAccess(sessionID, acc.ID, string(acc.Kind))
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &sessiondomain.Session{
		ID:               sessionID,
		AccountID:        acc.ID,
		StartedAt:        now,
		ExpiresAt:        refreshExp,
		IPAddress:        middleware.ClientIPFromContext(ctx),
		RefreshJti:       jti,
		RefreshTokenHash: security.HashRefreshToken(refreshToken),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.String("account.id", acc.ID), attribute.String("login.method", method))
	metrics.RecordLogin(method, true)
	s.audit.LogEvent(ctx, acc.ID, audit.ActionLoginSuccess, audit.ResourceAuth, method)
	telemetry.EmitAsync(s.events, s.log, &telemetrydomain.Event{
		Type:      telemetrydomain.EventAuthLogin,
		AccountID: acc.ID,
		SessionID: sessionID,
		Kind:      string(acc.Kind),
		Source:    method,
	})
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
		AccountID:    acc.ID,
		Kind:         acc.Kind,
		SessionID:    sessionID,
	}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, accountID, method string, err error) error {
	metrics.RecordLogin(method, false)
	s.audit.LogEvent(ctx, accountID, audit.ActionLoginFailure, audit.ResourceAuth, method)
	return err
}

func (s *AuthService) reuseDetected(ctx context.Context, accountID, sessionID string) error {
	if err := s.sessions.RevokeAllByAccount(ctx, accountID, s.now()); err != nil {
		s.log.Error("identity: revoke after refresh reuse failed", zap.String("account_id", accountID), zap.Error(err))
	}
	s.log.Warn("identity: refresh token reuse", zap.String("account_id", accountID), zap.String("session_id", sessionID))
	s.audit.LogEvent(ctx, accountID, audit.ActionRefreshReuse, audit.ResourceAuth, sessionID)
	return ErrRefreshTokenReuse
}

// lookupIdentifier resolves an email or phone to its account and normalised form.
func (s *AuthService) lookupIdentifier(ctx context.Context, identifier string) (*accountdomain.Account, string, error) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		email := validate.NormalizeEmail(identifier)
		if err := validate.Email(email); err != nil {
			return nil, "", validate.Field("identifier", err.Error())
		}
		acc, err := s.accounts.GetByEmail(ctx, email)
		return acc, email, err
	}
	phone := validate.NormalizePhone(identifier)
	if err := validate.Phone(phone); err != nil {
		return nil, "", validate.Field("identifier", err.Error())
	}
	acc, err := s.accounts.GetByPhone(ctx, phone)
	return acc, phone, err
}
