// Package service implements the registration workflow: Init, OTP verification, Complete and
// email verification.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	accountdomain "account-mirror/internal/account/domain"
	accountrepo "account-mirror/internal/account/repository"
	"account-mirror/internal/audit"
	invitationdomain "account-mirror/internal/invitation/domain"
	"account-mirror/internal/metrics"
	"account-mirror/internal/mirror"
	"account-mirror/internal/otp"
	"account-mirror/internal/platform/validate"
	"account-mirror/internal/security"
	"account-mirror/internal/telemetry"
	telemetrydomain "account-mirror/internal/telemetry/domain"
)

var tracer = otel.Tracer("account-mirror/registration")

// AccountRepo is the subset of the account repository used by registration.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
	GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error)
	GetByPhone(ctx context.Context, phone string) (*accountdomain.Account, error)
	Create(ctx context.Context, a *accountdomain.Account) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) (bool, error)
	SetMirrorID(ctx context.Context, id, mirrorID string, at time.Time) error
}

// InvitationRepo consumes invitations for MEMBER registrations.
type InvitationRepo interface {
	Consume(ctx context.Context, token, email string, now time.Time) (*invitationdomain.Invitation, error)
}

// Notifier sends the registration messages.
type Notifier interface {
	RegistrationOTP(ctx context.Context, email, code string) error
	VerificationLink(ctx context.Context, email, name, token string) error
	ApprovalPending(ctx context.Context, parentEmail, memberName, memberEmail, memberID string) error
}

// MirrorWriter creates the remote record and returns its id, or "" on failure.
type MirrorWriter interface {
	Create(ctx context.Context, a mirror.Account) string
}

// Deps are the collaborators of Service. Notifier, Mirror, Events and Audit may be nil.
type Deps struct {
	Accounts    AccountRepo
	Invitations InvitationRepo
	OTP         otp.Store
	Hasher      *security.Hasher
	Links       *security.LinkSigner
	Notifier    Notifier
	Mirror      MirrorWriter
	Events      telemetry.EventEmitter
	Audit       audit.AuditLogger
	Log         *zap.Logger
}

// Service runs the registration state machine.
type Service struct {
	accounts    AccountRepo
	invitations InvitationRepo
	otps        otp.Store
	hasher      *security.Hasher
	links       *security.LinkSigner
	notifier    Notifier
	mirror      MirrorWriter
	events      telemetry.EventEmitter
	audit       audit.AuditLogger
	log         *zap.Logger
	now         func() time.Time
}

// NewService returns a Service.
func NewService(d Deps) *Service {
	s := &Service{
		accounts:    d.Accounts,
		invitations: d.Invitations,
		otps:        d.OTP,
		hasher:      d.Hasher,
		links:       d.Links,
		notifier:    d.Notifier,
		mirror:      d.Mirror,
		events:      d.Events,
		audit:       d.Audit,
		log:         d.Log,
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

// CompleteRequest carries the final registration form.
type CompleteRequest struct {
	Email           string
	Phone           string
	Password        string
	ConfirmPassword string
	Kind            accountdomain.Kind
	InvitationToken string
	FirstName       string
	LastName        string
	Birthday        *time.Time
	Gender          accountdomain.Gender
}

// Init validates the identifiers, rejects ones already registered and emails a REGISTRATION code.
// No account row is written.
func (s *Service) Init(ctx context.Context, email, phone string) error {
	email = validate.NormalizeEmail(email)
	phone = validate.NormalizePhone(phone)
	errs := validate.Errors{}
	errs.Add("email", validate.Email(email))
	errs.Add("phone", validate.Phone(phone))
	if err := errs.Err(); err != nil {
		return err
	}
	if err := s.checkAvailable(ctx, email, phone); err != nil {
		return err
	}
	code, err := s.otps.Issue(ctx, email, otp.PurposeRegistration)
	if err != nil {
		return fmt.Errorf("issue registration code: %w", err)
	}
	if s.notifier != nil {
		if err := s.notifier.RegistrationOTP(context.WithoutCancel(ctx), email, code); err != nil {
			s.log.Warn("registration: send code failed", zap.String("email", email), zap.Error(err))
		}
	}
	s.audit.LogEvent(ctx, "", audit.ActionRegisterInit, audit.ResourceAuth, email)
	return nil
}

// VerifyOTP consumes the code for identifier and, when it was issued for registration,
// marks the identifier verified for the Complete step.
func (s *Service) VerifyOTP(ctx context.Context, identifier, code string) error {
	identifier = normalizeIdentifier(identifier)
	code = strings.TrimSpace(code)
	if identifier == "" || code == "" {
		return ErrOTPInvalid
	}
	purpose, ok, err := s.otps.Verify(ctx, identifier, code)
	if err != nil {
		return fmt.Errorf("verify registration code: %w", err)
	}
	metrics.RecordOTPVerification(ok && purpose == otp.PurposeRegistration)
	if !ok || purpose != otp.PurposeRegistration {
		return ErrOTPInvalid
	}
	if err := s.otps.MarkVerified(ctx, identifier); err != nil {
		return fmt.Errorf("mark identifier verified: %w", err)
	}
	return nil
}

// Complete creates the account once its identifiers are verified. PRIMARY accounts are approved
// at creation; MEMBER accounts need a valid invitation and stay pending until the parent approves.
// Mirroring, notifications and events that follow are best-effort.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (*accountdomain.Account, error) {
	ctx, span := tracer.Start(ctx, "registration.Complete", trace.WithAttributes(attribute.String("account.kind", string(req.Kind))))
	defer span.End()

	acc, err := s.complete(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("account.id", acc.ID))
	s.afterCreate(context.WithoutCancel(ctx), acc)
	return acc, nil
}

func (s *Service) complete(ctx context.Context, req CompleteRequest) (*accountdomain.Account, error) {
	email := validate.NormalizeEmail(req.Email)
	phone := validate.NormalizePhone(req.Phone)

	if req.Password != req.ConfirmPassword {
		return nil, validate.Field("confirm_password", "passwords do not match")
	}
	if err := security.ValidatePassword(req.Password, email); err != nil {
		return nil, validate.Field("password", err.Error())
	}
	errs := validate.Errors{}
	errs.Add("email", validate.Email(email))
	errs.Add("phone", validate.Phone(phone))
	if !req.Kind.Valid() {
		errs.Add("kind", errors.New("kind must be PRIMARY or MEMBER"))
	}
	if !req.Gender.Valid() {
		errs.Add("gender", errors.New("gender must be Male, Female or Other"))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	verified, err := s.anyVerified(ctx, email, phone)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, ErrOTPNotVerified
	}

	now := s.now()
	var parentID string
	if req.Kind == accountdomain.KindMember {
		token := strings.TrimSpace(req.InvitationToken)
		if token == "" {
			return nil, ErrInvitationInvalid
		}
		inv, err := s.invitations.Consume(ctx, token, email, now)
		if err != nil {
			return nil, fmt.Errorf("consume invitation: %w", err)
		}
		if inv == nil {
			return nil, ErrInvitationInvalid
		}
		parentID = inv.IssuerID
	}

	if err := s.checkAvailable(ctx, email, phone); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash([]byte(req.Password))
	if err != nil {
		return nil, err
	}
	acc := &accountdomain.Account{
		ID:           uuid.New().String(),
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		Kind:         req.Kind,
		ParentID:     parentID,
		Approved:     req.Kind == accountdomain.KindPrimary,
		Profile: accountdomain.Profile{
			FirstName: strings.TrimSpace(req.FirstName),
			LastName:  strings.TrimSpace(req.LastName),
			Birthday:  req.Birthday,
			Gender:    req.Gender,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if acc.Approved {
		acc.ApprovedAt = &now
	}
	if err := acc.Validate(); err != nil {
		return nil, validate.Field("account", err.Error())
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		switch {
		case errors.Is(err, accountrepo.ErrDuplicateEmail):
			return nil, &ConflictError{Fields: map[string]string{"email": ErrEmailTaken.Error()}, errs: []error{ErrEmailTaken}}
		case errors.Is(err, accountrepo.ErrDuplicatePhone):
			return nil, &ConflictError{Fields: map[string]string{"phone": ErrPhoneTaken.Error()}, errs: []error{ErrPhoneTaken}}
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return acc, nil
}

func (s *Service) afterCreate(ctx context.Context, acc *accountdomain.Account) {
	var parent *accountdomain.Account
	if acc.Kind == accountdomain.KindMember {
		p, err := s.accounts.GetByID(ctx, acc.ParentID)
		if err != nil {
			s.log.Warn("registration: load parent failed", zap.String("parent_id", acc.ParentID), zap.Error(err))
		}
		parent = p
	}

	s.mirrorAccount(ctx, acc, parent)

	if parent != nil && s.notifier != nil {
		if err := s.notifier.ApprovalPending(ctx, parent.Email, acc.DisplayName(), acc.Email, acc.ID); err != nil {
			s.log.Warn("registration: approval notice failed", zap.String("account_id", acc.ID), zap.Error(err))
		}
	}

	s.sendVerificationLink(ctx, acc)

	for _, id := range []string{acc.Email, acc.Phone} {
		if err := s.otps.ClearVerified(ctx, id); err != nil {
			s.log.Warn("registration: clear verified flag failed", zap.Error(err))
		}
	}

	telemetry.EmitAsync(s.events, s.log, &telemetrydomain.Event{
		Type:      telemetrydomain.EventAccountRegistered,
		AccountID: acc.ID,
		Kind:      string(acc.Kind),
		Source:    "registration",
	})
	s.audit.LogEvent(ctx, acc.ID, audit.ActionRegister, audit.ResourceAccount, string(acc.Kind))
	metrics.RecordRegistration(string(acc.Kind))
}

func (s *Service) mirrorAccount(ctx context.Context, acc *accountdomain.Account, parent *accountdomain.Account) {
	if s.mirror == nil {
		return
	}
	var parentRef string
	if parent != nil {
		parentRef = parent.MirrorID
	}
	id := s.mirror.Create(ctx, mirror.FromAccount(acc, parentRef))
	if id == "" {
		return
	}
	if err := s.accounts.SetMirrorID(ctx, acc.ID, id, s.now()); err != nil {
		s.log.Warn("registration: store mirror id failed", zap.String("account_id", acc.ID), zap.Error(err))
		return
	}
	acc.MirrorID = id
	telemetry.EmitAsync(s.events, s.log, &telemetrydomain.Event{
		Type:      telemetrydomain.EventAccountMirrored,
		AccountID: acc.ID,
		Kind:      string(acc.Kind),
		Source:    "registration",
	})
}

func (s *Service) sendVerificationLink(ctx context.Context, acc *accountdomain.Account) {
	if s.notifier == nil || s.links == nil {
		return
	}
	token, err := s.links.Issue(security.PurposeVerifyEmail, acc.ID, emailBinding(acc))
	if err != nil {
		s.log.Error("registration: sign verification link failed", zap.String("account_id", acc.ID), zap.Error(err))
		return
	}
	if err := s.notifier.VerificationLink(ctx, acc.Email, acc.DisplayName(), token); err != nil {
		s.log.Warn("registration: send verification link failed", zap.String("account_id", acc.ID), zap.Error(err))
	}
}

// VerifyEmail activates the account named by a verification link. Every failure, including a
// link already used, is reported as ErrVerificationLinkInvalid.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*accountdomain.Account, error) {
	ctx, span := tracer.Start(ctx, "registration.VerifyEmail")
	defer span.End()

	if s.links == nil || strings.TrimSpace(token) == "" {
		return nil, ErrVerificationLinkInvalid
	}
	accountID, binding, err := s.links.Parse(token, security.PurposeVerifyEmail)
	if err != nil {
		return nil, ErrVerificationLinkInvalid
	}
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if acc == nil || !security.BindingEqual(binding, emailBinding(acc)) {
		return nil, ErrVerificationLinkInvalid
	}
	now := s.now()
	changed, err := s.accounts.MarkEmailVerified(ctx, acc.ID, now)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !changed {
		return nil, ErrVerificationLinkInvalid
	}
	acc.EmailVerified = true
	acc.Active = true
	acc.UpdatedAt = now

	telemetry.EmitAsync(s.events, s.log, &telemetrydomain.Event{
		Type:      telemetrydomain.EventAccountEmailVerified,
		AccountID: acc.ID,
		Kind:      string(acc.Kind),
		Source:    "registration",
	})
	s.audit.LogEvent(ctx, acc.ID, audit.ActionVerifyEmail, audit.ResourceAccount, "")
	return acc, nil
}

func (s *Service) checkAvailable(ctx context.Context, email, phone string) error {
	var c conflicts
	byEmail, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if byEmail != nil {
		c.email()
	}
	byPhone, err := s.accounts.GetByPhone(ctx, phone)
	if err != nil {
		return err
	}
	if byPhone != nil {
		c.phone()
	}
	return c.err()
}

func (s *Service) anyVerified(ctx context.Context, email, phone string) (bool, error) {
	for _, id := range []string{email, phone} {
		ok, err := s.otps.IsVerified(ctx, id)
		if err != nil {
			return false, fmt.Errorf("check verified flag: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// emailBinding ties a verification link to the state it was issued against; once the email is
// verified the fingerprint changes and the link stops working.
func emailBinding(a *accountdomain.Account) string {
	return security.Fingerprint(a.ID, a.Email, strconv.FormatBool(a.EmailVerified))
}

func normalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return validate.NormalizeEmail(identifier)
	}
	return validate.NormalizePhone(identifier)
}
