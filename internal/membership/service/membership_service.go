// Package service implements member approval and invitations issued by PRIMARY accounts.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	accountdomain "account-mirror/internal/account/domain"
	invitationdomain "account-mirror/internal/invitation/domain"
	"account-mirror/internal/platform/validate"
	"account-mirror/internal/telemetry"
	telemetrydomain "account-mirror/internal/telemetry/domain"
)

var tracer = otel.Tracer("account-mirror/membership")

// Sentinel errors for membership; the HTTP handler maps them to status codes.
var (
	// ErrApprovalForbidden covers a missing account as well as one the actor does not own.
	ErrApprovalForbidden = errors.New("not allowed to approve this account")
	ErrAlreadyApproved   = errors.New("account already approved")
	ErrNotPrimary        = errors.New("only active primary accounts can send invitations")
	ErrEmailTaken        = errors.New("email already registered")
)

// AccountRepo is the subset of the account repository used here.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
	GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error)
	Approve(ctx context.Context, id, approverID string, at time.Time) (bool, error)
	ListPendingByParent(ctx context.Context, parentID string) ([]*accountdomain.Account, error)
}

// InvitationRepo persists invitations.
type InvitationRepo interface {
	Create(ctx context.Context, inv *invitationdomain.Invitation) error
	FindUsable(ctx context.Context, email, issuerID string, now time.Time) (*invitationdomain.Invitation, error)
}

// Notifier sends the membership emails.
type Notifier interface {
	Activated(ctx context.Context, email, name string) error
	Invitation(ctx context.Context, email, issuerName, token string) error
}

// Service approves members and issues invitations.
type Service struct {
	accounts    AccountRepo
	invitations InvitationRepo
	notifier    Notifier
	events      telemetry.EventEmitter
	log         *zap.Logger
	now         func() time.Time
}

// NewService returns a Service. notifier and events may be nil.
func NewService(accounts AccountRepo, invitations InvitationRepo, notifier Notifier, events telemetry.EventEmitter, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		accounts:    accounts,
		invitations: invitations,
		notifier:    notifier,
		events:      events,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Approve approves a pending MEMBER on behalf of its parent. The conditional update makes
// concurrent approvals apply exactly once; the losers see ErrAlreadyApproved.
func (s *Service) Approve(ctx context.Context, actorID, accountID string) (*accountdomain.Account, error) {
	ctx, span := tracer.Start(ctx, "membership.Approve")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if acc == nil || actorID == "" || acc.Kind != accountdomain.KindMember || acc.ParentID != actorID {
		return nil, ErrApprovalForbidden
	}
	if acc.Approved {
		return nil, ErrAlreadyApproved
	}
	now := s.now()
	changed, err := s.accounts.Approve(ctx, acc.ID, actorID, now)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("approve account: %w", err)
	}
	if !changed {
		return nil, ErrAlreadyApproved
	}
	acc.Approved = true
	acc.ApprovedBy = actorID
	acc.ApprovedAt = &now
	acc.UpdatedAt = now

	if s.notifier != nil {
		if err := s.notifier.Activated(context.WithoutCancel(ctx), acc.Email, acc.DisplayName()); err != nil {
			s.log.Warn("membership: activation email failed", zap.String("account_id", acc.ID), zap.Error(err))
		}
	}
	telemetry.EmitAsync(s.events, s.log, &telemetrydomain.Event{
		Type:      telemetrydomain.EventAccountApproved,
		AccountID: acc.ID,
		Kind:      string(acc.Kind),
		Source:    "membership",
	})
	return acc, nil
}

// ListPending returns MEMBER accounts under actorID that still await approval.
func (s *Service) ListPending(ctx context.Context, actorID string) ([]*accountdomain.Account, error) {
	return s.accounts.ListPendingByParent(ctx, actorID)
}

// SendInvitation invites email to register under issuerID. A still-usable invitation for the same
// pair is re-sent instead of creating another.
func (s *Service) SendInvitation(ctx context.Context, issuerID, email string) (*invitationdomain.Invitation, error) {
	ctx, span := tracer.Start(ctx, "membership.SendInvitation")
	defer span.End()

	email = validate.NormalizeEmail(email)
	if err := validate.Email(email); err != nil {
		return nil, validate.Field("email", err.Error())
	}
	issuer, err := s.accounts.GetByID(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	if issuer == nil || issuer.Kind != accountdomain.KindPrimary || !issuer.Active {
		return nil, ErrNotPrimary
	}
	existing, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	now := s.now()
	inv, err := s.invitations.FindUsable(ctx, email, issuer.ID, now)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		token, err := invitationdomain.NewToken()
		if err != nil {
			return nil, err
		}
		inv = &invitationdomain.Invitation{
			ID:        uuid.New().String(),
			Email:     email,
			IssuerID:  issuer.ID,
			Token:     token,
			CreatedAt: now,
			ExpiresAt: now.Add(invitationdomain.Lifetime),
		}
		if err := s.invitations.Create(ctx, inv); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("create invitation: %w", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Invitation(context.WithoutCancel(ctx), email, issuer.DisplayName(), inv.Token); err != nil {
			s.log.Warn("membership: invitation email failed", zap.String("invitation_id", inv.ID), zap.Error(err))
		}
	}
	return inv, nil
}
