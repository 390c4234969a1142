// Package notify delivers account emails and SMS. Delivery is best-effort: callers log
// returned errors and carry on.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// EmailSender delivers one plain-text email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers a one-time code by SMS.
type SMSSender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// Notifier renders the account workflow messages and hands them to the senders.
type Notifier struct {
	email   EmailSender
	sms     SMSSender
	baseURL string
}

// New returns a Notifier. baseURL is the public origin used to build links (no trailing slash needed).
func New(email EmailSender, sms SMSSender, baseURL string) *Notifier {
	return &Notifier{email: email, sms: sms, baseURL: strings.TrimRight(baseURL, "/")}
}

// NewFromSenders picks SMTP and SMS Local when configured and falls back to zap-logged delivery otherwise.
func NewFromSenders(smtpCfg SMTPConfig, smsKey, smsBaseURL, smsSender, baseURL string, log *zap.Logger) *Notifier {
	var email EmailSender = NewLogSender(log)
	if smtpCfg.Host != "" {
		email = NewSMTPSender(smtpCfg)
	}
	var sms SMSSender = NewLogSender(log)
	if smsKey != "" {
		sms = NewSMSLocalClient(smsKey, smsBaseURL, smsSender)
	}
	return New(email, sms, baseURL)
}

// RegistrationOTP emails the registration code.
func (n *Notifier) RegistrationOTP(ctx context.Context, email, code string) error {
	return n.email.SendEmail(ctx, email, "Your registration code",
		fmt.Sprintf("Your registration code is %s. It expires in 5 minutes.\n", code))
}

// LoginOTP sends the login code to phone.
func (n *Notifier) LoginOTP(ctx context.Context, phone, code string) error {
	return n.sms.SendOTP(ctx, phone, code)
}

// PasswordResetOTP delivers the reset code by email or SMS depending on the identifier.
func (n *Notifier) PasswordResetOTP(ctx context.Context, identifier, code string) error {
	if strings.Contains(identifier, "@") {
		return n.email.SendEmail(ctx, identifier, "Password reset code",
			fmt.Sprintf("Your password reset code is %s. It expires in 5 minutes.\n"+
				"If you did not request a reset, ignore this email.\n", code))
	}
	return n.sms.SendOTP(ctx, identifier, code)
}

// VerificationLink emails the signed email verification link.
func (n *Notifier) VerificationLink(ctx context.Context, email, name, token string) error {
	link := n.link("/api/auth/verify-email", url.Values{"token": {token}})
	return n.email.SendEmail(ctx, email, "Verify your email address",
		fmt.Sprintf("Hi %s,\n\nConfirm your email address by opening the link below:\n\n%s\n", greeting(name), link))
}

// ApprovalPending tells the parent that a member is waiting for approval.
func (n *Notifier) ApprovalPending(ctx context.Context, parentEmail, memberName, memberEmail, memberID string) error {
	link := n.link("/api/accounts/"+url.PathEscape(memberID)+"/approve", nil)
	return n.email.SendEmail(ctx, parentEmail, "Account awaiting your approval",
		fmt.Sprintf("%s (%s) registered under your account and is waiting for approval.\n\n"+
			"Sign in and approve the account at:\n%s\n", greeting(memberName), memberEmail, link))
}

// Activated tells a member their account was approved.
func (n *Notifier) Activated(ctx context.Context, email, name string) error {
	return n.email.SendEmail(ctx, email, "Your account is active",
		fmt.Sprintf("Hi %s,\n\nYour account has been approved. You can now sign in.\n", greeting(name)))
}

// Invitation emails the registration link carrying the invitation token.
func (n *Notifier) Invitation(ctx context.Context, email, issuerName, token string) error {
	link := n.link("/register", url.Values{"invitation": {token}, "email": {email}})
	return n.email.SendEmail(ctx, email, "You have been invited",
		fmt.Sprintf("%s invited you to create an account. The invitation is valid for 7 days.\n\n%s\n",
			greeting(issuerName), link))
}

func (n *Notifier) link(path string, q url.Values) string {
	s := n.baseURL + path
	if len(q) > 0 {
		s += "?" + q.Encode()
	}
	return s
}

func greeting(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return name
}
