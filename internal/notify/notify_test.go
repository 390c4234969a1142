package notify

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type sentEmail struct {
	to, subject, body string
}

type fakeEmail struct {
	sent []sentEmail
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, to, subject, body string) error {
	f.sent = append(f.sent, sentEmail{to, subject, body})
	return f.err
}

type fakeSMS struct {
	phone, code string
}

func (f *fakeSMS) SendOTP(_ context.Context, phone, code string) error {
	f.phone, f.code = phone, code
	return nil
}

func TestNotifier_Messages(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{}
	n := New(email, sms, "https://app.example.com/")
	ctx := context.Background()

	if err := n.RegistrationOTP(ctx, "a@x.com", "4821"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(email.sent[0].body, "4821") {
		t.Errorf("OTP email body = %q", email.sent[0].body)
	}

	if err := n.VerificationLink(ctx, "a@x.com", "Ada", "tok.en"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(email.sent[1].body, "https://app.example.com/api/auth/verify-email?token=tok.en") {
		t.Errorf("verification body = %q", email.sent[1].body)
	}

	if err := n.ApprovalPending(ctx, "p@x.com", "", "m@x.com", "acc-7"); err != nil {
		t.Fatal(err)
	}
	if email.sent[2].to != "p@x.com" || !strings.Contains(email.sent[2].body, "/api/accounts/acc-7/approve") {
		t.Errorf("approval email = %+v", email.sent[2])
	}

	if err := n.Invitation(ctx, "m@x.com", "Parent Co", "abc_123"); err != nil {
		t.Fatal(err)
	}
	body := email.sent[3].body
	i := strings.Index(body, "https://")
	u, err := url.Parse(strings.TrimSpace(body[i:]))
	if err != nil {
		t.Fatalf("parse invitation link: %v", err)
	}
	if u.Query().Get("invitation") != "abc_123" || u.Query().Get("email") != "m@x.com" {
		t.Errorf("invitation link = %s", u)
	}

	if err := n.LoginOTP(ctx, "+201234567", "1111"); err != nil {
		t.Fatal(err)
	}
	if sms.phone != "+201234567" || sms.code != "1111" {
		t.Errorf("sms = %+v", sms)
	}
}

func TestNotifier_PasswordResetRouting(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{}
	n := New(email, sms, "http://localhost:8000")

	_ = n.PasswordResetOTP(context.Background(), "a@x.com", "1234")
	_ = n.PasswordResetOTP(context.Background(), "+201234567", "5678")

	if len(email.sent) != 1 || email.sent[0].to != "a@x.com" {
		t.Errorf("email reset = %+v", email.sent)
	}
	if sms.phone != "+201234567" || sms.code != "5678" {
		t.Errorf("sms reset = %+v", sms)
	}
}

func TestNotifier_PropagatesSenderError(t *testing.T) {
	n := New(&fakeEmail{err: errors.New("smtp down")}, &fakeSMS{}, "")
	if err := n.Activated(context.Background(), "a@x.com", "Ada"); err == nil {
		t.Error("expected sender error")
	}
}

func TestNewFromSenders_FallsBackToLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewFromSenders(SMTPConfig{}, "", "", "", "http://localhost:8000", zap.New(core))

	if err := n.RegistrationOTP(context.Background(), "a@x.com", "9999"); err != nil {
		t.Fatal(err)
	}
	if err := n.LoginOTP(context.Background(), "+201234567", "9999"); err != nil {
		t.Fatal(err)
	}
	for _, e := range logs.All() {
		for _, f := range e.Context {
			if f.String == "9999" || strings.Contains(f.String, "9999") {
				t.Errorf("code leaked at info level: %v", e.Message)
			}
		}
	}
	if logs.Len() != 2 {
		t.Errorf("expected 2 info entries, got %d", logs.Len())
	}
}

func TestBuildMessage(t *testing.T) {
	msg, err := buildMessage("no-reply@x.com", "a@x.com", "Hello", "line1\nline2")
	if err != nil {
		t.Fatal(err)
	}
	s := string(msg)
	if !strings.HasPrefix(s, "From: no-reply@x.com\r\nTo: a@x.com\r\nSubject: Hello\r\n") {
		t.Errorf("headers = %q", s)
	}
	if !strings.HasSuffix(s, "\r\n\r\nline1\r\nline2") {
		t.Errorf("body = %q", s)
	}

	if _, err := buildMessage("x@x.com", "a@x.com\r\nBcc: evil@x.com", "Hi", ""); !errors.Is(err, errHeaderInjection) {
		t.Errorf("err = %v, want errHeaderInjection", err)
	}
}

func TestNewSMTPSender_Defaults(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.x.com", Username: "user@x.com"})
	if s.cfg.Port != "465" || s.cfg.From != "user@x.com" {
		t.Errorf("cfg = %+v", s.cfg)
	}
}
