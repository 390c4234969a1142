package engine

import (
	"context"
	"testing"

	accountdomain "account-mirror/internal/account/domain"
)

func newEvaluator(t *testing.T) *OPAEvaluator {
	t.Helper()
	e, err := NewOPAEvaluator(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	return e
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	if err := newEvaluator(t).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_EvaluateLogin(t *testing.T) {
	e := newEvaluator(t)
	tests := []struct {
		name    string
		account *accountdomain.Account
		allowed bool
		reasons []string
	}{
		{"eligible primary", &accountdomain.Account{Kind: accountdomain.KindPrimary, Active: true, EmailVerified: true, Approved: true}, true, nil},
		{"unverified", &accountdomain.Account{Kind: accountdomain.KindPrimary, Approved: true}, false, []string{"email_unverified", "inactive"}},
		{"pending member", &accountdomain.Account{Kind: accountdomain.KindMember, Active: true, EmailVerified: true}, false, []string{"unapproved"}},
		{"nothing set", &accountdomain.Account{Kind: accountdomain.KindMember}, false, []string{"email_unverified", "inactive", "unapproved"}},
		{"nil account", nil, false, []string{"unknown_account"}},
	}
	for _, tt := range tests {
		for _, method := range []string{MethodPassword, MethodPhoneOTP, MethodRefresh} {
			t.Run(tt.name+"/"+method, func(t *testing.T) {
				d, err := e.EvaluateLogin(context.Background(), tt.account, method)
				if err != nil {
					t.Fatalf("EvaluateLogin: %v", err)
				}
				if d.Allowed != tt.allowed {
					t.Errorf("Allowed = %v, want %v", d.Allowed, tt.allowed)
				}
				if len(d.Reasons) != len(tt.reasons) {
					t.Fatalf("Reasons = %v, want %v", d.Reasons, tt.reasons)
				}
				for i := range tt.reasons {
					if d.Reasons[i] != tt.reasons[i] {
						t.Errorf("Reasons = %v, want %v", d.Reasons, tt.reasons)
					}
				}
			})
		}
	}
}

func TestOPAEvaluator_UnknownMethodDenied(t *testing.T) {
	e := newEvaluator(t)
	d, err := e.EvaluateLogin(context.Background(),
		&accountdomain.Account{Active: true, EmailVerified: true, Approved: true}, "magic_link")
	if err != nil {
		t.Fatalf("EvaluateLogin: %v", err)
	}
	if d.Allowed {
		t.Error("unknown login method must be denied")
	}
}

func TestNewOPAEvaluator_CustomPolicy(t *testing.T) {
	policy := `package account.login

default allow := false

allow if input.account.active
`
	e, err := NewOPAEvaluator(context.Background(), policy)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	d, err := e.EvaluateLogin(context.Background(), &accountdomain.Account{Active: true}, MethodPassword)
	if err != nil {
		t.Fatalf("EvaluateLogin: %v", err)
	}
	if !d.Allowed {
		t.Error("custom policy should allow an active account")
	}
}

func TestNewOPAEvaluator_InvalidPolicy(t *testing.T) {
	if _, err := NewOPAEvaluator(context.Background(), "package account.login\nallow if {"); err == nil {
		t.Fatal("expected compile error")
	}
}
