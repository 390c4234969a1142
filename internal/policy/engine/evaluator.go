package engine

import (
	"context"

	accountdomain "account-mirror/internal/account/domain"
)

// Login methods passed to the gate; every entry point evaluates the same rules.
const (
	MethodPassword = "password"
	MethodPhoneOTP = "phone_otp"
	MethodRefresh  = "refresh"
)

// LoginDecision is the gate's verdict. Reasons name the failed checks and are for logs only;
// callers must not reveal them to the client.
type LoginDecision struct {
	Allowed bool
	Reasons []string
}

// LoginGate decides whether an account may obtain or keep credentials.
type LoginGate interface {
	EvaluateLogin(ctx context.Context, account *accountdomain.Account, method string) (LoginDecision, error)
}
