package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"

	accountdomain "account-mirror/internal/account/domain"
)

const loginQuery = "data.account.login"

// DefaultLoginPolicy requires an active, email-verified and approved account for every method.
const DefaultLoginPolicy = `package account.login

default allow := false

allow if count(deny) == 0

deny contains "inactive" if not input.account.active

deny contains "email_unverified" if not input.account.email_verified

deny contains "unapproved" if not input.account.approved

deny contains "unknown_method" if not input.method in {"password", "phone_otp", "refresh"}
`

// OPAEvaluator evaluates the login gate with an in-process Rego query, prepared once.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (DefaultLoginPolicy when empty).
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultLoginPolicy
	}
	q, err := rego.New(
		rego.Query(loginQuery),
		rego.Module("login.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile login policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// EvaluateLogin fails closed: any evaluation error yields Allowed=false together with the error.
func (e *OPAEvaluator) EvaluateLogin(ctx context.Context, account *accountdomain.Account, method string) (LoginDecision, error) {
	if account == nil {
		return LoginDecision{Reasons: []string{"unknown_account"}}, nil
	}
	input := map[string]interface{}{
		"method": method,
		"account": map[string]interface{}{
			"id":             account.ID,
			"kind":           string(account.Kind),
			"active":         account.Active,
			"email_verified": account.EmailVerified,
			"approved":       account.Approved,
		},
	}
	return e.eval(ctx, input)
}

// HealthCheck evaluates the prepared policy against a fully eligible account.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	d, err := e.EvaluateLogin(ctx, &accountdomain.Account{Active: true, EmailVerified: true, Approved: true}, MethodPassword)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return errors.New("policy: eligible account denied")
	}
	return nil
}

func (e *OPAEvaluator) eval(ctx context.Context, input map[string]interface{}) (LoginDecision, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return LoginDecision{Reasons: []string{"policy_error"}}, fmt.Errorf("eval login policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return LoginDecision{Reasons: []string{"policy_error"}}, errors.New("login policy returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return LoginDecision{Reasons: []string{"policy_error"}}, errors.New("login policy returned a non-object result")
	}

	var d LoginDecision
	d.Allowed, _ = doc["allow"].(bool)
	if deny, ok := doc["deny"].([]interface{}); ok {
		for _, r := range deny {
			if s, ok := r.(string); ok {
				d.Reasons = append(d.Reasons, s)
			}
		}
	}
	sort.Strings(d.Reasons)
	if d.Allowed && len(d.Reasons) > 0 {
		d.Allowed = false
	}
	return d, nil
}
