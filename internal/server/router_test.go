package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountdomain "account-mirror/internal/account/domain"
	accountrepo "account-mirror/internal/account/repository"
	"account-mirror/internal/devotp"
	devotphandler "account-mirror/internal/devotp/handler"
	identityservice "account-mirror/internal/identity/service"
	invitationrepo "account-mirror/internal/invitation/repository"
	membershiphandler "account-mirror/internal/membership/handler"
	membershipservice "account-mirror/internal/membership/service"
	"account-mirror/internal/otp"
	policyengine "account-mirror/internal/policy/engine"
	"account-mirror/internal/security"
	"account-mirror/internal/server/middleware"
	sessiondomain "account-mirror/internal/session/domain"
	sessionrepo "account-mirror/internal/session/repository"
)

const ownerPassword = "Correct-Horse-42"

type nopNotifier struct{}

func (nopNotifier) Activated(context.Context, string, string) error { return nil }
func (nopNotifier) Invitation(context.Context, string, string, string) error { return nil }

type routerFixture struct {
	handler  http.Handler
	tokens   *security.TokenProvider
	auth     *identityservice.AuthService
	sessions *sessionrepo.MemoryRepository
}

func newRouterFixture(t *testing.T, mutate func(*Deps)) *routerFixture {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	gate, err := policyengine.NewOPAEvaluator(context.Background(), "")
	require.NoError(t, err)
	hasher := security.NewHasher(4)
	hash, err := hasher.Hash([]byte(ownerPassword))
	require.NoError(t, err)

	accounts := accountrepo.NewMemoryRepository()
	now := time.Now().UTC()
	accounts.Put(&accountdomain.Account{ID: "p1", Email: "owner@example.com", Phone: "+15550000001", PasswordHash: hash, Kind: accountdomain.KindPrimary, Active: true, EmailVerified: true, Approved: true, CreatedAt: now})
	accounts.Put(&accountdomain.Account{ID: "m1", Email: "member@example.com", Phone: "+15550000002", Kind: accountdomain.KindMember, ParentID: "p1", Active: true, EmailVerified: true, CreatedAt: now})

	sessions := sessionrepo.NewMemoryRepository()
	for _, id := range []string{"p1", "m1"} {
		require.NoError(t, sessions.Create(context.Background(), &sessiondomain.Session{
			ID: "s-" + id, AccountID: id, StartedAt: now, ExpiresAt: now.Add(time.Hour),
		}))
	}
	auth := identityservice.NewAuthService(identityservice.Deps{
		Accounts: accounts,
		Sessions: sessions,
		OTP:      otp.NewMemoryStore(),
		Hasher:   hasher,
		Tokens:   tokens,
		Gate:     gate,
	})

	svc := membershipservice.NewService(accounts, invitationrepo.NewMemoryRepository(), nopNotifier{}, nil, nil)
	d := Deps{
		Membership: membershiphandler.New(svc, nil),
		Tokens:     auth,
		Accounts:   accounts,
		OTPLimiter: middleware.NewRateLimiter(time.Hour, 2, time.Hour),
	}
	if mutate != nil {
		mutate(&d)
	}
	return &routerFixture{handler: NewRouter(d), tokens: tokens, auth: auth, sessions: sessions}
}

func (f *routerFixture) do(t *testing.T, method, path, body, accountID string) *httptest.ResponseRecorder {
	t.Helper()
	bearer := ""
	if accountID != "" {
		kind := "PRIMARY"
		if strings.HasPrefix(accountID, "m") {
			kind = "MEMBER"
		}
		tok, _, err := f.tokens.IssueAccess("s-"+accountID, accountID, kind)
		require.NoError(t, err)
		bearer = tok
	}
	return f.doBearer(t, method, path, body, bearer)
}

func (f *routerFixture) doBearer(t *testing.T, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PublicEndpoints(t *testing.T) {
	f := newRouterFixture(t, nil)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", "", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/nope", "", "").Code)
	// Handlers without a service answer 503 instead of panicking.
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/auth/login", `{}`, "").Code)
}

func TestRouter_RequiresAuth(t *testing.T) {
	f := newRouterFixture(t, nil)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/accounts/pending", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/accounts/m1/approve", "", "").Code)

	rec := f.do(t, http.MethodGet, "/api/accounts/pending", "", "p1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "member@example.com")

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/accounts/m1/approve", "", "p1").Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/accounts/m1/approve", "", "p1").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/accounts/not-a-uuid/approve", "", "p1").Code)
}

func TestRouter_RevokedSessionIsRejected(t *testing.T) {
	f := newRouterFixture(t, nil)
	ctx := context.Background()

	res, err := f.auth.Login(ctx, "owner@example.com", ownerPassword)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, f.doBearer(t, http.MethodGet, "/api/accounts/pending", "", res.AccessToken).Code)

	require.NoError(t, f.auth.Logout(ctx, res.RefreshToken))
	assert.Equal(t, http.StatusUnauthorized, f.doBearer(t, http.MethodGet, "/api/accounts/pending", "", res.AccessToken).Code)
	assert.Equal(t, http.StatusUnauthorized, f.doBearer(t, http.MethodPost, "/api/auth/send-invitation", `{"email":"new@example.com"}`, res.AccessToken).Code)

	// Revoking every session of the account cuts off tokens issued for all of them.
	require.NoError(t, f.sessions.RevokeAllByAccount(ctx, "m1", time.Now().UTC()))
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/accounts/pending", "", "m1").Code)
}

func TestRouter_SendInvitationPrimaryOnly(t *testing.T) {
	f := newRouterFixture(t, nil)
	body := `{"email":"new@example.com"}`
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/auth/send-invitation", body, "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/auth/send-invitation", body, "m1").Code)
	assert.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/auth/send-invitation", body, "p1").Code)
}

func TestRouter_OTPSendersAreRateLimited(t *testing.T) {
	f := newRouterFixture(t, nil)
	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/api/auth/register/init", `{}`, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/api/auth/register/init", `{}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Verification endpoints are not throttled by the sender limiter.
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/auth/register/verify-otp", `{}`, "").Code)
}

func TestRouter_DevOTPOnlyWhenEnabled(t *testing.T) {
	f := newRouterFixture(t, nil)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/dev/otp?identifier=a@x.com", "", "").Code)

	store := devotp.NewMemoryStore()
	store.Put(context.Background(), "a@x.com", "123456", time.Now().Add(time.Minute))
	f = newRouterFixture(t, func(d *Deps) { d.DevOTP = devotphandler.New(store) })
	rec := f.do(t, http.MethodGet, "/dev/otp?identifier=a@x.com", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "123456")
}

func TestRouter_CORSPreflight(t *testing.T) {
	f := newRouterFixture(t, func(d *Deps) { d.CORSOrigins = []string{"https://app.example.com"} })
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
