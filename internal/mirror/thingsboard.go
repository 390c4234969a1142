package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"account-mirror/internal/account/domain"
	"account-mirror/internal/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	retryDelay     = 250 * time.Millisecond
	searchPageSize = 100
	maxErrorBody   = 2048
)

// ThingsBoardClient talks to the ThingsBoard REST API as tenant admin.
// It logs in on every call and never caches the bearer token.
type ThingsBoardClient struct {
	baseURL    string
	username   string
	password   string
	timeout    time.Duration
	httpClient *http.Client
}

// NewThingsBoardClient returns a client for baseURL. timeout bounds each HTTP request; <= 0 uses 10s.
func NewThingsBoardClient(baseURL, username, password string, timeout time.Duration) *ThingsBoardClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ThingsBoardClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// CreateMirrorAccount creates a customer (PRIMARY) or customer user (MEMBER) and returns its id.
func (c *ThingsBoardClient) CreateMirrorAccount(ctx context.Context, a Account) (id string, err error) {
	start := time.Now()
	defer func() { metrics.RecordMirrorCall("create", time.Since(start), err == nil) }()

	var (
		path    string
		payload map[string]any
	)
	switch a.Kind {
	case domain.KindPrimary:
		path = "/api/customer"
		payload = map[string]any{
			"title": strings.TrimSpace(a.FirstName + " " + a.LastName),
			"email": a.Email,
			"additionalInfo": map[string]any{
				"description": "Customer mirrored for " + a.Email,
				"firstName":   a.FirstName,
				"lastName":    a.LastName,
			},
		}
		if payload["title"] == "" {
			payload["title"] = a.Email
		}
	case domain.KindMember:
		if a.ParentRef == "" {
			return "", ErrParentRefRequired
		}
		path = "/api/user?sendActivationMail=false"
		payload = map[string]any{
			"email":      a.Email,
			"authority":  domain.KindMember.MirrorAuthority(),
			"firstName":  a.FirstName,
			"lastName":   a.LastName,
			"customerId": map[string]any{"id": a.ParentRef, "entityType": "CUSTOMER"},
			"additionalInfo": map[string]any{
				"description": "Customer user mirrored for " + a.Email,
			},
		}
	default:
		return "", fmt.Errorf("mirror: unknown account kind %q", a.Kind)
	}

	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	resp, err := c.do(ctx, "create", http.MethodPost, path, token, body)
	if err != nil {
		return "", err
	}
	id = gjson.GetBytes(resp, "id.id").String()
	if id == "" {
		return "", ErrBadResponse
	}
	return id, nil
}

// FindByEmail searches customers first, then customer users, for an exact email match.
// Returns nil, nil when neither holds the email.
func (c *ThingsBoardClient) FindByEmail(ctx context.Context, email string) (rec *Record, err error) {
	start := time.Now()
	defer func() { metrics.RecordMirrorCall("find", time.Since(start), err == nil) }()

	token, err := c.login(ctx)
	if err != nil {
		return nil, err
	}

	// Customer text search matches the title, not the email, so customers are scanned by page.
	q := url.Values{"pageSize": {strconv.Itoa(searchPageSize)}, "page": {"0"}}
	customers, err := c.do(ctx, "find_customer", http.MethodGet, "/api/customers?"+q.Encode(), token, nil)
	if err != nil {
		return nil, err
	}
	if m := matchEmail(customers, email); m.Exists() {
		return &Record{
			ID:        m.Get("id.id").String(),
			Email:     email,
			Authority: domain.KindPrimary.MirrorAuthority(),
			Name:      m.Get("title").String(),
		}, nil
	}

	q.Set("textSearch", email)
	users, err := c.do(ctx, "find_user", http.MethodGet, "/api/users?"+q.Encode(), token, nil)
	if err != nil {
		return nil, err
	}
	if m := matchEmail(users, email); m.Exists() {
		return &Record{
			ID:        m.Get("id.id").String(),
			Email:     email,
			Authority: domain.KindMember.MirrorAuthority(),
			Name:      strings.TrimSpace(m.Get("firstName").String() + " " + m.Get("lastName").String()),
		}, nil
	}
	return nil, nil
}

// matchEmail returns the first element of the page's data array whose email equals email exactly.
func matchEmail(page []byte, email string) gjson.Result {
	var found gjson.Result
	gjson.GetBytes(page, "data").ForEach(func(_, v gjson.Result) bool {
		if v.Get("email").String() == email {
			found = v
			return false
		}
		return true
	})
	return found
}

func (c *ThingsBoardClient) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{"username": c.username, "password": c.password})
	if err != nil {
		return "", err
	}
	resp, err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", "", body)
	if err != nil {
		return "", err
	}
	token := gjson.GetBytes(resp, "token").String()
	if token == "" {
		return "", fmt.Errorf("%w: login returned no token", ErrBadResponse)
	}
	return token, nil
}

// do sends one request, retrying once on transport errors and 5xx answers.
func (c *ThingsBoardClient) do(ctx context.Context, op, method, path, token string, body []byte) ([]byte, error) {
	resp, err := c.attempt(ctx, op, method, path, token, body)
	if err == nil || !retryable(err) || ctx.Err() != nil {
		return resp, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(retryDelay):
	}
	return c.attempt(ctx, op, method, path, token, body)
}

func (c *ThingsBoardClient) attempt(ctx context.Context, op, method, path, token string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{op: op, err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{op: op, err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &StatusError{Op: op, Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

type transportError struct {
	op  string
	err error
}

func (e *transportError) Error() string { return fmt.Sprintf("mirror: %s: %v", e.op, e.err) }
func (e *transportError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Retryable()
}
