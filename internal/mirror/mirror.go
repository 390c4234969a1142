// Package mirror projects local accounts into the ThingsBoard tenant: PRIMARY accounts become
// customers and MEMBER accounts become customer users under their parent's customer.
package mirror

import (
	"context"
	"errors"
	"fmt"

	"account-mirror/internal/account/domain"
)

var (
	// ErrParentRefRequired is returned when a MEMBER is mirrored before its parent has a mirror id.
	ErrParentRefRequired = errors.New("mirror: member requires the parent's mirror id")
	// ErrBadResponse is returned when the remote API answers 2xx without the expected fields.
	ErrBadResponse = errors.New("mirror: unexpected response body")
)

// StatusError is a non-2xx answer from the remote API.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mirror: %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Retryable reports whether a second attempt may succeed.
func (e *StatusError) Retryable() bool {
	return e.Status >= 500
}

// Account is the data sent to the remote platform.
type Account struct {
	Email     string
	FirstName string
	LastName  string
	Kind      domain.Kind
	// ParentRef is the parent's mirror id; required for MEMBER.
	ParentRef string
}

// FromAccount builds the mirror payload for a, with parentRef being the parent's mirror id.
func FromAccount(a *domain.Account, parentRef string) Account {
	return Account{
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Kind:      a.Kind,
		ParentRef: parentRef,
	}
}

// Record is a mirrored entity found on the remote platform.
type Record struct {
	ID        string
	Email     string
	Authority string // CUSTOMER or CUSTOMER_USER
	Name      string
}

// Client is the contract of the external identity mirror. Creation is not idempotent on the
// remote side; callers check FindByEmail first when retrying.
type Client interface {
	CreateMirrorAccount(ctx context.Context, a Account) (string, error)
	FindByEmail(ctx context.Context, email string) (*Record, error)
}
