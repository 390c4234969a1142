package mirror

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"account-mirror/internal/account/domain"
)

type stubClient struct {
	createID  string
	createErr error
	found     *Record
	findErr   error
	creates   int
}

func (s *stubClient) CreateMirrorAccount(context.Context, Account) (string, error) {
	s.creates++
	return s.createID, s.createErr
}

func (s *stubClient) FindByEmail(context.Context, string) (*Record, error) {
	return s.found, s.findErr
}

func TestBestEffort_Create(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := NewBestEffort(&stubClient{createErr: errors.New("connection refused")}, zap.New(core))

	id := b.Create(context.Background(), Account{Email: "a@x.com", Kind: domain.KindPrimary})
	assert.Empty(t, id)
	assert.Equal(t, 1, logs.Len())

	b = NewBestEffort(&stubClient{createID: "cust-1"}, nil)
	assert.Equal(t, "cust-1", b.Create(context.Background(), Account{Email: "a@x.com", Kind: domain.KindPrimary}))
}

func TestBestEffort_Disabled(t *testing.T) {
	b := NewBestEffort(nil, nil)
	assert.False(t, b.Enabled())
	assert.Empty(t, b.Create(context.Background(), Account{Email: "a@x.com"}))
	id, err := b.Ensure(context.Background(), Account{Email: "a@x.com"})
	assert.NoError(t, err)
	assert.Empty(t, id)
}

func TestBestEffort_EnsureUsesExistingRecord(t *testing.T) {
	stub := &stubClient{found: &Record{ID: "cust-7"}, createID: "cust-new"}
	id, err := NewBestEffort(stub, nil).Ensure(context.Background(), Account{Email: "a@x.com", Kind: domain.KindPrimary})
	require.NoError(t, err)
	assert.Equal(t, "cust-7", id)
	assert.Equal(t, 0, stub.creates)

	stub = &stubClient{createID: "cust-new"}
	id, err = NewBestEffort(stub, nil).Ensure(context.Background(), Account{Email: "a@x.com", Kind: domain.KindPrimary})
	require.NoError(t, err)
	assert.Equal(t, "cust-new", id)
	assert.Equal(t, 1, stub.creates)

	_, err = NewBestEffort(&stubClient{findErr: errors.New("503")}, nil).Ensure(context.Background(), Account{Email: "a@x.com"})
	assert.Error(t, err)
}

func TestFromAccount(t *testing.T) {
	a := &domain.Account{Email: "m@x.com", Kind: domain.KindMember, Profile: domain.Profile{FirstName: "Mo", LastName: "M"}}
	got := FromAccount(a, "cust-1")
	assert.Equal(t, Account{Email: "m@x.com", FirstName: "Mo", LastName: "M", Kind: domain.KindMember, ParentRef: "cust-1"}, got)
}
