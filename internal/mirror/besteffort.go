package mirror

import (
	"context"

	"go.uber.org/zap"
)

// BestEffort wraps a Client so mirror failures never reach the account workflows.
// A nil Client disables mirroring.
type BestEffort struct {
	client Client
	log    *zap.Logger
}

// NewBestEffort returns a BestEffort around client.
func NewBestEffort(client Client, log *zap.Logger) *BestEffort {
	if log == nil {
		log = zap.NewNop()
	}
	return &BestEffort{client: client, log: log}
}

// Enabled reports whether a remote client is configured.
func (b *BestEffort) Enabled() bool {
	return b != nil && b.client != nil
}

// Create mirrors a and returns the remote id, or "" when mirroring is disabled or failed.
// Failures are logged; the reconciler retries accounts left without a mirror id.
func (b *BestEffort) Create(ctx context.Context, a Account) string {
	if !b.Enabled() {
		return ""
	}
	id, err := b.client.CreateMirrorAccount(ctx, a)
	if err != nil {
		b.log.Warn("mirror: create failed; will be reconciled",
			zap.String("email", a.Email), zap.String("kind", string(a.Kind)), zap.Error(err))
		return ""
	}
	return id
}

// Ensure returns the id of an existing remote record for a.Email, creating one if none exists.
// Used by the reconciler so a retry after a lost response does not duplicate the record.
func (b *BestEffort) Ensure(ctx context.Context, a Account) (string, error) {
	if !b.Enabled() {
		return "", nil
	}
	rec, err := b.client.FindByEmail(ctx, a.Email)
	if err != nil {
		return "", err
	}
	if rec != nil && rec.ID != "" {
		return rec.ID, nil
	}
	return b.client.CreateMirrorAccount(ctx, a)
}
