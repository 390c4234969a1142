package otp

import (
	"context"
	"time"

	"account-mirror/internal/devotp"
)

// DevCopy wraps a Store so every issued code is also readable from the dev OTP store.
type DevCopy struct {
	Store
	dev  devotp.Store
	nowF func() time.Time
}

// WithDevCopy returns store unchanged when dev is nil.
func WithDevCopy(store Store, dev devotp.Store) Store {
	if dev == nil {
		return store
	}
	return &DevCopy{Store: store, dev: dev, nowF: time.Now}
}

// Issue delegates and records the code in the dev store.
func (d *DevCopy) Issue(ctx context.Context, identifier string, purpose Purpose) (string, error) {
	code, err := d.Store.Issue(ctx, identifier, purpose)
	if err != nil {
		return "", err
	}
	d.dev.Put(ctx, NormalizeIdentifier(identifier), code, d.nowF().UTC().Add(TTL))
	return code, nil
}
