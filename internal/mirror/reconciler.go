package mirror

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"account-mirror/internal/account/domain"
	"account-mirror/internal/telemetry"
	telemetrydomain "account-mirror/internal/telemetry/domain"
)

// DefaultBatchSize is how many unmirrored accounts one reconcile pass handles.
const DefaultBatchSize = 100

// AccountStore is the account persistence the reconciler needs.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	ListUnmirrored(ctx context.Context, limit int) ([]*domain.Account, error)
	SetMirrorID(ctx context.Context, id, mirrorID string, at time.Time) error
	MarkMirrorAttempt(ctx context.Context, id string, at time.Time) error
}

// Reconciler retries mirroring for verified accounts that have no mirror id yet.
type Reconciler struct {
	accounts AccountStore
	mirror   *BestEffort
	events   telemetry.EventEmitter
	log      *zap.Logger
	batch    int
	now      func() time.Time
}

// NewReconciler returns a reconciler. batch <= 0 selects DefaultBatchSize.
func NewReconciler(accounts AccountStore, mirror *BestEffort, events telemetry.EventEmitter, batch int, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Reconciler{
		accounts: accounts,
		mirror:   mirror,
		events:   events,
		log:      log,
		batch:    batch,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Result summarizes one pass.
type Result struct {
	Mirrored int
	Skipped  int
	Failed   int
}

// RunOnce mirrors one batch. PRIMARY accounts come first so their members can reference
// the parent id assigned earlier in the same pass. A MEMBER whose parent is still unmirrored
// is skipped until a later pass. Failed and skipped accounts are stamped so the next batch
// starts with accounts that have not been tried yet.
func (r *Reconciler) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	if !r.mirror.Enabled() {
		return res, nil
	}
	pending, err := r.accounts.ListUnmirrored(ctx, r.batch)
	if err != nil {
		return res, fmt.Errorf("reconcile: list unmirrored: %w", err)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Kind == domain.KindPrimary && pending[j].Kind != domain.KindPrimary
	})
	assigned := make(map[string]string, len(pending))
	for _, acc := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		parentRef := ""
		if acc.Kind == domain.KindMember {
			parentRef, err = r.parentRef(ctx, acc, assigned)
			if err != nil {
				res.Failed++
				r.log.Warn("reconcile: parent lookup failed", zap.String("account_id", acc.ID), zap.Error(err))
				r.markAttempt(ctx, acc.ID)
				continue
			}
			if parentRef == "" {
				res.Skipped++
				r.markAttempt(ctx, acc.ID)
				continue
			}
		}

		id, err := r.mirror.Ensure(ctx, FromAccount(acc, parentRef))
		if err != nil || id == "" {
			res.Failed++
			r.log.Warn("reconcile: mirror failed", zap.String("account_id", acc.ID), zap.Error(err))
			r.markAttempt(ctx, acc.ID)
			continue
		}
		if err := r.accounts.SetMirrorID(ctx, acc.ID, id, r.now()); err != nil {
			res.Failed++
			r.log.Error("reconcile: store mirror id", zap.String("account_id", acc.ID), zap.Error(err))
			r.markAttempt(ctx, acc.ID)
			continue
		}
		assigned[acc.ID] = id
		res.Mirrored++
		telemetry.EmitAsync(r.events, r.log, &telemetrydomain.Event{
			Type:      telemetrydomain.EventAccountMirrored,
			AccountID: acc.ID,
			Kind:      string(acc.Kind),
			Source:    "reconciler",
		})
	}
	return res, nil
}

func (r *Reconciler) markAttempt(ctx context.Context, id string) {
	if err := r.accounts.MarkMirrorAttempt(ctx, id, r.now()); err != nil {
		r.log.Warn("reconcile: mark attempt", zap.String("account_id", id), zap.Error(err))
	}
}

func (r *Reconciler) parentRef(ctx context.Context, acc *domain.Account, assigned map[string]string) (string, error) {
	if id, ok := assigned[acc.ParentID]; ok {
		return id, nil
	}
	parent, err := r.accounts.GetByID(ctx, acc.ParentID)
	if err != nil {
		return "", err
	}
	if parent == nil {
		return "", nil
	}
	return parent.MirrorID, nil
}
