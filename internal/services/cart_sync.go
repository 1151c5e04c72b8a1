package services

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/velvette/api/internal/domain"
	"github.com/velvette/api/internal/repositories"
)

var errOutboxRemoteRequired = errors.New("cart sync: remote repository is required")

const (
	syncEventDelivered = "cart.sync.delivered"
	syncEventRetrying  = "cart.sync.retrying"
	syncEventDropped   = "cart.sync.dropped"
)

type syncOpKind string

const (
	syncOpUpsert  syncOpKind = "upsert"
	syncOpDelete  syncOpKind = "delete"
	syncOpReplace syncOpKind = "replace"
	syncOpClear   syncOpKind = "clear"
)

type syncOp struct {
	kind       syncOpKind
	ownerID    string
	variantID  string
	item       domain.CartItem
	items      []domain.CartItem
	enqueuedAt time.Time
}

// CartSyncOutboxDeps wires the remote repository and retry tuning for the outbox.
type CartSyncOutboxDeps struct {
	Remote        repositories.CartRepository
	MaxAttempts   int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	DrainInterval time.Duration
	Clock         func() time.Time
	Logger        func(context.Context, string, map[string]any)
	Sleep         func(context.Context, time.Duration) error
}

// CartSyncOutbox queues cart mutations for delivery to the remote table.
// Operations replay in enqueue order per process, so later writes for the
// same cart never land before earlier ones.
type CartSyncOutbox struct {
	remote        repositories.CartRepository
	maxAttempts   int
	baseBackoff   time.Duration
	maxBackoff    time.Duration
	drainInterval time.Duration
	now           func() time.Time
	logger        func(context.Context, string, map[string]any)
	sleep         func(context.Context, time.Duration) error

	mu          sync.Mutex
	queue       []syncOp
	wake        chan struct{}
	state       domain.SyncState
	lastError   string
	lastAttempt *time.Time
}

// NewCartSyncOutbox constructs the outbox enforcing dependency validation.
func NewCartSyncOutbox(deps CartSyncOutboxDeps) (*CartSyncOutbox, error) {
	if deps.Remote == nil {
		return nil, errOutboxRemoteRequired
	}

	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	baseBackoff := deps.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = 500 * time.Millisecond
	}
	maxBackoff := deps.MaxBackoff
	if maxBackoff < baseBackoff {
		maxBackoff = 2 * time.Minute
	}
	drainInterval := deps.DrainInterval
	if drainInterval <= 0 {
		drainInterval = time.Second
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &CartSyncOutbox{
		remote:        deps.Remote,
		maxAttempts:   maxAttempts,
		baseBackoff:   baseBackoff,
		maxBackoff:    maxBackoff,
		drainInterval: drainInterval,
		now:           func() time.Time { return clock().UTC() },
		logger:        logger,
		sleep:         sleep,
		wake:          make(chan struct{}, 1),
		state:         domain.SyncStateIdle,
	}, nil
}

// EnqueueUpsert queues a remote upsert keyed by (cart, variant).
func (o *CartSyncOutbox) EnqueueUpsert(ownerID string, item CartItem) {
	o.push(syncOp{kind: syncOpUpsert, ownerID: ownerID, variantID: item.Variant.ID, item: item})
}

// EnqueueDelete queues a remote delete keyed by (cart, variant).
func (o *CartSyncOutbox) EnqueueDelete(ownerID, variantID string) {
	o.push(syncOp{kind: syncOpDelete, ownerID: ownerID, variantID: variantID})
}

// EnqueueReplace queues a snapshot overwrite of the whole remote item set.
// Used to reconcile the remote table after incremental deliveries were
// dropped: replaying the full cart makes the mirror consistent again.
func (o *CartSyncOutbox) EnqueueReplace(ownerID string, items []CartItem) {
	snapshot := make([]domain.CartItem, len(items))
	copy(snapshot, items)
	o.push(syncOp{kind: syncOpReplace, ownerID: ownerID, items: snapshot})
}

// EnqueueClear queues a remote cart reset.
func (o *CartSyncOutbox) EnqueueClear(ownerID string) {
	o.push(syncOp{kind: syncOpClear, ownerID: ownerID})
}

func (o *CartSyncOutbox) push(op syncOp) {
	op.enqueuedAt = o.now()

	o.mu.Lock()
	o.queue = append(o.queue, op)
	if o.state == domain.SyncStateIdle {
		o.state = domain.SyncStatePending
	}
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Status reports the observable sync state.
func (o *CartSyncOutbox) Status() SyncStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	status := SyncStatus{
		State:     o.state,
		Pending:   len(o.queue),
		LastError: o.lastError,
	}
	if o.lastAttempt != nil {
		ts := *o.lastAttempt
		status.LastAttempt = &ts
	}
	return status
}

// Run drains the queue until the context is cancelled. Intended to be
// started once as a background goroutine.
func (o *CartSyncOutbox) Run(ctx context.Context) {
	ticker := time.NewTicker(o.drainInterval)
	defer ticker.Stop()

	for {
		o.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-o.wake:
		case <-ticker.C:
		}
	}
}

// drain delivers every queued operation, blocking through retry backoff.
func (o *CartSyncOutbox) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		o.mu.Lock()
		if len(o.queue) == 0 {
			if o.state != domain.SyncStateFailed {
				o.state = domain.SyncStateIdle
			}
			o.mu.Unlock()
			return
		}
		op := o.queue[0]
		o.mu.Unlock()

		if !o.deliver(ctx, op) {
			return
		}

		o.mu.Lock()
		if len(o.queue) > 0 {
			o.queue = o.queue[1:]
		}
		o.mu.Unlock()
	}
}

// deliver attempts one operation with exponential backoff. It returns false
// only when the context was cancelled mid-delivery; an exhausted retry
// budget drops the operation and returns true so the queue keeps moving.
func (o *CartSyncOutbox) deliver(ctx context.Context, op syncOp) bool {
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		err := o.apply(ctx, op)
		now := o.now()

		o.mu.Lock()
		o.lastAttempt = &now
		o.mu.Unlock()

		if err == nil {
			o.mu.Lock()
			o.lastError = ""
			if o.state == domain.SyncStateRetrying {
				o.state = domain.SyncStatePending
			}
			// A delivered snapshot overwrote whatever the dropped ops
			// left behind, so the failed state is cleared.
			if o.state == domain.SyncStateFailed && op.kind == syncOpReplace {
				o.state = domain.SyncStatePending
			}
			o.mu.Unlock()
			o.logger(ctx, syncEventDelivered, map[string]any{
				"kind":    string(op.kind),
				"ownerID": op.ownerID,
				"attempt": attempt,
			})
			return true
		}

		o.mu.Lock()
		o.lastError = err.Error()
		o.state = domain.SyncStateRetrying
		o.mu.Unlock()

		if attempt == o.maxAttempts {
			break
		}

		backoff := o.backoffFor(attempt)
		o.logger(ctx, syncEventRetrying, map[string]any{
			"kind":    string(op.kind),
			"ownerID": op.ownerID,
			"attempt": attempt,
			"backoff": backoff.String(),
			"error":   err.Error(),
		})
		if sleepErr := o.sleep(ctx, backoff); sleepErr != nil {
			return false
		}
	}

	o.mu.Lock()
	o.state = domain.SyncStateFailed
	o.mu.Unlock()
	o.logger(ctx, syncEventDropped, map[string]any{
		"kind":     string(op.kind),
		"ownerID":  op.ownerID,
		"attempts": o.maxAttempts,
	})
	return true
}

func (o *CartSyncOutbox) apply(ctx context.Context, op syncOp) error {
	switch op.kind {
	case syncOpUpsert:
		return o.remote.UpsertItem(ctx, op.ownerID, op.item)
	case syncOpDelete:
		return o.remote.DeleteItem(ctx, op.ownerID, op.variantID)
	case syncOpReplace:
		return o.remote.ReplaceItems(ctx, op.ownerID, op.items)
	case syncOpClear:
		return o.remote.ClearCart(ctx, op.ownerID)
	default:
		return nil
	}
}

func (o *CartSyncOutbox) backoffFor(attempt int) time.Duration {
	backoff := o.baseBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= o.maxBackoff {
			return o.maxBackoff
		}
	}
	if backoff > o.maxBackoff {
		return o.maxBackoff
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
