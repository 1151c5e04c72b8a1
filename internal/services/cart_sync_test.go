package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/velvette/api/internal/domain"
)

type flakyCartRepo struct {
	failures int
	calls    []string
	err      error
}

func (r *flakyCartRepo) GetCart(context.Context, string) (domain.Cart, error) {
	return domain.Cart{}, repoStatusError{notFound: true}
}

func (r *flakyCartRepo) UpsertItem(_ context.Context, ownerID string, item domain.CartItem) error {
	return r.record("upsert:" + ownerID + ":" + item.Variant.ID)
}

func (r *flakyCartRepo) DeleteItem(_ context.Context, ownerID, variantID string) error {
	return r.record("delete:" + ownerID + ":" + variantID)
}

func (r *flakyCartRepo) ReplaceItems(_ context.Context, ownerID string, _ []domain.CartItem) error {
	return r.record("replace:" + ownerID)
}

func (r *flakyCartRepo) ClearCart(_ context.Context, ownerID string) error {
	return r.record("clear:" + ownerID)
}

func (r *flakyCartRepo) record(call string) error {
	r.calls = append(r.calls, call)
	if r.failures > 0 {
		r.failures--
		if r.err != nil {
			return r.err
		}
		return errors.New("remote unavailable")
	}
	return nil
}

func newTestOutbox(t *testing.T, repo *flakyCartRepo, sleeps *[]time.Duration) *CartSyncOutbox {
	t.Helper()
	outbox, err := NewCartSyncOutbox(CartSyncOutboxDeps{
		Remote:      repo,
		MaxAttempts: 4,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  400 * time.Millisecond,
		Clock:       func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		Sleep: func(_ context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewCartSyncOutbox returned error: %v", err)
	}
	return outbox
}

func TestNewCartSyncOutboxRequiresRemote(t *testing.T) {
	if _, err := NewCartSyncOutbox(CartSyncOutboxDeps{}); err == nil {
		t.Fatal("expected error when remote repository is missing")
	}
}

func TestOutboxDeliversInEnqueueOrder(t *testing.T) {
	repo := &flakyCartRepo{}
	outbox := newTestOutbox(t, repo, nil)

	outbox.EnqueueUpsert("user-1", CartItem{Variant: domain.Variant{ID: "v1"}, Quantity: 1})
	outbox.EnqueueDelete("user-1", "v2")
	outbox.EnqueueClear("user-1")

	if status := outbox.Status(); status.State != domain.SyncStatePending || status.Pending != 3 {
		t.Fatalf("expected pending status with 3 ops, got %+v", status)
	}

	outbox.drain(context.Background())

	want := []string{"upsert:user-1:v1", "delete:user-1:v2", "clear:user-1"}
	if len(repo.calls) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), repo.calls)
	}
	for i, call := range repo.calls {
		if call != want[i] {
			t.Fatalf("call %d: got %q, want %q", i, call, want[i])
		}
	}

	status := outbox.Status()
	if status.State != domain.SyncStateIdle || status.Pending != 0 {
		t.Fatalf("expected idle status after drain, got %+v", status)
	}
}

func TestOutboxRetriesWithExponentialBackoff(t *testing.T) {
	repo := &flakyCartRepo{failures: 3}
	var sleeps []time.Duration
	outbox := newTestOutbox(t, repo, &sleeps)

	outbox.EnqueueUpsert("user-1", CartItem{Variant: domain.Variant{ID: "v1"}, Quantity: 1})
	outbox.drain(context.Background())

	if len(repo.calls) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(repo.calls))
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(sleeps) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), sleeps)
	}
	for i, d := range sleeps {
		if d != want[i] {
			t.Fatalf("sleep %d: got %s, want %s", i, d, want[i])
		}
	}

	status := outbox.Status()
	if status.State != domain.SyncStateIdle {
		t.Fatalf("expected idle after eventual success, got %+v", status)
	}
	if status.LastError != "" {
		t.Fatalf("expected last error cleared after success, got %q", status.LastError)
	}
}

func TestOutboxBackoffIsCapped(t *testing.T) {
	repo := &flakyCartRepo{}
	outbox := newTestOutbox(t, repo, nil)

	if got := outbox.backoffFor(10); got != 400*time.Millisecond {
		t.Fatalf("expected capped backoff 400ms, got %s", got)
	}
}

func TestOutboxDropsOpAfterRetryBudget(t *testing.T) {
	repo := &flakyCartRepo{failures: 10, err: errors.New("permanent outage")}
	outbox := newTestOutbox(t, repo, nil)

	outbox.EnqueueUpsert("user-1", CartItem{Variant: domain.Variant{ID: "v1"}, Quantity: 1})
	outbox.EnqueueDelete("user-1", "v1")
	outbox.drain(context.Background())

	// The first op burns its whole retry budget and is dropped; the queue
	// keeps moving and the second op is attempted afterwards.
	status := outbox.Status()
	if status.Pending != 0 {
		t.Fatalf("queue should keep moving after a dropped op, got %+v", status)
	}
	if status.LastAttempt == nil {
		t.Fatal("expected last attempt recorded")
	}
}

func TestOutboxReportsRetryingAndFailedStates(t *testing.T) {
	repo := &flakyCartRepo{failures: 99, err: errors.New("remote down")}
	outbox, err := NewCartSyncOutbox(CartSyncOutboxDeps{
		Remote:      repo,
		MaxAttempts: 2,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  time.Millisecond,
		Sleep: func(context.Context, time.Duration) error {
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewCartSyncOutbox returned error: %v", err)
	}

	outbox.EnqueueUpsert("user-1", CartItem{Variant: domain.Variant{ID: "v1"}, Quantity: 1})
	outbox.drain(context.Background())

	status := outbox.Status()
	if status.State != domain.SyncStateFailed {
		t.Fatalf("expected failed state after exhausted budget, got %+v", status)
	}
	if status.LastError != "remote down" {
		t.Fatalf("expected last error recorded, got %q", status.LastError)
	}
}

func TestOutboxStopsOnContextCancellation(t *testing.T) {
	repo := &flakyCartRepo{failures: 99}
	outbox, err := NewCartSyncOutbox(CartSyncOutboxDeps{
		Remote:      repo,
		MaxAttempts: 5,
		BaseBackoff: time.Millisecond,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			return context.Canceled
		},
	})
	if err != nil {
		t.Fatalf("NewCartSyncOutbox returned error: %v", err)
	}

	outbox.EnqueueUpsert("user-1", CartItem{Variant: domain.Variant{ID: "v1"}, Quantity: 1})
	outbox.drain(context.Background())

	if status := outbox.Status(); status.Pending != 1 {
		t.Fatalf("cancelled delivery should leave the op queued, got %+v", status)
	}
}

func TestOutboxReplaceClearsFailedState(t *testing.T) {
	repo := &flakyCartRepo{failures: 4, err: errors.New("remote down")}
	outbox := newTestOutbox(t, repo, nil)

	outbox.EnqueueUpsert("user-1", CartItem{Variant: domain.Variant{ID: "v1"}, Quantity: 1})
	outbox.drain(context.Background())

	if status := outbox.Status(); status.State != domain.SyncStateFailed {
		t.Fatalf("expected failed state after exhausted budget, got %+v", status)
	}

	outbox.EnqueueReplace("user-1", []CartItem{
		{Variant: domain.Variant{ID: "v1"}, Quantity: 1},
		{Variant: domain.Variant{ID: "v2"}, Quantity: 3},
	})
	outbox.drain(context.Background())

	if got := repo.calls[len(repo.calls)-1]; got != "replace:user-1" {
		t.Fatalf("expected snapshot delivered to remote, got %q", got)
	}
	if status := outbox.Status(); status.State != domain.SyncStateIdle || status.Pending != 0 {
		t.Fatalf("expected idle status after snapshot delivery, got %+v", status)
	}
}
