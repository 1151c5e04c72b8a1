package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{code: codes.NotFound, notFound: true},
		{code: codes.AlreadyExists, conflict: true},
		{code: codes.Aborted, conflict: true},
		{code: codes.Unavailable, unavailable: true},
		{code: codes.ResourceExhausted, unavailable: true},
		{code: codes.PermissionDenied},
	}
	for _, tc := range cases {
		err := WrapError("carts.get", status.Error(tc.code, "boom"))
		var classified *Error
		if !errors.As(err, &classified) {
			t.Fatalf("%v: expected *Error, got %T", tc.code, err)
		}
		if classified.IsNotFound() != tc.notFound ||
			classified.IsConflict() != tc.conflict ||
			classified.IsUnavailable() != tc.unavailable {
			t.Fatalf("%v: unexpected classification %+v", tc.code, classified)
		}
	}
}

func TestWrapErrorPassesThroughCancellation(t *testing.T) {
	if err := WrapError("carts.get", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("carts.get", status.Error(codes.DeadlineExceeded, "late")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestWrapErrorKeepsExistingClassification(t *testing.T) {
	inner := WrapError("", status.Error(codes.NotFound, "missing"))
	rewrapped := WrapError("orders.get", inner)
	var classified *Error
	if !errors.As(rewrapped, &classified) {
		t.Fatalf("expected *Error, got %T", rewrapped)
	}
	if !classified.IsNotFound() {
		t.Fatal("expected not-found to survive rewrapping")
	}
	if got := classified.Error(); got != "orders.get: rpc error: code = NotFound desc = missing" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestWrapErrorNil(t *testing.T) {
	if err := WrapError("carts.get", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
