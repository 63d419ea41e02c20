package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatus(t *testing.T) {
	err := WrapError("catalog.list", status.Error(codes.Unavailable, "try later"))
	if !IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if got := err.Error(); got != "catalog.list: rpc error: code = Unavailable desc = try later" {
		t.Fatalf("unexpected message %q", got)
	}

	var fsErr *Error
	if !errors.As(WrapError("get", status.Error(codes.NotFound, "gone")), &fsErr) || !fsErr.NotFound {
		t.Fatalf("expected not found classification")
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.DeadlineExceeded, "slow")); err != context.DeadlineExceeded {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestProviderRequiresProjectAndRejectsAfterClose(t *testing.T) {
	p := NewProvider("")
	if _, err := p.Client(context.Background()); err == nil {
		t.Fatal("expected error without project id")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if _, err := p.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}
