package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	platformerrors "github.com/featherpost/featherpost/internal/platform/errors"
)

func TestAcquireLockFirstHolder(t *testing.T) {
	store := openTempStore(t)

	lease, err := store.AcquireLock(context.Background(), "poster", "instance-a", time.Minute)
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	if lease.FencingToken != 1 {
		t.Fatalf("expected first fencing token 1, got %d", lease.FencingToken)
	}
	if lease.Holder != "instance-a" {
		t.Fatalf("expected holder instance-a, got %q", lease.Holder)
	}
	if !lease.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected lease in the future, got %v", lease.ExpiresAt)
	}
}

func TestAcquireLockHeldByAnother(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if _, err := store.AcquireLock(ctx, "poster", "instance-a", time.Minute); err != nil {
		t.Fatalf("acquire lock: %v", err)
	}

	_, err := store.AcquireLock(ctx, "poster", "instance-b", time.Minute)
	if platformerrors.CodeOf(err) != platformerrors.CodeLockHeld {
		t.Fatalf("expected lock held code, got %v", err)
	}
	var typed *platformerrors.Error
	if !errors.As(err, &typed) {
		t.Fatalf("expected typed error, got %v", err)
	}
	if typed.Metadata["holder"] != "instance-a" {
		t.Fatalf("expected holder metadata, got %v", typed.Metadata)
	}
}

func TestAcquireLockSameHolderRenews(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	first, err := store.AcquireLock(ctx, "poster", "instance-a", time.Minute)
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	second, err := store.AcquireLock(ctx, "poster", "instance-a", time.Minute)
	if err != nil {
		t.Fatalf("re-acquire lock: %v", err)
	}
	if second.FencingToken != first.FencingToken {
		t.Fatalf("expected unchanged token %d, got %d", first.FencingToken, second.FencingToken)
	}
}

func TestAcquireLockReclaimsExpiredWithTokenBump(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	first, err := store.AcquireLock(ctx, "poster", "instance-a", time.Millisecond)
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	second, err := store.AcquireLock(ctx, "poster", "instance-b", time.Minute)
	if err != nil {
		t.Fatalf("reclaim expired lock: %v", err)
	}
	if second.FencingToken != first.FencingToken+1 {
		t.Fatalf("expected token bump from %d, got %d", first.FencingToken, second.FencingToken)
	}
	if second.Holder != "instance-b" {
		t.Fatalf("expected new holder instance-b, got %q", second.Holder)
	}

	// The fenced-out holder cannot renew or release.
	if _, err := store.RenewLock(ctx, first, time.Minute); platformerrors.CodeOf(err) != platformerrors.CodeLockExpired {
		t.Fatalf("expected expired code for stale renew, got %v", err)
	}
	if err := store.ReleaseLock(ctx, first); platformerrors.CodeOf(err) != platformerrors.CodeLockFencingMismatch {
		t.Fatalf("expected fencing mismatch for stale release, got %v", err)
	}
}

func TestRenewLockExtendsLease(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	lease, err := store.AcquireLock(ctx, "poster", "instance-a", time.Minute)
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}

	renewed, err := store.RenewLock(ctx, lease, 2*time.Minute)
	if err != nil {
		t.Fatalf("renew lock: %v", err)
	}
	if !renewed.ExpiresAt.After(lease.ExpiresAt) {
		t.Fatalf("expected extended lease, got %v then %v", lease.ExpiresAt, renewed.ExpiresAt)
	}
	if renewed.FencingToken != lease.FencingToken {
		t.Fatalf("expected unchanged token, got %d", renewed.FencingToken)
	}
}

func TestReleaseLockFreesName(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	lease, err := store.AcquireLock(ctx, "poster", "instance-a", time.Minute)
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	if err := store.ReleaseLock(ctx, lease); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	// After release, a fresh acquire starts a new lease.
	next, err := store.AcquireLock(ctx, "poster", "instance-b", time.Minute)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if next.Holder != "instance-b" {
		t.Fatalf("expected holder instance-b, got %q", next.Holder)
	}
}

func TestAcquireLockValidation(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if _, err := store.AcquireLock(ctx, "", "instance-a", time.Minute); err == nil {
		t.Fatal("expected error for empty name")
	}
	if _, err := store.AcquireLock(ctx, "poster", "", time.Minute); err == nil {
		t.Fatal("expected error for empty holder")
	}
	if _, err := store.AcquireLock(ctx, "poster", "instance-a", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
