package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"
)

type ctxKey struct{}

func waitDone(t *testing.T, ctx context.Context, what string) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("joined context did not cancel after %s", what)
	}
}

func TestSetBaseContext_NilResetsToBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	SetBaseContext(ctx)
	// nolint:staticcheck // SA1012: nil is the documented reset
	SetBaseContext(nil)
	cancel()
	if serverBaseCtx.Err() != nil {
		t.Fatal("base context still points at the canceled context")
	}
}

func TestJoinContexts_BaseCancelCarriesCause(t *testing.T) {
	base, bc := context.WithCancel(context.Background())
	req := context.WithValue(context.Background(), ctxKey{}, "req-1")
	j, cancelJ := joinContexts(base, req)
	defer cancelJ()
	if j.Value(ctxKey{}) != "req-1" {
		t.Fatal("request values not preserved")
	}
	bc()
	waitDone(t, j, "base cancel")
	if !errors.Is(context.Cause(j), errShuttingDown) {
		t.Fatalf("cause = %v", context.Cause(j))
	}
}

func TestJoinContexts_RequestCancel(t *testing.T) {
	req, rc := context.WithCancel(context.Background())
	j, cancelJ := joinContexts(context.Background(), req)
	defer cancelJ()
	rc()
	waitDone(t, j, "request cancel")
	if errors.Is(context.Cause(j), errShuttingDown) {
		t.Fatal("request cancel reported as shutdown")
	}
}

func TestJoinContexts_CancelDetachesFromBase(t *testing.T) {
	base, bc := context.WithCancel(context.Background())
	defer bc()
	j, cancelJ := joinContexts(base, context.Background())
	cancelJ()
	waitDone(t, j, "cancel func")
	if !errors.Is(context.Cause(j), context.Canceled) {
		t.Fatalf("cause = %v", context.Cause(j))
	}
}
