package dispute

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "disputes.db"), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store)
}

func TestOpenAssignResolve(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	d, err := svc.Open(ctx, "LISTING-1", "DGC-1", "buyer1", "item not as described", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Status != StatusOpen {
		t.Errorf("expected OPEN, got %q", d.Status)
	}

	d, err = svc.Assign(ctx, d.DisputeID, "agent1")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if d.Status != StatusAssigned || d.AssignedTo != "agent1" {
		t.Errorf("unexpected state after assign: %+v", d)
	}

	d, err = svc.Resolve(ctx, d.DisputeID, "lead1", ResolutionRefundBuyer, "buyer evidence confirmed")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Status != StatusResolved || d.Resolution != ResolutionRefundBuyer {
		t.Errorf("unexpected state after resolve: %+v", d)
	}
}

func TestResolveTwiceRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	d, err := svc.Open(ctx, "LISTING-1", "DGC-1", "buyer1", "reason", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := svc.Resolve(ctx, d.DisputeID, "lead1", ResolutionManualReview, ""); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := svc.Resolve(ctx, d.DisputeID, "lead1", ResolutionManualReview, ""); err != ErrAlreadyResolved {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
	if _, err := svc.Assign(ctx, d.DisputeID, "agent1"); err != ErrAlreadyResolved {
		t.Errorf("expected ErrAlreadyResolved on assign after resolve, got %v", err)
	}
}

func TestListByStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	d1, _ := svc.Open(ctx, "LISTING-1", "DGC-1", "buyer1", "reason", "")
	d2, _ := svc.Open(ctx, "LISTING-2", "DGC-2", "buyer2", "reason", "")
	if _, err := svc.Resolve(ctx, d2.DisputeID, "lead1", ResolutionReleaseSeller, ""); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	open, err := svc.List(ctx, StatusOpen)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(open) != 1 || open[0].DisputeID != d1.DisputeID {
		t.Errorf("expected only d1 OPEN, got %+v", open)
	}

	resolved, err := svc.List(ctx, StatusResolved)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(resolved) != 1 || resolved[0].DisputeID != d2.DisputeID {
		t.Errorf("expected only d2 RESOLVED, got %+v", resolved)
	}
}

func TestGetUnknownDispute(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Get(context.Background(), "unknown"); err != ErrDisputeNotFound {
		t.Errorf("expected ErrDisputeNotFound, got %v", err)
	}
}
