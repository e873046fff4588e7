package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := NewStore(path, nil, nil, "", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAnchorAndGetProof(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	anchor, err := store.Anchor(ctx, "DGC-1", "deadbeef", time.Now().UTC())
	if err != nil {
		t.Fatalf("Anchor: %v", err)
	}
	if anchor.ProofHash == "" {
		t.Error("expected non-empty proof hash")
	}

	got, err := store.GetProof(ctx, "DGC-1")
	if err != nil {
		t.Fatalf("GetProof: %v", err)
	}
	if got.ProofHash != anchor.ProofHash {
		t.Errorf("expected stable proof hash, got %q want %q", got.ProofHash, anchor.ProofHash)
	}

	if _, err := store.GetProof(ctx, "unknown"); err != ErrProofNotFound {
		t.Errorf("expected ErrProofNotFound, got %v", err)
	}
}

func TestAnchorOverwritesLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Anchor(ctx, "DGC-1", "hash-a", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Anchor(ctx, "DGC-1", "hash-b", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.GetProof(ctx, "DGC-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.PayloadHash != second.PayloadHash || got.PayloadHash == first.PayloadHash {
		t.Errorf("expected latest anchor to win, got %q", got.PayloadHash)
	}
}

func TestRecordAndTimeline(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event := Event{Kind: EventIssued, CertID: "DGC-1", OccurredAt: time.Now().UTC(), Owner: "alice", AmountGram: "1.0000"}
	result, err := store.Record(ctx, event)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if result.EventHash == "" {
		t.Error("expected non-empty event hash")
	}

	timeline, err := store.Timeline(ctx, "DGC-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(timeline) != 1 || timeline[0].Kind != EventIssued {
		t.Errorf("expected single ISSUED event, got %+v", timeline)
	}
}

func TestRecordRejectsInvalidEvent(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Record(context.Background(), Event{Kind: EventIssued, CertID: "DGC-1"})
	if err != ErrInvalidEvent {
		t.Errorf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestSplitEventAppearsInBothTimelines(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event := Event{
		Kind:            EventSplit,
		CertID:          "DGC-parent",
		OccurredAt:      time.Now().UTC(),
		ParentCertID:    "DGC-parent",
		ChildCertID:     "DGC-child",
		From:            "alice",
		To:              "bob",
		AmountChildGram: "1.0000",
	}
	if _, err := store.Record(ctx, event); err != nil {
		t.Fatalf("Record: %v", err)
	}

	parentTimeline, err := store.Timeline(ctx, "DGC-parent")
	if err != nil {
		t.Fatal(err)
	}
	childTimeline, err := store.Timeline(ctx, "DGC-child")
	if err != nil {
		t.Fatal(err)
	}
	if len(parentTimeline) != 1 || len(childTimeline) != 1 {
		t.Errorf("expected SPLIT event in both timelines, got parent=%d child=%d", len(parentTimeline), len(childTimeline))
	}
}

func TestTimelineEmptyForUnknownCert(t *testing.T) {
	store := newTestStore(t)
	timeline, err := store.Timeline(context.Background(), "unknown")
	if err != nil {
		t.Fatal(err)
	}
	if len(timeline) != 0 {
		t.Errorf("expected empty timeline, got %d events", len(timeline))
	}
}

func TestChainStatusUnconfigured(t *testing.T) {
	store := newTestStore(t)
	status := store.ChainStatus(context.Background())
	if status.Configured {
		t.Error("expected unconfigured chain status")
	}
}
