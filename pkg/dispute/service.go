package dispute

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/certen/dgc-protocol/pkg/database"
)

// Service implements the dispute orchestrator's open/assign/resolve/
// get/list operations.
type Service struct {
	store *Store
}

// NewService constructs a Service.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Health reports the service's storage health.
func (s *Service) Health(ctx context.Context) (*database.HealthStatus, error) {
	return s.store.Health(ctx)
}

// Open creates a new OPEN dispute with a fresh disputeId.
func (s *Service) Open(ctx context.Context, listingID, certID, openedBy, reason, evidence string) (DisputeRecord, error) {
	d := DisputeRecord{
		DisputeID: "DISPUTE-" + uuid.New().String(),
		ListingID: listingID,
		CertID:    certID,
		Status:    StatusOpen,
		OpenedBy:  openedBy,
		Reason:    reason,
		Evidence:  evidence,
		OpenedAt:  time.Now().UTC(),
	}
	if err := s.store.Put(ctx, d); err != nil {
		return DisputeRecord{}, err
	}
	return d, nil
}

// Assign transitions a non-RESOLVED dispute to ASSIGNED.
func (s *Service) Assign(ctx context.Context, disputeID, assignee string) (DisputeRecord, error) {
	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return DisputeRecord{}, err
	}
	if d.Status == StatusResolved {
		return DisputeRecord{}, ErrAlreadyResolved
	}
	now := time.Now().UTC()
	d.Status = StatusAssigned
	d.AssignedTo = assignee
	d.AssignedAt = &now
	if err := s.store.Put(ctx, d); err != nil {
		return DisputeRecord{}, err
	}
	return d, nil
}

// Resolve transitions a non-RESOLVED dispute to RESOLVED.
func (s *Service) Resolve(ctx context.Context, disputeID, resolvedBy, resolution, resolutionNotes string) (DisputeRecord, error) {
	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return DisputeRecord{}, err
	}
	if d.Status == StatusResolved {
		return DisputeRecord{}, ErrAlreadyResolved
	}
	now := time.Now().UTC()
	d.Status = StatusResolved
	d.ResolvedBy = resolvedBy
	d.ResolvedAt = &now
	d.Resolution = resolution
	d.ResolutionNotes = resolutionNotes
	if err := s.store.Put(ctx, d); err != nil {
		return DisputeRecord{}, err
	}
	return d, nil
}

// Get returns the dispute record for disputeID.
func (s *Service) Get(ctx context.Context, disputeID string) (DisputeRecord, error) {
	return s.store.Get(ctx, disputeID)
}

// List returns disputes, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string) ([]DisputeRecord, error) {
	return s.store.List(ctx, status)
}
