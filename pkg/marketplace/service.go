package marketplace

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/certen/dgc-protocol/pkg/crypto"
	"github.com/certen/dgc-protocol/pkg/database"
	"github.com/certen/dgc-protocol/pkg/httpx"
)

// Service implements the marketplace escrow engine's operations.
type Service struct {
	store *Store

	certClient *httpx.Client
	certURL    string

	riskClient *httpx.Client
	riskURL    string

	reconClient *httpx.Client
	reconURL    string

	disputeClient *httpx.Client
	disputeURL    string
}

// NewService constructs a Service. Any collaborator client/URL pair may
// be left nil/empty, in which case the corresponding call is treated as
// unconfigured per the protocol's message-exchange design note.
func NewService(store *Store, certClient *httpx.Client, certURL string, riskClient *httpx.Client, riskURL string, reconClient *httpx.Client, reconURL string, disputeClient *httpx.Client, disputeURL string) *Service {
	return &Service{
		store: store,

		certClient: certClient, certURL: certURL,
		riskClient: riskClient, riskURL: riskURL,
		reconClient: reconClient, reconURL: reconURL,
		disputeClient: disputeClient, disputeURL: disputeURL,
	}
}

// Health reports the service's storage health.
func (s *Service) Health(ctx context.Context) (*database.HealthStatus, error) {
	return s.store.Health(ctx)
}

// certificateView decodes the subset of the certificate authority's
// responses this service consults.
type certificateView struct {
	Payload struct {
		CertID string `json:"certId"`
		Owner  string `json:"owner"`
		Status string `json:"status"`
	} `json:"payload"`
}

func (s *Service) getCertificate(ctx context.Context, certID string) (certificateView, *DomainError) {
	if s.certClient == nil || s.certURL == "" {
		return certificateView{}, &DomainError{Status: 503, Code: "certificate_service_unavailable", Message: "certificate authority is not configured"}
	}
	result := s.certClient.GetJSON(ctx, httpx.PrimaryDeadline, s.certURL+"/certificates/"+certID, nil)
	if result.Unreachable {
		return certificateView{}, &DomainError{Status: 503, Code: "certificate_service_unavailable", Message: "certificate authority unreachable"}
	}
	if result.StatusCode == 404 {
		return certificateView{}, &DomainError{Status: 404, Code: "certificate_not_found", Message: "certificate not found"}
	}
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		return certificateView{}, certificateServiceError(result.StatusCode, "certificate authority returned an error")
	}
	var cert certificateView
	if err := result.DecodeInto(&cert); err != nil {
		return certificateView{}, &DomainError{Status: 502, Code: "invalid_response", Message: "could not decode certificate authority response"}
	}
	return cert, nil
}

func (s *Service) setCertificateStatus(ctx context.Context, certID, status string) *DomainError {
	if s.certClient == nil || s.certURL == "" {
		return &DomainError{Status: 503, Code: "certificate_service_unavailable", Message: "certificate authority is not configured"}
	}
	body := map[string]string{"certId": certID, "status": status}
	result := s.certClient.PostJSON(ctx, httpx.PrimaryDeadline, s.certURL+"/certificates/status", body, nil)
	if result.Unreachable {
		return &DomainError{Status: 503, Code: "certificate_service_unavailable", Message: "certificate authority unreachable"}
	}
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		return certificateServiceError(result.StatusCode, "certificate authority rejected the status transition")
	}
	return nil
}

func (s *Service) transferCertificate(ctx context.Context, certID, toOwner, price string) (map[string]interface{}, *DomainError) {
	if s.certClient == nil || s.certURL == "" {
		return nil, &DomainError{Status: 503, Code: "certificate_service_unavailable", Message: "certificate authority is not configured"}
	}
	body := map[string]string{"certId": certID, "toOwner": toOwner, "price": price}
	result := s.certClient.PostJSON(ctx, httpx.PrimaryDeadline, s.certURL+"/certificates/transfer", body, nil)
	if result.Unreachable {
		return nil, &DomainError{Status: 503, Code: "certificate_service_unavailable", Message: "certificate authority unreachable"}
	}
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		return nil, certificateServiceError(result.StatusCode, "certificate authority rejected the transfer")
	}
	var transferResult map[string]interface{}
	if err := result.DecodeInto(&transferResult); err != nil {
		return nil, &DomainError{Status: 502, Code: "invalid_response", Message: "could not decode transfer response"}
	}
	return transferResult, nil
}

// freezeGate consults the reconciliation controller's freeze state.
// Applied to create/lock/settle, not cancel.
func (s *Service) freezeGate(ctx context.Context) *DomainError {
	if s.reconClient == nil || s.reconURL == "" {
		return nil
	}
	result := s.reconClient.GetJSON(ctx, httpx.PrimaryDeadline, s.reconURL+"/reconcile/latest", nil)
	if result.Unreachable {
		return &DomainError{Status: 503, Code: "collaborator_unreachable", Message: "reconciliation controller unreachable"}
	}
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		return &DomainError{Status: 502, Code: "collaborator_error", Message: "reconciliation controller returned an error"}
	}
	var latest struct {
		FreezeState map[string]interface{} `json:"freezeState"`
	}
	if err := result.DecodeInto(&latest); err != nil || latest.FreezeState == nil {
		return &DomainError{Status: 502, Code: "invalid_response", Message: "could not decode freeze state"}
	}
	active, ok := latest.FreezeState["active"].(bool)
	if !ok {
		return &DomainError{Status: 502, Code: "invalid_response", Message: "freeze state missing active field"}
	}
	if active {
		return &DomainError{Status: 423, Code: "marketplace_frozen", Message: "marketplace is frozen", FreezeState: latest.FreezeState}
	}
	return nil
}

func (s *Service) fanOutAudit(event ListingAuditEvent) {
	if s.riskClient == nil || s.riskURL == "" {
		return
	}
	s.riskClient.PostJSON(context.Background(), httpx.FanoutDeadline, s.riskURL+"/ingest/listing-audit-event", event, nil)
}

// CreateListing persists a new OPEN listing after confirming via the
// certificate authority that the seller matches the current owner and
// the certificate is ACTIVE.
func (s *Service) CreateListing(ctx context.Context, certID, seller, askPrice string) (MarketplaceListing, *DomainError) {
	if derr := s.freezeGate(ctx); derr != nil {
		return MarketplaceListing{}, derr
	}
	cert, derr := s.getCertificate(ctx, certID)
	if derr != nil {
		return MarketplaceListing{}, derr
	}
	if cert.Payload.Owner != seller {
		return MarketplaceListing{}, ownerMismatch()
	}
	if cert.Payload.Status != "ACTIVE" {
		return MarketplaceListing{}, stateConflict("certificate is not ACTIVE")
	}

	now := time.Now().UTC()
	listing := MarketplaceListing{
		ListingID: "LISTING-" + uuid.New().String(),
		CertID:    certID,
		Seller:    seller,
		AskPrice:  askPrice,
		Status:    StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	event := ListingAuditEvent{
		EventID: "AUDIT-" + uuid.New().String(), ListingID: listing.ListingID, CertID: certID,
		Type: "CREATED", Actor: seller, OccurredAt: now,
	}
	if err := s.store.PutListingAndAudit(ctx, listing, event); err != nil {
		return MarketplaceListing{}, &DomainError{Status: 500, Code: "marketplace_error", Message: err.Error()}
	}
	s.fanOutAudit(event)
	return listing, nil
}

// requestHash returns the canonical-JSON SHA-256 of bodyForHash.
func requestHash(bodyForHash interface{}) (string, error) {
	return crypto.HashCanonical(bodyForHash)
}

// getListingOrDomainError translates the store's lookup error into the
// marketplace DomainError vocabulary.
func (s *Service) getListingOrDomainError(ctx context.Context, listingID string) (MarketplaceListing, *DomainError) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err == ErrListingNotFound {
		return MarketplaceListing{}, ErrListingNotFound
	}
	if err != nil {
		return MarketplaceListing{}, &DomainError{Status: 500, Code: "marketplace_error", Message: err.Error()}
	}
	return listing, nil
}

// checkIdempotency looks up (action, key); returns (record, found, domainErr).
// If a record exists and its hash matches, the caller returns the record's
// stored status and response bytes, which handlers.go writes unchanged. A
// hash mismatch yields ErrIdempotencyKeyReuseConflict.
func (s *Service) checkIdempotency(ctx context.Context, action, key, hash string) (IdempotencyRecord, bool, *DomainError) {
	rec, err := s.store.GetIdempotency(ctx, action, key)
	if err == ErrIdempotencyNotFound {
		return IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return IdempotencyRecord{}, false, &DomainError{Status: 500, Code: "marketplace_error", Message: err.Error()}
	}
	if rec.RequestHash != hash {
		return IdempotencyRecord{}, false, ErrIdempotencyKeyReuseConflict
	}
	return rec, true, nil
}

// LockEscrow transitions an OPEN listing to LOCKED via the certificate
// authority, idempotent on (action, idempotencyKey, requestBody).
func (s *Service) LockEscrow(ctx context.Context, listingID, buyer, idempotencyKey string, rawBody interface{}) (MarketplaceListing, int, []byte, *DomainError) {
	const action = "lockEscrow"
	if idempotencyKey == "" {
		return MarketplaceListing{}, 0, nil, ErrMissingIdempotencyKey
	}
	hash, err := requestHash(rawBody)
	if err != nil {
		return MarketplaceListing{}, 0, nil, &DomainError{Status: 500, Code: "marketplace_error", Message: err.Error()}
	}
	if rec, found, derr := s.checkIdempotency(ctx, action, idempotencyKey, hash); derr != nil {
		return MarketplaceListing{}, 0, nil, derr
	} else if found {
		return MarketplaceListing{}, rec.StatusCode, rec.ResponseBody, nil
	}

	if derr := s.freezeGate(ctx); derr != nil {
		return MarketplaceListing{}, 0, nil, derr
	}
	listing, derr := s.getListingOrDomainError(ctx, listingID)
	if derr != nil {
		return MarketplaceListing{}, 0, nil, derr
	}
	if listing.Status != StatusOpen {
		return MarketplaceListing{}, 0, nil, stateConflict("listing is not OPEN")
	}
	if derr := s.setCertificateStatus(ctx, listing.CertID, "LOCKED"); derr != nil {
		return MarketplaceListing{}, 0, nil, derr
	}

	now := time.Now().UTC()
	listing.Status = StatusLocked
	listing.LockedBy = buyer
	listing.LockedAt = &now
	listing.UpdatedAt = now
	event := ListingAuditEvent{
		EventID: "AUDIT-" + uuid.New().String(), ListingID: listing.ListingID, CertID: listing.CertID,
		Type: "LOCKED", Actor: buyer, OccurredAt: now,
	}

	respBody, err := crypto.MarshalCanonical(listing)
	if err != nil {
		return MarketplaceListing{}, 0, nil, &DomainError{Status: 500, Code: "marketplace_error", Message: err.Error()}
	}
	idem := IdempotencyRecord{Action: action, Key: idempotencyKey, RequestHash: hash, StatusCode: 200, ResponseBody: respBody, CreatedAt: now}
	if err := s.store.CommitMutation(ctx, listing, event, idem); err != nil {
		return MarketplaceListing{}, 0, nil, &DomainError{Status: 500, Code: "marketplace_error", Message: err.Error()}
	}
	s.fanOutAudit(event)
	return listing, 200, respBody, nil
}

// SettleEscrow two-phase settles a LOCKED listing: unlock then transfer,
// with best-effort compensating rollback on transfer failure.
func (s *Service) SettleEscrow(ctx context.Context, listingID, buyer, settledPrice, idempotencyKey string, rawBody interface{}) (map[string]interface{}, int, []byte, *DomainError) {
	const action = "settleEscrow"
	if idempotencyKey == "" {
		return nil, 0, nil, ErrMissingIdempotencyKey
	}
	hash, err := requestHash(rawBody)
	if err != nil {
		return nil, 0, nil, &DomainError{Status: 500, Code: "marketplace_error", Message: err.Error()}
	}
	if rec, found, derr := s.checkIdempotency(ctx, action, idempotencyKey, hash); derr != nil {
		return nil, 0, nil, derr
	} else if found {
		return nil, rec.StatusCode, rec.ResponseBody, nil
	}

	if derr := s.freezeGate(ctx); derr != nil {
		return nil, 0, nil, derr
	}
	listing, derr := s.getListingOrDomainError(ctx, listingID)
	if derr != nil {
		return nil, 0, nil, derr
	}
	if listing.Status != StatusLocked || listing.LockedBy != buyer {
		return nil, 0, nil, buyerMismatch()
	}

	price := settledPrice
	if price == "" {
		price = listing.AskPrice
	}

	if derr := s.setCertificateStatus(ctx, listing.CertID, "ACTIVE"); derr != nil {
		return nil, 0, nil, derr
	}
	transferResult, derr := s.transferCertificate(ctx, listing.CertID, buyer, price)
	if derr != nil {
		// Best-effort compensating rollback; its failure is swallowed and
		// the original transfer error is surfaced.
		s.setCertificateStatus(ctx, listing.CertID, "LOCKED")
		return nil, 0, nil, derr
	}

	now := time.Now().UTC()
	listing.Status = StatusSettled
	listing.SettledAt = &now
	listing.SettledPrice = price
	listing.UpdatedAt = now
	event := ListingAuditEvent{
		EventID: "AUDIT-" + uuid.New().String(), ListingID: listing.ListingID, CertID: listing.CertID,
		Type: "SETTLED", Actor: buyer, OccurredAt: now,
	}

	response := map[string]interface{}{"listing": listing, "transfer": transferResult}
	respBody, err := crypto.MarshalCanonical(response)
	if err != nil {
		return nil, 0, nil, &DomainError{Status: 500, Code: "marketplace_error", Message: err.Error()}
	}
	idem := IdempotencyRecord{Action: action, Key: idempotencyKey, RequestHash: hash, StatusCode: 200, ResponseBody: respBody, CreatedAt: now}
	if err := s.store.CommitMutation(ctx, listing, event, idem); err != nil {
		return nil, 0, nil, &DomainError{Status: 500, Code: "marketplace_error", Message: err.Error()}
	}
	s.fanOutAudit(event)
	return response, 200, respBody, nil
}

// CancelEscrow cancels an OPEN or LOCKED listing. Not freeze-gated, to
// permit unwind.
func (s *Service) CancelEscrow(ctx context.Context, listingID, reason, idempotencyKey string, rawBody interface{}) (MarketplaceListing, int, []byte, *DomainError) {
	const action = "cancelEscrow"
	if idempotencyKey == "" {
		return MarketplaceListing{}, 0, nil, ErrMissingIdempotencyKey
	}
	hash, err := requestHash(rawBody)
	if err != nil {
		return MarketplaceListing{}, 0, nil, &DomainError{Status: 500, Code: "marketplace_error", Message: err.Error()}
	}
	if rec, found, derr := s.checkIdempotency(ctx, action, idempotencyKey, hash); derr != nil {
		return MarketplaceListing{}, 0, nil, derr
	} else if found {
		return MarketplaceListing{}, rec.StatusCode, rec.ResponseBody, nil
	}

	listing, derr := s.getListingOrDomainError(ctx, listingID)
	if derr != nil {
		return MarketplaceListing{}, 0, nil, derr
	}
	if listing.Status == StatusSettled || listing.Status == StatusCancelled {
		return MarketplaceListing{}, 0, nil, stateConflict("listing is already terminal")
	}

	actor := listing.Seller
	if listing.Status == StatusLocked {
		if derr := s.setCertificateStatus(ctx, listing.CertID, "ACTIVE"); derr != nil {
			return MarketplaceListing{}, 0, nil, derr
		}
		if listing.LockedBy != "" {
			actor = listing.LockedBy
		}
	}

	now := time.Now().UTC()
	listing.Status = StatusCancelled
	listing.CancelledAt = &now
	listing.CancelReason = reason
	listing.UpdatedAt = now
	event := ListingAuditEvent{
		EventID: "AUDIT-" + uuid.New().String(), ListingID: listing.ListingID, CertID: listing.CertID,
		Type: "CANCELLED", Actor: actor, OccurredAt: now,
		Details: map[string]interface{}{"reason": reason},
	}

	respBody, err := crypto.MarshalCanonical(listing)
	if err != nil {
		return MarketplaceListing{}, 0, nil, &DomainError{Status: 500, Code: "marketplace_error", Message: err.Error()}
	}
	idem := IdempotencyRecord{Action: action, Key: idempotencyKey, RequestHash: hash, StatusCode: 200, ResponseBody: respBody, CreatedAt: now}
	if err := s.store.CommitMutation(ctx, listing, event, idem); err != nil {
		return MarketplaceListing{}, 0, nil, &DomainError{Status: 500, Code: "marketplace_error", Message: err.Error()}
	}
	s.fanOutAudit(event)
	return listing, 200, respBody, nil
}

func (s *Service) openDisputeRemote(ctx context.Context, listingID, certID, openedBy, reason, evidence string) (string, *DomainError) {
	if s.disputeClient == nil || s.disputeURL == "" {
		return "", &DomainError{Status: 503, Code: "dispute_service_unavailable", Message: "dispute orchestrator is not configured"}
	}
	body := map[string]string{"listingId": listingID, "certId": certID, "openedBy": openedBy, "reason": reason, "evidence": evidence}
	result := s.disputeClient.PostJSON(ctx, httpx.PrimaryDeadline, s.disputeURL+"/disputes/open", body, nil)
	if result.Unreachable {
		return "", &DomainError{Status: 503, Code: "dispute_service_unavailable", Message: "dispute orchestrator unreachable"}
	}
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		return "", &DomainError{Status: 502, Code: "collaborator_error", Message: "dispute orchestrator returned an error"}
	}
	var created struct {
		DisputeID string `json:"disputeId"`
	}
	if err := result.DecodeInto(&created); err != nil {
		return "", &DomainError{Status: 502, Code: "invalid_response", Message: "could not decode dispute response"}
	}
	return created.DisputeID, nil
}

// OpenDispute opens a dispute against a SETTLED listing.
func (s *Service) OpenDispute(ctx context.Context, listingID, openedBy, reason, evidence string) (MarketplaceListing, *DomainError) {
	listing, derr := s.getListingOrDomainError(ctx, listingID)
	if derr != nil {
		return MarketplaceListing{}, derr
	}
	if listing.Status != StatusSettled {
		return MarketplaceListing{}, stateConflict("listing is not SETTLED")
	}
	if listing.UnderDispute {
		return MarketplaceListing{}, stateConflict("listing is already under dispute")
	}

	disputeID, derr := s.openDisputeRemote(ctx, listingID, listing.CertID, openedBy, reason, evidence)
	if derr != nil {
		return MarketplaceListing{}, derr
	}

	now := time.Now().UTC()
	listing.UnderDispute = true
	listing.DisputeID = disputeID
	listing.DisputeStatus = "OPEN"
	listing.DisputeOpenedAt = &now
	listing.UpdatedAt = now
	event := ListingAuditEvent{
		EventID: "AUDIT-" + uuid.New().String(), ListingID: listing.ListingID, CertID: listing.CertID,
		Type: "DISPUTE_OPENED", Actor: openedBy, OccurredAt: now,
		Details: map[string]interface{}{"reason": reason, "disputeId": disputeID},
	}
	if err := s.store.PutListingAndAudit(ctx, listing, event); err != nil {
		return MarketplaceListing{}, &DomainError{Status: 500, Code: "marketplace_error", Message: err.Error()}
	}
	s.fanOutAudit(event)
	return listing, nil
}

// GetListing returns a listing by id.
func (s *Service) GetListing(ctx context.Context, listingID string) (MarketplaceListing, error) {
	return s.store.GetListing(ctx, listingID)
}

// ListListings returns listings, optionally filtered by status.
func (s *Service) ListListings(ctx context.Context, status string) ([]MarketplaceListing, error) {
	return s.store.ListListings(ctx, status)
}

// Audit returns the audit trail for a listing.
func (s *Service) Audit(ctx context.Context, listingID string) ([]ListingAuditEvent, error) {
	return s.store.Audit(ctx, listingID)
}
