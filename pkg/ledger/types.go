// Package ledger implements the DGC protocol's ledger adapter
// (component C): a proof-anchor store plus per-certificate event
// timeline, optionally backed by a chain sink.
package ledger

import "time"

// ProofAnchor is the latest anchoring record for a certificate.
type ProofAnchor struct {
	CertID      string    `json:"certId"`
	PayloadHash string    `json:"payloadHash"`
	ProofHash   string    `json:"proofHash"`
	AnchoredAt  time.Time `json:"anchoredAt"`
}

// proofAnchorSource is the payload proofHash is computed over, per the
// data model: SHA256(canonicalJSON({certId, payloadHash, occurredAt,
// anchoredAt})).
type proofAnchorSource struct {
	CertID      string    `json:"certId"`
	PayloadHash string    `json:"payloadHash"`
	OccurredAt  time.Time `json:"occurredAt"`
	AnchoredAt  time.Time `json:"anchoredAt"`
}

// EventKind discriminates the LedgerEvent tagged union.
type EventKind string

const (
	EventIssued       EventKind = "ISSUED"
	EventTransfer     EventKind = "TRANSFER"
	EventSplit        EventKind = "SPLIT"
	EventStatusChange EventKind = "STATUS_CHANGED"
)

// Event is the LedgerEvent tagged union. Fields not relevant to Kind are
// left zero-valued; handlers must decode by Kind and reject unknown
// variants.
type Event struct {
	Kind       EventKind `json:"kind"`
	CertID     string    `json:"certId"`
	OccurredAt time.Time `json:"occurredAt"`
	ProofHash  string    `json:"proofHash,omitempty"`

	// ISSUED
	Owner      string `json:"owner,omitempty"`
	AmountGram string `json:"amountGram,omitempty"`
	Purity     string `json:"purity,omitempty"`

	// TRANSFER
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Price string `json:"price,omitempty"`

	// SPLIT
	ParentCertID    string `json:"parentCertId,omitempty"`
	ChildCertID     string `json:"childCertId,omitempty"`
	AmountChildGram string `json:"amountChildGram,omitempty"`

	// STATUS_CHANGED
	Status string `json:"status,omitempty"`
}

// Valid reports whether the event's Kind is a recognized variant and its
// required fields for that variant are present.
func (e Event) Valid() bool {
	if e.CertID == "" {
		return false
	}
	switch e.Kind {
	case EventIssued:
		return e.Owner != "" && e.AmountGram != ""
	case EventTransfer:
		return e.From != "" && e.To != "" && e.AmountGram != ""
	case EventSplit:
		return e.ParentCertID != "" && e.ChildCertID != "" && e.AmountChildGram != ""
	case EventStatusChange:
		return e.Status != ""
	default:
		return false
	}
}

// RecordResult is the response of a successful record() call.
type RecordResult struct {
	Event       Event  `json:"event"`
	EventHash   string `json:"eventHash"`
	LedgerTxRef string `json:"ledgerTxRef,omitempty"`
}

// ChainStatus mirrors the chain sink's configuration/connectivity for
// the GET /chain/status endpoint.
type ChainStatus struct {
	Configured      bool    `json:"configured"`
	RPCURL          string  `json:"rpcUrl,omitempty"`
	RegistryAddress string  `json:"registryAddress,omitempty"`
	SignerAddress   string  `json:"signerAddress,omitempty"`
	LatestBlock     *uint64 `json:"latestBlock,omitempty"`
	Error           string  `json:"error,omitempty"`
}
