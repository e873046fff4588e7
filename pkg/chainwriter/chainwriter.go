package chainwriter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/dgc-protocol/pkg/amount"
)

// Event is the deterministic encoding of a lineage event the ledger
// adapter submits to the chain sink. From/To/Actor are protocol actor
// identifiers (owners or parties), mapped to addresses via ActorAddress;
// AmountGram/ChildAmountGram are canonical amount strings.
type Event struct {
	CertID          string
	PayloadHash     string
	OccurredAt      time.Time
	Kind            string // ISSUED | TRANSFER | SPLIT | STATUS_CHANGED
	Owner           string
	From            string
	To              string
	AmountGram      string
	Purity          string
	Status          string
	ParentCertID    string
	ChildCertID     string
	ChildAmountGram string
}

// Status describes the chain sink's current configuration and
// connectivity, per the ledger adapter's chainStatus() operation.
type Status struct {
	Configured      bool
	RPCURL          string
	RegistryAddress string
	SignerAddress   string
	LatestBlock     *uint64
	Error           string
}

// ChainWriter is the chain sink abstraction (component B): it accepts a
// lineage event and returns an opaque transaction reference, or reports
// itself unconfigured. The on-chain contract it writes to is out of
// scope; only this interface and the deterministic encoding it performs
// are part of the protocol.
type ChainWriter interface {
	Configured() bool
	Write(ctx context.Context, event Event) (txRef string, err error)
	Status(ctx context.Context) Status
}

// Unconfigured is a ChainWriter that is never configured; used when no
// CHAIN_RPC_URL is supplied, so the ledger adapter can treat "no sink"
// uniformly with "sink present but erroring".
type Unconfigured struct{}

func (Unconfigured) Configured() bool { return false }

func (Unconfigured) Write(ctx context.Context, event Event) (string, error) {
	return "", fmt.Errorf("chain sink not configured")
}

func (Unconfigured) Status(ctx context.Context) Status {
	return Status{Configured: false}
}

// registryABI is the minimal interface the DGC registry contract is
// assumed to expose: a single method recording a lineage event by its
// encoded fields. The concrete contract is out of scope; this ABI only
// needs to match whatever registry the deployer points CHAIN_RPC_URL and
// DGC_REGISTRY_ADDRESS at.
const registryABI = `[{"type":"function","name":"recordEvent","inputs":[
  {"name":"certIdHash","type":"bytes32"},
  {"name":"actor","type":"address"},
  {"name":"amountScaled","type":"uint256"},
  {"name":"purityBps","type":"uint32"},
  {"name":"status","type":"uint8"},
  {"name":"payloadHash","type":"bytes32"}
],"outputs":[],"stateMutability":"nonpayable"}]`

// EVMWriter submits lineage events to an EVM-compatible chain by calling
// the registry contract's recordEvent method.
type EVMWriter struct {
	client     *ethclient.Client
	chainID    *big.Int
	signerKey  *ecdsa.PrivateKey
	signerAddr common.Address
	registry   common.Address
	abi        abi.ABI
	rpcURL     string
}

// NewEVMWriter dials rpcURL and derives the signer from privateKeyHex.
// It returns an error only on malformed input or an immediate dial
// failure; transient RPC unavailability surfaces later through Status
// and Write.
func NewEVMWriter(rpcURL, privateKeyHex, registryAddress string, chainID int64) (*EVMWriter, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	key, err := crypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("parse chain private key: %w", err)
	}
	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("derive chain signer address: unexpected public key type")
	}
	parsedABI, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	return &EVMWriter{
		client:     client,
		chainID:    big.NewInt(chainID),
		signerKey:  key,
		signerAddr: crypto.PubkeyToAddress(*pub),
		registry:   common.HexToAddress(registryAddress),
		abi:        parsedABI,
		rpcURL:     rpcURL,
	}, nil
}

func (w *EVMWriter) Configured() bool { return w != nil }

// Write encodes event per the protocol's on-chain mapping and submits a
// transaction to the registry contract. It returns the transaction hash
// immediately after broadcast; it does not wait for the transaction to
// be mined, since every caller bounds this call by a short deadline.
func (w *EVMWriter) Write(ctx context.Context, event Event) (string, error) {
	status, ok := StatusCode(event.Status)
	if !ok {
		status, ok = StatusCode("ACTIVE")
		if !ok {
			status = 0
		}
	}
	purityBps, _ := PurityBasisPoints(event.Purity)
	amountScaled, _ := amountScaledOrZero(event.AmountGram)

	actor := event.Owner
	if actor == "" {
		actor = event.To
	}
	if actor == "" {
		actor = event.From
	}

	certHash := CertIDHash(event.CertID)
	actorAddr := ActorAddress(actor)
	payloadHash := CertIDHash(event.PayloadHash)

	callData, err := w.abi.Pack("recordEvent", certHash, actorAddr, big.NewInt(amountScaled), purityBps, status, payloadHash)
	if err != nil {
		return "", fmt.Errorf("encode recordEvent call: %w", err)
	}

	nonce, err := w.client.PendingNonceAt(ctx, w.signerAddr)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, w.registry, big.NewInt(0), 200000, gasPrice, callData)
	signer := types.LatestSignerForChainID(w.chainID)
	signedTx, err := types.SignTx(tx, signer, w.signerKey)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := w.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return signedTx.Hash().Hex(), nil
}

func (w *EVMWriter) Status(ctx context.Context) Status {
	s := Status{
		Configured:      true,
		RPCURL:          w.rpcURL,
		RegistryAddress: w.registry.Hex(),
		SignerAddress:   w.signerAddr.Hex(),
	}
	block, err := w.client.BlockNumber(ctx)
	if err != nil {
		s.Error = err.Error()
		return s
	}
	s.LatestBlock = &block
	return s
}

func amountScaledOrZero(amountGram string) (int64, bool) {
	if amountGram == "" {
		return 0, false
	}
	parsed, err := amount.Parse(amountGram)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
