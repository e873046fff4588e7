// Package chainwriter implements the DGC protocol's chain sink: an
// optional adapter (component B) that accepts a lineage event and
// returns a transaction reference, or reports itself unconfigured. The
// on-chain contract itself is out of scope; only the deterministic
// encoding of protocol values into chain-native types is specified.
package chainwriter

import (
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// StatusCode maps a GoldCertificate status to its on-chain integer code.
func StatusCode(status string) (uint8, bool) {
	switch status {
	case "ACTIVE":
		return 0, true
	case "LOCKED":
		return 1, true
	case "REDEEMED":
		return 2, true
	case "REVOKED":
		return 3, true
	default:
		return 0, false
	}
}

var purityPattern = regexp.MustCompile(`^\d{3}\.\d$`)

// PurityBasisPoints converts a "999.9"-style purity string to basis
// points, e.g. "999.9" -> 9999.
func PurityBasisPoints(purity string) (uint32, bool) {
	if !purityPattern.MatchString(purity) {
		return 0, false
	}
	digits := strings.Replace(purity, ".", "", 1)
	v, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

var hex32Pattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)

// CertIDHash maps a certId to its canonical 32-byte on-chain identity. A
// certId that is already 64 hex characters is decoded directly; any
// other certId (e.g. the protocol's "DGC-..." opaque ids) is collapsed
// via keccak256 of its UTF-8 bytes. Once a certId has been anchored this
// mapping is part of the public on-chain contract and must never change.
func CertIDHash(certID string) [32]byte {
	if hex32Pattern.MatchString(certID) {
		raw, err := hex.DecodeString(strings.TrimPrefix(certID, "0x"))
		if err == nil {
			var out [32]byte
			copy(out[:], raw)
			return out
		}
	}
	return [32]byte(crypto.Keccak256Hash([]byte(certID)))
}

// ActorAddress maps an actor identifier to its canonical on-chain
// address. A well-formed hex address is used as-is; any other actor
// string is derived from the last 20 bytes of keccak256 of its UTF-8
// bytes.
func ActorAddress(actor string) common.Address {
	if common.IsHexAddress(actor) {
		return common.HexToAddress(actor)
	}
	digest := crypto.Keccak256([]byte(actor))
	return common.BytesToAddress(digest[len(digest)-20:])
}
