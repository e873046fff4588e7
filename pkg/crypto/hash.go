package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex returns the lowercase hex SHA-256 digest of the UTF-8 bytes of
// s. It carries no "0x" prefix: every hash stored in the data model
// (payloadHash, proofHash, idempotency request hashes, ...) is a plain hex string.
func Sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Sha256HexBytes is Sha256Hex for already-encoded bytes, used when the
// caller has produced canonical JSON rather than a plain string.
func Sha256HexBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashCanonical canonicalizes v's JSON encoding and returns its hex digest.
// This is the single entry point every service uses to compute a
// payloadHash from a Go struct.
func HashCanonical(v interface{}) (string, error) {
	canon, err := MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return Sha256HexBytes(canon), nil
}
