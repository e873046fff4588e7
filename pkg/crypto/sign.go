package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrMalformedKey is returned when a hex-encoded key or signature does not
// decode to the expected Ed25519 size.
var ErrMalformedKey = errors.New("malformed_key")

// GenerateKeypair returns a fresh Ed25519 private key encoded as lowercase
// hex, along with its derived public key.
func GenerateKeypair() (skHex, pkHex string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(priv), hex.EncodeToString(pub), nil
}

// DerivePublicKey returns the hex public key embedded in an Ed25519 hex
// private key. Go's ed25519.PrivateKey stores the seed and the public key
// concatenated, so derivation is a slice, not a computation.
func DerivePublicKey(skHex string) (string, error) {
	sk, err := decodePrivateKey(skHex)
	if err != nil {
		return "", err
	}
	pub := sk.Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub), nil
}

// Sign signs the raw bytes of hashHex (the hex digest treated as an
// opaque UTF-8 string, not decoded back to binary) with skHex and returns
// the signature as lowercase hex. No domain separation is applied: the
// signature covers exactly the hashHex string.
func Sign(hashHex, skHex string) (string, error) {
	sk, err := decodePrivateKey(skHex)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(sk, []byte(hashHex))
	return hex.EncodeToString(sig), nil
}

// Verify reports whether sigHex is a valid Ed25519 signature over hashHex
// under pkHex. A malformed key or signature is treated as verification
// failure, never as an error.
func Verify(hashHex, sigHex, pkHex string) bool {
	pk, err := decodePublicKey(pkHex)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pk, []byte(hashHex), sig)
}

func decodePrivateKey(skHex string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(skHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedKey, ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

func decodePublicKey(pkHex string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(pkHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedKey, ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
