package steem

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// maxSignAttempts bounds the search for a canonical signature.
const maxSignAttempts = 64

// ErrNoCanonicalSignature is returned when no canonical signature was found
// within maxSignAttempts expiration bumps.
var ErrNoCanonicalSignature = errors.New("no canonical signature found")

// Digest returns the signing digest of tx for the given chain id.
func Digest(chainID []byte, tx *Transaction) []byte {
	h := sha256.New()
	h.Write(chainID)
	h.Write(tx.Serialize())
	return h.Sum(nil)
}

// Sign appends a compact canonical signature to tx. Signing is
// deterministic, so a non-canonical result is retried with the expiration
// moved forward by one second.
func Sign(tx *Transaction, chainID []byte, key *PrivateKey) error {
	for i := 0; i < maxSignAttempts; i++ {
		sig, err := crypto.Sign(Digest(chainID, tx), key.key)
		if err != nil {
			return fmt.Errorf("sign transaction: %w", err)
		}
		compact := toCompact(sig)
		if isCanonical(compact) {
			tx.Signatures = append(tx.Signatures, hex.EncodeToString(compact))
			return nil
		}
		tx.Expiration = tx.Expiration.Add(time.Second)
	}
	return ErrNoCanonicalSignature
}

// toCompact converts [R|S|V] to the ledger's [V+31|R|S] layout.
func toCompact(sig []byte) []byte {
	out := make([]byte, 65)
	out[0] = sig[64] + 27 + 4
	copy(out[1:], sig[:64])
	return out
}

func isCanonical(c []byte) bool {
	return c[1]&0x80 == 0 &&
		!(c[1] == 0 && c[2]&0x80 == 0) &&
		c[33]&0x80 == 0 &&
		!(c[33] == 0 && c[34]&0x80 == 0)
}

// RecoverPublicKey returns the STM public key that produced a compact
// signature over digest.
func RecoverPublicKey(digest []byte, compactHex string) (string, error) {
	c, err := hex.DecodeString(compactHex)
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(c) != 65 || c[0] < 31 {
		return "", fmt.Errorf("malformed compact signature")
	}
	sig := make([]byte, 65)
	copy(sig, c[1:])
	sig[64] = c[0] - 31
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return EncodePublicKey(crypto.CompressPubkey(pub)), nil
}

// ParseChainID decodes a hex chain id.
func ParseChainID(s string) ([]byte, error) {
	id, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode chain id: %w", err)
	}
	if len(id) != 32 {
		return nil, fmt.Errorf("chain id must be 32 bytes, got %d", len(id))
	}
	return id, nil
}
